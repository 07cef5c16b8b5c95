package repository

import (
	"context"
	"iter"
	"sort"
	"sync"
	"time"

	"CareFollow/internal/model"
	"CareFollow/pkg/errors"
)

// MemoryStore 进程内存储，语义与 GormStore 一致，用于测试和本地 mock 模式
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	records map[int64]*model.ReminderRecord
	byKey   map[string]int64
	now     func() time.Time

	// 故障注入
	scanErr   error
	insertErr error
	updateErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[int64]*model.ReminderRecord),
		byKey:   make(map[string]int64),
		now:     time.Now,
	}
}

// SetNow 替换时钟
func (m *MemoryStore) SetNow(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// FailScans / FailInserts / FailUpdates 让对应操作返回 StoreUnavailable，传 nil 恢复
func (m *MemoryStore) FailScans(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanErr = err
}

func (m *MemoryStore) FailInserts(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertErr = err
}

func (m *MemoryStore) FailUpdates(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateErr = err
}

// Put 直接写入一条记录（可为任意状态），用于构造旧数据或测试场景
func (m *MemoryStore) Put(r *model.ReminderRecord) *model.ReminderRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := r.Clone()
	if c.ID == 0 {
		m.nextID++
		c.ID = m.nextID
	} else if c.ID > m.nextID {
		m.nextID = c.ID
	}
	m.records[c.ID] = c
	m.byKey[recordKey(c.PatientID, c.ReminderType)] = c.ID
	return c.Clone()
}

// Get 按 ID 读取
func (m *MemoryStore) Get(id int64) (*model.ReminderRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok {
		return nil, false
	}
	c := r.Clone()
	normalizeLegacy(c)
	return c, true
}

// Len 记录总数
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MemoryStore) Scan(ctx context.Context, filter Filter) iter.Seq2[*model.ReminderRecord, error] {
	return func(yield func(*model.ReminderRecord, error) bool) {
		var lastID int64
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, errors.Unavailable("scan reminders", err))
				return
			}

			page, err := m.page(filter, lastID, defaultPageSize)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, r := range page {
				if !yield(r, nil) {
					return
				}
			}
			if len(page) < defaultPageSize {
				return
			}
			lastID = page[len(page)-1].ID
		}
	}
}

func (m *MemoryStore) page(filter Filter, afterID int64, limit int) ([]*model.ReminderRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.scanErr != nil {
		return nil, errors.Unavailable("scan reminders", m.scanErr)
	}

	ids := make([]int64, 0, len(m.records))
	for id := range m.records {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	page := make([]*model.ReminderRecord, 0, limit)
	for _, id := range ids {
		c := m.records[id].Clone()
		normalizeLegacy(c)
		if !filter.match(c) {
			continue
		}
		page = append(page, c)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

func (m *MemoryStore) Insert(ctx context.Context, record *model.ReminderRecord) error {
	if err := validateNew(record); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.insertErr != nil {
		return errors.Unavailable("insert reminder", m.insertErr)
	}
	if err := ctx.Err(); err != nil {
		return errors.Unavailable("insert reminder", err)
	}

	key := recordKey(record.PatientID, record.ReminderType)
	if _, exists := m.byKey[key]; exists {
		return errors.ReminderDuplicate
	}

	now := m.now()
	m.nextID++
	record.ID = m.nextID
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	m.records[record.ID] = record.Clone()
	m.byKey[key] = record.ID
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, id int64, expected model.ReminderStatus, fields Fields) error {
	if err := checkTransition(expected, fields); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return errors.Unavailable("update reminder", m.updateErr)
	}
	if err := ctx.Err(); err != nil {
		return errors.Unavailable("update reminder", err)
	}

	r, ok := m.records[id]
	if !ok {
		return errors.StateConflict
	}
	normalizeLegacy(r)
	if r.Status != expected {
		return errors.StateConflict
	}

	r.Status = fields.Status
	if fields.SentAt != nil {
		t := *fields.SentAt
		r.SentAt = &t
	}
	if fields.RespondedAt != nil {
		t := *fields.RespondedAt
		r.RespondedAt = &t
	}
	if fields.ResponseText != nil {
		s := *fields.ResponseText
		r.ResponseText = &s
	}
	r.UpdatedAt = m.now()
	return nil
}

func recordKey(patientID string, rt model.ReminderType) string {
	return patientID + "\x00" + string(rt)
}

package repository

import (
	"context"
	"iter"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"

	"CareFollow/internal/model"
	"CareFollow/pkg/errors"
)

// GormStore 基于 PostgreSQL 的提醒存储
type GormStore struct {
	db       *gorm.DB
	timeout  time.Duration
	pageSize int
}

func NewGormStore(db *gorm.DB, timeout time.Duration) *GormStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &GormStore{
		db:       db,
		timeout:  timeout,
		pageSize: defaultPageSize,
	}
}

func (s *GormStore) Scan(ctx context.Context, filter Filter) iter.Seq2[*model.ReminderRecord, error] {
	return func(yield func(*model.ReminderRecord, error) bool) {
		var lastID int64
		for {
			page, err := s.page(ctx, filter, lastID)
			if err != nil {
				yield(nil, errors.Unavailable("scan reminders", err))
				return
			}
			for _, r := range page {
				normalizeLegacy(r)
				if !yield(r, nil) {
					return
				}
			}
			if len(page) < s.pageSize {
				return
			}
			lastID = page[len(page)-1].ID
		}
	}
}

// page 按主键游标分页，每页独立超时，不长时间占用连接
func (s *GormStore) page(ctx context.Context, filter Filter, afterID int64) ([]*model.ReminderRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	q := s.db.WithContext(ctx).Model(&model.ReminderRecord{}).Where("id > ?", afterID)
	if !filter.AllowReplica {
		q = q.Clauses(dbresolver.Write)
	}
	if filter.PatientID != "" {
		q = q.Where("patient_id = ?", filter.PatientID)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.statusStrings())
	}
	if !filter.ScheduledUntil.IsZero() {
		q = q.Where("scheduled_at <= ?", filter.ScheduledUntil)
	}
	if !filter.SentUntil.IsZero() {
		q = q.Where("sent_at IS NOT NULL AND sent_at <= ?", filter.SentUntil)
	}

	var page []*model.ReminderRecord
	if err := q.Order("id ASC").Limit(s.pageSize).Find(&page).Error; err != nil {
		return nil, err
	}
	return page, nil
}

func (s *GormStore) Insert(ctx context.Context, record *model.ReminderRecord) error {
	if err := validateNew(record); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// 唯一索引冲突时不报错，RowsAffected 为 0 即视为重复
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "patient_id"}, {Name: "reminder_type"}},
			DoNothing: true,
		}).
		Create(record)
	if res.Error != nil {
		return errors.Unavailable("insert reminder", res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.ReminderDuplicate
	}
	return nil
}

func (s *GormStore) Update(ctx context.Context, id int64, expected model.ReminderStatus, fields Fields) error {
	if err := checkTransition(expected, fields); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	columns := map[string]interface{}{
		"status":     string(fields.Status),
		"updated_at": time.Now(),
	}
	if fields.SentAt != nil {
		columns["sent_at"] = *fields.SentAt
	}
	if fields.RespondedAt != nil {
		columns["responded_at"] = *fields.RespondedAt
	}
	if fields.ResponseText != nil {
		columns["response_text"] = *fields.ResponseText
	}

	// compare-and-set：只有当前状态仍为 expected 时才会命中
	res := s.db.WithContext(ctx).
		Clauses(dbresolver.Write).
		Model(&model.ReminderRecord{}).
		Where("id = ? AND status = ?", id, string(expected)).
		Updates(columns)
	if res.Error != nil {
		return errors.Unavailable("update reminder", res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.StateConflict
	}
	return nil
}

// Ping 检查主库连通性
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Unavailable("ping", err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return errors.Unavailable("ping", err)
	}
	return nil
}

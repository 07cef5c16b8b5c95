package repository

import (
	"context"
	stderrors "errors"
	"strconv"
	"testing"
	"time"

	"CareFollow/internal/model"
	"CareFollow/pkg/errors"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newRecord(patientID string, rt model.ReminderType) *model.ReminderRecord {
	return &model.ReminderRecord{
		PatientID:    patientID,
		ReminderType: rt,
		ScheduledAt:  base.Add(rt.Offset()),
	}
}

func collect(t *testing.T, s Store, f Filter) []*model.ReminderRecord {
	t.Helper()
	var out []*model.ReminderRecord
	for r, err := range s.Scan(context.Background(), f) {
		if err != nil {
			t.Fatalf("unexpected scan error: %v", err)
		}
		out = append(out, r)
	}
	return out
}

func TestMemoryStoreInsert(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	r := newRecord("U1234567890", model.ReminderTypeDay3)
	if err := s.Insert(ctx, r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.ID == 0 {
		t.Fatal("expected store-assigned id")
	}
	if r.Status != model.ReminderStatusScheduled {
		t.Errorf("status = %s, want scheduled", r.Status)
	}

	err := s.Insert(ctx, newRecord("U1234567890", model.ReminderTypeDay3))
	if !errors.Is(err, errors.ReminderDuplicate) {
		t.Fatalf("second insert err = %v, want ReminderDuplicate", err)
	}
	if s.Len() != 1 {
		t.Errorf("len = %d, want 1", s.Len())
	}
}

func TestMemoryStoreInsertValidation(t *testing.T) {
	tests := []struct {
		name   string
		record *model.ReminderRecord
	}{
		{"nil", nil},
		{"blank patient", newRecord("  ", model.ReminderTypeDay3)},
		{"unknown type", newRecord("U1234567890", model.ReminderType("day5"))},
		{"not scheduled", &model.ReminderRecord{
			PatientID: "U1234567890", ReminderType: model.ReminderTypeDay7,
			ScheduledAt: base, Status: model.ReminderStatusSent,
		}},
		{"zero scheduled_at", &model.ReminderRecord{PatientID: "U1234567890", ReminderType: model.ReminderTypeDay7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryStore()
			err := s.Insert(context.Background(), tt.record)
			if !errors.Is(err, errors.ValidationError) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if s.Len() != 0 {
				t.Errorf("len = %d, want 0", s.Len())
			}
		})
	}
}

func TestMemoryStoreUpdateCAS(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	r := newRecord("U1234567890", model.ReminderTypeDay3)
	if err := s.Insert(ctx, r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sentAt := base.Add(72 * time.Hour)
	if err := s.Update(ctx, r.ID, model.ReminderStatusScheduled, Fields{Status: model.ReminderStatusSent, SentAt: &sentAt}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 第二次以旧状态为前提的更新必须冲突
	err := s.Update(ctx, r.ID, model.ReminderStatusScheduled, Fields{Status: model.ReminderStatusSent, SentAt: &sentAt})
	if !errors.Is(err, errors.StateConflict) {
		t.Fatalf("stale update err = %v, want StateConflict", err)
	}

	if err := s.Update(ctx, r.ID, model.ReminderStatusSent, Fields{Status: model.ReminderStatusNoResponse}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text := "fine"
	err = s.Update(ctx, r.ID, model.ReminderStatusSent, Fields{Status: model.ReminderStatusResponded, RespondedAt: &sentAt, ResponseText: &text})
	if !errors.Is(err, errors.StateConflict) {
		t.Fatalf("update after escalation err = %v, want StateConflict", err)
	}

	got, ok := s.Get(r.ID)
	if !ok {
		t.Fatal("record not found")
	}
	if got.Status != model.ReminderStatusNoResponse {
		t.Errorf("status = %s, want no_response", got.Status)
	}
	if got.SentAt == nil || !got.SentAt.Equal(sentAt) {
		t.Errorf("sent_at = %v, want %v", got.SentAt, sentAt)
	}
	if got.RespondedAt != nil {
		t.Errorf("responded_at = %v, want nil", got.RespondedAt)
	}
}

func TestMemoryStoreUpdateRejectsInvalidTransition(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	r := newRecord("U1234567890", model.ReminderTypeDay3)
	if err := s.Insert(ctx, r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name     string
		expected model.ReminderStatus
		fields   Fields
		want     error
	}{
		{"skip sent", model.ReminderStatusScheduled, Fields{Status: model.ReminderStatusResponded}, errors.InvalidTransition},
		{"backwards", model.ReminderStatusSent, Fields{Status: model.ReminderStatusScheduled}, errors.InvalidTransition},
		{"sent without timestamp", model.ReminderStatusScheduled, Fields{Status: model.ReminderStatusSent}, errors.ValidationError},
		{"responded without text", model.ReminderStatusSent, Fields{Status: model.ReminderStatusResponded, RespondedAt: &base}, errors.ValidationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Update(ctx, r.ID, tt.expected, tt.fields)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	got, _ := s.Get(r.ID)
	if got.Status != model.ReminderStatusScheduled {
		t.Errorf("status = %s, want scheduled", got.Status)
	}
}

func TestMemoryStoreUpdateUnknownID(t *testing.T) {
	s := NewMemoryStore()
	sentAt := base
	err := s.Update(context.Background(), 42, model.ReminderStatusScheduled, Fields{Status: model.ReminderStatusSent, SentAt: &sentAt})
	if !errors.Is(err, errors.StateConflict) {
		t.Fatalf("err = %v, want StateConflict", err)
	}
}

func TestMemoryStoreScanFilters(t *testing.T) {
	s := NewMemoryStore()
	sent := base.Add(80 * time.Hour)
	s.Put(newRecord("U1111111111", model.ReminderTypeDay3))
	s.Put(newRecord("U1111111111", model.ReminderTypeDay7))
	s.Put(&model.ReminderRecord{
		PatientID: "U2222222222", ReminderType: model.ReminderTypeDay3,
		ScheduledAt: base.Add(72 * time.Hour), Status: model.ReminderStatusSent, SentAt: &sent,
	})

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 3},
		{"by patient", Filter{PatientID: "U1111111111"}, 2},
		{"by status", Filter{Statuses: []model.ReminderStatus{model.ReminderStatusSent}}, 1},
		{"due until day3", Filter{Statuses: []model.ReminderStatus{model.ReminderStatusScheduled}, ScheduledUntil: base.Add(72 * time.Hour)}, 1},
		{"sent until before sent", Filter{SentUntil: sent.Add(-time.Second)}, 0},
		{"sent until inclusive", Filter{SentUntil: sent}, 1},
		{"unknown patient", Filter{PatientID: "nobody"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collect(t, s, tt.filter)
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestMemoryStoreScanEmpty(t *testing.T) {
	if got := collect(t, NewMemoryStore(), Filter{}); len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestMemoryStoreScanPages(t *testing.T) {
	s := NewMemoryStore()
	total := defaultPageSize*2 + 7
	for i := 0; i < total; i++ {
		s.Put(&model.ReminderRecord{
			PatientID:    "U" + strconv.Itoa(i),
			ReminderType: model.ReminderTypeDay3,
			ScheduledAt:  base,
			Status:       model.ReminderStatusScheduled,
		})
	}

	got := collect(t, s, Filter{})
	if len(got) != total {
		t.Fatalf("len = %d, want %d", len(got), total)
	}
	for i := 1; i < len(got); i++ {
		if got[i].ID <= got[i-1].ID {
			t.Fatalf("ids not ascending at %d: %d <= %d", i, got[i].ID, got[i-1].ID)
		}
	}
}

func TestMemoryStoreScanReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	stored := s.Put(newRecord("U1234567890", model.ReminderTypeDay3))

	for r, err := range s.Scan(context.Background(), Filter{}) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		r.Status = model.ReminderStatusResponded
	}

	got, _ := s.Get(stored.ID)
	if got.Status != model.ReminderStatusScheduled {
		t.Errorf("status = %s, want scheduled", got.Status)
	}
}

func TestMemoryStoreFaultInjection(t *testing.T) {
	ctx := context.Background()
	cause := stderrors.New("connection refused")
	s := NewMemoryStore()
	stored := s.Put(newRecord("U1234567890", model.ReminderTypeDay3))

	s.FailScans(cause)
	var scanErr error
	for _, err := range s.Scan(ctx, Filter{}) {
		scanErr = err
	}
	if !errors.Is(scanErr, errors.StoreUnavailable) || !errors.Is(scanErr, cause) {
		t.Errorf("scan err = %v, want StoreUnavailable wrapping cause", scanErr)
	}

	s.FailInserts(cause)
	if err := s.Insert(ctx, newRecord("U1234567890", model.ReminderTypeDay7)); !errors.Is(err, errors.StoreUnavailable) {
		t.Errorf("insert err = %v, want StoreUnavailable", err)
	}

	s.FailUpdates(cause)
	sentAt := base
	if err := s.Update(ctx, stored.ID, model.ReminderStatusScheduled, Fields{Status: model.ReminderStatusSent, SentAt: &sentAt}); !errors.Is(err, errors.StoreUnavailable) {
		t.Errorf("update err = %v, want StoreUnavailable", err)
	}

	s.FailScans(nil)
	if got := collect(t, s, Filter{}); len(got) != 1 {
		t.Errorf("len after recovery = %d, want 1", len(got))
	}
}

func TestNormalizeLegacy(t *testing.T) {
	sent := base.Add(time.Hour)
	responded := base.Add(2 * time.Hour)
	updated := base.Add(3 * time.Hour)

	tests := []struct {
		name       string
		record     model.ReminderRecord
		want       model.ReminderStatus
		wantSentAt *time.Time
	}{
		{"no timestamps", model.ReminderRecord{ScheduledAt: base}, model.ReminderStatusScheduled, nil},
		{"sent only", model.ReminderRecord{ScheduledAt: base, SentAt: &sent}, model.ReminderStatusSent, &sent},
		{"responded", model.ReminderRecord{ScheduledAt: base, SentAt: &sent, RespondedAt: &responded}, model.ReminderStatusResponded, &sent},
		{"valid kept", model.ReminderRecord{ScheduledAt: base, SentAt: &sent, Status: model.ReminderStatusNoResponse}, model.ReminderStatusNoResponse, &sent},
		{"sent without sent_at uses updated_at", model.ReminderRecord{ScheduledAt: base, UpdatedAt: updated, Status: model.ReminderStatusSent}, model.ReminderStatusSent, &updated},
		{"sent without any timestamp uses scheduled_at", model.ReminderRecord{ScheduledAt: base, Status: model.ReminderStatusSent}, model.ReminderStatusSent, &base},
		{"responded without sent_at", model.ReminderRecord{ScheduledAt: base, RespondedAt: &responded}, model.ReminderStatusResponded, &base},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.record
			normalizeLegacy(&r)
			if r.Status != tt.want {
				t.Errorf("status = %s, want %s", r.Status, tt.want)
			}
			if !r.CreatedAt.Equal(base) {
				t.Errorf("created_at = %v, want %v", r.CreatedAt, base)
			}
			switch {
			case tt.wantSentAt == nil && r.SentAt != nil:
				t.Errorf("sent_at = %v, want nil", r.SentAt)
			case tt.wantSentAt != nil && (r.SentAt == nil || !r.SentAt.Equal(*tt.wantSentAt)):
				t.Errorf("sent_at = %v, want %v", r.SentAt, *tt.wantSentAt)
			}
		})
	}
}

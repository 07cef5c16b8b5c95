package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"CareFollow/internal/model"
	"CareFollow/internal/repository"
	"CareFollow/pkg/errors"
)

func sentRecord(rt model.ReminderType, sentAt time.Time) *model.ReminderRecord {
	return &model.ReminderRecord{
		PatientID:    patient,
		ReminderType: rt,
		ScheduledAt:  discharge.Add(rt.Offset()),
		Status:       model.ReminderStatusSent,
		SentAt:       &sentAt,
		CreatedAt:    discharge,
	}
}

func newRecorder(t *testing.T, store repository.Store, keywords ...string) (*ResponseRecorder, func() int) {
	t.Helper()
	gw, tr := newGateway(t)
	r := NewResponseRecorder(store, gw, ResponseOptions{StaffRecipient: nurses, ConcernKeywords: keywords}, zaptest.NewLogger(t))
	return r, func() int { return len(tr.CallsTo(nurses)) }
}

func TestRecordResponseMatchesLatestSent(t *testing.T) {
	store := repository.NewMemoryStore()
	day3 := store.Put(sentRecord(model.ReminderTypeDay3, discharge.Add(72*time.Hour)))
	day7 := store.Put(sentRecord(model.ReminderTypeDay7, discharge.Add(168*time.Hour)))
	r, _ := newRecorder(t, store)

	received := discharge.Add(170 * time.Hour)
	ok, err := r.RecordResponse(context.Background(), patient, "สบายดีค่ะ", received)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected response to match a reminder")
	}

	got, _ := store.Get(day7.ID)
	if got.Status != model.ReminderStatusResponded {
		t.Errorf("day7 status = %s, want responded", got.Status)
	}
	if got.RespondedAt == nil || !got.RespondedAt.Equal(received) {
		t.Errorf("responded_at = %v, want %v", got.RespondedAt, received)
	}
	if got.ResponseText == nil || *got.ResponseText != "สบายดีค่ะ" {
		t.Errorf("response_text = %v", got.ResponseText)
	}

	untouched, _ := store.Get(day3.ID)
	if untouched.Status != model.ReminderStatusSent {
		t.Errorf("day3 status = %s, want sent", untouched.Status)
	}
}

func TestRecordResponseTieGoesToLowerOffset(t *testing.T) {
	store := repository.NewMemoryStore()
	same := discharge.Add(200 * time.Hour)
	day14 := store.Put(sentRecord(model.ReminderTypeDay14, same))
	day7 := store.Put(sentRecord(model.ReminderTypeDay7, same))
	r, _ := newRecorder(t, store)

	if _, err := r.RecordResponse(context.Background(), patient, "ok", same.Add(time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, _ := store.Get(day7.ID); got.Status != model.ReminderStatusResponded {
		t.Errorf("day7 status = %s, want responded", got.Status)
	}
	if got, _ := store.Get(day14.ID); got.Status != model.ReminderStatusSent {
		t.Errorf("day14 status = %s, want sent", got.Status)
	}
}

// racingStore 在第一次更新 raceID 之前先把它升级为 no_response，模拟并发的升级任务
type racingStore struct {
	repository.Store
	raceID int64
	raced  bool
}

func (s *racingStore) Update(ctx context.Context, id int64, expected model.ReminderStatus, fields repository.Fields) error {
	if id == s.raceID && !s.raced {
		s.raced = true
		if err := s.Store.Update(ctx, id, model.ReminderStatusSent, repository.Fields{Status: model.ReminderStatusNoResponse}); err != nil {
			return err
		}
	}
	return s.Store.Update(ctx, id, expected, fields)
}

func TestRecordResponseFallsThroughOnConflict(t *testing.T) {
	mem := repository.NewMemoryStore()
	day3 := mem.Put(sentRecord(model.ReminderTypeDay3, discharge.Add(72*time.Hour)))
	day7 := mem.Put(sentRecord(model.ReminderTypeDay7, discharge.Add(168*time.Hour)))
	store := &racingStore{Store: mem, raceID: day7.ID}
	r, _ := newRecorder(t, store)

	ok, err := r.RecordResponse(context.Background(), patient, "ok", discharge.Add(200*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected response to match the next candidate")
	}

	if got, _ := mem.Get(day7.ID); got.Status != model.ReminderStatusNoResponse {
		t.Errorf("day7 status = %s, want no_response", got.Status)
	}
	if got, _ := mem.Get(day3.ID); got.Status != model.ReminderStatusResponded {
		t.Errorf("day3 status = %s, want responded", got.Status)
	}
}

func TestRecordResponseWithoutSentReminder(t *testing.T) {
	store := repository.NewMemoryStore()
	store.Put(&model.ReminderRecord{
		PatientID: patient, ReminderType: model.ReminderTypeDay3,
		ScheduledAt: discharge.Add(72 * time.Hour), Status: model.ReminderStatusScheduled,
	})
	answered := sentRecord(model.ReminderTypeDay7, discharge.Add(168*time.Hour))
	answered.Status = model.ReminderStatusResponded
	store.Put(answered)
	r, _ := newRecorder(t, store)

	ok, err := r.RecordResponse(context.Background(), patient, "hello", time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected no match")
	}

	ok, err = r.RecordResponse(context.Background(), "U0000000000unknown", "hello", time.Time{})
	if err != nil || ok {
		t.Errorf("unknown patient = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestRecordResponseDefaultsReceivedAt(t *testing.T) {
	store := repository.NewMemoryStore()
	rec := store.Put(sentRecord(model.ReminderTypeDay3, discharge.Add(72*time.Hour)))
	r, _ := newRecorder(t, store)
	now := discharge.Add(80 * time.Hour)
	r.now = func() time.Time { return now }

	if _, err := r.RecordResponse(context.Background(), patient, "ok", time.Time{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := store.Get(rec.ID)
	if got.RespondedAt == nil || !got.RespondedAt.Equal(now) {
		t.Errorf("responded_at = %v, want %v", got.RespondedAt, now)
	}
}

func TestRecordResponseValidation(t *testing.T) {
	store := repository.NewMemoryStore()
	store.Put(sentRecord(model.ReminderTypeDay3, discharge.Add(72*time.Hour)))
	r, _ := newRecorder(t, store)

	tests := []struct {
		name      string
		patientID string
		text      string
	}{
		{"empty patient", "", "ok"},
		{"empty text", patient, ""},
		{"whitespace text", patient, " \n\t"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := r.RecordResponse(context.Background(), tt.patientID, tt.text, discharge)
			if !errors.IsValidation(err) {
				t.Fatalf("err = %v, want validation error", err)
			}
			if ok {
				t.Error("expected no match")
			}
		})
	}
}

func TestRecordResponseStoreFailure(t *testing.T) {
	store := repository.NewMemoryStore()
	store.Put(sentRecord(model.ReminderTypeDay3, discharge.Add(72*time.Hour)))
	store.FailScans(fmt.Errorf("connection reset"))
	r, _ := newRecorder(t, store)

	_, err := r.RecordResponse(context.Background(), patient, "ok", discharge)
	if !errors.Is(err, errors.StoreUnavailable) {
		t.Fatalf("err = %v, want StoreUnavailable", err)
	}
}

func TestRecordResponseConcernAlert(t *testing.T) {
	keywords := []string{"ปวดมาก", "fever"}

	tests := []struct {
		name      string
		text      string
		wantAlert bool
	}{
		{"thai keyword", "แผลปวดมากค่ะ", true},
		{"case insensitive", "I have a FEVER", true},
		{"no keyword", "สบายดีค่ะ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := repository.NewMemoryStore()
			store.Put(sentRecord(model.ReminderTypeDay3, discharge.Add(72*time.Hour)))
			gw, tr := newGateway(t)
			r := NewResponseRecorder(store, gw, ResponseOptions{StaffRecipient: nurses, ConcernKeywords: keywords}, zaptest.NewLogger(t))

			ok, err := r.RecordResponse(context.Background(), patient, tt.text, discharge.Add(73*time.Hour))
			if err != nil || !ok {
				t.Fatalf("RecordResponse() = (%v, %v), want (true, nil)", ok, err)
			}

			calls := tr.CallsTo(nurses)
			if tt.wantAlert != (len(calls) == 1) {
				t.Fatalf("staff alerts = %d, want alert %v", len(calls), tt.wantAlert)
			}
			if tt.wantAlert {
				if !strings.Contains(calls[0].Message, patient) || !strings.Contains(calls[0].Message, tt.text) {
					t.Errorf("alert = %q, want patient id and response text", calls[0].Message)
				}
			}
		})
	}
}

func TestConcernAlertFailureDoesNotFailResponse(t *testing.T) {
	store := repository.NewMemoryStore()
	rec := store.Put(sentRecord(model.ReminderTypeDay3, discharge.Add(72*time.Hour)))
	gw, tr := newGateway(t)
	tr.FailRecipient(nurses, fmt.Errorf("connection refused"))
	r := NewResponseRecorder(store, gw, ResponseOptions{StaffRecipient: nurses, ConcernKeywords: []string{"หนอง"}}, zaptest.NewLogger(t))

	ok, err := r.RecordResponse(context.Background(), patient, "แผลมีหนอง", discharge.Add(73*time.Hour))
	if err != nil || !ok {
		t.Fatalf("RecordResponse() = (%v, %v), want (true, nil)", ok, err)
	}
	if got, _ := store.Get(rec.ID); got.Status != model.ReminderStatusResponded {
		t.Errorf("status = %s, want responded", got.Status)
	}
}

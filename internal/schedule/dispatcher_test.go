package schedule

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"CareFollow/internal/model"
	"CareFollow/internal/repository"
	"CareFollow/internal/service"
	"CareFollow/pkg/breaker"
	"CareFollow/pkg/errors"
	"CareFollow/pkg/push"
)

const (
	patient = "U1234567890abcdef"
	nurses  = "C9876543210fedcba"
)

var discharge = time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

func newGateway(t *testing.T) (*push.Gateway, *push.MockTransport) {
	t.Helper()
	tr := push.NewMockTransport()
	gw := push.NewGateway(push.Config{
		Credential:         "test-token",
		DefaultRecipient:   nurses,
		Timeout:            time.Second,
		MinRecipientLength: 10,
	}, tr, zaptest.NewLogger(t))
	return gw, tr
}

func schedulePatient(t *testing.T, store repository.Store, patientID string, at time.Time) {
	t.Helper()
	g, err := service.NewScheduleGenerator(store, service.ScheduleOptions{}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := g.GenerateSchedule(context.Background(), patientID, at); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func byType(t *testing.T, store repository.Store, patientID string) map[model.ReminderType]*model.ReminderRecord {
	t.Helper()
	out := make(map[model.ReminderType]*model.ReminderRecord)
	for rec, err := range store.Scan(context.Background(), repository.Filter{PatientID: patientID}) {
		if err != nil {
			t.Fatalf("unexpected scan error: %v", err)
		}
		out[rec.ReminderType] = rec
	}
	return out
}

func newDispatcher(t *testing.T, store repository.Store, gw service.Notifier, now time.Time) *Dispatcher {
	t.Helper()
	d := NewDispatcher(store, gw, time.Second, zaptest.NewLogger(t))
	d.now = func() time.Time { return now }
	return d
}

func TestDispatcherSendsDueReminders(t *testing.T) {
	store := repository.NewMemoryStore()
	schedulePatient(t, store, patient, discharge)
	gw, tr := newGateway(t)
	now := discharge.Add(72 * time.Hour)

	res, err := newDispatcher(t, store, gw, now).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Found != 1 || res.Sent != 1 || res.Failed != 0 {
		t.Errorf("result = %+v, want 1 found 1 sent", res)
	}

	records := byType(t, store, patient)
	day3 := records[model.ReminderTypeDay3]
	if day3.Status != model.ReminderStatusSent {
		t.Errorf("day3 status = %s, want sent", day3.Status)
	}
	if day3.SentAt == nil || !day3.SentAt.Equal(now) {
		t.Errorf("day3 sent_at = %v, want %v", day3.SentAt, now)
	}
	for _, rt := range []model.ReminderType{model.ReminderTypeDay7, model.ReminderTypeDay14, model.ReminderTypeDay30} {
		if records[rt].Status != model.ReminderStatusScheduled {
			t.Errorf("%s status = %s, want scheduled", rt, records[rt].Status)
		}
	}

	calls := tr.CallsTo(patient)
	if len(calls) != 1 || calls[0].Message != service.ReminderMessage(model.ReminderTypeDay3) {
		t.Errorf("calls = %+v, want one day3 message", calls)
	}

	// 再次运行不会重复发送
	res, err = newDispatcher(t, store, gw, now.Add(time.Minute)).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Found != 0 || len(tr.Calls()) != 1 {
		t.Errorf("second run result = %+v, calls = %d", res, len(tr.Calls()))
	}
}

func TestDispatcherLeavesFailedDeliveryScheduled(t *testing.T) {
	store := repository.NewMemoryStore()
	schedulePatient(t, store, patient, discharge)
	gw, tr := newGateway(t)
	tr.Fail(-1, fmt.Errorf("connection refused"))

	res, err := newDispatcher(t, store, gw, discharge.Add(8*24*time.Hour)).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Found != 2 || res.Failed != 2 || res.Sent != 0 {
		t.Errorf("result = %+v, want 2 found 2 failed", res)
	}
	for rt, rec := range byType(t, store, patient) {
		if rec.Status != model.ReminderStatusScheduled || rec.SentAt != nil {
			t.Errorf("%s = %s sent_at %v, want scheduled", rt, rec.Status, rec.SentAt)
		}
	}

	// 通道恢复后下一轮补发
	tr.Fail(0, nil)
	res, err = newDispatcher(t, store, gw, discharge.Add(8*24*time.Hour)).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Sent != 2 {
		t.Errorf("retry sent = %d, want 2", res.Sent)
	}
}

func TestDispatcherContinuesAfterItemFailure(t *testing.T) {
	store := repository.NewMemoryStore()
	other := "U0000000000second"
	schedulePatient(t, store, patient, discharge)
	schedulePatient(t, store, other, discharge)
	gw, tr := newGateway(t)
	tr.FailRecipient(patient, push.Rejected(400, "invalid user"))

	res, err := newDispatcher(t, store, gw, discharge.Add(72*time.Hour)).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Found != 2 || res.Sent != 1 || res.Failed != 1 {
		t.Errorf("result = %+v, want 1 sent 1 failed", res)
	}
	if got := byType(t, store, other)[model.ReminderTypeDay3].Status; got != model.ReminderStatusSent {
		t.Errorf("other patient day3 = %s, want sent", got)
	}
}

// conflictStore 模拟另一个副本抢先完成了状态流转
type conflictStore struct {
	repository.Store
}

func (s conflictStore) Update(context.Context, int64, model.ReminderStatus, repository.Fields) error {
	return errors.StateConflict
}

func TestDispatcherCountsConflicts(t *testing.T) {
	mem := repository.NewMemoryStore()
	schedulePatient(t, mem, patient, discharge)
	gw, _ := newGateway(t)

	res, err := newDispatcher(t, conflictStore{mem}, gw, discharge.Add(72*time.Hour)).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Conflicts != 1 || res.Sent != 0 || res.Failed != 0 {
		t.Errorf("result = %+v, want 1 conflict", res)
	}
}

func TestDispatcherStateWriteFailureCountsAsFailed(t *testing.T) {
	store := repository.NewMemoryStore()
	schedulePatient(t, store, patient, discharge)
	store.FailUpdates(fmt.Errorf("connection reset"))
	gw, tr := newGateway(t)

	res, err := newDispatcher(t, store, gw, discharge.Add(72*time.Hour)).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Failed != 1 || res.Sent != 0 {
		t.Errorf("result = %+v, want 1 failed", res)
	}
	if len(tr.Calls()) != 1 {
		t.Errorf("calls = %d, want 1", len(tr.Calls()))
	}
	if got := byType(t, store, patient)[model.ReminderTypeDay3].Status; got != model.ReminderStatusScheduled {
		t.Errorf("day3 = %s, want scheduled", got)
	}
}

func TestDispatcherAbortsOnScanFailure(t *testing.T) {
	store := repository.NewMemoryStore()
	schedulePatient(t, store, patient, discharge)
	store.FailScans(fmt.Errorf("connection refused"))
	gw, tr := newGateway(t)

	_, err := newDispatcher(t, store, gw, discharge.Add(72*time.Hour)).Run(context.Background())
	if !errors.Is(err, errors.StoreUnavailable) {
		t.Fatalf("err = %v, want StoreUnavailable", err)
	}
	if len(tr.Calls()) != 0 {
		t.Errorf("calls = %d, want 0", len(tr.Calls()))
	}
}

func TestDispatcherAbortsWhenBreakerOpens(t *testing.T) {
	mem := repository.NewMemoryStore()
	schedulePatient(t, mem, patient, discharge)
	schedulePatient(t, mem, "U0000000000second", discharge)
	mem.FailUpdates(fmt.Errorf("connection reset"))

	cb := breaker.New("reminder-store", 1, time.Minute, zaptest.NewLogger(t),
		breaker.WithFailureFilter(repository.IsStoreFailure))
	store := repository.NewGuardedStore(mem, cb)
	gw, tr := newGateway(t)

	res, err := newDispatcher(t, store, gw, discharge.Add(72*time.Hour)).Run(context.Background())
	if !errors.Is(err, errors.ErrBreakerOpen) {
		t.Fatalf("err = %v, want ErrBreakerOpen", err)
	}
	if res.Found != 1 || res.Failed != 1 {
		t.Errorf("result = %+v, want abort after first failure", res)
	}
	if len(tr.Calls()) != 1 {
		t.Errorf("calls = %d, want 1", len(tr.Calls()))
	}
}

func TestDispatcherStopsOnCancel(t *testing.T) {
	store := repository.NewMemoryStore()
	schedulePatient(t, store, patient, discharge)
	gw, tr := newGateway(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newDispatcher(t, store, gw, discharge.Add(72*time.Hour)).Run(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if len(tr.Calls()) != 0 {
		t.Errorf("calls = %d, want 0", len(tr.Calls()))
	}
}

package schedule

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	err      error
	ttl      time.Duration
	unlocked []string
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (l *fakeLocker) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	l.ttl = ttl
	return true, nil
}

func (l *fakeLocker) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	l.unlocked = append(l.unlocked, key)
	return nil
}

func TestRunnerSkipsWhileRunning(t *testing.T) {
	r := NewRunner("dispatch", time.Minute, nil, zaptest.NewLogger(t))

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.RunOnce(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ran, err := r.RunOnce(context.Background(), func(ctx context.Context) error {
		t.Error("overlapping run must not execute")
		return nil
	})
	if err != nil || ran {
		t.Errorf("RunOnce() = (%v, %v), want (false, nil)", ran, err)
	}

	close(release)
	<-done

	ran, err = r.RunOnce(context.Background(), func(ctx context.Context) error { return nil })
	if err != nil || !ran {
		t.Errorf("RunOnce() after release = (%v, %v), want (true, nil)", ran, err)
	}
}

func TestRunnerDistributedLock(t *testing.T) {
	locker := newFakeLocker()
	r := NewRunner("escalate", 5*time.Minute, locker, zaptest.NewLogger(t))

	ran, err := r.RunOnce(context.Background(), func(ctx context.Context) error { return nil })
	if err != nil || !ran {
		t.Fatalf("RunOnce() = (%v, %v), want (true, nil)", ran, err)
	}
	if locker.ttl != 6*time.Minute {
		t.Errorf("lock ttl = %s, want 6m", locker.ttl)
	}
	if len(locker.unlocked) != 1 || locker.unlocked[0] != "job:escalate" {
		t.Errorf("unlocked = %v, want [job:escalate]", locker.unlocked)
	}

	// 另一个副本持有锁
	locker.held["job:escalate"] = true
	ran, err = r.RunOnce(context.Background(), func(ctx context.Context) error {
		t.Error("job must not run while another replica holds the lock")
		return nil
	})
	if err != nil || ran {
		t.Errorf("RunOnce() = (%v, %v), want (false, nil)", ran, err)
	}
}

func TestRunnerRunsWhenLockUnavailable(t *testing.T) {
	locker := newFakeLocker()
	locker.err = fmt.Errorf("redis: connection refused")
	r := NewRunner("dispatch", time.Minute, locker, zaptest.NewLogger(t))

	called := false
	ran, err := r.RunOnce(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil || !ran || !called {
		t.Errorf("RunOnce() = (%v, %v), called %v, want job to run", ran, err, called)
	}
}

func TestRunnerAppliesTimeoutAndReturnsJobError(t *testing.T) {
	r := NewRunner("dispatch", 50*time.Millisecond, nil, zaptest.NewLogger(t))
	jobErr := fmt.Errorf("store unavailable")

	ran, err := r.RunOnce(context.Background(), func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("job context has no deadline")
		}
		return jobErr
	})
	if !ran || err != jobErr {
		t.Errorf("RunOnce() = (%v, %v), want (true, %v)", ran, err, jobErr)
	}
}

func TestNextDailyRun(t *testing.T) {
	bangkok, err := time.LoadLocation("Asia/Bangkok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clock := 10 * time.Hour

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before clock", time.Date(2026, 3, 1, 8, 0, 0, 0, bangkok), time.Date(2026, 3, 1, 10, 0, 0, 0, bangkok)},
		{"exactly at clock", time.Date(2026, 3, 1, 10, 0, 0, 0, bangkok), time.Date(2026, 3, 2, 10, 0, 0, 0, bangkok)},
		{"after clock", time.Date(2026, 3, 1, 23, 59, 0, 0, bangkok), time.Date(2026, 3, 2, 10, 0, 0, 0, bangkok)},
		{"month end", time.Date(2026, 3, 31, 11, 0, 0, 0, bangkok), time.Date(2026, 4, 1, 10, 0, 0, 0, bangkok)},
		{"utc input", time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC), time.Date(2026, 3, 2, 10, 0, 0, 0, bangkok)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextDailyRun(tt.now, clock, bangkok)
			if !got.Equal(tt.want) {
				t.Errorf("NextDailyRun() = %v, want %v", got, tt.want)
			}
		})
	}
}

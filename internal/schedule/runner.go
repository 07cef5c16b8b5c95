package schedule

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"CareFollow/pkg/metrics"
)

// Locker 跨副本的任务锁（Redis SETNX）
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Runner 保证同一任务同一时刻只有一次执行：进程内用 running 标记，跨副本用 Locker
type Runner struct {
	name    string
	timeout time.Duration
	locker  Locker
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
}

// NewRunner locker 可为 nil，此时只做进程内互斥
func NewRunner(name string, timeout time.Duration, locker Locker, logger *zap.Logger) *Runner {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Runner{
		name:    name,
		timeout: timeout,
		locker:  locker,
		logger:  logger,
	}
}

// RunOnce 执行一次任务；已有执行在进行时直接跳过并返回 false
func (r *Runner) RunOnce(ctx context.Context, job func(ctx context.Context) error) (bool, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		r.logger.Info("Job already running, skipping", zap.String("job", r.name))
		metrics.RecordJobSkipped(ctx, r.name, "in_progress")
		return false, nil
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	lockKey := "job:" + r.name
	if r.locker != nil {
		// 锁的过期时间略长于任务超时，进程崩溃时锁也能自然释放
		ok, err := r.locker.TryLock(ctx, lockKey, r.timeout+time.Minute)
		switch {
		case err != nil:
			// 状态更新本身是条件更新，拿不到锁时最坏情况是重复推送
			r.logger.Warn("Failed to acquire job lock, running without it",
				zap.String("job", r.name),
				zap.Error(err),
			)
		case !ok:
			r.logger.Info("Job locked by another replica, skipping", zap.String("job", r.name))
			metrics.RecordJobSkipped(ctx, r.name, "locked")
			return false, nil
		default:
			defer func() {
				unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				if err := r.locker.Unlock(unlockCtx, lockKey); err != nil {
					r.logger.Warn("Failed to release job lock", zap.String("job", r.name), zap.Error(err))
				}
			}()
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()

	err := job(runCtx)
	metrics.RecordJobRun(ctx, r.name, err, time.Since(start))
	if err != nil {
		r.logger.Error("Job run failed",
			zap.String("job", r.name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
	}
	return true, err
}

// NextDailyRun 下一次在 loc 时区 clock 时刻执行的时间
func NextDailyRun(now time.Time, clock time.Duration, loc *time.Location) time.Time {
	local := now.In(loc)
	h := int(clock / time.Hour)
	m := int(clock % time.Hour / time.Minute)
	s := int(clock % time.Minute / time.Second)

	next := time.Date(local.Year(), local.Month(), local.Day(), h, m, s, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, h, m, s, 0, loc)
	}
	return next
}

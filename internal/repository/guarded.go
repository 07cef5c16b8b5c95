package repository

import (
	"context"
	"iter"

	"CareFollow/internal/model"
	"CareFollow/pkg/breaker"
	"CareFollow/pkg/errors"
)

// GuardedStore 用熔断器包裹 Store：连续的 StoreUnavailable 会使后续调用直接失败，
// 批处理据此尽早中止
type GuardedStore struct {
	inner   Store
	breaker *breaker.CircuitBreaker
}

func NewGuardedStore(inner Store, cb *breaker.CircuitBreaker) *GuardedStore {
	return &GuardedStore{inner: inner, breaker: cb}
}

// IsStoreFailure 熔断器只统计连接类错误
func IsStoreFailure(err error) bool {
	return errors.Is(err, errors.StoreUnavailable)
}

func (s *GuardedStore) Scan(ctx context.Context, filter Filter) iter.Seq2[*model.ReminderRecord, error] {
	return func(yield func(*model.ReminderRecord, error) bool) {
		if !s.breaker.Allow() {
			yield(nil, errors.Unavailable("scan reminders", errors.ErrBreakerOpen))
			return
		}

		// 首条结果到达即视为探测成功，否则半开状态下后续 Update 会被拒绝
		recorded := false
		for r, err := range s.inner.Scan(ctx, filter) {
			if err != nil {
				s.breaker.Record(err)
				yield(nil, err)
				return
			}
			if !recorded {
				s.breaker.Record(nil)
				recorded = true
			}
			if !yield(r, nil) {
				return
			}
		}
		if !recorded {
			s.breaker.Record(nil)
		}
	}
}

func (s *GuardedStore) Insert(ctx context.Context, record *model.ReminderRecord) error {
	return s.call(ctx, "insert reminder", func(ctx context.Context) error {
		return s.inner.Insert(ctx, record)
	})
}

func (s *GuardedStore) Update(ctx context.Context, id int64, expected model.ReminderStatus, fields Fields) error {
	return s.call(ctx, "update reminder", func(ctx context.Context) error {
		return s.inner.Update(ctx, id, expected, fields)
	})
}

// call 熔断中的拒绝同样按 StoreUnavailable 返回，调用方只需判断一种错误
func (s *GuardedStore) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := s.breaker.Call(ctx, fn)
	if errors.Is(err, errors.ErrBreakerOpen) && !errors.Is(err, errors.StoreUnavailable) {
		return errors.Unavailable(op, err)
	}
	return err
}

// Open 熔断器是否处于开启状态
func (s *GuardedStore) Open() bool {
	return s.breaker.State() == breaker.StateOpen
}

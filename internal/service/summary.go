package service

import (
	"context"
	"strings"

	"CareFollow/internal/model"
	"CareFollow/internal/repository"
	"CareFollow/pkg/errors"
)

// SummaryAggregator 患者随访状态的只读汇总
type SummaryAggregator struct {
	store repository.Store
}

func NewSummaryAggregator(store repository.Store) *SummaryAggregator {
	return &SummaryAggregator{store: store}
}

// Summarize 没有记录时返回零值汇总，不视为错误
func (s *SummaryAggregator) Summarize(ctx context.Context, patientID string) (*model.Summary, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, errors.Invalid("patient_id is required")
	}

	summary := &model.Summary{PatientID: patientID}
	for rec, err := range s.store.Scan(ctx, repository.Filter{PatientID: patientID, AllowReplica: true}) {
		if err != nil {
			return nil, err
		}

		summary.Total++
		switch rec.Status {
		case model.ReminderStatusScheduled:
			summary.ScheduledCount++
		case model.ReminderStatusSent:
			summary.PendingCount++
		case model.ReminderStatusResponded:
			summary.RespondedCount++
		case model.ReminderStatusNoResponse:
			summary.NoResponseCount++
		}

		if newer(rec, summary.Latest) {
			summary.Latest = rec
		}
	}
	return summary, nil
}

// newer created_at 更大者胜出，相同时取计划时间更晚、偏移更大的
func newer(a, b *model.ReminderRecord) bool {
	if b == nil {
		return true
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	if !a.ScheduledAt.Equal(b.ScheduledAt) {
		return a.ScheduledAt.After(b.ScheduledAt)
	}
	return a.ReminderType.Days() > b.ReminderType.Days()
}

package handler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"CareFollow/internal/model"
)

// Publisher 由 queue.Producer 实现
type Publisher interface {
	PublishDischarge(ctx context.Context, patientID string, dischargeAt time.Time) (string, error)
	PublishPatientMessage(ctx context.Context, patientID, text string, receivedAt time.Time) (string, error)
}

// Summarizer 由 service.SummaryAggregator 实现
type Summarizer interface {
	Summarize(ctx context.Context, patientID string) (*model.Summary, error)
}

// HealthCheck 依赖探活，返回错误表示不可用
type HealthCheck func(ctx context.Context) error

type Handler struct {
	publisher  Publisher
	summarizer Summarizer
	checks     map[string]HealthCheck
	logger     *zap.Logger
}

func New(publisher Publisher, summarizer Summarizer, checks map[string]HealthCheck, logger *zap.Logger) *Handler {
	return &Handler{
		publisher:  publisher,
		summarizer: summarizer,
		checks:     checks,
		logger:     logger,
	}
}

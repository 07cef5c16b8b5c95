package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"CareFollow/config"
	"CareFollow/internal/model"
	"CareFollow/internal/repository"
	"CareFollow/pkg/errors"
	"CareFollow/pkg/metrics"
)

// Notifier 推送网关的最小接口
type Notifier interface {
	Send(ctx context.Context, message, recipient string) bool
}

// ScheduleResult 一次排期的结果
type ScheduleResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// ScheduleOptions 排期配置
type ScheduleOptions struct {
	// SendAt 形如 "09:00:00"，非空时提醒对齐到出院日期 + N 天的当地时刻
	SendAt   string
	Location *time.Location
}

// ScheduleGenerator 为出院患者生成固定的四条随访提醒，可重复执行
type ScheduleGenerator struct {
	store  repository.Store
	logger *zap.Logger

	align  bool
	sendAt time.Duration
	loc    *time.Location
}

func NewScheduleGenerator(store repository.Store, opts ScheduleOptions, logger *zap.Logger) (*ScheduleGenerator, error) {
	g := &ScheduleGenerator{
		store:  store,
		logger: logger,
		loc:    opts.Location,
	}
	if g.loc == nil {
		g.loc = time.Local
	}
	if opts.SendAt != "" {
		d, err := config.ParseClock(opts.SendAt)
		if err != nil {
			return nil, err
		}
		g.align = true
		g.sendAt = d
	}
	return g, nil
}

// ScheduledAt 计算某类提醒的计划发送时间
func (g *ScheduleGenerator) ScheduledAt(dischargeAt time.Time, t model.ReminderType) time.Time {
	if !g.align {
		return dischargeAt.Add(t.Offset())
	}

	// 按日历天数推进，避免夏令时切换导致偏移
	local := dischargeAt.In(g.loc)
	h := int(g.sendAt / time.Hour)
	m := int(g.sendAt % time.Hour / time.Minute)
	s := int(g.sendAt % time.Minute / time.Second)
	return time.Date(local.Year(), local.Month(), local.Day()+t.Days(), h, m, s, 0, g.loc)
}

// GenerateSchedule 为每个偏移插入一条 scheduled 记录，已存在的跳过
func (g *ScheduleGenerator) GenerateSchedule(ctx context.Context, patientID string, dischargeAt time.Time) (ScheduleResult, error) {
	var result ScheduleResult

	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return result, errors.Invalid("patient_id is required")
	}
	if dischargeAt.IsZero() {
		return result, errors.Invalid("discharge_time is required")
	}

	discharge := dischargeAt
	for _, t := range model.ReminderTypes {
		notes := fmt.Sprintf("Auto-scheduled %s reminder", t)
		record := &model.ReminderRecord{
			PatientID:    patientID,
			ReminderType: t,
			DischargeAt:  &discharge,
			ScheduledAt:  g.ScheduledAt(dischargeAt, t),
			Status:       model.ReminderStatusScheduled,
			Notes:        &notes,
		}

		err := g.store.Insert(ctx, record)
		switch {
		case err == nil:
			result.Created++
			metrics.RecordTransition(ctx, string(model.ReminderStatusScheduled), string(t), 1)
			g.logger.Debug("Reminder scheduled",
				zap.String("patient_id", patientID),
				zap.String("reminder_type", string(t)),
				zap.Time("scheduled_at", record.ScheduledAt),
			)
		case errors.Is(err, errors.ReminderDuplicate):
			result.Skipped++
		default:
			g.logger.Error("Failed to schedule reminder",
				zap.String("patient_id", patientID),
				zap.String("reminder_type", string(t)),
				zap.Int("created", result.Created),
				zap.Error(err),
			)
			return result, err
		}
	}

	g.logger.Info("Follow-up reminders scheduled",
		zap.String("patient_id", patientID),
		zap.Time("discharge_at", dischargeAt),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

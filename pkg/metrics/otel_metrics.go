package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"CareFollow/pkg/push"
)

// OTelMetrics OpenTelemetry 指标集合
type OTelMetrics struct {
	// 推送相关指标
	DeliveryTotal    metric.Int64Counter
	DeliveryDuration metric.Float64Histogram

	// 提醒流转指标
	RemindersScheduled metric.Int64Counter
	RemindersSent      metric.Int64Counter
	RemindersResponded metric.Int64Counter
	RemindersEscalated metric.Int64Counter
	StateConflicts     metric.Int64Counter
	ConcernAlerts      metric.Int64Counter
	JobRuns            metric.Int64Counter
	JobDuration        metric.Float64Histogram
	JobSkipped         metric.Int64Counter
	MessagesConsumed   metric.Int64Counter
	MessagesDuplicate  metric.Int64Counter
}

var (
	// 全局指标实例，未初始化时所有记录函数为空操作
	metrics *OTelMetrics
	meter   = otel.Meter("carefollow")
)

// InitMetrics 初始化 OpenTelemetry 指标
func InitMetrics() error {
	m := &OTelMetrics{}
	var err error

	if m.DeliveryTotal, err = meter.Int64Counter(
		"push_delivery_total",
		metric.WithDescription("Total number of push deliveries by outcome"),
		metric.WithUnit("{message}"),
	); err != nil {
		return err
	}
	if m.DeliveryDuration, err = meter.Float64Histogram(
		"push_delivery_duration_seconds",
		metric.WithDescription("Time spent calling the push provider in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return err
	}
	if m.RemindersScheduled, err = meter.Int64Counter(
		"reminders_scheduled_total",
		metric.WithDescription("Reminder records created by schedule generation"),
		metric.WithUnit("{reminder}"),
	); err != nil {
		return err
	}
	if m.RemindersSent, err = meter.Int64Counter(
		"reminders_sent_total",
		metric.WithDescription("Reminders transitioned to sent"),
		metric.WithUnit("{reminder}"),
	); err != nil {
		return err
	}
	if m.RemindersResponded, err = meter.Int64Counter(
		"reminders_responded_total",
		metric.WithDescription("Reminders transitioned to responded"),
		metric.WithUnit("{reminder}"),
	); err != nil {
		return err
	}
	if m.RemindersEscalated, err = meter.Int64Counter(
		"reminders_escalated_total",
		metric.WithDescription("Reminders transitioned to no_response"),
		metric.WithUnit("{reminder}"),
	); err != nil {
		return err
	}
	if m.StateConflicts, err = meter.Int64Counter(
		"reminder_state_conflicts_total",
		metric.WithDescription("Conditional updates lost to a concurrent transition"),
		metric.WithUnit("{conflict}"),
	); err != nil {
		return err
	}
	if m.ConcernAlerts, err = meter.Int64Counter(
		"concern_alerts_total",
		metric.WithDescription("Staff alerts raised by concern keywords in patient responses"),
		metric.WithUnit("{alert}"),
	); err != nil {
		return err
	}
	if m.JobRuns, err = meter.Int64Counter(
		"scheduler_job_runs_total",
		metric.WithDescription("Scheduler job runs by job and result"),
		metric.WithUnit("{run}"),
	); err != nil {
		return err
	}
	if m.JobDuration, err = meter.Float64Histogram(
		"scheduler_job_duration_seconds",
		metric.WithDescription("Scheduler job run time in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return err
	}
	if m.JobSkipped, err = meter.Int64Counter(
		"scheduler_job_skipped_total",
		metric.WithDescription("Scheduler ticks skipped because a run was already in progress"),
		metric.WithUnit("{run}"),
	); err != nil {
		return err
	}
	if m.MessagesConsumed, err = meter.Int64Counter(
		"mq_messages_consumed_total",
		metric.WithDescription("Queue messages consumed by queue and result"),
		metric.WithUnit("{message}"),
	); err != nil {
		return err
	}
	if m.MessagesDuplicate, err = meter.Int64Counter(
		"mq_messages_duplicate_total",
		metric.WithDescription("Queue messages skipped as already processed"),
		metric.WithUnit("{message}"),
	); err != nil {
		return err
	}

	metrics = m
	return nil
}

// GetMetrics 获取全局指标实例
func GetMetrics() *OTelMetrics {
	return metrics
}

// RecordDelivery 记录一次推送
func RecordDelivery(ctx context.Context, provider, outcome, reason string, duration time.Duration) {
	m := GetMetrics()
	if m == nil {
		return
	}
	m.DeliveryTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
		attribute.String("reason", reason),
	))
	m.DeliveryDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("provider", provider),
	))
}

// RecordTransition 记录状态流转，status 为目标状态
func RecordTransition(ctx context.Context, status, reminderType string, n int64) {
	m := GetMetrics()
	if m == nil || n == 0 {
		return
	}
	attrs := metric.WithAttributes(attribute.String("reminder_type", reminderType))
	switch status {
	case "scheduled":
		m.RemindersScheduled.Add(ctx, n, attrs)
	case "sent":
		m.RemindersSent.Add(ctx, n, attrs)
	case "responded":
		m.RemindersResponded.Add(ctx, n, attrs)
	case "no_response":
		m.RemindersEscalated.Add(ctx, n, attrs)
	}
}

// RecordConflict 记录条件更新冲突
func RecordConflict(ctx context.Context, component string) {
	if m := GetMetrics(); m != nil {
		m.StateConflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("component", component)))
	}
}

// RecordConcernAlert 记录关注告警
func RecordConcernAlert(ctx context.Context, delivered bool) {
	if m := GetMetrics(); m != nil {
		m.ConcernAlerts.Add(ctx, 1, metric.WithAttributes(attribute.Bool("delivered", delivered)))
	}
}

// RecordJobRun 记录一次定时任务执行
func RecordJobRun(ctx context.Context, job string, err error, duration time.Duration) {
	m := GetMetrics()
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.JobRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job", job),
		attribute.String("result", result),
	))
	m.JobDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("job", job)))
}

// RecordJobSkipped 记录被跳过的定时任务
func RecordJobSkipped(ctx context.Context, job, reason string) {
	if m := GetMetrics(); m != nil {
		m.JobSkipped.Add(ctx, 1, metric.WithAttributes(
			attribute.String("job", job),
			attribute.String("reason", reason),
		))
	}
}

// RecordMessage 记录一条队列消息的处理结果
func RecordMessage(ctx context.Context, queue, result string) {
	if m := GetMetrics(); m != nil {
		m.MessagesConsumed.Add(ctx, 1, metric.WithAttributes(
			attribute.String("queue", queue),
			attribute.String("result", result),
		))
	}
}

// RecordDuplicateMessage 记录重复消息
func RecordDuplicateMessage(ctx context.Context, queue string) {
	if m := GetMetrics(); m != nil {
		m.MessagesDuplicate.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", queue)))
	}
}

// ObserveDelivery 作为推送网关的观察者，记录每次投递
func ObserveDelivery(ctx context.Context, res push.Result) {
	RecordDelivery(ctx, res.Provider, string(res.Outcome), res.ReasonCode(), res.Duration)
}

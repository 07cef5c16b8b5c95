package database

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	spanKey  = "otel:span"
	startKey = "otel:start_time"
)

// OTELPlugin gorm 插件：每条语句一个 span。回复内容属于病历信息，不记录 SQL 文本与参数
type OTELPlugin struct {
	tracer   trace.Tracer
	queries  metric.Int64Counter
	duration metric.Float64Histogram
}

func NewOTELPlugin(serviceName string) *OTELPlugin {
	meter := otel.Meter(serviceName + ".database")
	queries, _ := meter.Int64Counter(
		"db.queries.total",
		metric.WithDescription("Total number of database queries"),
		metric.WithUnit("{query}"),
	)
	duration, _ := meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Database query duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)

	return &OTELPlugin{
		tracer:   otel.Tracer(serviceName + ".database"),
		queries:  queries,
		duration: duration,
	}
}

func (p *OTELPlugin) Name() string {
	return "otel_plugin"
}

func (p *OTELPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	hooks := []struct {
		op       string
		register func(before, after func(*gorm.DB)) error
	}{
		{"select", func(b, a func(*gorm.DB)) error {
			if err := cb.Query().Before("gorm:query").Register("otel:before_query", b); err != nil {
				return err
			}
			return cb.Query().After("gorm:query").Register("otel:after_query", a)
		}},
		{"insert", func(b, a func(*gorm.DB)) error {
			if err := cb.Create().Before("gorm:create").Register("otel:before_create", b); err != nil {
				return err
			}
			return cb.Create().After("gorm:create").Register("otel:after_create", a)
		}},
		{"update", func(b, a func(*gorm.DB)) error {
			if err := cb.Update().Before("gorm:update").Register("otel:before_update", b); err != nil {
				return err
			}
			return cb.Update().After("gorm:update").Register("otel:after_update", a)
		}},
		{"raw", func(b, a func(*gorm.DB)) error {
			if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", b); err != nil {
				return err
			}
			return cb.Raw().After("gorm:raw").Register("otel:after_raw", a)
		}},
		{"row", func(b, a func(*gorm.DB)) error {
			if err := cb.Row().Before("gorm:row").Register("otel:before_row", b); err != nil {
				return err
			}
			return cb.Row().After("gorm:row").Register("otel:after_row", a)
		}},
	}

	for _, h := range hooks {
		if err := h.register(p.before(h.op), p.after(h.op)); err != nil {
			return err
		}
	}
	return nil
}

func (p *OTELPlugin) before(op string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx, span := p.tracer.Start(db.Statement.Context, "db."+op,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemPostgreSQL,
				semconv.DBOperation(op),
				attribute.String("db.sql.table", db.Statement.Table),
			),
		)
		db.InstanceSet(spanKey, span)
		db.InstanceSet(startKey, time.Now())
		db.Statement.Context = ctx
	}
}

func (p *OTELPlugin) after(op string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		v, ok := db.InstanceGet(spanKey)
		if !ok {
			return
		}
		span, ok := v.(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))

		status := "success"
		if db.Error != nil && db.Error != gorm.ErrRecordNotFound {
			status = "error"
			span.SetStatus(codes.Error, db.Error.Error())
			span.RecordError(db.Error)
		}

		attrs := metric.WithAttributes(
			attribute.String("db.operation", op),
			attribute.String("db.status", status),
		)
		ctx := db.Statement.Context
		if p.queries != nil {
			p.queries.Add(ctx, 1, attrs)
		}
		if start, ok := db.InstanceGet(startKey); ok && p.duration != nil {
			if t, ok := start.(time.Time); ok {
				p.duration.Record(ctx, time.Since(t).Seconds(), attrs)
			}
		}
	}
}

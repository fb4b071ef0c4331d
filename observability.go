// Package compiler translates declarative RONIN queries into SQLite
// statements with positional parameters.
// This file implements observability for the execution session: structured
// logging, OpenTelemetry tracing, and performance metrics.
package compiler

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// tracerName identifies the source of trace data emitted by sessions.
	tracerName = "github.com/roninql/compiler"

	// meterName identifies the source of metric data emitted by sessions.
	meterName = "github.com/roninql/compiler"
)

// Metrics holds the OpenTelemetry instruments recorded per statement.
type Metrics struct {
	// QueryCount counts executed statements, grouped by operation and
	// database type.
	QueryCount metric.Int64Counter

	// QueryDuration records statement latency in milliseconds.
	QueryDuration metric.Float64Histogram

	// QueryErrors counts failed statements.
	QueryErrors metric.Int64Counter
}

// ObservabilityConfig controls the logging, tracing, and metrics behavior of
// a Session. The zero configuration is silent: nothing is logged, traced, or
// measured until the matching option enables it.
type ObservabilityConfig struct {
	// Logger records statement execution. Nil disables logging. Failed
	// statements log at Error, slow ones at Warn, and all statements at
	// Debug when LogQueries is set.
	Logger *slog.Logger

	// Tracer creates spans around transaction and statement execution.
	Tracer trace.Tracer

	// Meter creates the metric instruments. Set through WithMeter or
	// WithDefaultMeter, which also initialize Metrics.
	Meter metric.Meter

	// Metrics holds the initialized instruments.
	Metrics *Metrics

	// SlowQueryThreshold is the latency above which a statement logs at
	// warning level. Defaults to 200ms.
	SlowQueryThreshold time.Duration

	// LogQueries logs every statement (with its SQL text) at Debug level.
	LogQueries bool
}

func defaultObservabilityConfig() *ObservabilityConfig {
	return &ObservabilityConfig{
		SlowQueryThreshold: 200 * time.Millisecond,
	}
}

// WithLogger sets the structured logger of the session.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.obs.Logger = logger
	}
}

// WithTracer sets the OpenTelemetry tracer of the session.
func WithTracer(tracer trace.Tracer) SessionOption {
	return func(s *Session) {
		s.obs.Tracer = tracer
	}
}

// WithDefaultTracer creates a tracer from the global TracerProvider.
func WithDefaultTracer() SessionOption {
	return func(s *Session) {
		s.obs.Tracer = otel.Tracer(tracerName)
	}
}

// WithMeter sets the OpenTelemetry meter and initializes the instruments.
func WithMeter(meter metric.Meter) SessionOption {
	return func(s *Session) {
		s.obs.Meter = meter
		s.obs.Metrics = initMetrics(meter)
	}
}

// WithDefaultMeter creates a meter from the global MeterProvider.
func WithDefaultMeter() SessionOption {
	return func(s *Session) {
		meter := otel.Meter(meterName)
		s.obs.Meter = meter
		s.obs.Metrics = initMetrics(meter)
	}
}

// WithSlowQueryThreshold sets the latency above which statements log at
// warning level.
func WithSlowQueryThreshold(d time.Duration) SessionOption {
	return func(s *Session) {
		s.obs.SlowQueryThreshold = d
	}
}

// WithQueryLogging controls whether every statement is logged at Debug
// level, including its SQL text.
func WithQueryLogging(enabled bool) SessionOption {
	return func(s *Session) {
		s.obs.LogQueries = enabled
	}
}

// initMetrics creates the metric instruments. Creation errors are ignored;
// the otel SDK returns usable no-op instruments alongside them.
func initMetrics(meter metric.Meter) *Metrics {
	queryCount, _ := meter.Int64Counter("roninql.query.count",
		metric.WithDescription("Total number of SQL statements executed"),
		metric.WithUnit("{query}"),
	)
	queryDuration, _ := meter.Float64Histogram("roninql.query.duration",
		metric.WithDescription("Statement execution duration in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)
	queryErrors, _ := meter.Int64Counter("roninql.query.errors",
		metric.WithDescription("Total number of failed statements"),
		metric.WithUnit("{error}"),
	)

	return &Metrics{
		QueryCount:    queryCount,
		QueryDuration: queryDuration,
		QueryErrors:   queryErrors,
	}
}

// spanWrapper wraps trace.Span so a disabled tracer needs no nil checks at
// call sites.
type spanWrapper struct {
	span trace.Span
}

func (w spanWrapper) End() {
	if w.span != nil {
		w.span.End()
	}
}

func (w spanWrapper) RecordError(err error) {
	if w.span != nil {
		w.span.RecordError(err)
	}
}

func (w spanWrapper) SetStatus(code codes.Code, description string) {
	if w.span != nil {
		w.span.SetStatus(code, description)
	}
}

func (w spanWrapper) SetAttributes(kv ...attribute.KeyValue) {
	if w.span != nil {
		w.span.SetAttributes(kv...)
	}
}

func (s *Session) startSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, spanWrapper) {
	if s.obs.Tracer == nil {
		return ctx, spanWrapper{nil}
	}
	ctx, span := s.obs.Tracer.Start(ctx, name, opts...)
	return ctx, spanWrapper{span}
}

func (s *Session) recordMetrics(ctx context.Context, operation string, duration time.Duration, err error) {
	if s.obs.Metrics == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("db.operation", operation),
		attribute.String("db.system", s.dialect.Name()),
	)

	s.obs.Metrics.QueryCount.Add(ctx, 1, attrs)
	s.obs.Metrics.QueryDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		s.obs.Metrics.QueryErrors.Add(ctx, 1, attrs)
	}
}

func (s *Session) logQuery(ctx context.Context, operation, query string, duration time.Duration, err error) {
	if s.obs.Logger == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.Duration("duration", duration),
	}
	if s.obs.LogQueries {
		attrs = append(attrs, slog.String("query", query))
	}

	if err != nil {
		s.obs.Logger.LogAttrs(ctx, slog.LevelError, "statement failed",
			append(attrs, slog.String("error", err.Error()))...)
		return
	}
	if duration > s.obs.SlowQueryThreshold {
		s.obs.Logger.LogAttrs(ctx, slog.LevelWarn, "slow statement", attrs...)
		return
	}
	if s.obs.LogQueries {
		s.obs.Logger.LogAttrs(ctx, slog.LevelDebug, "statement executed", attrs...)
	}
}

package compiler

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace/noop"
)

func newTestSession(t *testing.T, opts ...SessionOption) (*Session, *sql.DB) {
	t.Helper()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSession(db, opts...), db
}

func TestSessionOptions(t *testing.T) {
	logger := slog.Default()
	tracer := noop.NewTracerProvider().Tracer("test")

	s, _ := newTestSession(t,
		WithLogger(logger),
		WithTracer(tracer),
		WithSlowQueryThreshold(50*time.Millisecond),
		WithQueryLogging(true),
	)

	assert.Equal(t, logger, s.obs.Logger)
	assert.Equal(t, tracer, s.obs.Tracer)
	assert.Equal(t, 50*time.Millisecond, s.obs.SlowQueryThreshold)
	assert.True(t, s.obs.LogQueries)
}

func TestSessionDefaultsAreSilent(t *testing.T) {
	s, _ := newTestSession(t)

	assert.Nil(t, s.obs.Logger)
	assert.Nil(t, s.obs.Tracer)
	assert.Nil(t, s.obs.Metrics)
	assert.Equal(t, 200*time.Millisecond, s.obs.SlowQueryThreshold)
	assert.False(t, s.obs.LogQueries)
}

func TestStartSpanWithoutTracer(t *testing.T) {
	s, _ := newTestSession(t)

	ctx, span := s.startSpan(context.Background(), "compiler.Run")
	assert.NotNil(t, ctx)

	// Every operation on a disabled span is a no-op.
	span.SetStatus(codes.Error, "nope")
	span.RecordError(assert.AnError)
	span.End()
}

func TestLogQueryWithoutLogger(t *testing.T) {
	// logQuery with a nil logger must not panic regardless of outcome.
	s, _ := newTestSession(t)
	s.logQuery(context.Background(), "query", "SELECT 1", time.Millisecond, nil)
	s.logQuery(context.Background(), "query", "SELECT 1", time.Second, assert.AnError)
}

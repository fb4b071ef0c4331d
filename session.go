// Package compiler translates declarative RONIN queries into SQLite
// statements with positional parameters.
// This file implements the execution session: compiled transactions run
// against an SQLite database through sqlx, inside one database transaction,
// with observability wrapped around every statement.
package compiler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Session executes compiled transactions against a database connection.
// Compilation itself never touches the session; it exists so callers that
// want the full round trip (compile, execute, hydrate) do not have to wire a
// driver themselves.
//
// Usage example:
//
//	db, _ := sql.Open("sqlite3", "file:app.db")
//	session := compiler.NewSession(db,
//	    compiler.WithLogger(slog.Default()),
//	    compiler.WithDefaultTracer(),
//	)
//	results, err := session.Run(ctx, tx)
type Session struct {
	db      *sqlx.DB
	dialect Dialect
	obs     *ObservabilityConfig
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// NewSession wraps a database connection. The dialect is always SQLite; the
// options configure logging, tracing, and metrics.
func NewSession(db *sql.DB, opts ...SessionOption) *Session {
	s := &Session{
		db:      sqlx.NewDb(db, SQLite.Name()),
		dialect: SQLite,
		obs:     defaultObservabilityConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes every statement of a compiled transaction inside a single
// database transaction and hydrates the returned rows. A failing statement
// rolls the whole batch back.
func (s *Session) Run(ctx context.Context, tx *Transaction) ([]Result, error) {
	ctx, span := s.startSpan(ctx, "compiler.Run")
	defer span.End()

	dbtx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("compiler: failed to begin transaction: %w", err)
	}
	defer func() {
		_ = dbtx.Rollback()
	}()

	rowSets := make([][]map[string]any, 0, len(tx.Statements))
	for _, statement := range tx.Statements {
		rows, err := s.runStatement(ctx, dbtx, statement)
		if err != nil {
			return nil, err
		}
		rowSets = append(rowSets, rows)
	}

	if err := dbtx.Commit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("compiler: failed to commit transaction: %w", err)
	}

	return tx.PrepareResults(rowSets)
}

// runStatement executes one statement and scans its rows into generic maps.
func (s *Session) runStatement(ctx context.Context, dbtx *sqlx.Tx, statement Statement) ([]map[string]any, error) {
	var rows []map[string]any

	err := s.instrument(ctx, "compiler.Statement", "query", statement.SQL, func() error {
		if !statement.Returning {
			_, err := dbtx.ExecContext(ctx, statement.SQL, statement.Params...)
			return err
		}

		result, err := dbtx.QueryxContext(ctx, statement.SQL, statement.Params...)
		if err != nil {
			return err
		}
		defer result.Close()

		for result.Next() {
			row := map[string]any{}
			if err := result.MapScan(row); err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("compiler: statement failed: %w", err)
	}
	return rows, nil
}

// instrument wraps a database operation with tracing, logging, and metrics.
func (s *Session) instrument(ctx context.Context, spanName, operation, query string, fn func() error) error {
	ctx, span := s.startSpan(ctx, spanName)
	defer span.End()

	start := time.Now()
	err := fn()
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("db.statement", query))

	s.logQuery(ctx, operation, query, duration, err)
	s.recordMetrics(ctx, operation, duration, err)

	return err
}

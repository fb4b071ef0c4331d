// Package compiler translates declarative RONIN queries into SQLite
// statements with positional parameters.
// This file implements the dialect layer: identifier conventions and the
// placeholder format applied when a statement is assembled.
package compiler

import (
	"bytes"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// SQLite is the dialect every statement targets.
var SQLite = SQLiteDialect{}

// Dialect abstracts the database-specific conventions of emitted SQL.
// Only an SQLite-compatible dialect is provided; the abstraction exists so
// the session and observability layers can name the backend without
// hard-coding it.
type Dialect interface {
	// Name returns the database type name, used for logging and metrics.
	Name() string

	// PlaceholderFormat returns the placeholder format applied by the
	// statement assembler.
	PlaceholderFormat() sq.PlaceholderFormat
}

// SQLiteDialect emits SQLite-compatible SQL with ?1…?N placeholders.
type SQLiteDialect struct{}

// Name returns the SQLite dialect name.
func (d SQLiteDialect) Name() string { return "sqlite3" }

// PlaceholderFormat returns the numbered-question-mark format (?1, ?2, …).
func (d SQLiteDialect) PlaceholderFormat() sq.PlaceholderFormat {
	return positionalFormat{}
}

// positionalFormat rewrites bare ? placeholders into 1-based ?N tokens.
// A doubled ?? escapes to a literal question mark.
type positionalFormat struct{}

func (positionalFormat) ReplacePlaceholders(sql string) (string, error) {
	buf := &bytes.Buffer{}
	position := 0

	for {
		idx := strings.Index(sql, "?")
		if idx == -1 {
			break
		}
		buf.WriteString(sql[:idx])

		if len(sql) > idx+1 && sql[idx+1] == '?' {
			buf.WriteString("?")
			sql = sql[idx+2:]
			continue
		}

		position++
		fmt.Fprintf(buf, "?%d", position)
		sql = sql[idx+1:]
	}

	buf.WriteString(sql)
	return buf.String(), nil
}

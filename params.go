// Package compiler translates declarative RONIN queries into SQLite
// statements with positional parameters.
// This file implements the parameter binder: the append-only vector of bound
// values and the encoding rules that make them SQLite-safe.
package compiler

import (
	"encoding/json"
	"fmt"
	"time"
)

// paramBuffer collects the values bound by a single statement, in the order
// their placeholders appear in the SQL text. Placeholders are emitted as bare
// question marks and numbered ?1…?N once the statement is assembled (see
// Dialect.PlaceholderFormat), so the 1-based positions always line up with
// the vector indices.
type paramBuffer struct {
	values []any
}

// bind encodes a value, appends it to the vector, and returns the SQL
// placeholder token standing in for it.
func (p *paramBuffer) bind(value any) string {
	p.values = append(p.values, encodeValue(value))
	return "?"
}

// encodeValue converts a bound value into a shape SQLite understands:
// dates become ISO-8601 strings, booleans become 0/1, and plain objects or
// arrays are serialized as JSON text. Nil passes through unchanged; null
// comparisons in filters compile to IS NULL / IS NOT NULL instead of binding.
func encodeValue(value any) any {
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Format("2006-01-02T15:04:05.000Z")
	case bool:
		if v {
			return int64(1)
		}
		return int64(0)
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			// Plain instruction data contains no cycles or unserializable
			// values; a failure here means the caller handed us something
			// the query format does not allow.
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	default:
		return value
	}
}

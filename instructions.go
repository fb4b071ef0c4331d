// Package compiler translates declarative RONIN queries into SQLite
// statements with positional parameters.
// This file implements decoding of raw instruction objects into their typed
// shape, after preset expansion has merged everything the query will use.
package compiler

import (
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
)

// instructions is the typed union of the recognized clauses of a query.
// Clause values keep their loose shapes (`any`) where the grammar is
// recursive; the handlers validate them as they compile.
type instructions struct {
	With      any            `mapstructure:"with"`
	Selecting []string       `mapstructure:"selecting"`
	Including map[string]any `mapstructure:"including"`
	OrderedBy any            `mapstructure:"orderedBy"`
	LimitedTo any            `mapstructure:"limitedTo"`
	To        map[string]any `mapstructure:"to"`
	After     any            `mapstructure:"after"`
	Before    any            `mapstructure:"before"`
}

// decodeInstructions validates and types a raw instruction object.
// A clause the compiler does not recognize fails the query rather than being
// silently dropped.
func decodeInstructions(raw map[string]any) (*instructions, error) {
	var out instructions
	var meta mapstructure.Metadata

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:   &out,
		Metadata: &meta,
	})
	if err != nil {
		return nil, errInvalidQuery("instructions could not be decoded: %v", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, errInvalidQuery("instructions are malformed: %v", err)
	}
	if len(meta.Unused) > 0 {
		return nil, errInvalidQuery("unknown instruction %q", strings.Join(meta.Unused, ", "))
	}

	return &out, nil
}

// limit returns the numeric value of `limitedTo`, when present.
func (i *instructions) limit() (int64, bool, error) {
	if i.LimitedTo == nil {
		return 0, false, nil
	}
	n, err := cast.ToInt64E(i.LimitedTo)
	if err != nil || n < 1 {
		return 0, false, errInvalidInstruction("the `limitedTo` instruction must hold a positive number, got %v", i.LimitedTo)
	}
	return n, true, nil
}

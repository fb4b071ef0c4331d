// Package compiler translates declarative RONIN queries into SQLite
// statements with positional parameters.
// This file defines the error taxonomy shared by every compilation stage.
package compiler

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable machine-readable classification of a compilation
// failure. Codes are part of the public contract and never change meaning.
type ErrorCode string

const (
	// ErrModelNotFound indicates the addressed model slug has no match in
	// the catalog.
	ErrModelNotFound ErrorCode = "MODEL_NOT_FOUND"

	// ErrFieldNotFound indicates a field path in with/selecting/orderedBy/to
	// does not resolve against the addressed model.
	ErrFieldNotFound ErrorCode = "FIELD_NOT_FOUND"

	// ErrPresetNotFound indicates a `for` instruction names a preset the
	// current model does not define.
	ErrPresetNotFound ErrorCode = "PRESET_NOT_FOUND"

	// ErrInvalidQuery indicates a malformed outer query shape.
	ErrInvalidQuery ErrorCode = "INVALID_QUERY"

	// ErrInvalidInstruction indicates a recognized clause carrying an
	// ill-shaped value.
	ErrInvalidInstruction ErrorCode = "INVALID_INSTRUCTION"
)

// Error is the error type returned for every compilation failure.
// It pairs a human-readable message naming the offending identifier with a
// stable code suitable for programmatic handling.
//
// Usage example:
//
//	stmts, err := compiler.Compile(queries, models)
//	var cerr *compiler.Error
//	if errors.As(err, &cerr) && cerr.Code == compiler.ErrModelNotFound {
//	    // react to the missing model
//	}
type Error struct {
	Code    ErrorCode
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return "compiler: " + e.Message
}

// CodeOf extracts the ErrorCode from err, unwrapping as needed.
// Returns an empty code when err is nil or carries no *Error.
func CodeOf(err error) ErrorCode {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Code
	}
	return ""
}

func errModelNotFound(slug string) error {
	return &Error{
		Code:    ErrModelNotFound,
		Message: fmt.Sprintf("no model with the slug %q could be found", slug),
	}
}

func errFieldNotFound(path, modelSlug, instruction string) error {
	return &Error{
		Code: ErrFieldNotFound,
		Message: fmt.Sprintf("the field %q does not exist in model %q (requested by the %q instruction)",
			path, modelSlug, instruction),
	}
}

func errPresetNotFound(preset, modelSlug string) error {
	return &Error{
		Code:    ErrPresetNotFound,
		Message: fmt.Sprintf("the preset %q does not exist in model %q", preset, modelSlug),
	}
}

func errInvalidQuery(format string, args ...any) error {
	return &Error{
		Code:    ErrInvalidQuery,
		Message: fmt.Sprintf(format, args...),
	}
}

func errInvalidInstruction(format string, args ...any) error {
	return &Error{
		Code:    ErrInvalidInstruction,
		Message: fmt.Sprintf(format, args...),
	}
}

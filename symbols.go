// Package compiler translates declarative RONIN queries into SQLite
// statements with positional parameters.
// This file defines the reserved symbol markers that distinguish literal data
// from sub-queries, expressions, and substitution placeholders.
package compiler

// Reserved markers embedded in query values. The exact byte sequences are a
// compatibility surface shared with every other implementation of the query
// format and must never change.
const (
	// SymbolQuery marks a wrapping object whose payload is a sub-query.
	SymbolQuery = "__RONIN_QUERY"

	// SymbolExpression marks a wrapping object whose payload is a raw SQL
	// expression string (which may itself contain field markers).
	SymbolExpression = "__RONIN_EXPRESSION"

	// SymbolField prefixes a field reference inside an expression string.
	// The characters following the prefix name the field being addressed.
	SymbolField = "__RONIN_FIELD_"

	// SymbolValue is the placeholder substituted with the argument of a
	// `for` instruction during preset expansion.
	SymbolValue = "__RONIN_VALUE"
)

// symbolKind identifies which reserved key a wrapping object carries.
type symbolKind int

const (
	symbolNone symbolKind = iota
	symbolQueryKind
	symbolExpressionKind
)

// asSymbol destructures a wrapping object bearing a reserved key.
// Returns the symbol kind and its payload, or symbolNone when the value is
// not a symbol. A wrapping object carries exactly one symbol kind; extra keys
// disqualify it so that user data shaped like `{"__RONIN_QUERY": …, "x": …}`
// is treated as literal data rather than silently truncated.
func asSymbol(value any) (symbolKind, any) {
	wrapper, ok := value.(map[string]any)
	if !ok || len(wrapper) != 1 {
		return symbolNone, nil
	}
	if payload, ok := wrapper[SymbolQuery]; ok {
		return symbolQueryKind, payload
	}
	if payload, ok := wrapper[SymbolExpression]; ok {
		return symbolExpressionKind, payload
	}
	return symbolNone, nil
}

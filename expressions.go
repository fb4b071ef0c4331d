// Package compiler translates declarative RONIN queries into SQLite
// statements with positional parameters.
// This file implements the expression parser: field-reference and expression
// sentinels inside strings are lowered into SQL fragments against a given
// model and alias context.
package compiler

import "strings"

// containsFieldRef reports whether a string value carries a field-reference
// sentinel and therefore must compile to a column reference instead of a
// bound parameter.
func containsFieldRef(s string) bool {
	return strings.Contains(s, SymbolField)
}

// resolveFieldRefs replaces every field-reference sentinel in expr with the
// resolved column selector of the named field, qualified by alias. The part
// of the string following the marker up to the first non-identifier
// character names the field; dotted paths are allowed.
func (c *compileContext) resolveFieldRefs(m *Model, alias, instruction, expr string) (string, error) {
	var out strings.Builder

	for {
		idx := strings.Index(expr, SymbolField)
		if idx == -1 {
			out.WriteString(expr)
			return out.String(), nil
		}
		out.WriteString(expr[:idx])
		expr = expr[idx+len(SymbolField):]

		end := 0
		for end < len(expr) && isFieldPathChar(expr[end]) {
			end++
		}
		path := strings.TrimSuffix(expr[:end], ".")
		if path == "" {
			return "", errInvalidInstruction("a field reference in %q names no field", instruction)
		}

		selector, _, err := c.catalog.fieldSelector(m, path, alias, instruction)
		if err != nil {
			return "", err
		}
		out.WriteString(selector)
		expr = expr[len(path):]
	}
}

func isFieldPathChar(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '.', b == '_':
		return true
	}
	return false
}

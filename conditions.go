// Package compiler translates declarative RONIN queries into SQLite
// statements with positional parameters.
// This file implements the condition composer: `with`-style filter trees are
// lowered into parenthesized boolean SQL expressions with bound values.
package compiler

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// conditionOperator describes how one `with` operator renders.
// Operators that assemble a LIKE pattern bind the full pattern as a single
// parameter so user input can never splice into the SQL text.
type conditionOperator struct {
	sql     string
	pattern string // LIKE pattern template, %s replaced by the value
	negated bool   // null-aware negation (IS NOT instead of IS)
}

// withConditions is the operator table of the `with` instruction.
var withConditions = map[string]conditionOperator{
	"being":           {sql: "="},
	"notBeing":        {sql: "!=", negated: true},
	"startingWith":    {sql: "LIKE", pattern: "%s%%"},
	"notStartingWith": {sql: "NOT LIKE", pattern: "%s%%"},
	"endingWith":      {sql: "LIKE", pattern: "%%%s"},
	"notEndingWith":   {sql: "NOT LIKE", pattern: "%%%s"},
	"containing":      {sql: "LIKE", pattern: "%%%s%%"},
	"notContaining":   {sql: "NOT LIKE", pattern: "%%%s%%"},
	"greaterThan":     {sql: ">"},
	"greaterOrEqual":  {sql: ">="},
	"lessThan":        {sql: "<"},
	"lessOrEqual":     {sql: "<="},
}

// andGroup is an ordered conjunction of filter nodes. Preset expansion merges
// a preset's `with` object ahead of the host's, and the order survives
// compilation: entries compile first to last, joined with AND.
type andGroup []any

// fieldScope names the model whose fields a filter addresses, the alias
// qualifying its columns, and the parent scope that field-reference sentinels
// on comparison right-hand sides resolve against.
type fieldScope struct {
	model       *Model
	alias       string
	parentModel *Model
	parentAlias string
}

// compileFilter lowers a filter tree into a boolean SQL expression.
// Object and array filters come back parenthesized; an ordered conjunction
// joins its (parenthesized) entries with AND. The fragment carries bare ?
// placeholders; args holds the bound values in placeholder order.
func (c *compileContext) compileFilter(scope fieldScope, filter any, instruction string) (string, []any, error) {
	switch f := filter.(type) {
	case andGroup:
		parts := make([]string, 0, len(f))
		var args []any
		for _, entry := range f {
			sql, entryArgs, err := c.compileFilter(scope, entry, instruction)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
			args = append(args, entryArgs...)
		}
		return strings.Join(parts, " AND "), args, nil

	case map[string]any:
		keys := maps.Keys(f)
		slices.Sort(keys)

		parts := make([]string, 0, len(keys))
		var args []any
		for _, key := range keys {
			sql, clauseArgs, err := c.compileFieldClause(scope, key, f[key], instruction)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
			args = append(args, clauseArgs...)
		}
		return "(" + strings.Join(parts, " AND ") + ")", args, nil

	case []any:
		parts := make([]string, 0, len(f))
		var args []any
		for _, entry := range f {
			sql, entryArgs, err := c.compileFilter(scope, entry, instruction)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
			args = append(args, entryArgs...)
		}
		return "(" + strings.Join(parts, " OR ") + ")", args, nil

	default:
		return "", nil, errInvalidInstruction("the %q instruction must hold an object, not %T", instruction, filter)
	}
}

// compileFieldClause compiles the clause of a single field key.
func (c *compileContext) compileFieldClause(scope fieldScope, path string, value any, instruction string) (string, []any, error) {
	switch v := value.(type) {
	case nil:
		selector, _, err := c.catalog.fieldSelector(scope.model, path, scope.alias, instruction)
		if err != nil {
			return "", nil, err
		}
		return selector + " IS NULL", nil, nil

	case map[string]any:
		switch kind, payload := asSymbol(v); kind {
		case symbolQueryKind:
			return c.compileSubqueryComparison(scope, path, payload, instruction)
		case symbolExpressionKind:
			return c.compileComparison(scope, path, "being", v, instruction)
		}
		if allOperatorKeys(v) {
			return c.compileOperators(scope, path, v, instruction)
		}
		// Nested object: keys are sub-field slugs of a group or reference.
		keys := maps.Keys(v)
		slices.Sort(keys)

		parts := make([]string, 0, len(keys))
		var args []any
		for _, key := range keys {
			sql, subArgs, err := c.compileFieldClause(scope, path+"."+key, v[key], instruction)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
			args = append(args, subArgs...)
		}
		return strings.Join(parts, " AND "), args, nil

	case []any:
		parts := make([]string, 0, len(v))
		var args []any
		for _, entry := range v {
			sql, entryArgs, err := c.compileFieldClause(scope, path, entry, instruction)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
			args = append(args, entryArgs...)
		}
		return "(" + strings.Join(parts, " OR ") + ")", args, nil

	default:
		return c.compileComparison(scope, path, "being", v, instruction)
	}
}

// compileOperators applies every operator of a condition mapping to the same
// field; multiple operators AND together.
func (c *compileContext) compileOperators(scope fieldScope, path string, conditions map[string]any, instruction string) (string, []any, error) {
	keys := maps.Keys(conditions)
	slices.Sort(keys)

	parts := make([]string, 0, len(keys))
	var args []any
	for _, op := range keys {
		value := conditions[op]
		if list, ok := value.([]any); ok {
			// Array under an operator is a disjunction of the operator
			// applied per element.
			orParts := make([]string, 0, len(list))
			for _, entry := range list {
				sql, entryArgs, err := c.compileComparison(scope, path, op, entry, instruction)
				if err != nil {
					return "", nil, err
				}
				orParts = append(orParts, sql)
				args = append(args, entryArgs...)
			}
			parts = append(parts, "("+strings.Join(orParts, " OR ")+")")
			continue
		}
		sql, opArgs, err := c.compileComparison(scope, path, op, value, instruction)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		args = append(args, opArgs...)
	}
	return strings.Join(parts, " AND "), args, nil
}

// compileComparison renders a single operator applied to a single value.
func (c *compileContext) compileComparison(scope fieldScope, path, op string, value any, instruction string) (string, []any, error) {
	operator, ok := withConditions[op]
	if !ok {
		return "", nil, errInvalidInstruction("the condition %q is not recognized by the %q instruction", op, instruction)
	}

	selector, _, err := c.catalog.fieldSelector(scope.model, path, scope.alias, instruction)
	if err != nil {
		return "", nil, err
	}

	// Null comparisons never bind; SQLite equality against NULL is always
	// false, so = and != lower to IS NULL / IS NOT NULL.
	if value == nil {
		if operator.negated {
			return selector + " IS NOT NULL", nil, nil
		}
		if operator.sql != "=" {
			return "", nil, errInvalidInstruction("the condition %q cannot compare against null", op)
		}
		return selector + " IS NULL", nil, nil
	}

	if operator.pattern != "" {
		buf := &paramBuffer{}
		pattern := fmt.Sprintf(operator.pattern, cast.ToString(value))
		placeholder := buf.bind(pattern)
		return selector + " " + operator.sql + " " + placeholder, buf.values, nil
	}

	// A string carrying a field-reference sentinel compares two columns
	// instead of binding a value.
	if s, ok := value.(string); ok && containsFieldRef(s) {
		parentModel, parentAlias := scope.parentModel, scope.parentAlias
		if parentModel == nil {
			parentModel, parentAlias = scope.model, scope.alias
		}
		fragment, err := c.resolveFieldRefs(parentModel, parentAlias, instruction, s)
		if err != nil {
			return "", nil, err
		}
		return selector + " " + operator.sql + " " + fragment, nil, nil
	}

	if kind, payload := asSymbol(value); kind == symbolExpressionKind {
		expr, ok := payload.(string)
		if !ok {
			return "", nil, errInvalidInstruction("an expression symbol in %q must hold a string", instruction)
		}
		fragment, err := c.resolveFieldRefs(scope.model, scope.alias, instruction, expr)
		if err != nil {
			return "", nil, err
		}
		return selector + " " + operator.sql + " (" + fragment + ")", nil, nil
	}

	buf := &paramBuffer{}
	placeholder := buf.bind(value)
	return selector + " " + operator.sql + " " + placeholder, buf.values, nil
}

// compileSubqueryComparison compares a field against the result of a nested
// sub-query. Singular sub-queries compare with =, plural ones with IN.
func (c *compileContext) compileSubqueryComparison(scope fieldScope, path string, payload any, instruction string) (string, []any, error) {
	selector, _, err := c.catalog.fieldSelector(scope.model, path, scope.alias, instruction)
	if err != nil {
		return "", nil, err
	}

	sub, ok := payload.(map[string]any)
	if !ok {
		return "", nil, errInvalidQuery("a sub-query symbol in %q must hold a query object", instruction)
	}

	sql, args, singular, err := c.compileNestedSelect(sub, instruction)
	if err != nil {
		return "", nil, err
	}

	if singular {
		return selector + " = (" + sql + ")", args, nil
	}
	return selector + " IN (" + sql + ")", args, nil
}

// allOperatorKeys reports whether every key of a condition mapping names a
// recognized operator. Mixed mappings are treated as nested sub-field paths.
func allOperatorKeys(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for key := range m {
		if _, ok := withConditions[key]; !ok {
			return false
		}
	}
	return true
}

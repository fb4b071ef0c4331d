package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roninql/compiler"
)

func TestConditionOperators(t *testing.T) {
	tests := []struct {
		name       string
		with       map[string]any
		wantClause string
		wantParams []any
	}{
		{
			name:       "being",
			with:       map[string]any{"email": map[string]any{"being": "a@b"}},
			wantClause: `("email" = ?1)`,
			wantParams: []any{"a@b"},
		},
		{
			name:       "notBeing",
			with:       map[string]any{"email": map[string]any{"notBeing": "a@b"}},
			wantClause: `("email" != ?1)`,
			wantParams: []any{"a@b"},
		},
		{
			name:       "notBeing null",
			with:       map[string]any{"email": map[string]any{"notBeing": nil}},
			wantClause: `("email" IS NOT NULL)`,
		},
		{
			name:       "startingWith binds the pattern",
			with:       map[string]any{"email": map[string]any{"startingWith": "a"}},
			wantClause: `("email" LIKE ?1)`,
			wantParams: []any{"a%"},
		},
		{
			name:       "notStartingWith",
			with:       map[string]any{"email": map[string]any{"notStartingWith": "a"}},
			wantClause: `("email" NOT LIKE ?1)`,
			wantParams: []any{"a%"},
		},
		{
			name:       "endingWith",
			with:       map[string]any{"email": map[string]any{"endingWith": "@b.co"}},
			wantClause: `("email" LIKE ?1)`,
			wantParams: []any{"%@b.co"},
		},
		{
			name:       "notEndingWith",
			with:       map[string]any{"email": map[string]any{"notEndingWith": "@b.co"}},
			wantClause: `("email" NOT LIKE ?1)`,
			wantParams: []any{"%@b.co"},
		},
		{
			name:       "containing",
			with:       map[string]any{"name": map[string]any{"containing": "ob"}},
			wantClause: `("name" LIKE ?1)`,
			wantParams: []any{"%ob%"},
		},
		{
			name:       "notContaining",
			with:       map[string]any{"name": map[string]any{"notContaining": "ob"}},
			wantClause: `("name" NOT LIKE ?1)`,
			wantParams: []any{"%ob%"},
		},
		{
			name:       "greaterThan",
			with:       map[string]any{"age": map[string]any{"greaterThan": 21}},
			wantClause: `("age" > ?1)`,
			wantParams: []any{21},
		},
		{
			name:       "greaterOrEqual",
			with:       map[string]any{"age": map[string]any{"greaterOrEqual": 21}},
			wantClause: `("age" >= ?1)`,
			wantParams: []any{21},
		},
		{
			name:       "lessThan",
			with:       map[string]any{"age": map[string]any{"lessThan": 65}},
			wantClause: `("age" < ?1)`,
			wantParams: []any{65},
		},
		{
			name:       "lessOrEqual",
			with:       map[string]any{"age": map[string]any{"lessOrEqual": 65}},
			wantClause: `("age" <= ?1)`,
			wantParams: []any{65},
		},
		{
			name:       "multiple operators AND together",
			with:       map[string]any{"age": map[string]any{"greaterThan": 21, "lessThan": 65}},
			wantClause: `("age" > ?1 AND "age" < ?2)`,
			wantParams: []any{21, 65},
		},
		{
			name:       "array value is a disjunction",
			with:       map[string]any{"role": []any{"admin", "owner"}},
			wantClause: `(("role" = ?1 OR "role" = ?2))`,
			wantParams: []any{"admin", "owner"},
		},
		{
			name:       "array under an operator",
			with:       map[string]any{"email": map[string]any{"endingWith": []any{"@a.co", "@b.co"}}},
			wantClause: `(("email" LIKE ?1 OR "email" LIKE ?2))`,
			wantParams: []any{"%@a.co", "%@b.co"},
		},
		{
			name:       "nested group sub-field",
			with:       map[string]any{"nickname": map[string]any{"first": "jo"}},
			wantClause: `("nickname.first" = ?1)`,
			wantParams: []any{"jo"},
		},
		{
			name:       "boolean equality encodes to integer",
			with:       map[string]any{"active": true},
			wantClause: `("active" = ?1)`,
			wantParams: []any{int64(1)},
		},
		{
			name: "fields of one object AND together in sorted order",
			with: map[string]any{
				"role": "admin",
				"age":  map[string]any{"greaterThan": 18},
			},
			wantClause: `("age" > ?1 AND "role" = ?2)`,
			wantParams: []any{18, "admin"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			statement := compileOne(t, compiler.Query{
				"get": map[string]any{"account": map[string]any{"with": tt.with}},
			})
			assert.Equal(t, `SELECT * FROM "accounts" WHERE `+tt.wantClause+` LIMIT 1`, statement.SQL)
			if tt.wantParams == nil {
				assert.Empty(t, statement.Params)
			} else {
				assert.Equal(t, tt.wantParams, statement.Params)
			}
		})
	}
}

func TestConditionRejectsUnknownOperatorValue(t *testing.T) {
	// A mapping that is neither all operators nor resolvable sub-fields
	// fails on the unresolvable path.
	_, err := compiler.Compile([]compiler.Query{
		{"get": map[string]any{"account": map[string]any{
			"with": map[string]any{"email": map[string]any{"being": "a", "custom": "b"}},
		}}},
	}, testModels())

	assert.Equal(t, compiler.ErrFieldNotFound, compiler.CodeOf(err))
}

package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roninql/compiler"
)

func subQuery(queryType string, body map[string]any) map[string]any {
	return map[string]any{
		compiler.SymbolQuery: map[string]any{queryType: body},
	}
}

func TestIncludingLeftJoin(t *testing.T) {
	statement := compileOne(t, compiler.Query{
		"get": map[string]any{"accounts": map[string]any{
			"including": map[string]any{
				"members": subQuery("get", map[string]any{
					"members": map[string]any{
						"with": map[string]any{"account": compiler.SymbolField + "id"},
					},
				}),
			},
		}},
	})

	assert.Equal(t,
		`SELECT "accounts".* FROM "accounts" `+
			`LEFT JOIN "members" as "including_members" ON ("including_members"."account" = "accounts"."id") `+
			`ORDER BY "accounts"."ronin.createdAt" DESC`,
		statement.SQL)
	assert.Empty(t, statement.Params)
}

func TestIncludingCrossJoinSingular(t *testing.T) {
	statement := compileOne(t, compiler.Query{
		"get": map[string]any{"accounts": map[string]any{
			"including": map[string]any{
				"sponsor": subQuery("get", map[string]any{"workspace": nil}),
			},
		}},
	})

	// A singular sub-query without a filter pins the cartesian product to a
	// single related row; LIMIT cannot ride inline in a join, so the
	// sub-query becomes a sub-select. The multi-row outer query re-addresses
	// its table under a sub_ alias.
	assert.Equal(t,
		`SELECT "sub_accounts".* FROM "accounts" as "sub_accounts" `+
			`CROSS JOIN (SELECT * FROM "workspaces" LIMIT 1) as "including_sponsor" `+
			`ORDER BY "sub_accounts"."ronin.createdAt" DESC`,
		statement.SQL)
}

func TestIncludingOrderedSubqueryWraps(t *testing.T) {
	statement := compileOne(t, compiler.Query{
		"get": map[string]any{"accounts": map[string]any{
			"including": map[string]any{
				"members": subQuery("get", map[string]any{
					"members": map[string]any{
						"with":      map[string]any{"account": compiler.SymbolField + "id"},
						"orderedBy": map[string]any{"descending": []any{"joinedAt"}},
						"limitedTo": 2,
					},
				}),
			},
		}},
	})

	assert.Equal(t,
		`SELECT "accounts".* FROM "accounts" `+
			`LEFT JOIN (SELECT * FROM "members" ORDER BY "joinedAt" DESC, "ronin.createdAt" DESC LIMIT 2) as "including_members" `+
			`ON ("including_members"."account" = "accounts"."id") `+
			`ORDER BY "accounts"."ronin.createdAt" DESC`,
		statement.SQL)
}

func TestIncludingExpandsDuplicateColumns(t *testing.T) {
	query := compiler.Query{
		"get": map[string]any{"accounts": map[string]any{
			"including": map[string]any{
				"members": subQuery("get", map[string]any{
					"members": map[string]any{
						"with": map[string]any{"account": compiler.SymbolField + "id"},
					},
				}),
			},
		}},
	}

	// Expansion is off by default; sub-query leaves add no select columns.
	statement := compileOne(t, query)
	assert.NotContains(t, statement.SQL, `"including_members.role"`)

	// Both models declare a `role` field, so with expansion enabled the
	// joined model's column is re-aliased to keep the two apart in the
	// result row.
	statement = compileOne(t, query, compiler.WithExpandColumns(true))
	assert.Contains(t, statement.SQL,
		`"including_members"."role" as "including_members.role"`)
}

func TestIncludingEphemeralLiteral(t *testing.T) {
	statement := compileOne(t, compiler.Query{
		"get": map[string]any{"account": map[string]any{
			"including": map[string]any{"score": 42},
		}},
	})

	assert.Equal(t, `SELECT *, ?1 as "score" FROM "accounts" LIMIT 1`, statement.SQL)
	assert.Equal(t, []any{42}, statement.Params)
}

func TestIncludingEphemeralExpression(t *testing.T) {
	statement := compileOne(t, compiler.Query{
		"get": map[string]any{"account": map[string]any{
			"including": map[string]any{
				"label": map[string]any{
					compiler.SymbolExpression: compiler.SymbolField + "name || ' <' || " + compiler.SymbolField + "email || '>'",
				},
			},
		}},
	})

	assert.Equal(t,
		`SELECT *, ("name" || ' <' || "email" || '>') as "label" FROM "accounts" LIMIT 1`,
		statement.SQL)
	assert.Empty(t, statement.Params)
}

func TestIncludingNestedKeysFlatten(t *testing.T) {
	statement := compileOne(t, compiler.Query{
		"get": map[string]any{"account": map[string]any{
			"including": map[string]any{
				"meta": map[string]any{"origin": "api", "version": 2},
			},
		}},
	})

	assert.Equal(t,
		`SELECT *, ?1 as "meta.origin", ?2 as "meta.version" FROM "accounts" LIMIT 1`,
		statement.SQL)
	assert.Equal(t, []any{"api", 2}, statement.Params)
}

func TestIncludingUnknownModelFails(t *testing.T) {
	_, err := compiler.Compile([]compiler.Query{
		{"get": map[string]any{"accounts": map[string]any{
			"including": map[string]any{
				"things": subQuery("get", map[string]any{"things": nil}),
			},
		}}},
	}, testModels())

	assert.Equal(t, compiler.ErrModelNotFound, compiler.CodeOf(err))
}

func TestIncludingRejectsWriteSubqueries(t *testing.T) {
	_, err := compiler.Compile([]compiler.Query{
		{"get": map[string]any{"accounts": map[string]any{
			"including": map[string]any{
				"cleanup": subQuery("remove", map[string]any{"members": nil}),
			},
		}}},
	}, testModels())

	assert.Equal(t, compiler.ErrInvalidQuery, compiler.CodeOf(err))
}

func TestModelDefaultIncluding(t *testing.T) {
	models := []compiler.Model{
		{
			Slug:      "invoice",
			Including: map[string]any{"currency": "EUR"},
		},
	}

	statements, err := compiler.Compile([]compiler.Query{
		{"get": map[string]any{"invoice": nil}},
	}, models)
	assert.NoError(t, err)
	assert.Equal(t, `SELECT *, ?1 as "currency" FROM "invoices" LIMIT 1`, statements[0].SQL)
	assert.Equal(t, []any{"EUR"}, statements[0].Params)

	// An explicit query key overrides the model default.
	statements, err = compiler.Compile([]compiler.Query{
		{"get": map[string]any{"invoice": map[string]any{
			"including": map[string]any{"currency": "USD"},
		}}},
	}, models)
	assert.NoError(t, err)
	assert.Equal(t, []any{"USD"}, statements[0].Params)
}

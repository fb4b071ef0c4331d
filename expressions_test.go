package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFieldRefs(t *testing.T) {
	catalog, err := NewCatalog([]Model{
		{Slug: "account", Fields: []Field{
			{Slug: "firstName", Type: FieldString},
			{Slug: "lastName", Type: FieldString},
			{Slug: "nickname", Type: FieldGroup},
		}},
	})
	require.NoError(t, err)
	c := newCompileContext(catalog, nil)
	m, _, _ := catalog.ModelBySlug("account")

	tests := []struct {
		name  string
		expr  string
		alias string
		want  string
	}{
		{
			name: "single reference",
			expr: SymbolField + "firstName",
			want: `"firstName"`,
		},
		{
			name: "concatenation",
			expr: SymbolField + "firstName || ' ' || " + SymbolField + "lastName",
			want: `"firstName" || ' ' || "lastName"`,
		},
		{
			name: "dotted group path",
			expr: "upper(" + SymbolField + "nickname.first)",
			want: `upper("nickname.first")`,
		},
		{
			name:  "alias qualification",
			expr:  SymbolField + "firstName",
			alias: "sub_accounts",
			want:  `"sub_accounts"."firstName"`,
		},
		{
			name: "no references pass through",
			expr: "1 + 1",
			want: "1 + 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.resolveFieldRefs(m, tt.alias, "including", tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = c.resolveFieldRefs(m, "", "including", SymbolField+"missing")
	assert.Equal(t, ErrFieldNotFound, CodeOf(err))
}

package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCatalogDerivesPluralSlug(t *testing.T) {
	catalog, err := NewCatalog([]Model{
		{Slug: "beach"},
		{Slug: "category"},
		{Slug: "person", PluralSlug: "people"},
	})
	require.NoError(t, err)

	tests := []struct {
		address    string
		wantSlug   string
		wantPlural bool
	}{
		{"beach", "beach", false},
		{"beaches", "beach", true},
		{"categories", "category", true},
		{"people", "person", true},
		{"person", "person", false},
	}
	for _, tt := range tests {
		m, plural, err := catalog.ModelBySlug(tt.address)
		require.NoError(t, err)
		assert.Equal(t, tt.wantSlug, m.Slug)
		assert.Equal(t, tt.wantPlural, plural)
	}

	_, _, err = catalog.ModelBySlug("mountains")
	assert.Equal(t, ErrModelNotFound, CodeOf(err))
}

func TestNewCatalogValidation(t *testing.T) {
	tests := []struct {
		name   string
		models []Model
		code   ErrorCode
	}{
		{
			name:   "missing slug",
			models: []Model{{}},
			code:   ErrInvalidQuery,
		},
		{
			name:   "duplicate slug",
			models: []Model{{Slug: "account"}, {Slug: "account"}},
			code:   ErrInvalidQuery,
		},
		{
			name: "duplicate field slug",
			models: []Model{{Slug: "account", Fields: []Field{
				{Slug: "email", Type: FieldString},
				{Slug: "email", Type: FieldString},
			}}},
			code: ErrInvalidQuery,
		},
		{
			name: "dangling reference target",
			models: []Model{{Slug: "member", Fields: []Field{
				{Slug: "account", Type: FieldReference, Target: "account"},
			}}},
			code: ErrModelNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.models)
			require.Error(t, err)
			assert.Equal(t, tt.code, CodeOf(err))
		})
	}
}

func TestTableNameOverride(t *testing.T) {
	m := &Model{Slug: "account", PluralSlug: "accounts", Table: "legacy_accounts"}
	assert.Equal(t, "legacy_accounts", m.TableName())

	m.Table = ""
	assert.Equal(t, "accounts", m.TableName())
}

func TestFieldSelector(t *testing.T) {
	catalog, err := NewCatalog([]Model{
		{
			Slug: "account",
			Fields: []Field{
				{Slug: "email", Type: FieldString},
				{Slug: "nickname", Type: FieldGroup},
			},
		},
		{
			Slug: "member",
			Fields: []Field{
				{Slug: "account", Type: FieldReference, Target: "account", Kind: ReferenceOne},
			},
		},
	})
	require.NoError(t, err)

	account, _, _ := catalog.ModelBySlug("account")
	member, _, _ := catalog.ModelBySlug("member")

	tests := []struct {
		name  string
		model *Model
		path  string
		alias string
		want  string
	}{
		{"plain field", account, "email", "", `"email"`},
		{"meta id", account, "id", "", `"id"`},
		{"meta timestamp", account, "ronin.createdAt", "", `"ronin.createdAt"`},
		{"alias qualification", account, "email", "accounts", `"accounts"."email"`},
		{"group sub-field", account, "nickname.first", "", `"nickname.first"`},
		{"reference traversal", member, "account.email", "", `"including_account"."email"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selector, _, err := catalog.fieldSelector(tt.model, tt.path, tt.alias, "with")
			require.NoError(t, err)
			assert.Equal(t, tt.want, selector)
		})
	}

	_, _, err = catalog.fieldSelector(account, "missing", "", "selecting")
	require.Error(t, err)
	assert.Equal(t, ErrFieldNotFound, CodeOf(err))
	assert.Contains(t, err.Error(), "missing")
	assert.Contains(t, err.Error(), "selecting")
}

func TestQuoteIdentEscapesQuotes(t *testing.T) {
	assert.Equal(t, `"plain"`, quoteIdent("plain"))
	assert.Equal(t, `"a""b"`, quoteIdent(`a"b`))
}

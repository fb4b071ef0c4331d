// Package compiler translates declarative RONIN queries into SQLite
// statements with positional parameters.
// This file implements the model catalog: logical schemas describing tables,
// fields, relationships, and reusable presets, plus the resolver that turns
// field paths into SQL column selectors.
package compiler

import (
	"strings"

	"github.com/gobuffalo/flect"
)

// FieldType enumerates the storage types a model field can declare.
type FieldType string

const (
	FieldString    FieldType = "string"
	FieldNumber    FieldType = "number"
	FieldBoolean   FieldType = "boolean"
	FieldDate      FieldType = "date"
	FieldJSON      FieldType = "json"
	FieldGroup     FieldType = "group"
	FieldReference FieldType = "reference"
)

// ReferenceKind declares the cardinality of a reference field.
type ReferenceKind string

const (
	ReferenceOne  ReferenceKind = "one"
	ReferenceMany ReferenceKind = "many"
)

// Field describes a single column of a model.
// A `group` field's slug acts as a namespace prefix for dotted sub-field
// paths; a `reference` field points at another model via Target.
type Field struct {
	Slug         string        `json:"slug" mapstructure:"slug"`
	Type         FieldType     `json:"type" mapstructure:"type"`
	Unique       bool          `json:"unique,omitempty" mapstructure:"unique"`
	Required     bool          `json:"required,omitempty" mapstructure:"required"`
	DefaultValue any           `json:"defaultValue,omitempty" mapstructure:"defaultValue"`
	Target       string        `json:"target,omitempty" mapstructure:"target"`
	Kind         ReferenceKind `json:"kind,omitempty" mapstructure:"kind"`
}

// Preset is a reusable, named bundle of instructions attached to a model.
// It is expanded into a host query by the `for` instruction; string leaves
// may contain the VALUE placeholder substituted at expansion time.
type Preset struct {
	Slug         string         `json:"slug" mapstructure:"slug"`
	Instructions map[string]any `json:"instructions" mapstructure:"instructions"`
}

// Identifiers names the fields used to present a record of this model.
type Identifiers struct {
	Name string `json:"name,omitempty" mapstructure:"name"`
	Slug string `json:"slug,omitempty" mapstructure:"slug"`
}

// Model is the logical schema of a record type. It maps to a SQL table whose
// name defaults to the plural slug.
type Model struct {
	Slug       string `json:"slug" mapstructure:"slug"`
	PluralSlug string `json:"pluralSlug,omitempty" mapstructure:"pluralSlug"`

	// Table overrides the table name derived from PluralSlug.
	Table string `json:"table,omitempty" mapstructure:"table"`

	// IDPrefix seeds generated record ids ("acc" yields "acc_…").
	IDPrefix string `json:"idPrefix,omitempty" mapstructure:"idPrefix"`

	Identifiers Identifiers `json:"identifiers,omitempty" mapstructure:"identifiers"`
	Fields      []Field     `json:"fields,omitempty" mapstructure:"fields"`
	Presets     []Preset    `json:"presets,omitempty" mapstructure:"presets"`

	// Including holds default ephemeral fields merged into every `get`
	// addressing this model; explicit query keys win.
	Including map[string]any `json:"including,omitempty" mapstructure:"including"`
}

// TableName returns the SQL table backing the model.
func (m *Model) TableName() string {
	if m.Table != "" {
		return m.Table
	}
	return m.PluralSlug
}

// FieldBySlug returns the field declared with the given slug, if any.
func (m *Model) FieldBySlug(slug string) (*Field, bool) {
	for i := range m.Fields {
		if m.Fields[i].Slug == slug {
			return &m.Fields[i], true
		}
	}
	return nil, false
}

// PresetBySlug returns the preset declared with the given slug, if any.
func (m *Model) PresetBySlug(slug string) (*Preset, bool) {
	for i := range m.Presets {
		if m.Presets[i].Slug == slug {
			return &m.Presets[i], true
		}
	}
	return nil, false
}

// Catalog indexes a set of models by singular and plural slug.
// It is read-only for the lifetime of a compilation and may be shared freely
// between concurrent compilations.
type Catalog struct {
	models   []*Model
	bySlug   map[string]*Model
	byPlural map[string]*Model
}

// NewCatalog normalizes and validates the supplied models.
// Missing plural slugs are derived by pluralizing the singular slug, matching
// how table names come into being when the caller does not spell them out.
func NewCatalog(models []Model) (*Catalog, error) {
	c := &Catalog{
		bySlug:   make(map[string]*Model, len(models)),
		byPlural: make(map[string]*Model, len(models)),
	}

	for i := range models {
		m := models[i]
		if m.Slug == "" {
			return nil, errInvalidQuery("a model is missing its slug")
		}
		if m.PluralSlug == "" {
			m.PluralSlug = flect.Pluralize(m.Slug)
		}
		if _, dup := c.bySlug[m.Slug]; dup {
			return nil, errInvalidQuery("duplicate model slug %q", m.Slug)
		}
		if _, dup := c.byPlural[m.PluralSlug]; dup {
			return nil, errInvalidQuery("duplicate plural model slug %q", m.PluralSlug)
		}
		seen := make(map[string]struct{}, len(m.Fields))
		for _, f := range m.Fields {
			if _, dup := seen[f.Slug]; dup {
				return nil, errInvalidQuery("duplicate field slug %q in model %q", f.Slug, m.Slug)
			}
			seen[f.Slug] = struct{}{}
		}
		stored := m
		c.models = append(c.models, &stored)
		c.bySlug[m.Slug] = &stored
		c.byPlural[m.PluralSlug] = &stored
	}

	// Slugs and plural slugs must be disjoint across the catalog, and every
	// reference target must resolve. Checked after indexing so forward
	// references between models work.
	for _, m := range c.models {
		if other, clash := c.byPlural[m.Slug]; clash && other != m {
			return nil, errInvalidQuery("model slug %q collides with the plural slug of %q", m.Slug, other.Slug)
		}
		for _, f := range m.Fields {
			if f.Type != FieldReference {
				continue
			}
			if _, ok := c.bySlug[f.Target]; !ok {
				return nil, errModelNotFound(f.Target)
			}
		}
	}

	return c, nil
}

// Models returns the catalog contents in registration order.
func (c *Catalog) Models() []*Model {
	return c.models
}

// ModelBySlug resolves a model address that may be singular or plural.
// The plural flag reports which form matched, driving single-record versus
// multi-record query semantics.
func (c *Catalog) ModelBySlug(slug string) (m *Model, plural bool, err error) {
	if m, ok := c.bySlug[slug]; ok {
		return m, false, nil
	}
	if m, ok := c.byPlural[slug]; ok {
		return m, true, nil
	}
	return nil, false, errModelNotFound(slug)
}

// Meta fields exist on every record without being declared on the model.
var metaFields = map[string]Field{
	"id":              {Slug: "id", Type: FieldString},
	"ronin.createdAt": {Slug: "ronin.createdAt", Type: FieldDate},
	"ronin.updatedAt": {Slug: "ronin.updatedAt", Type: FieldDate},
}

// fieldSelector resolves a possibly dotted field path against a model and
// produces the quoted SQL column reference, optionally qualified by a join or
// table alias. The instruction name is only used for error messages.
//
// Resolution rules:
//   - meta fields ("id", "ronin.…") resolve on every model;
//   - a plain path resolves to the field of the same slug;
//   - a dotted path whose first segment is a `group` field selects the
//     dotted column as stored ("group.sub");
//   - a dotted path whose first segment is a `reference` field recurses into
//     the target model, qualified by the join alias the including builder
//     assigns to that reference ("including_<slug>").
func (c *Catalog) fieldSelector(m *Model, path, alias, instruction string) (string, *Field, error) {
	if meta, ok := metaFields[path]; ok {
		return qualify(alias, path), &meta, nil
	}

	// Dotted slugs are stored verbatim, so an exact match wins over
	// segment-wise resolution.
	if f, ok := m.FieldBySlug(path); ok {
		return qualify(alias, path), f, nil
	}

	head, rest, dotted := strings.Cut(path, ".")
	if !dotted {
		return "", nil, errFieldNotFound(path, m.Slug, instruction)
	}

	f, ok := m.FieldBySlug(head)
	if !ok {
		return "", nil, errFieldNotFound(path, m.Slug, instruction)
	}

	switch f.Type {
	case FieldGroup:
		// Sub-fields of a group live in a single dotted column.
		return qualify(alias, path), f, nil
	case FieldReference:
		target, ok := c.bySlug[f.Target]
		if !ok {
			return "", nil, errModelNotFound(f.Target)
		}
		return c.fieldSelector(target, rest, joinAlias(head), instruction)
	default:
		return "", nil, errFieldNotFound(path, m.Slug, instruction)
	}
}

// joinAlias names the table alias under which a related model is joined.
func joinAlias(key string) string {
	return "including_" + key
}

// quoteIdent double-quotes a SQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func qualify(alias, column string) string {
	if alias == "" {
		return quoteIdent(column)
	}
	return quoteIdent(alias) + "." + quoteIdent(column)
}

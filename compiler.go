// Package compiler translates declarative RONIN queries into SQLite
// statements with positional parameters.
//
// A query is a tree of plain objects describing intent ("get these records,
// filtered this way, joined with that, ordered thus"). The compiler resolves
// it against a catalog of models and lowers its instructions — with,
// including, selecting, for, orderedBy, limitedTo, to — into a single SQL
// statement with an out-of-band vector of bound parameters.
//
// Usage example:
//
//	statements, err := compiler.Compile(
//	    []compiler.Query{
//	        {"get": map[string]any{"accounts": map[string]any{
//	            "with": map[string]any{"status": "active"},
//	        }}},
//	    },
//	    []compiler.Model{
//	        {Slug: "account", Fields: []compiler.Field{
//	            {Slug: "status", Type: compiler.FieldString},
//	        }},
//	    },
//	)
//
// Compilation is pure and synchronous: no I/O happens, the model catalog is
// only read, and every invocation with the same inputs yields the same
// statements. Executing the statements is the session's concern.
package compiler

import (
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/xid"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Query is a single declarative query: a singleton mapping from a query type
// (get, set, add, remove, count) to a model address and its instructions.
type Query = map[string]any

// Statement is one compiled SQL statement.
type Statement struct {
	// SQL is the statement text with ?1…?N positional placeholders.
	SQL string `json:"sql"`

	// Params holds the bound values; Params[N-1] backs placeholder ?N.
	Params []any `json:"params"`

	// Returning indicates the driver should hand rows back to the caller.
	Returning bool `json:"returning"`
}

// queryTypes enumerates the recognized outer keys of a query.
var queryTypes = map[string]struct{}{
	"get":    {},
	"set":    {},
	"add":    {},
	"remove": {},
	"count":  {},
}

// metaCreatedAt and metaUpdatedAt are the record timestamps maintained by
// write queries and consulted by the default ordering.
const (
	metaCreatedAt = "ronin.createdAt"
	metaUpdatedAt = "ronin.updatedAt"
)

// Option adjusts a single compilation.
type Option func(*compileContext)

// WithClock fixes the timestamp source used to stamp record meta fields on
// write queries. The clock is read once per compilation, keeping a batch
// internally consistent. Defaults to time.Now.
func WithClock(clock func() time.Time) Option {
	return func(c *compileContext) {
		c.now = clock().UTC()
	}
}

// WithIDFactory replaces the generator for record ids of `add` queries.
// The default derives "<idPrefix>_<xid>" from the addressed model.
func WithIDFactory(factory func(m *Model) string) Option {
	return func(c *compileContext) {
		c.newID = factory
	}
}

// WithExpandColumns enables duplicate-name expansion under joins: every
// field of a joined model whose slug collides with a field of the root model
// is re-selected as "<alias>"."<slug>" as "<alias>.<slug>" so both columns
// survive in the result row. Off by default; without it, sub-query leaves of
// `including` contribute no extra select-list entries.
func WithExpandColumns(enabled bool) Option {
	return func(c *compileContext) {
		c.expandColumns = enabled
	}
}

// compileContext carries the read-only inputs of one compilation. Per-query
// scratch (aliases, parameter vectors) lives on the stack of each handler,
// so a context introduces no shared mutable state.
type compileContext struct {
	catalog       *Catalog
	dialect       Dialect
	now           time.Time
	newID         func(m *Model) string
	expandColumns bool
}

// queryMeta describes a compiled query for result hydration.
type queryMeta struct {
	queryType string
	plural    bool
	limit     int64
}

func newCompileContext(catalog *Catalog, opts []Option) *compileContext {
	c := &compileContext{
		catalog: catalog,
		dialect: SQLite,
		now:     time.Now().UTC(),
		newID:   defaultIDFactory,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultIDFactory(m *Model) string {
	prefix := m.IDPrefix
	if prefix == "" {
		prefix = m.Slug
		if len(prefix) > 3 {
			prefix = prefix[:3]
		}
	}
	return prefix + "_" + xid.New().String()
}

// Compile translates a batch of queries against a model catalog into SQL
// statements. Queries compile sequentially, each with a fresh parameter
// vector; the first failing query aborts the batch.
func Compile(queries []Query, models []Model, opts ...Option) ([]Statement, error) {
	catalog, err := NewCatalog(models)
	if err != nil {
		return nil, err
	}

	c := newCompileContext(catalog, opts)

	statements := make([]Statement, 0, len(queries))
	for _, query := range queries {
		statement, _, err := c.compileQuery(query)
		if err != nil {
			return nil, err
		}
		statements = append(statements, statement)
	}
	return statements, nil
}

// splitQuery destructures the outer shape of a query: exactly one query-type
// key, mapping to exactly one model address and its instruction object.
func splitQuery(raw map[string]any) (queryType, address string, instructions map[string]any, err error) {
	if len(raw) != 1 {
		return "", "", nil, errInvalidQuery("a query must hold exactly one query type, got %d", len(raw))
	}

	for key, value := range raw {
		if _, ok := queryTypes[key]; !ok {
			return "", "", nil, errInvalidQuery("unknown query type %q", key)
		}
		queryType = key

		body, ok := value.(map[string]any)
		if !ok || len(body) != 1 {
			return "", "", nil, errInvalidQuery("the %q query must address exactly one model", key)
		}
		for modelAddress, rawInstructions := range body {
			address = modelAddress
			switch instr := rawInstructions.(type) {
			case nil:
				instructions = map[string]any{}
			case map[string]any:
				instructions = instr
			default:
				return "", "", nil, errInvalidQuery("the instructions of %q must be an object, not %T", modelAddress, rawInstructions)
			}
		}
	}
	return queryType, address, instructions, nil
}

// compileQuery dispatches a single query to its statement builder.
func (c *compileContext) compileQuery(query Query) (Statement, queryMeta, error) {
	queryType, address, raw, err := splitQuery(query)
	if err != nil {
		return Statement{}, queryMeta{}, err
	}

	m, plural, err := c.catalog.ModelBySlug(address)
	if err != nil {
		return Statement{}, queryMeta{}, err
	}

	// Presets expand before any other handler runs, so the merged bundle
	// passes through the normal pipeline.
	expanded, err := c.expandPresets(m, raw)
	if err != nil {
		return Statement{}, queryMeta{}, err
	}
	instr, err := decodeInstructions(expanded)
	if err != nil {
		return Statement{}, queryMeta{}, err
	}

	meta := queryMeta{queryType: queryType, plural: plural}
	if limit, ok, err := instr.limit(); err == nil && ok {
		meta.limit = limit
	}

	var sql string
	var args []any
	switch queryType {
	case "get":
		sql, args, err = c.compileSelect(m, plural, instr, false)
	case "count":
		sql, args, err = c.compileCount(m, instr)
	case "set":
		sql, args, err = c.compileSet(m, instr)
	case "add":
		sql, args, err = c.compileAdd(m, instr)
	case "remove":
		sql, args, err = c.compileRemove(m, instr)
	}
	if err != nil {
		return Statement{}, queryMeta{}, err
	}

	return Statement{SQL: sql, Params: args, Returning: true}, meta, nil
}

// compileSelect assembles a SELECT statement for a `get` query or a nested
// sub-select. Nested statements keep bare ? placeholders so the enclosing
// statement can number the full vector once.
func (c *compileContext) compileSelect(m *Model, plural bool, instr *instructions, nested bool) (string, []any, error) {
	table := m.TableName()

	including := mergeDefaultIncluding(m, instr.Including)

	// When the outer query returns multiple rows and a singular join is
	// needed, the root table is re-addressed under a sub_ alias so the join
	// condition can name it unambiguously.
	rootRef := table
	aliased := false
	if plural && c.needsSingularJoin(including) {
		rootRef = "sub_" + table
		aliased = true
	}

	include, err := c.compileIncluding(m, rootRef, including)
	if err != nil {
		return "", nil, err
	}

	columns, err := c.compileSelecting(m, rootRef, instr, include)
	if err != nil {
		return "", nil, err
	}

	from := quoteIdent(table)
	if aliased && include.joining() {
		from += " as " + quoteIdent(rootRef)
	}

	sb := sq.Select().From(from)
	for _, column := range columns {
		sb = sb.Column(sq.Expr(column.sql, column.args...))
	}
	for _, join := range include.joins {
		sb = sb.JoinClause(join.sql, join.args...)
	}

	rootScope := fieldScope{model: m}
	if include.joining() {
		rootScope.alias = rootRef
	}

	if instr.With != nil {
		where, args, err := c.compileFilter(rootScope, instr.With, "with")
		if err != nil {
			return "", nil, err
		}
		sb = sb.Where(sq.Expr(where, args...))
	}

	sb, err = c.applyCursors(sb, rootScope, instr)
	if err != nil {
		return "", nil, err
	}

	ordering, err := c.compileOrderedBy(m, rootScope.alias, instr.OrderedBy, plural)
	if err != nil {
		return "", nil, err
	}
	if len(ordering) > 0 {
		sb = sb.OrderBy(ordering...)
	}

	limit, limited, err := instr.limit()
	if err != nil {
		return "", nil, err
	}
	switch {
	case !plural:
		sb = sb.Limit(1)
	case limited && nested:
		sb = sb.Limit(uint64(limit))
	case limited:
		// The surplus row is the pagination sentinel consumed by the caller.
		sb = sb.Limit(uint64(limit) + 1)
	}

	if !nested {
		sb = sb.PlaceholderFormat(c.dialect.PlaceholderFormat())
	}
	return sb.ToSql()
}

// compileNestedSelect compiles a sub-query symbol found inside a condition.
// The sub-select defaults to projecting the record id so it can stand on the
// right-hand side of a comparison.
func (c *compileContext) compileNestedSelect(sub map[string]any, instruction string) (string, []any, bool, error) {
	queryType, address, raw, err := splitQuery(sub)
	if err != nil {
		return "", nil, false, err
	}
	if queryType != "get" {
		return "", nil, false, errInvalidQuery("only `get` sub-queries can appear inside %q, got %q", instruction, queryType)
	}

	m, plural, err := c.catalog.ModelBySlug(address)
	if err != nil {
		return "", nil, false, err
	}

	expanded, err := c.expandPresets(m, raw)
	if err != nil {
		return "", nil, false, err
	}
	instr, err := decodeInstructions(expanded)
	if err != nil {
		return "", nil, false, err
	}
	if len(instr.Selecting) == 0 {
		instr.Selecting = []string{"id"}
	}

	sql, args, err := c.compileSelect(m, plural, instr, true)
	if err != nil {
		return "", nil, false, err
	}
	return sql, args, !plural, nil
}

// compileCount assembles the SELECT COUNT(*) statement of a `count` query.
func (c *compileContext) compileCount(m *Model, instr *instructions) (string, []any, error) {
	sb := sq.Select("COUNT(*)").From(quoteIdent(m.TableName()))

	scope := fieldScope{model: m}
	if instr.With != nil {
		where, args, err := c.compileFilter(scope, instr.With, "with")
		if err != nil {
			return "", nil, err
		}
		sb = sb.Where(sq.Expr(where, args...))
	}

	var err error
	sb, err = c.applyCursors(sb, scope, instr)
	if err != nil {
		return "", nil, err
	}

	return sb.PlaceholderFormat(c.dialect.PlaceholderFormat()).ToSql()
}

// compileSet assembles the UPDATE statement of a `set` query.
func (c *compileContext) compileSet(m *Model, instr *instructions) (string, []any, error) {
	if len(instr.To) == 0 {
		return "", nil, errInvalidInstruction("a `set` query requires a `to` instruction with the fields to update")
	}

	ub := sq.Update(quoteIdent(m.TableName()))

	keys := maps.Keys(instr.To)
	slices.Sort(keys)
	for _, path := range keys {
		selector, _, err := c.catalog.fieldSelector(m, path, "", "to")
		if err != nil {
			return "", nil, err
		}
		value, err := c.assignmentValue(m, instr.To[path])
		if err != nil {
			return "", nil, err
		}
		ub = ub.Set(selector, value)
	}
	ub = ub.Set(quoteIdent(metaUpdatedAt), encodeValue(c.now))

	if instr.With != nil {
		where, args, err := c.compileFilter(fieldScope{model: m}, instr.With, "with")
		if err != nil {
			return "", nil, err
		}
		ub = ub.Where(sq.Expr(where, args...))
	}

	return ub.PlaceholderFormat(c.dialect.PlaceholderFormat()).ToSql()
}

// assignmentValue prepares one `to` value for binding. Expression symbols
// and field references compile to SQL fragments; everything else binds
// through the normal encoding.
func (c *compileContext) assignmentValue(m *Model, value any) (any, error) {
	if kind, payload := asSymbol(value); kind == symbolExpressionKind {
		expr, ok := payload.(string)
		if !ok {
			return nil, errInvalidInstruction("an expression symbol in `to` must hold a string")
		}
		fragment, err := c.resolveFieldRefs(m, "", "to", expr)
		if err != nil {
			return nil, err
		}
		return sq.Expr("(" + fragment + ")"), nil
	}
	if s, ok := value.(string); ok && containsFieldRef(s) {
		fragment, err := c.resolveFieldRefs(m, "", "to", s)
		if err != nil {
			return nil, err
		}
		return sq.Expr(fragment), nil
	}
	if value == nil {
		return nil, nil
	}
	return encodeValue(value), nil
}

// compileAdd assembles the INSERT statement of an `add` query. The record
// id and meta timestamps are filled in when the caller does not supply them.
func (c *compileContext) compileAdd(m *Model, instr *instructions) (string, []any, error) {
	values := instr.To
	if len(values) == 0 {
		if with, ok := instr.With.(map[string]any); ok {
			values = with
		}
	}
	if len(values) == 0 {
		return "", nil, errInvalidInstruction("an `add` query requires a `to` instruction with the fields of the new record")
	}

	record := make(map[string]any, len(values)+3)
	for key, value := range values {
		record[key] = value
	}
	if _, ok := record["id"]; !ok {
		record["id"] = c.newID(m)
	}
	stamp := encodeValue(c.now)
	if _, ok := record[metaCreatedAt]; !ok {
		record[metaCreatedAt] = stamp
	}
	if _, ok := record[metaUpdatedAt]; !ok {
		record[metaUpdatedAt] = stamp
	}

	keys := maps.Keys(record)
	slices.Sort(keys)

	columns := make([]string, 0, len(keys))
	row := make([]any, 0, len(keys))
	for _, path := range keys {
		if _, _, err := c.catalog.fieldSelector(m, path, "", "to"); err != nil {
			return "", nil, err
		}
		columns = append(columns, quoteIdent(path))
		value := record[path]
		if value == nil {
			row = append(row, nil)
			continue
		}
		row = append(row, encodeValue(value))
	}

	ib := sq.Insert(quoteIdent(m.TableName())).Columns(columns...).Values(row...)
	return ib.PlaceholderFormat(c.dialect.PlaceholderFormat()).ToSql()
}

// compileRemove assembles the DELETE statement of a `remove` query.
func (c *compileContext) compileRemove(m *Model, instr *instructions) (string, []any, error) {
	db := sq.Delete(quoteIdent(m.TableName()))

	if instr.With != nil {
		where, args, err := c.compileFilter(fieldScope{model: m}, instr.With, "with")
		if err != nil {
			return "", nil, err
		}
		db = db.Where(sq.Expr(where, args...))
	}

	return db.PlaceholderFormat(c.dialect.PlaceholderFormat()).ToSql()
}

// applyCursors adds the `after`/`before` pagination bounds. The cursors move
// along the creation timestamp, consistent with the default descending order:
// after descends past the cursor, before ascends back over it.
func (c *compileContext) applyCursors(sb sq.SelectBuilder, scope fieldScope, instr *instructions) (sq.SelectBuilder, error) {
	if instr.After != nil && instr.Before != nil {
		return sb, errInvalidInstruction("the `after` and `before` instructions cannot be combined")
	}
	if instr.After != nil {
		sb = sb.Where(sq.Expr(qualify(scope.alias, metaCreatedAt)+" < ?", encodeValue(instr.After)))
	}
	if instr.Before != nil {
		sb = sb.Where(sq.Expr(qualify(scope.alias, metaCreatedAt)+" > ?", encodeValue(instr.Before)))
	}
	return sb, nil
}

// compileOrderedBy lowers the `orderedBy` instruction into ORDER BY terms.
// Plural reads carry the creation-timestamp ordering as their final term so
// paginated windows stay stable, unless `orderedBy` already names
// "ronin.createdAt", in which case that term is not appended again.
func (c *compileContext) compileOrderedBy(m *Model, alias string, orderedBy any, plural bool) ([]string, error) {
	var terms []string
	orderedByCreatedAt := false

	appendTerm := func(entry any, direction string) error {
		var selector string
		switch v := entry.(type) {
		case string:
			var err error
			selector, _, err = c.catalog.fieldSelector(m, v, alias, "orderedBy")
			if err != nil {
				return err
			}
			if v == metaCreatedAt {
				orderedByCreatedAt = true
			}
		default:
			if kind, payload := asSymbol(entry); kind == symbolExpressionKind {
				expr, ok := payload.(string)
				if !ok {
					return errInvalidInstruction("an expression symbol in `orderedBy` must hold a string")
				}
				fragment, err := c.resolveFieldRefs(m, alias, "orderedBy", expr)
				if err != nil {
					return err
				}
				selector = "(" + fragment + ")"
				break
			}
			return errInvalidInstruction("the `orderedBy` instruction cannot order by %T", entry)
		}
		terms = append(terms, selector+" "+direction)
		return nil
	}

	appendAll := func(entries any, direction string) error {
		switch v := entries.(type) {
		case nil:
			return nil
		case []any:
			for _, entry := range v {
				if err := appendTerm(entry, direction); err != nil {
					return err
				}
			}
			return nil
		case []string:
			for _, entry := range v {
				if err := appendTerm(entry, direction); err != nil {
					return err
				}
			}
			return nil
		default:
			return appendTerm(v, direction)
		}
	}

	switch v := orderedBy.(type) {
	case nil:
	case map[string]any:
		for key := range v {
			if key != "ascending" && key != "descending" {
				return nil, errInvalidInstruction("the `orderedBy` instruction does not recognize %q", key)
			}
		}
		if err := appendAll(v["ascending"], "ASC"); err != nil {
			return nil, err
		}
		if err := appendAll(v["descending"], "DESC"); err != nil {
			return nil, err
		}
	default:
		if err := appendAll(v, "ASC"); err != nil {
			return nil, err
		}
	}

	if plural && !orderedByCreatedAt {
		terms = append(terms, qualify(alias, metaCreatedAt)+" DESC")
	}
	return terms, nil
}

// mergeDefaultIncluding folds a model's default ephemeral fields into the
// query's `including`, with explicit query keys winning.
func mergeDefaultIncluding(m *Model, including map[string]any) map[string]any {
	if len(m.Including) == 0 {
		return including
	}
	merged := make(map[string]any, len(m.Including)+len(including))
	for key, value := range m.Including {
		merged[key] = value
	}
	for key, value := range including {
		merged[key] = value
	}
	return merged
}

// needsSingularJoin pre-scans the including object for sub-queries that
// address a singular slug. Resolution errors are ignored here; the including
// builder reports them with full context.
func (c *compileContext) needsSingularJoin(including map[string]any) bool {
	for _, leaf := range flattenIncluding("", including) {
		kind, payload := asSymbol(leaf.value)
		if kind != symbolQueryKind {
			continue
		}
		sub, ok := payload.(map[string]any)
		if !ok {
			continue
		}
		_, address, _, err := splitQuery(sub)
		if err != nil {
			continue
		}
		if m, plural, err := c.catalog.ModelBySlug(address); err == nil && !plural && m != nil {
			return true
		}
	}
	return false
}

// Package compiler translates declarative RONIN queries into SQLite
// statements with positional parameters.
// This file implements the including builder: `including` sub-queries become
// LEFT or CROSS JOIN fragments, with sub-select wrapping where SQLite cannot
// express an instruction inline in a join.
package compiler

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// joinClause is one rendered JOIN fragment together with its bound values.
type joinClause struct {
	sql  string
	args []any
}

// joinedModel records a related model joined into the statement, under the
// alias the join assigned to it.
type joinedModel struct {
	alias string
	model *Model
}

// includeState is the outcome of lowering the `including` instruction:
// the join fragments, the ephemeral select columns, and the joined models
// the selecting builder may need to expand.
type includeState struct {
	joins   []joinClause
	columns []ephemeralColumn
	joined  []joinedModel
}

// ephemeralColumn is a select-list entry materialized by `including` that is
// not stored in the underlying table.
type ephemeralColumn struct {
	sql  string
	args []any
}

// joining reports whether any join is in play, which drives root-column
// aliasing in the selecting builder.
func (s *includeState) joining() bool {
	return len(s.joined) > 0
}

// compileIncluding lowers every leaf of the `including` instruction.
// Sub-query symbols become joins; expression symbols and literals become
// aliased ephemeral columns. Nested objects flatten with dotted keys.
//
// rootModel/rootRef name the host query's model and the table reference its
// columns are qualified with inside ON clauses.
func (c *compileContext) compileIncluding(rootModel *Model, rootRef string, including map[string]any) (*includeState, error) {
	state := &includeState{}
	if len(including) == 0 {
		return state, nil
	}

	leaves := flattenIncluding("", including)

	// Once any leaf joins another table, root columns inside expression
	// leaves must be qualified to stay unambiguous.
	exprAlias := ""
	for _, leaf := range leaves {
		if kind, _ := asSymbol(leaf.value); kind == symbolQueryKind {
			exprAlias = rootRef
			break
		}
	}

	for _, leaf := range leaves {
		kind, payload := asSymbol(leaf.value)
		switch kind {
		case symbolQueryKind:
			if err := c.compileJoin(state, rootModel, rootRef, leaf.key, payload); err != nil {
				return nil, err
			}

		case symbolExpressionKind:
			expr, ok := payload.(string)
			if !ok {
				return nil, errInvalidInstruction("an expression included as %q must hold a string", leaf.key)
			}
			fragment, err := c.resolveFieldRefs(rootModel, exprAlias, "including", expr)
			if err != nil {
				return nil, err
			}
			state.columns = append(state.columns, ephemeralColumn{
				sql: "(" + fragment + ") as " + quoteIdent(leaf.key),
			})

		default:
			buf := &paramBuffer{}
			placeholder := buf.bind(leaf.value)
			state.columns = append(state.columns, ephemeralColumn{
				sql:  placeholder + " as " + quoteIdent(leaf.key),
				args: buf.values,
			})
		}
	}

	return state, nil
}

// compileJoin lowers one sub-query leaf into a JOIN fragment.
func (c *compileContext) compileJoin(state *includeState, rootModel *Model, rootRef, key string, payload any) error {
	sub, ok := payload.(map[string]any)
	if !ok {
		return errInvalidQuery("the sub-query included as %q must hold a query object", key)
	}

	queryType, address, raw, err := splitQuery(sub)
	if err != nil {
		return err
	}
	if queryType != "get" {
		return errInvalidQuery("only `get` sub-queries can be included, got %q", queryType)
	}

	related, plural, err := c.catalog.ModelBySlug(address)
	if err != nil {
		return err
	}
	single := !plural

	expanded, err := c.expandPresets(related, raw)
	if err != nil {
		return err
	}
	instr, err := decodeInstructions(expanded)
	if err != nil {
		return err
	}

	// Without a filter the join degenerates to a cartesian product; a
	// singular address then pins the product to one related row.
	crossJoin := instr.With == nil
	if crossJoin && single {
		instr.LimitedTo = int64(1)
	}

	limit, limited, err := instr.limit()
	if err != nil {
		return err
	}

	alias := joinAlias(key)
	tableRef := quoteIdent(related.TableName())
	var tableArgs []any

	// LIMIT and ORDER BY cannot ride inline in a join, so the sub-query is
	// compiled on its own and substituted as a parenthesized sub-select.
	// Its filter stays outside, in the ON clause.
	if limited || instr.OrderedBy != nil {
		inner := &instructions{
			Selecting: instr.Selecting,
			OrderedBy: instr.OrderedBy,
		}
		if limited {
			inner.LimitedTo = limit
		}
		sql, args, err := c.compileSelect(related, plural, inner, true)
		if err != nil {
			return err
		}
		tableRef = "(" + sql + ")"
		tableArgs = args
	}

	if crossJoin {
		state.joins = append(state.joins, joinClause{
			sql:  "CROSS JOIN " + tableRef + " as " + quoteIdent(alias),
			args: tableArgs,
		})
	} else {
		on, onArgs, err := c.compileFilter(fieldScope{
			model:       related,
			alias:       alias,
			parentModel: rootModel,
			parentAlias: rootRef,
		}, instr.With, "including")
		if err != nil {
			return err
		}
		state.joins = append(state.joins, joinClause{
			sql:  "LEFT JOIN " + tableRef + " as " + quoteIdent(alias) + " ON " + on,
			args: append(tableArgs, onArgs...),
		})
	}

	state.joined = append(state.joined, joinedModel{
		alias: alias,
		model: related,
	})
	return nil
}

type includeLeaf struct {
	key   string
	value any
}

// flattenIncluding walks a (possibly nested) including object and returns
// its leaves with dotted keys, in sorted order. Symbols are leaves; plain
// objects recurse.
func flattenIncluding(prefix string, value map[string]any) []includeLeaf {
	keys := maps.Keys(value)
	slices.Sort(keys)

	var leaves []includeLeaf
	for _, key := range keys {
		flat := key
		if prefix != "" {
			flat = prefix + "." + key
		}
		entry := value[key]

		if nested, ok := entry.(map[string]any); ok {
			if kind, _ := asSymbol(nested); kind == symbolNone {
				leaves = append(leaves, flattenIncluding(flat, nested)...)
				continue
			}
		}
		leaves = append(leaves, includeLeaf{key: flat, value: entry})
	}
	return leaves
}

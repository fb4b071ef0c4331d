// Package compiler translates declarative RONIN queries into SQLite
// statements with positional parameters.
// This file implements the selecting builder: the column list of a SELECT,
// including ephemeral columns drawn from `including`.
package compiler

// selectColumn is one select-list entry with its bound values, ready to be
// attached to the statement assembler.
type selectColumn struct {
	sql  string
	args []any
}

// compileSelecting compiles the column list for a SELECT. With an explicit
// `selecting` the resolved field selectors are emitted; otherwise every
// column is selected. Under a join, root columns are qualified with the root
// table reference; when column expansion is enabled, duplicate-named columns
// of joined models are additionally re-selected under their join alias so
// the row can be split back apart afterwards.
func (c *compileContext) compileSelecting(m *Model, rootRef string, instr *instructions, include *includeState) ([]selectColumn, error) {
	joining := include.joining()

	rootAlias := ""
	if joining {
		rootAlias = rootRef
	}

	var columns []selectColumn
	if len(instr.Selecting) > 0 {
		for _, path := range instr.Selecting {
			selector, _, err := c.catalog.fieldSelector(m, path, rootAlias, "selecting")
			if err != nil {
				return nil, err
			}
			columns = append(columns, selectColumn{sql: selector})
		}
	} else if joining {
		columns = append(columns, selectColumn{sql: quoteIdent(rootRef) + ".*"})
	} else {
		columns = append(columns, selectColumn{sql: "*"})
	}

	for _, ephemeral := range include.columns {
		columns = append(columns, selectColumn{sql: ephemeral.sql, args: ephemeral.args})
	}

	if joining && c.expandColumns {
		columns = append(columns, expandDuplicateColumns(m, include)...)
	}

	return columns, nil
}

// expandDuplicateColumns aliases every field of a joined model whose slug
// collides with a field of the root model, so both survive in the result
// row: "<alias>"."<slug>" as "<alias>.<slug>".
func expandDuplicateColumns(root *Model, include *includeState) []selectColumn {
	var columns []selectColumn
	for _, join := range include.joined {
		for _, f := range join.model.Fields {
			if _, collides := root.FieldBySlug(f.Slug); !collides {
				continue
			}
			columns = append(columns, selectColumn{
				sql: qualify(join.alias, f.Slug) + " as " + quoteIdent(join.alias+"."+f.Slug),
			})
		}
	}
	return columns
}

// Package compiler translates declarative RONIN queries into SQLite
// statements with positional parameters.
// This file implements the transaction surface: a compiled batch together
// with the hydration of raw result rows back into typed results.
package compiler

import "github.com/spf13/cast"

// Result is the hydrated outcome of one query. The concrete type depends on
// the query: singular reads yield SingleRecordResult, plural reads yield
// MultipleRecordResult, and counts yield AmountResult.
type Result any

// SingleRecordResult carries the record of a singular read, or nil when no
// record matched.
type SingleRecordResult struct {
	Record map[string]any `json:"record"`
}

// MultipleRecordResult carries the records of a plural read. MoreAfter is
// set when the statement's surplus pagination row was present, meaning more
// records exist past the requested window.
type MultipleRecordResult struct {
	Records   []map[string]any `json:"records"`
	MoreAfter bool             `json:"moreAfter,omitempty"`
}

// AmountResult carries the row count of a `count` query.
type AmountResult struct {
	Amount int64 `json:"amount"`
}

// TransactionOptions configures NewTransaction.
type TransactionOptions struct {
	// Models is the catalog the queries are compiled against.
	Models []Model

	// CompileOptions forward to the compiler (clock, id factory).
	CompileOptions []Option
}

// Transaction eagerly compiles a batch of queries and retains enough shape
// information to hydrate the driver's raw rows into results afterwards.
//
// Usage example:
//
//	tx, err := compiler.NewTransaction(queries, compiler.TransactionOptions{Models: models})
//	rows := driver.Run(tx.Statements)         // outside the compiler
//	results, err := tx.PrepareResults(rows)
type Transaction struct {
	// Statements holds one compiled statement per query, in batch order.
	Statements []Statement

	metas []queryMeta
}

// NewTransaction compiles the batch immediately; a compilation failure in
// any query fails the whole transaction.
func NewTransaction(queries []Query, opts TransactionOptions) (*Transaction, error) {
	catalog, err := NewCatalog(opts.Models)
	if err != nil {
		return nil, err
	}

	c := newCompileContext(catalog, opts.CompileOptions)

	tx := &Transaction{
		Statements: make([]Statement, 0, len(queries)),
		metas:      make([]queryMeta, 0, len(queries)),
	}
	for _, query := range queries {
		statement, meta, err := c.compileQuery(query)
		if err != nil {
			return nil, err
		}
		tx.Statements = append(tx.Statements, statement)
		tx.metas = append(tx.metas, meta)
	}
	return tx, nil
}

// PrepareResults hydrates the raw rows returned by the driver, one row set
// per statement, into typed results. Plural reads consume the surplus
// pagination row: when a statement asked for N+1 rows and got them, the
// window is trimmed back to N and MoreAfter is set.
func (t *Transaction) PrepareResults(rowSets [][]map[string]any) ([]Result, error) {
	if len(rowSets) != len(t.Statements) {
		return nil, errInvalidQuery("expected %d row sets, got %d", len(t.Statements), len(rowSets))
	}

	results := make([]Result, 0, len(rowSets))
	for i, rows := range rowSets {
		meta := t.metas[i]

		if meta.queryType == "count" {
			var amount int64
			if len(rows) > 0 {
				for _, value := range rows[0] {
					amount = cast.ToInt64(value)
				}
			}
			results = append(results, AmountResult{Amount: amount})
			continue
		}

		if !meta.plural {
			single := SingleRecordResult{}
			if len(rows) > 0 {
				single.Record = rows[0]
			}
			results = append(results, single)
			continue
		}

		multiple := MultipleRecordResult{Records: rows}
		if meta.limit > 0 && int64(len(rows)) > meta.limit {
			multiple.Records = rows[:meta.limit]
			multiple.MoreAfter = true
		}
		results = append(results, multiple)
	}
	return results, nil
}

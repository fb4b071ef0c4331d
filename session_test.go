package compiler_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roninql/compiler"
)

func TestSessionRun(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	tx, err := compiler.NewTransaction([]compiler.Query{
		{"get": map[string]any{"account": map[string]any{
			"with":      map[string]any{"email": "a@b"},
			"selecting": []any{"id", "email"},
		}}},
		{"count": map[string]any{"accounts": nil}},
	}, compiler.TransactionOptions{Models: testModels()})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT "id", "email" FROM "accounts" WHERE ("email" = ?1) LIMIT 1`).
		WithArgs("a@b").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).AddRow("acc_1", "a@b"))
	mock.ExpectQuery(`SELECT COUNT(*) FROM "accounts"`).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(int64(3)))
	mock.ExpectCommit()

	session := compiler.NewSession(db, compiler.WithLogger(slog.Default()))
	results, err := session.Run(context.Background(), tx)
	require.NoError(t, err)
	require.Len(t, results, 2)

	single := results[0].(compiler.SingleRecordResult)
	assert.Equal(t, "acc_1", single.Record["id"])

	amount := results[1].(compiler.AmountResult)
	assert.Equal(t, int64(3), amount.Amount)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRunRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	tx, err := compiler.NewTransaction([]compiler.Query{
		{"get": map[string]any{"account": nil}},
	}, compiler.TransactionOptions{Models: testModels()})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT * FROM "accounts" LIMIT 1`).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	session := compiler.NewSession(db)
	_, err = session.Run(context.Background(), tx)
	require.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

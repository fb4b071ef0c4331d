// Command roninc compiles declarative queries against a model catalog and
// prints the resulting SQL statements, or executes them against an SQLite
// database.
//
// Usage:
//
//	roninc -models models.json -queries queries.json
//	roninc -models models.json -queries queries.json -db app.db
//	cat queries.json | roninc -models models.json
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roninql/compiler"
)

func main() {
	modelsPath := flag.String("models", "", "path to the model catalog (JSON)")
	queriesPath := flag.String("queries", "", "path to the queries (JSON); stdin when omitted")
	dbPath := flag.String("db", "", "SQLite database to execute against; print only when omitted")
	verbose := flag.Bool("v", false, "log every executed statement")
	flag.Parse()

	if *modelsPath == "" {
		log.Fatal("roninc: -models is required")
	}

	models, err := loadModels(*modelsPath)
	if err != nil {
		log.Fatalf("roninc: %v", err)
	}
	queries, err := loadQueries(*queriesPath)
	if err != nil {
		log.Fatalf("roninc: %v", err)
	}

	tx, err := compiler.NewTransaction(queries, compiler.TransactionOptions{Models: models})
	if err != nil {
		log.Fatalf("roninc: %v", err)
	}

	if *dbPath == "" {
		printStatements(tx.Statements)
		return
	}

	db, err := sql.Open("sqlite3", *dbPath)
	if err != nil {
		log.Fatalf("roninc: failed to open database: %v", err)
	}
	defer db.Close()

	opts := []compiler.SessionOption{}
	if *verbose {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		opts = append(opts, compiler.WithLogger(logger), compiler.WithQueryLogging(true))
	}

	session := compiler.NewSession(db, opts...)
	results, err := session.Run(context.Background(), tx)
	if err != nil {
		log.Fatalf("roninc: %v", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(results); err != nil {
		log.Fatalf("roninc: %v", err)
	}
}

func loadModels(path string) ([]compiler.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read models: %w", err)
	}
	var models []compiler.Model
	if err := json.Unmarshal(data, &models); err != nil {
		return nil, fmt.Errorf("failed to parse models: %w", err)
	}
	return models, nil
}

func loadQueries(path string) ([]compiler.Query, error) {
	var data []byte
	var err error
	if path == "" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read queries: %w", err)
	}

	var queries []compiler.Query
	if err := json.Unmarshal(data, &queries); err != nil {
		// A single query object is accepted as a batch of one.
		var single compiler.Query
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("failed to parse queries: %w", err)
		}
		queries = []compiler.Query{single}
	}
	return queries, nil
}

func printStatements(statements []compiler.Statement) {
	for _, statement := range statements {
		fmt.Println(statement.SQL)
		if len(statement.Params) > 0 {
			params, _ := json.Marshal(statement.Params)
			fmt.Printf("-- params: %s\n", params)
		}
	}
}

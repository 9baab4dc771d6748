package duckdb

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed views.sql
var viewsSQL string

// ViewStatements returns the embedded analytical view definitions, one
// statement per element.
func ViewStatements() []string {
	return splitStatements(viewsSQL)
}

// EnsureViews recreates the analytical views in the database file at path.
// It opens the file read-write, so no read-only engine may hold it open.
func EnsureViews(ctx context.Context, path string) error {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("open duckdb %q: %w", path, err)
	}
	defer func() { _ = db.Close() }()
	return applyViews(ctx, db)
}

func applyViews(ctx context.Context, db *sql.DB) error {
	for index, statement := range ViewStatements() {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("apply view statement %d: %w", index+1, err)
		}
	}
	return nil
}

// ImportParquet creates one table per entry from local parquet files and then
// applies the views. Existing tables with the same names are replaced.
func ImportParquet(ctx context.Context, path string, tables map[string]string) error {
	if len(tables) == 0 {
		return fmt.Errorf("no parquet tables to import")
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("open duckdb %q: %w", path, err)
	}
	defer func() { _ = db.Close() }()

	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		statement := fmt.Sprintf(`CREATE OR REPLACE TABLE %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(name), quoteString(tables[name]))
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("import table %q: %w", name, err)
		}
	}
	return applyViews(ctx, db)
}

func splitStatements(script string) []string {
	parts := strings.Split(script, ";")
	statements := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		statements = append(statements, trimmed)
	}
	return statements
}

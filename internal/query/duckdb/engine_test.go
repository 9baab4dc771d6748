package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/salesdesk/salesdesk/internal/query"
)

var fixtureSchema = []string{
	`CREATE TABLE accounts (account_id INTEGER, account VARCHAR, sector VARCHAR, revenue DOUBLE, employees INTEGER)`,
	`CREATE TABLE sales_teams (sales_agent VARCHAR, manager VARCHAR, regional_office VARCHAR)`,
	`CREATE TABLE products (product VARCHAR, series VARCHAR, sales_price INTEGER)`,
	`CREATE TABLE sales_pipeline (opportunity_id VARCHAR, sales_agent VARCHAR, product VARCHAR, account VARCHAR, account_id INTEGER, deal_stage VARCHAR, engage_date VARCHAR, close_date VARCHAR, close_value DOUBLE)`,
	`CREATE TABLE interactions (interaction_id INTEGER, account_id INTEGER, activity_type VARCHAR, status VARCHAR, "timestamp" VARCHAR, comment VARCHAR)`,
	`INSERT INTO accounts VALUES (1, 'Acme Corporation', 'technolgy', 1100.04, 2822), (2, 'Betasoloin', 'medical', 251.41, 495), (3, 'Cancity', 'retail', 718.62, 2448)`,
	`INSERT INTO sales_teams VALUES ('Darcel Schlecht', 'Summer Sewald', 'West'), ('Anna Snelling', 'Dustin Brinkmann', 'Central')`,
	`INSERT INTO products VALUES ('GTX Pro', 'GTX', 4821), ('MG Special', 'MG', 55)`,
	`INSERT INTO sales_pipeline VALUES
		('OPP1', 'Darcel Schlecht', 'GTX Pro', 'Acme Corporation', 1, 'Engaging', strftime(CURRENT_DATE - 5, '%Y-%m-%d'), NULL, NULL),
		('OPP2', 'Darcel Schlecht', 'MG Special', 'Betasoloin', 2, 'Engaging', strftime(CURRENT_DATE - 60, '%Y-%m-%d'), NULL, NULL),
		('OPP3', 'Darcel Schlecht', 'GTX Pro', 'Cancity', 3, 'Won', strftime(CURRENT_DATE - 40, '%Y-%m-%d'), strftime(CURRENT_DATE - 10, '%Y-%m-%d'), 5100),
		('OPP4', 'Anna Snelling', 'MG Special', 'Cancity', 3, 'Engaging', strftime(CURRENT_DATE - 2, '%Y-%m-%d'), NULL, NULL)`,
	`INSERT INTO interactions VALUES
		(1, 1, 'Email', 'Completed', strftime(CURRENT_DATE - 9, '%Y-%m-%d 10:00:00'), 'intro'),
		(2, 1, 'Call', 'Scheduled', strftime(CURRENT_DATE - 1, '%Y-%m-%d 09:30:00'), 'follow up'),
		(3, 3, 'Demo', 'Completed', strftime(CURRENT_DATE - 4, '%Y-%m-%d 15:00:00'), 'demo')`,
}

func newFixtureDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sales.duckdb")
	db, err := sql.Open("duckdb", path)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	for _, statement := range fixtureSchema {
		if _, err := db.Exec(statement); err != nil {
			t.Fatalf("fixture statement failed: %v\n%s", err, statement)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := EnsureViews(context.Background(), path); err != nil {
		t.Fatalf("EnsureViews() error = %v", err)
	}
	return path
}

func openFixture(t *testing.T) *Engine {
	t.Helper()
	engine, err := Open(context.Background(), Config{Path: newFixtureDatabase(t)})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func TestExecuteBindsParameters(t *testing.T) {
	engine := openFixture(t)

	result, err := engine.Execute(context.Background(), query.Request{
		SQL:  "SELECT account FROM sales_pipeline WHERE LOWER(sales_agent) = LOWER($1) ORDER BY account;",
		Args: []any{"darcel schlecht"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Len() != 3 {
		t.Fatalf("rows = %d", result.Len())
	}
	if result.Rows[0][0] != "Acme Corporation" {
		t.Fatalf("first account = %#v", result.Rows[0][0])
	}
	if len(result.Columns) != 1 || result.Columns[0] != "account" {
		t.Fatalf("columns = %#v", result.Columns)
	}
}

func TestExecuteRowLimitCountsOmittedRows(t *testing.T) {
	engine := openFixture(t)

	result, err := engine.Execute(context.Background(), query.Request{
		SQL:      "SELECT opportunity_id FROM sales_pipeline ORDER BY opportunity_id",
		RowLimit: 2,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Len() != 2 || result.Omitted != 2 {
		t.Fatalf("rows = %d omitted = %d", result.Len(), result.Omitted)
	}
}

func TestExecuteRejectsWritesBeforeTouchingDatabase(t *testing.T) {
	engine := NewEngine(nil, 0)

	_, err := engine.Execute(context.Background(), query.Request{SQL: "DELETE FROM accounts"})
	if !errors.Is(err, query.ErrNotReadOnly) {
		t.Fatalf("Execute() error = %v, want ErrNotReadOnly", err)
	}
}

func TestExecuteRejectsCopyHiddenInEscapeString(t *testing.T) {
	engine := openFixture(t)
	target := filepath.Join(t.TempDir(), "out.csv")
	sqlText := `SELECT E'\' , 'x; COPY (SELECT 42 AS v) TO '` + target + `'; --'`

	_, err := engine.Execute(context.Background(), query.Request{SQL: sqlText})
	if !errors.Is(err, query.ErrNotReadOnly) {
		t.Fatalf("Execute() error = %v, want ErrNotReadOnly", err)
	}
	if _, statErr := os.Stat(target); !os.IsNotExist(statErr) {
		t.Fatalf("COPY target exists, stat error = %v", statErr)
	}
}

func TestExecuteStatementErrorIsNotUnavailable(t *testing.T) {
	engine := openFixture(t)

	_, err := engine.Execute(context.Background(), query.Request{SQL: "SELECT missing_column FROM accounts"})
	if err == nil {
		t.Fatal("expected binder error")
	}
	if errors.Is(err, query.ErrUnavailable) {
		t.Fatalf("statement error classified as unavailable: %v", err)
	}
}

func TestExecuteOnClosedEngineIsUnavailable(t *testing.T) {
	var engine *Engine
	_, err := engine.Execute(context.Background(), query.Request{SQL: "SELECT 1"})
	if !errors.Is(err, query.ErrUnavailable) {
		t.Fatalf("Execute() error = %v, want ErrUnavailable", err)
	}
}

func TestOpenMissingFileIsUnavailable(t *testing.T) {
	_, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "missing.duckdb")})
	if !errors.Is(err, query.ErrUnavailable) {
		t.Fatalf("Open() error = %v, want ErrUnavailable", err)
	}
}

func TestOpenWorkViewKeepsRecentEngagingDeals(t *testing.T) {
	engine := openFixture(t)

	result, err := engine.Execute(context.Background(), query.Request{
		SQL:  "SELECT account_name_from_pipeline, activity_type, status_lc FROM v_open_work WHERE LOWER(sales_agent) = LOWER($1)",
		Args: []any{"Darcel Schlecht"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Len() != 1 {
		t.Fatalf("rows = %d, want only the recent Engaging deal", result.Len())
	}
	row := result.Rows[0]
	if row[0] != "Acme Corporation" || row[1] != "Call" || row[2] != "scheduled" {
		t.Fatalf("row = %#v", row)
	}
}

func TestLastTouchViewUsesLatestInteraction(t *testing.T) {
	engine := openFixture(t)

	result, err := engine.Execute(context.Background(), query.Request{
		SQL: "SELECT account_id, last_touch = CURRENT_DATE - 1 AS is_yesterday FROM v_last_touch WHERE account_id = 1",
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Len() != 1 || result.Rows[0][1] != true {
		t.Fatalf("rows = %#v", result.Rows)
	}
}

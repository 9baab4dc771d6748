package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/salesdesk/salesdesk/internal/query"
)

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), DBConfig{})
	if err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestExecuteRunsInsideRolledBackTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT account, close_value FROM sales_pipeline WHERE LOWER\(sales_agent\)=LOWER\(\$1\)`).
		WithArgs("Darcel Schlecht").
		WillReturnRows(sqlmock.NewRows([]string{"account", "close_value"}).
			AddRow([]byte("Acme Corporation"), 5100.0).
			AddRow([]byte("Cancity"), nil))
	mock.ExpectRollback()

	engine := NewEngine(db, 0)
	result, err := engine.Execute(context.Background(), query.Request{
		SQL:  "SELECT account, close_value FROM sales_pipeline WHERE LOWER(sales_agent)=LOWER($1);",
		Args: []any{"Darcel Schlecht"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Len() != 2 {
		t.Fatalf("rows = %d", result.Len())
	}
	if result.Rows[0][0] != "Acme Corporation" {
		t.Fatalf("bytes were not normalized: %#v", result.Rows[0][0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestExecuteRejectsWritesWithoutQuerying(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	engine := NewEngine(db, 0)
	_, err = engine.Execute(context.Background(), query.Request{SQL: "UPDATE sales_pipeline SET deal_stage = 'Won'"})
	if !errors.Is(err, query.ErrNotReadOnly) {
		t.Fatalf("Execute() error = %v, want ErrNotReadOnly", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected database calls: %v", err)
	}
}

func TestExecuteServerErrorStaysRepairable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT missing FROM accounts`).
		WillReturnError(&pgconn.PgError{Code: "42703", Message: `column "missing" does not exist`})
	mock.ExpectRollback()

	engine := NewEngine(db, 0)
	_, err = engine.Execute(context.Background(), query.Request{SQL: "SELECT missing FROM accounts"})
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, query.ErrUnavailable) {
		t.Fatalf("server error classified as unavailable: %v", err)
	}
}

func TestClassifyBadConnectionIsUnavailable(t *testing.T) {
	err := classify(fmt.Errorf("begin read-only transaction: %w", driver.ErrBadConn))
	if !errors.Is(err, query.ErrUnavailable) {
		t.Fatalf("classify() = %v, want ErrUnavailable", err)
	}
}

func TestClassifyKeepsContextErrors(t *testing.T) {
	err := classify(fmt.Errorf("execute query: %w", context.Canceled))
	if errors.Is(err, query.ErrUnavailable) || !errors.Is(err, context.Canceled) {
		t.Fatalf("classify() = %v", err)
	}
}

func TestClassifyConnectionExceptionCode(t *testing.T) {
	err := classify(&pgconn.PgError{Code: "08006", Message: "connection failure"})
	if !errors.Is(err, query.ErrUnavailable) {
		t.Fatalf("classify() = %v, want ErrUnavailable", err)
	}
}

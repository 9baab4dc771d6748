package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/salesdesk/salesdesk/internal/query"
)

type Config struct {
	Path         string
	MaxOpenConns int
	QueryTimeout time.Duration
}

// Engine executes read-only statements against a DuckDB database file.
type Engine struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// Open opens path in read-only access mode and verifies it can be queried.
func Open(ctx context.Context, cfg Config) (*Engine, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("duckdb path is required")
	}
	db, err := sql.Open("duckdb", readOnlyDSN(cfg.Path))
	if err != nil {
		return nil, query.Unavailable(fmt.Errorf("open duckdb %q: %w", cfg.Path, err))
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, query.Unavailable(fmt.Errorf("ping duckdb %q: %w", cfg.Path, err))
	}
	return &Engine{db: db, queryTimeout: cfg.QueryTimeout}, nil
}

// NewEngine wraps an already opened handle.
func NewEngine(db *sql.DB, queryTimeout time.Duration) *Engine {
	return &Engine{db: db, queryTimeout: queryTimeout}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	if err := query.CheckReadOnly(request.SQL); err != nil {
		return query.Result{}, err
	}
	if e == nil || e.db == nil {
		return query.Result{}, query.Unavailable(errors.New("duckdb engine is not open"))
	}

	start := time.Now()
	if e.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.queryTimeout)
		defer cancel()
	}

	rows, err := e.db.QueryContext(ctx, query.TrimStatement(request.SQL), request.Args...)
	if err != nil {
		if query.IsConnectionError(err) {
			return query.Result{}, query.Unavailable(fmt.Errorf("execute query: %w", err))
		}
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result, err := query.ScanRows(rows, request.RowLimit)
	if err != nil {
		return query.Result{}, err
	}
	result.Duration = time.Since(start)
	return result, nil
}

func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.db == nil {
		return query.Unavailable(errors.New("duckdb engine is not open"))
	}
	if err := e.db.PingContext(ctx); err != nil {
		return query.Unavailable(err)
	}
	return nil
}

func (e *Engine) Dialect() query.Dialect {
	return query.DialectDuckDB
}

func (e *Engine) Close() error {
	if e == nil || e.db == nil {
		return nil
	}
	return e.db.Close()
}

func readOnlyDSN(path string) string {
	if strings.Contains(path, "?") {
		return path + "&access_mode=READ_ONLY"
	}
	return path + "?access_mode=READ_ONLY"
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/salesdesk/salesdesk/internal/query"
)

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

// Engine runs every statement inside a read-only transaction that is
// always rolled back.
type Engine struct {
	db           *sql.DB
	queryTimeout time.Duration
}

func Open(ctx context.Context, cfg DBConfig) (*Engine, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, query.Unavailable(fmt.Errorf("open postgres: %w", err))
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, query.Unavailable(fmt.Errorf("ping postgres: %w", err))
	}

	return NewEngine(db, cfg.QueryTimeout), nil
}

func NewEngine(db *sql.DB, queryTimeout time.Duration) *Engine {
	return &Engine{db: db, queryTimeout: queryTimeout}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	if err := query.CheckReadOnly(request.SQL); err != nil {
		return query.Result{}, err
	}
	if e == nil || e.db == nil {
		return query.Result{}, query.Unavailable(errors.New("postgres engine is not open"))
	}

	start := time.Now()
	if e.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.queryTimeout)
		defer cancel()
	}

	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return query.Result{}, classify(fmt.Errorf("begin read-only transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, query.TrimStatement(request.SQL), request.Args...)
	if err != nil {
		return query.Result{}, classify(fmt.Errorf("execute query: %w", err))
	}
	result, err := query.ScanRows(rows, request.RowLimit)
	_ = rows.Close()
	if err != nil {
		return query.Result{}, classify(err)
	}
	result.Duration = time.Since(start)
	return result, nil
}

func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.db == nil {
		return query.Unavailable(errors.New("postgres engine is not open"))
	}
	if err := e.db.PingContext(ctx); err != nil {
		return query.Unavailable(err)
	}
	return nil
}

func (e *Engine) Dialect() query.Dialect {
	return query.DialectPostgres
}

func (e *Engine) Close() error {
	if e == nil || e.db == nil {
		return nil
	}
	return e.db.Close()
}

// classify keeps server-side statement errors repairable and marks
// connection level failures as unavailable.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 is connection exception, 57P is operator intervention.
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P") {
			return query.Unavailable(err)
		}
		return err
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || query.IsConnectionError(err) {
		return query.Unavailable(err)
	}
	return err
}

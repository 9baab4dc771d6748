package query

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"
)

var (
	// ErrUnavailable marks failures to reach the storage engine at all, as
	// opposed to a statement the engine rejected.
	ErrUnavailable = errors.New("query engine unavailable")
	ErrNotReadOnly = errors.New("statement is not read-only")
)

// Request is one read-only statement. Args bind to $1..$n placeholders.
type Request struct {
	SQL      string
	Args     []any
	RowLimit int
}

type Result struct {
	Columns  []string
	Rows     [][]any
	Omitted  int
	Duration time.Duration
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

// Dialect names the SQL flavour an engine speaks.
type Dialect string

const (
	DialectDuckDB   Dialect = "duckdb"
	DialectPostgres Dialect = "postgres"
)

// DialectOf reports the dialect of engine, assuming DuckDB for engines that
// do not say.
func DialectOf(engine Engine) Dialect {
	if typed, ok := engine.(interface{ Dialect() Dialect }); ok {
		return typed.Dialect()
	}
	return DialectDuckDB
}

func (r Result) Len() int {
	return len(r.Rows)
}

func (r Result) Empty() bool {
	return len(r.Rows) == 0
}

// Truncate keeps at most n rows and adds the dropped rows to Omitted.
func (r Result) Truncate(n int) Result {
	if n <= 0 || len(r.Rows) <= n {
		return r
	}
	out := r
	out.Rows = r.Rows[:n]
	out.Omitted = r.Omitted + len(r.Rows) - n
	return out
}

// Column returns the values of the named column, or nil when it is absent.
func (r Result) Column(name string) []any {
	index := -1
	for i, column := range r.Columns {
		if column == name {
			index = i
			break
		}
	}
	if index < 0 {
		return nil
	}
	values := make([]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		if index < len(row) {
			values = append(values, row[index])
		}
	}
	return values
}

// Unavailable wraps err so that errors.Is(err, ErrUnavailable) holds.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// IsConnectionError reports failures of the connection rather than of the
// statement.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/salesdesk/salesdesk/internal/completion"
	"github.com/salesdesk/salesdesk/internal/observability"
	"github.com/salesdesk/salesdesk/internal/query"
)

var (
	ErrRepairExhausted = errors.New("sql repair attempts exhausted")
	errEmptySQL        = errors.New("model returned empty SQL")
)

// SchemaSource provides the text inserted into generation prompts.
type SchemaSource interface {
	Describe(ctx context.Context) (string, error)
	BusinessContext() string
}

type Attempt struct {
	Index int
	SQL   string
	Err   error
}

type Outcome struct {
	Result   query.Result
	SQL      string
	Attempts []Attempt
}

// RepairExhaustedError is returned when every attempt failed.
type RepairExhaustedError struct {
	Attempts []Attempt
}

func (e *RepairExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrRepairExhausted, len(e.Attempts), e.LastError())
}

func (e *RepairExhaustedError) Unwrap() error {
	return ErrRepairExhausted
}

func (e *RepairExhaustedError) LastError() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

func (e *RepairExhaustedError) LastSQL() string {
	if len(e.Attempts) == 0 {
		return ""
	}
	return e.Attempts[len(e.Attempts)-1].SQL
}

type Config struct {
	Temperature float64
	RowLimit    int
}

type Generator struct {
	client completion.Client
	engine query.Engine
	schema SchemaSource
	config Config
	logger *slog.Logger
}

func NewGenerator(client completion.Client, engine query.Engine, schema SchemaSource, cfg Config, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{client: client, engine: engine, schema: schema, config: cfg, logger: logger}
}

// GenerateAndExecute turns question into SQL and runs it, feeding each
// failure back to the model until an attempt succeeds or maxRetries repairs
// have been spent. Unavailable collaborators abort immediately.
func (g *Generator) GenerateAndExecute(ctx context.Context, question string, maxRetries int) (Outcome, error) {
	if strings.TrimSpace(question) == "" {
		return Outcome{}, fmt.Errorf("question is required")
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	schemaText, err := g.schema.Describe(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("describe schema: %w", err)
	}
	businessContext := g.schema.BusinessContext()

	attempts := make([]Attempt, 0, maxRetries+1)
	for index := 0; index <= maxRetries; index++ {
		prompt := FirstAttemptPrompt(schemaText, businessContext, question)
		if index > 0 {
			last := attempts[index-1]
			prompt = RepairPrompt(last.Err.Error(), last.SQL, schemaText, question)
		}

		raw, err := completion.Text(ctx, g.client, "", prompt, g.config.Temperature)
		if err != nil && (errors.Is(err, completion.ErrUnavailable) || ctx.Err() != nil) {
			return Outcome{}, fmt.Errorf("generate sql: %w", err)
		}

		attempt := Attempt{Index: index}
		var result query.Result
		if err != nil {
			attempt.Err = fmt.Errorf("unusable model response: %w", err)
		} else {
			attempt.SQL = query.TrimStatement(completion.StripCodeFence(raw))
			result, attempt.Err = g.execute(ctx, attempt.SQL)
		}
		if attempt.Err == nil {
			attempts = append(attempts, attempt)
			observability.ObserveSQLAttempt("success")
			g.logger.Debug("sql attempt succeeded", "attempt", index, "rows", result.Len())
			return Outcome{Result: result, SQL: attempt.SQL, Attempts: attempts}, nil
		}
		if errors.Is(attempt.Err, query.ErrUnavailable) || ctx.Err() != nil {
			return Outcome{}, fmt.Errorf("execute generated sql: %w", attempt.Err)
		}

		attempts = append(attempts, attempt)
		observability.ObserveSQLAttempt("failure")
		g.logger.Info("sql attempt failed", "attempt", index, "error", attempt.Err)
	}

	observability.IncrementRepairExhausted()
	g.logger.Warn("sql repair exhausted", "attempts", len(attempts), "error", attempts[len(attempts)-1].Err)
	return Outcome{}, &RepairExhaustedError{Attempts: attempts}
}

// execute validates sqlText before handing it to the engine, so the
// read-only rule holds for every engine implementation.
func (g *Generator) execute(ctx context.Context, sqlText string) (query.Result, error) {
	if sqlText == "" {
		return query.Result{}, errEmptySQL
	}
	if err := query.CheckReadOnly(sqlText); err != nil {
		return query.Result{}, err
	}
	return g.engine.Execute(ctx, query.Request{SQL: sqlText, RowLimit: g.config.RowLimit})
}

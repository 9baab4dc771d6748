// Package crmtools implements the CRM tools offered to the agent.
package crmtools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/salesdesk/salesdesk/internal/agent"
	"github.com/salesdesk/salesdesk/internal/nl2sql"
	"github.com/salesdesk/salesdesk/internal/query"
	"github.com/salesdesk/salesdesk/internal/tool"
)

const (
	TextToSQLName = "text_to_sql"
	OpenWorkName  = "open_work"

	defaultOpenWorkLimit = 25
	maxOpenWorkLimit     = 500
)

const textToSQLDescription = "Generate and execute SQL queries from natural language questions about the sales database. " +
	"Use this for flexible, ad-hoc queries about accounts, deals, interactions, products, and sales teams."

const openWorkDescription = "Get a list of outstanding work items and tasks that need attention. " +
	"This shows deals in 'Engaging' stage from the last 30 days. " +
	"Use this for questions about 'what to work on', 'outstanding items', 'tasks today', or 'open work'."

const openWorkColumns = `SELECT account_name_from_pipeline AS account, deal_stage, product, activity_type, status_lc, d_interaction AS last_activity
FROM v_open_work`

// SQLGenerator is satisfied by *nl2sql.Generator.
type SQLGenerator interface {
	GenerateAndExecute(ctx context.Context, question string, maxRetries int) (nl2sql.Outcome, error)
}

type Deps struct {
	Generator            SQLGenerator
	Engine               query.Engine
	MaxRetries           int
	ResultRowLimit       int
	OpenWorkDefaultLimit int
	Logger               *slog.Logger
}

// Register adds text_to_sql and open_work to registry.
func Register(registry *tool.Registry, deps Deps) error {
	if deps.Generator == nil {
		return fmt.Errorf("register crm tools: sql generator is required")
	}
	if deps.Engine == nil {
		return fmt.Errorf("register crm tools: query engine is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	specs := []tool.Spec{
		{
			Name:        TextToSQLName,
			Description: textToSQLDescription,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"question": map[string]any{
						"type":        "string",
						"description": "The natural language question to convert to SQL.",
					},
				},
				"required": []string{"question"},
			},
			Handler: TextToSQLHandler(deps),
		},
		{
			Name:        OpenWorkName,
			Description: openWorkDescription,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum number of items to return (default: 25)",
					},
					"sales_agent": map[string]any{
						"type":        "string",
						"description": "Optional: filter by sales agent name",
					},
				},
			},
			Handler: OpenWorkHandler(deps),
		},
	}
	for _, spec := range specs {
		if err := registry.Register(spec); err != nil {
			return fmt.Errorf("register crm tools: %w", err)
		}
	}
	return nil
}

// TextToSQLHandler answers an ad-hoc question through the SQL generator.
// Exhausted repairs produce a readable message rather than an error.
func TextToSQLHandler(deps Deps) tool.Handler {
	return func(ctx context.Context, args map[string]any) (string, error) {
		question, _ := args["question"].(string)
		question = strings.TrimSpace(question)
		if question == "" {
			return "", fmt.Errorf("question is required")
		}

		outcome, err := deps.Generator.GenerateAndExecute(ctx, question, deps.MaxRetries)
		if err != nil {
			var exhausted *nl2sql.RepairExhaustedError
			if errors.As(err, &exhausted) {
				return fmt.Sprintf("I couldn't answer that question from the database after %d attempts.\nLast error: %v\nLast SQL:\n%s",
					len(exhausted.Attempts), exhausted.LastError(), exhausted.LastSQL()), nil
			}
			return "", err
		}

		result := outcome.Result.Truncate(deps.ResultRowLimit)
		var b strings.Builder
		b.WriteString("SQL used:\n")
		b.WriteString(outcome.SQL)
		b.WriteString("\n\n")
		if result.Empty() {
			b.WriteString("The query returned no rows.")
			return b.String(), nil
		}
		fmt.Fprintf(&b, "Results (%d rows):\n", result.Len()+result.Omitted)
		b.WriteString(result.Text())
		return b.String(), nil
	}
}

// OpenWorkHandler lists recent Engaging deals, by default for the current
// user.
func OpenWorkHandler(deps Deps) tool.Handler {
	defaultLimit := deps.OpenWorkDefaultLimit
	if defaultLimit <= 0 {
		defaultLimit = defaultOpenWorkLimit
	}
	return func(ctx context.Context, args map[string]any) (string, error) {
		limit, err := intArgument(args["limit"], defaultLimit)
		if err != nil {
			return "", err
		}
		if limit <= 0 {
			limit = defaultLimit
		}
		if limit > maxOpenWorkLimit {
			limit = maxOpenWorkLimit
		}

		salesAgent, _ := args["sales_agent"].(string)
		salesAgent = strings.TrimSpace(salesAgent)
		if salesAgent == "" {
			salesAgent = strings.TrimSpace(agent.CurrentUserFromContext(ctx))
		}

		request := OpenWorkQuery(salesAgent, limit)
		result, err := deps.Engine.Execute(ctx, request)
		if err != nil {
			return "", fmt.Errorf("query open work: %w", err)
		}

		owner := "all sales agents"
		if salesAgent != "" {
			owner = salesAgent
		}
		if result.Empty() {
			return fmt.Sprintf("No open work items found for %s.", owner), nil
		}
		return fmt.Sprintf("Open work items for %s (%d):\n%s", owner, result.Len(), result.Text()), nil
	}
}

// OpenWorkQuery builds the open work statement. The sales agent is always a
// bind parameter.
func OpenWorkQuery(salesAgent string, limit int) query.Request {
	if salesAgent == "" {
		return query.Request{
			SQL: fmt.Sprintf("%s\nORDER BY d_interaction DESC NULLS LAST\nLIMIT %d", openWorkColumns, limit),
		}
	}
	return query.Request{
		SQL:  fmt.Sprintf("%s\nWHERE LOWER(sales_agent) = LOWER($1)\nORDER BY d_interaction DESC NULLS LAST\nLIMIT %d", openWorkColumns, limit),
		Args: []any{salesAgent},
	}
}

func intArgument(value any, fallback int) (int, error) {
	switch typed := value.(type) {
	case nil:
		return fallback, nil
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return 0, fmt.Errorf("limit must be an integer: %w", err)
		}
		return int(parsed), nil
	case float64:
		if typed != math.Trunc(typed) {
			return 0, fmt.Errorf("limit must be an integer, got %v", typed)
		}
		return int(typed), nil
	case int:
		return typed, nil
	case int64:
		return int(typed), nil
	default:
		return 0, fmt.Errorf("limit must be an integer, got %T", value)
	}
}

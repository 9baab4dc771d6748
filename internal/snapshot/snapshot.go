// Package snapshot assembles the per-agent CRM context used for daily
// suggestions.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/salesdesk/salesdesk/internal/observability"
	"github.com/salesdesk/salesdesk/internal/query"
)

type sectionQuery struct {
	key         string
	sql         string
	header      func(rows int) string
	placeholder string
}

// Sections are rendered in this order regardless of completion order.
var sectionQueries = []sectionQuery{
	{
		key: "pipeline",
		sql: `SELECT deal_stage, product, account, close_value,
       TRY_CAST(close_date AS DATE) AS close_date,
       TRY_CAST(engage_date AS DATE) AS engage_date
FROM sales_pipeline
WHERE LOWER(sales_agent) = LOWER($1)
ORDER BY deal_stage, close_date`,
		header:      func(rows int) string { return fmt.Sprintf("=== Pipeline (%d deals) ===", rows) },
		placeholder: "No pipeline deals found.",
	},
	{
		key: "accounts",
		sql: `SELECT DISTINCT a.account, a.sector, a.revenue, a.employees, lt.last_touch
FROM accounts a
JOIN sales_pipeline sp ON a.account_id = sp.account_id
LEFT JOIN v_last_touch lt ON a.account_id = lt.account_id
WHERE LOWER(sp.sales_agent) = LOWER($1)
ORDER BY lt.last_touch ASC NULLS FIRST`,
		header:      func(rows int) string { return fmt.Sprintf("=== Accounts (%d) ===", rows) },
		placeholder: "No accounts found.",
	},
	{
		key: "interactions",
		sql: `SELECT a.account, i.activity_type, LOWER(i.status) AS status,
       CAST(TRY_CAST(i.timestamp AS TIMESTAMP) AS DATE) AS interaction_date,
       i.comment
FROM interactions i
JOIN accounts a ON i.account_id = a.account_id
JOIN sales_pipeline sp ON a.account_id = sp.account_id
WHERE LOWER(sp.sales_agent) = LOWER($1)
  AND TRY_CAST(i.timestamp AS TIMESTAMP) >= CURRENT_DATE - 14
ORDER BY TRY_CAST(i.timestamp AS TIMESTAMP) DESC
LIMIT 20`,
		header:      func(int) string { return "=== Recent Interactions (last 14 days, up to 20) ===" },
		placeholder: "No recent interactions found.",
	},
	{
		key: "open_work",
		sql: `SELECT account_name_from_pipeline AS account, deal_stage, product,
       activity_type, status_lc, d_interaction AS last_activity
FROM v_open_work
WHERE LOWER(sales_agent) = LOWER($1)
ORDER BY d_interaction DESC NULLS LAST`,
		header:      func(rows int) string { return fmt.Sprintf("=== Open Work Items (%d) ===", rows) },
		placeholder: "No open work items.",
	},
}

type Section struct {
	Key         string
	Header      string
	Placeholder string
	Result      query.Result
	Err         error
}

func (s Section) Text() string {
	if s.Result.Empty() {
		return s.Header + "\n" + s.Placeholder
	}
	return s.Header + "\n" + s.Result.Text()
}

type Snapshot struct {
	SalesAgent string
	Sections   []Section
}

// Text joins the sections with a blank line between them.
func (s Snapshot) Text() string {
	parts := make([]string, 0, len(s.Sections))
	for _, section := range s.Sections {
		parts = append(parts, section.Text())
	}
	return strings.Join(parts, "\n\n")
}

type Builder struct {
	engine  query.Engine
	dialect query.Dialect
	logger  *slog.Logger
}

func NewBuilder(engine query.Engine, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{engine: engine, dialect: query.DialectOf(engine), logger: logger}
}

// statement adapts a section query to the engine. Postgres has no TRY_CAST;
// its date columns are typed, so a plain CAST cannot fail there.
func (b *Builder) statement(item sectionQuery) string {
	if b.dialect == query.DialectPostgres {
		return strings.ReplaceAll(item.sql, "TRY_CAST(", "CAST(")
	}
	return item.sql
}

// Build runs the section queries concurrently. A failing query leaves its
// section empty; only an unavailable engine fails the build.
func (b *Builder) Build(ctx context.Context, salesAgent string) (Snapshot, error) {
	salesAgent = strings.TrimSpace(salesAgent)
	if salesAgent == "" {
		return Snapshot{}, fmt.Errorf("sales agent is required")
	}

	sections := make([]Section, len(sectionQueries))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, item := range sectionQueries {
		group.Go(func() error {
			result, err := b.engine.Execute(groupCtx, query.Request{SQL: b.statement(item), Args: []any{salesAgent}})
			section := Section{Key: item.key, Placeholder: item.placeholder}
			if err != nil {
				observability.IncrementSnapshotSectionFailure(item.key)
				b.logger.Warn("snapshot section failed", "section", item.key, "sales_agent", salesAgent, "error", err)
				section.Err = err
				result = query.Result{}
			}
			section.Result = result
			section.Header = item.header(result.Len())
			sections[i] = section
			if errors.Is(err, query.ErrUnavailable) {
				return fmt.Errorf("snapshot %s: %w", item.key, err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Snapshot{SalesAgent: salesAgent, Sections: sections}, err
	}
	return Snapshot{SalesAgent: salesAgent, Sections: sections}, nil
}

// Package suggest produces the three daily focus suggestions for a sales
// agent.
package suggest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/salesdesk/salesdesk/internal/completion"
	"github.com/salesdesk/salesdesk/internal/observability"
	"github.com/salesdesk/salesdesk/internal/snapshot"
)

const SystemPrompt = "You are a sales coach. Given a sales rep's current pipeline, " +
	"accounts, recent interactions, and open work items, suggest " +
	"exactly 3 things they should focus on today. " +
	"Each suggestion should reference a real account or deal from the data. " +
	"For each suggestion provide:\n" +
	"- A high-level title (1 short sentence)\n" +
	"- A rationale explaining why this matters (1 sentence)\n" +
	"- Exactly 2 specific actions they can take\n\n" +
	"Return ONLY a JSON array of 3 objects, no other text. " +
	`Each object must have "title" (string), "rationale" (string), ` +
	`and "actions" (array of 2 strings).` + "\n\n" +
	"Example format:\n" +
	`[{"title": "Follow up with Acme Corp", ` +
	`"rationale": "They had a demo last week but no follow-up yet.", ` +
	`"actions": ["Send a check-in email to the buyer", ` +
	`"Schedule a demo for their new product interest"]}]`

const DefaultTemperature = 0.7

func UserPrompt(salesAgent, snapshotText string) string {
	return fmt.Sprintf("Here is the data for %s:\n\n%s", salesAgent, snapshotText)
}

func PromptTemplates() map[string]string {
	return map[string]string{
		"suggestions_system": SystemPrompt,
		"suggestions_user":   UserPrompt("{sales_agent}", "{snapshot of pipeline, accounts, recent interactions, and open work items}"),
	}
}

// SnapshotSource is satisfied by *snapshot.Builder.
type SnapshotSource interface {
	Build(ctx context.Context, salesAgent string) (snapshot.Snapshot, error)
}

type Generator struct {
	snapshots   SnapshotSource
	client      completion.Client
	temperature float64
	logger      *slog.Logger
}

func NewGenerator(snapshots SnapshotSource, client completion.Client, temperature float64, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{snapshots: snapshots, client: client, temperature: temperature, logger: logger}
}

// Daily always returns exactly Count suggestions. When the snapshot or the
// completion cannot be obtained the fallbacks are returned together with the
// error.
func (g *Generator) Daily(ctx context.Context, salesAgent string) ([]Suggestion, error) {
	salesAgent = strings.TrimSpace(salesAgent)
	logger := g.logger.With("sales_agent", salesAgent)

	snap, err := g.snapshots.Build(ctx, salesAgent)
	if err != nil {
		observability.AddSuggestionFallbacks("snapshot_failed", Count)
		logger.Warn("suggestion snapshot failed, using fallbacks", "reason", "snapshot_failed", "error", err)
		return Fallbacks(), fmt.Errorf("build snapshot: %w", err)
	}

	raw, err := completion.Text(ctx, g.client, SystemPrompt, UserPrompt(salesAgent, snap.Text()), g.temperature)
	if err != nil {
		observability.AddSuggestionFallbacks("completion_failed", Count)
		logger.Warn("suggestion completion failed, using fallbacks", "reason", "completion_failed", "error", err)
		return Fallbacks(), fmt.Errorf("suggestion completion: %w", err)
	}

	parsed, err := Parse(raw)
	switch {
	case err != nil:
		observability.AddSuggestionFallbacks("unparseable", len(parsed.Replaced))
		logger.Info("suggestion response unusable, using fallbacks", "reason", "unparseable", "error", err)
	case len(parsed.Replaced) > 0:
		observability.AddSuggestionFallbacks("malformed_entry", len(parsed.Replaced))
		logger.Info("suggestion entries replaced with fallback", "reason", "malformed_entry", "slots", parsed.Replaced)
	}
	return parsed.Suggestions, nil
}

package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/salesdesk/salesdesk/internal/agent"
	"github.com/salesdesk/salesdesk/internal/completion"
	"github.com/salesdesk/salesdesk/internal/query"
)

const salesAgentsSQL = "SELECT DISTINCT sales_agent FROM sales_teams WHERE sales_agent IS NOT NULL ORDER BY sales_agent"

// handleSalesAgents lists the agents a user can act as. Any failure degrades
// to a single "Unknown" entry so the caller can still pick someone.
func handleSalesAgents(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	agents := []string{agent.UnknownUser}
	source := "fallback"
	if deps.QueryEngine != nil {
		result, err := deps.QueryEngine.Execute(r.Context(), query.Request{SQL: salesAgentsSQL})
		switch {
		case err != nil:
			if deps.Logger != nil {
				deps.Logger.WarnContext(r.Context(), "list sales agents failed", "error", err)
			}
		case !result.Empty():
			agents = make([]string, 0, result.Len())
			for _, value := range result.Column("sales_agent") {
				if value == nil {
					continue
				}
				if name := strings.TrimSpace(query.FormatValue(value)); name != "" {
					agents = append(agents, name)
				}
			}
			source = "database"
			if len(agents) == 0 {
				agents = []string{agent.UnknownUser}
				source = "fallback"
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales_agents": agents, "source": source})
}

func handlePrompts(deps Dependencies, w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(deps.Prompts))
	for name := range deps.Prompts {
		names = append(names, name)
	}
	sort.Strings(names)
	prompts := make([]map[string]string, 0, len(names))
	for _, name := range names {
		prompts = append(prompts, map[string]string{"name": name, "template": deps.Prompts[name]})
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompts": prompts})
}

func handleTools(deps Dependencies, w http.ResponseWriter, _ *http.Request) {
	tools := []completion.ToolDefinition{}
	if deps.Tools != nil {
		tools = deps.Tools.ListForModel()
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools})
}

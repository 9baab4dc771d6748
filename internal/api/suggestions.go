package api

import (
	"net/http"

	"github.com/salesdesk/salesdesk/internal/suggest"
)

type suggestionsResponse struct {
	SalesAgent  string               `json:"sales_agent"`
	Suggestions []suggest.Suggestion `json:"suggestions"`
	Degraded    bool                 `json:"degraded"`
	Message     string               `json:"message,omitempty"`
}

// handleSuggestions always answers with three suggestions. When the snapshot
// or the model is unavailable the fallbacks are served with degraded=true.
func handleSuggestions(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Suggestions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SUGGESTIONS_NOT_CONFIGURED", "suggestions are not configured", false, nil)
		return
	}
	salesAgent := actingSalesAgent(r)
	suggestions, err := deps.Suggestions.Daily(r.Context(), salesAgent)
	response := suggestionsResponse{SalesAgent: salesAgent, Suggestions: suggestions}
	if err != nil {
		if deps.Logger != nil {
			deps.Logger.WarnContext(r.Context(), "serving fallback suggestions", "sales_agent", salesAgent, "error", err)
		}
		response.Degraded = true
		response.Message = "Suggestions are temporarily unavailable; showing defaults."
		if len(response.Suggestions) != suggest.Count {
			response.Suggestions = suggest.Fallbacks()
		}
	}
	writeJSON(w, http.StatusOK, response)
}

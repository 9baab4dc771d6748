package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/salesdesk/salesdesk/internal/agent"
)

type answerRequest struct {
	Question string `json:"question"`
}

type toolCallResponse struct {
	Iteration  int    `json:"iteration"`
	Name       string `json:"name"`
	Arguments  string `json:"arguments"`
	Outcome    string `json:"outcome"`
	DurationMs int64  `json:"duration_ms"`
}

type answerResponse struct {
	ConversationID string             `json:"conversation_id"`
	SalesAgent     string             `json:"sales_agent"`
	Answer         string             `json:"answer"`
	Iterations     int                `json:"iterations"`
	ToolCalls      []toolCallResponse `json:"tool_calls"`
	Degraded       bool               `json:"degraded"`
}

func handleAnswer(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Agent == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "AGENT_NOT_CONFIGURED", "agent is not configured", false, nil)
		return
	}

	var request answerRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid answer request body", false, map[string]any{"details": err.Error()})
		return
	}
	question := strings.TrimSpace(request.Question)
	if question == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	salesAgent := actingSalesAgent(r)
	reply, err := deps.Agent.Answer(r.Context(), agent.Request{Question: question, CurrentUser: salesAgent})
	if err != nil {
		writeAgentError(r.Context(), w, deps, err)
		return
	}

	calls := make([]toolCallResponse, 0, len(reply.ToolCalls))
	for _, call := range reply.ToolCalls {
		calls = append(calls, toolCallResponse{
			Iteration:  call.Iteration,
			Name:       call.Name,
			Arguments:  call.Arguments,
			Outcome:    call.Outcome,
			DurationMs: call.Duration.Milliseconds(),
		})
	}
	writeJSON(w, http.StatusOK, answerResponse{
		ConversationID: reply.ConversationID,
		SalesAgent:     salesAgent,
		Answer:         reply.Text,
		Iterations:     reply.Iterations,
		ToolCalls:      calls,
		Degraded:       reply.Degraded,
	})
}

func writeAgentError(ctx context.Context, w http.ResponseWriter, deps Dependencies, err error) {
	switch {
	case isUnavailable(err):
		writeError(ctx, w, http.StatusServiceUnavailable, "DEPENDENCY_UNAVAILABLE", err.Error(), true, nil)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(ctx, w, http.StatusGatewayTimeout, "TIMEOUT", "answer timed out", true, nil)
	case errors.Is(err, context.Canceled):
		writeError(ctx, w, http.StatusRequestTimeout, "CANCELED", "request canceled", true, nil)
	default:
		if deps.Logger != nil {
			deps.Logger.ErrorContext(ctx, "agent answer failed", "error", err)
		}
		writeError(ctx, w, http.StatusInternalServerError, "AGENT_FAILED", "the assistant could not answer", false, nil)
	}
}

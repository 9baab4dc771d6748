package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/salesdesk/salesdesk/internal/completion"
	"github.com/salesdesk/salesdesk/internal/observability"
	"github.com/salesdesk/salesdesk/internal/query"
	"github.com/salesdesk/salesdesk/internal/tool"
)

const DefaultMaxIterations = 6

const (
	OutcomeOK               = "ok"
	OutcomeUnknownTool      = "unknown_tool"
	OutcomeInvalidArguments = "invalid_arguments"
	OutcomeHandlerError     = "handler_error"
)

var (
	ErrMissingClient   = errors.New("completion client is required")
	ErrMissingRegistry = errors.New("tool registry is required")
)

type Config struct {
	MaxIterations int
	Temperature   float64
}

type Request struct {
	Question    string
	CurrentUser string
}

type ToolCallRecord struct {
	Iteration int
	Name      string
	Arguments string
	Outcome   string
	Duration  time.Duration
}

type Reply struct {
	ConversationID string
	Text           string
	Iterations     int
	ToolCalls      []ToolCallRecord
	Degraded       bool
}

// Agent answers questions by letting the model call registered tools until it
// produces a final answer. Each Answer call starts a fresh conversation.
type Agent struct {
	client   completion.Client
	registry *tool.Registry
	config   Config
	logger   *slog.Logger
}

func New(client completion.Client, registry *tool.Registry, cfg Config, logger *slog.Logger) (*Agent, error) {
	if client == nil {
		return nil, fmt.Errorf("new agent: %w", ErrMissingClient)
	}
	if registry == nil {
		return nil, fmt.Errorf("new agent: %w", ErrMissingRegistry)
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{client: client, registry: registry, config: cfg, logger: logger}, nil
}

// Answer runs the tool-dispatch loop. Unknown tools, invalid arguments and
// handler failures are reported back to the model as tool results. Only
// unavailable collaborators and cancellation end the loop with an error;
// running out of iterations yields a degraded reply.
func (a *Agent) Answer(ctx context.Context, request Request) (Reply, error) {
	question := strings.TrimSpace(request.Question)
	if question == "" {
		return Reply{}, fmt.Errorf("question is required")
	}

	reply := Reply{ConversationID: uuid.NewString()}
	ctx = WithCurrentUser(ctx, request.CurrentUser)
	ctx = context.WithValue(ctx, conversationIDKey, reply.ConversationID)
	logger := a.logger.With("conversation_id", reply.ConversationID, "current_user", request.CurrentUser)

	system := SystemPrompt(request.CurrentUser)
	messages := []completion.Message{{Role: completion.RoleUser, Content: question}}
	tools := a.registry.ListForModel()

	for reply.Iterations < a.config.MaxIterations {
		if err := ctx.Err(); err != nil {
			return reply, err
		}
		reply.Iterations++

		response, err := a.client.Complete(ctx, completion.Request{
			System:      system,
			Messages:    messages,
			Temperature: a.config.Temperature,
			Tools:       tools,
		})
		if err != nil {
			observability.ObserveAgentAnswer("error", reply.Iterations)
			return reply, fmt.Errorf("agent completion: %w", err)
		}

		switch typed := response.(type) {
		case completion.FinalAnswer:
			reply.Text = typed.Text
			observability.ObserveAgentAnswer("answered", reply.Iterations)
			logger.Info("agent answered", "iterations", reply.Iterations, "tool_calls", len(reply.ToolCalls))
			return reply, nil
		case completion.ToolCallBatch:
			calls := withCallIDs(typed.Calls)
			messages = append(messages, completion.Message{Role: completion.RoleAssistant, ToolCalls: calls})
			for _, call := range calls {
				content, record, err := a.dispatch(ctx, logger, call)
				record.Iteration = reply.Iterations
				reply.ToolCalls = append(reply.ToolCalls, record)
				if err != nil {
					observability.ObserveAgentAnswer("error", reply.Iterations)
					return reply, err
				}
				messages = append(messages, completion.Message{
					Role:       completion.RoleTool,
					ToolCallID: call.ID,
					Name:       call.Name,
					Content:    content,
				})
			}
		default:
			return reply, fmt.Errorf("unexpected completion response %T", response)
		}
	}

	observability.ObserveAgentAnswer("max_iterations", reply.Iterations)
	logger.Warn("agent iteration ceiling reached", "iterations", reply.Iterations, "tool_calls", len(reply.ToolCalls))
	reply.Text = fmt.Sprintf(degradedAnswerTemplate, a.config.MaxIterations)
	reply.Degraded = true
	return reply, nil
}

// dispatch resolves and runs one tool call. The returned error is non-nil
// only for failures that must abort the conversation.
func (a *Agent) dispatch(ctx context.Context, logger *slog.Logger, call completion.ToolCall) (string, ToolCallRecord, error) {
	record := ToolCallRecord{Name: call.Name, Arguments: call.RawArguments}
	started := time.Now()
	finish := func(outcome string) {
		record.Outcome = outcome
		record.Duration = time.Since(started)
		observability.ObserveToolCall(call.Name, outcome, record.Duration)
		logger.Info("tool dispatched", "tool", call.Name, "outcome", outcome, "duration", record.Duration)
	}

	registered, err := a.registry.Get(call.Name)
	if err != nil {
		finish(OutcomeUnknownTool)
		return fmt.Sprintf("error: %s: tool %q is not available. Available tools: %s",
			OutcomeUnknownTool, call.Name, strings.Join(a.toolNames(), ", ")), record, nil
	}

	args, err := registered.ValidateArguments(call.RawArguments)
	if err != nil {
		finish(OutcomeInvalidArguments)
		return fmt.Sprintf("error: %s: %v", OutcomeInvalidArguments, err), record, nil
	}

	output, err := registered.Handler(ctx, args)
	if err != nil {
		finish(OutcomeHandlerError)
		if ctx.Err() != nil {
			return "", record, ctx.Err()
		}
		if errors.Is(err, completion.ErrUnavailable) || errors.Is(err, query.ErrUnavailable) {
			return "", record, fmt.Errorf("tool %s: %w", call.Name, err)
		}
		return fmt.Sprintf("error: %s: %v", OutcomeHandlerError, err), record, nil
	}
	finish(OutcomeOK)
	return output, record, nil
}

func (a *Agent) toolNames() []string {
	definitions := a.registry.ListForModel()
	names := make([]string, 0, len(definitions))
	for _, definition := range definitions {
		names = append(names, definition.Name)
	}
	return names
}

func withCallIDs(calls []completion.ToolCall) []completion.ToolCall {
	out := make([]completion.ToolCall, len(calls))
	for i, call := range calls {
		if strings.TrimSpace(call.ID) == "" {
			call.ID = "call_" + uuid.NewString()
		}
		out[i] = call
	}
	return out
}

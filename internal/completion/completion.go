package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable marks transport failures and provider-side errors where the
// model produced no answer.
var ErrUnavailable = errors.New("completion service unavailable")

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// ToolCall is a model request to run a tool. RawArguments is the JSON text
// exactly as the model produced it.
type ToolCall struct {
	ID           string
	Name         string
	RawArguments string
}

// ToolDefinition is the projection of a tool shown to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type Request struct {
	System      string
	Messages    []Message
	Temperature float64
	Tools       []ToolDefinition
}

// Response is either a FinalAnswer or a ToolCallBatch.
type Response interface {
	isResponse()
}

type FinalAnswer struct {
	Text string
}

type ToolCallBatch struct {
	Calls []ToolCall
}

func (FinalAnswer) isResponse()   {}
func (ToolCallBatch) isResponse() {}

type Client interface {
	Complete(ctx context.Context, request Request) (Response, error)
}

// Text runs a single-turn completion without tools and returns the text.
func Text(ctx context.Context, client Client, system, user string, temperature float64) (string, error) {
	response, err := client.Complete(ctx, Request{
		System:      system,
		Messages:    []Message{{Role: RoleUser, Content: user}},
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	switch typed := response.(type) {
	case FinalAnswer:
		return typed.Text, nil
	case ToolCallBatch:
		return "", fmt.Errorf("unexpected tool calls in text completion: %d", len(typed.Calls))
	default:
		return "", fmt.Errorf("unexpected completion response %T", response)
	}
}

// StripCodeFence removes a surrounding ``` fence, with or without a language
// tag, and trims whitespace.
func StripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		if newline := strings.Index(trimmed, "\n"); newline >= 0 {
			trimmed = trimmed[newline+1:]
		} else {
			trimmed = strings.TrimPrefix(trimmed, "```")
		}
	}
	trimmed = strings.TrimSpace(trimmed)
	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSuffix(trimmed, "```")
	}
	return strings.TrimSpace(trimmed)
}

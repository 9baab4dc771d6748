package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/salesdesk/salesdesk/internal/observability"
)

const (
	defaultModel    = "gpt-4o-mini"
	defaultEndpoint = "/v1/chat/completions"
	defaultTimeout  = 30 * time.Second
	maxResponseSize = 2 << 20
)

type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
	// Purpose labels latency metrics, for example "sql" or "agent".
	Purpose string
}

// OpenAIClient speaks the OpenAI-compatible chat completions protocol.
type OpenAIClient struct {
	endpointURL string
	apiKey      string
	model       string
	purpose     string
	client      *http.Client
}

var _ Client = (*OpenAIClient)(nil)

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	purpose := strings.TrimSpace(cfg.Purpose)
	if purpose == "" {
		purpose = "default"
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	baseURL = strings.TrimSuffix(baseURL, "/v1")
	return &OpenAIClient{
		endpointURL: baseURL + defaultEndpoint,
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		purpose:     purpose,
		client:      httpClient,
	}, nil
}

// WithPurpose returns a copy of the client whose latency is reported under
// another purpose label.
func (c *OpenAIClient) WithPurpose(purpose string) *OpenAIClient {
	clone := *c
	clone.purpose = purpose
	return &clone
}

func (c *OpenAIClient) Model() string {
	return c.model
}

func (c *OpenAIClient) Complete(ctx context.Context, request Request) (Response, error) {
	body, err := json.Marshal(buildChatRequest(c.model, request))
	if err != nil {
		return nil, fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	started := time.Now()
	resp, err := c.client.Do(httpReq)
	observability.ObserveCompletion(c.purpose, time.Since(started))
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request chat completion: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: request chat completion: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read chat response body: %w", ErrUnavailable, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: chat completion failed status=%d body=%s", ErrUnavailable, resp.StatusCode, string(rawRespBody))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("chat completion failed status=%d body=%s", resp.StatusCode, string(rawRespBody))
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty chat completion choices", ErrUnavailable)
	}
	return toResponse(parsed.Choices[0].Message), nil
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Tools       []chatTool    `json:"tools,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
}

type chatTool struct {
	Type     string           `json:"type"`
	Function chatToolFunction `json:"function"`
}

type chatToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type chatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

func buildChatRequest(model string, request Request) chatCompletionRequest {
	messages := make([]chatMessage, 0, len(request.Messages)+1)
	if strings.TrimSpace(request.System) != "" {
		messages = append(messages, chatMessage{Role: string(RoleSystem), Content: request.System})
	}
	for _, message := range request.Messages {
		converted := chatMessage{
			Role:       string(message.Role),
			Content:    message.Content,
			Name:       message.Name,
			ToolCallID: message.ToolCallID,
		}
		for _, call := range message.ToolCalls {
			var wire chatToolCall
			wire.ID = call.ID
			wire.Type = "function"
			wire.Function.Name = call.Name
			wire.Function.Arguments = call.RawArguments
			converted.ToolCalls = append(converted.ToolCalls, wire)
		}
		messages = append(messages, converted)
	}

	tools := make([]chatTool, 0, len(request.Tools))
	for _, definition := range request.Tools {
		tools = append(tools, chatTool{
			Type: "function",
			Function: chatToolFunction{
				Name:        definition.Name,
				Description: definition.Description,
				Parameters:  definition.Parameters,
			},
		})
	}

	return chatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: request.Temperature,
		Tools:       tools,
	}
}

func toResponse(message chatMessage) Response {
	if len(message.ToolCalls) == 0 {
		return FinalAnswer{Text: message.Content}
	}
	calls := make([]ToolCall, 0, len(message.ToolCalls))
	for _, call := range message.ToolCalls {
		calls = append(calls, ToolCall{
			ID:           call.ID,
			Name:         call.Function.Name,
			RawArguments: call.Function.Arguments,
		})
	}
	return ToolCallBatch{Calls: calls}
}

// Package salesdeskctl is the command-line client for the salesdesk API.
package salesdeskctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	SalesAgent string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("salesdeskctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "salesdesk API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	salesAgent := fs.String("sales-agent", defaults.SalesAgent, "sales agent to act as (used when auth is disabled)")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 60*time.Second), "HTTP timeout (e.g. 60s)")
	rawJSON := fs.Bool("json", false, "print the raw JSON response")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	method, path := http.MethodGet, ""
	var body []byte
	switch command {
	case "health":
		path = "/v1/health"
	case "ready":
		path = "/v1/ready"
	case "agents":
		path = "/v1/sales-agents"
	case "prompts":
		path = "/v1/prompts"
	case "tools":
		path = "/v1/tools"
	case "suggestions":
		path = "/v1/suggestions"
	case "ask":
		question := strings.TrimSpace(strings.Join(fs.Args()[1:], " "))
		if question == "" {
			_, _ = fmt.Fprintln(stderr, "ask requires a question")
			return 2
		}
		method, path = http.MethodPost, "/v1/agent/answer"
		body, _ = json.Marshal(map[string]string{"question": question})
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + path
	code, responseBody, err := doRequest(ctx, client, method, endpoint, body, *apiKey, *salesAgent)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if !*rawJSON {
		switch command {
		case "ask":
			if text, ok := renderAnswer(responseBody); ok {
				_, _ = fmt.Fprintln(stdout, text)
				return 0
			}
		case "suggestions":
			if text, ok := renderSuggestions(responseBody); ok {
				_, _ = fmt.Fprintln(stdout, text)
				return 0
			}
		}
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func doRequest(ctx context.Context, client *http.Client, method, url string, body []byte, apiKey, salesAgent string) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}
	if strings.TrimSpace(salesAgent) != "" {
		req.Header.Set("X-Sales-Agent", strings.TrimSpace(salesAgent))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func renderAnswer(raw []byte) (string, bool) {
	var response struct {
		Answer    string `json:"answer"`
		Degraded  bool   `json:"degraded"`
		ToolCalls []struct {
			Name    string `json:"name"`
			Outcome string `json:"outcome"`
		} `json:"tool_calls"`
	}
	if err := json.Unmarshal(raw, &response); err != nil || response.Answer == "" {
		return "", false
	}
	var sb strings.Builder
	sb.WriteString(response.Answer)
	if len(response.ToolCalls) > 0 {
		names := make([]string, 0, len(response.ToolCalls))
		for _, call := range response.ToolCalls {
			names = append(names, call.Name+"("+call.Outcome+")")
		}
		sb.WriteString("\n\ntools: " + strings.Join(names, ", "))
	}
	if response.Degraded {
		sb.WriteString("\n(degraded answer)")
	}
	return sb.String(), true
}

func renderSuggestions(raw []byte) (string, bool) {
	var response struct {
		SalesAgent  string `json:"sales_agent"`
		Degraded    bool   `json:"degraded"`
		Suggestions []struct {
			Title     string   `json:"title"`
			Rationale string   `json:"rationale"`
			Actions   []string `json:"actions"`
		} `json:"suggestions"`
	}
	if err := json.Unmarshal(raw, &response); err != nil || len(response.Suggestions) == 0 {
		return "", false
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Today's focus for %s", response.SalesAgent)
	if response.Degraded {
		sb.WriteString(" (defaults)")
	}
	for i, suggestion := range response.Suggestions {
		fmt.Fprintf(&sb, "\n\n%d. %s", i+1, suggestion.Title)
		if suggestion.Rationale != "" {
			fmt.Fprintf(&sb, "\n   %s", suggestion.Rationale)
		}
		for _, action := range suggestion.Actions {
			fmt.Fprintf(&sb, "\n   - %s", action)
		}
	}
	return sb.String(), true
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: salesdeskctl [flags] <command>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health              GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready               GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  agents              GET /v1/sales-agents")
	_, _ = fmt.Fprintln(w, "  prompts             GET /v1/prompts")
	_, _ = fmt.Fprintln(w, "  tools               GET /v1/tools")
	_, _ = fmt.Fprintln(w, "  suggestions         GET /v1/suggestions")
	_, _ = fmt.Fprintln(w, "  ask <question...>   POST /v1/agent/answer")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}

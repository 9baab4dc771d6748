package salesdeskctl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRunAskCommand(t *testing.T) {
	var gotMethod, gotPath, gotAPIKey, gotAgent string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("X-API-Key")
		gotAgent = r.Header.Get("X-Sales-Agent")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"answer":"Call Acme today.","iterations":2,"tool_calls":[{"name":"open_work","outcome":"ok"}],"degraded":false}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"-base-url", srv.URL,
		"-api-key", "k1",
		"-sales-agent", "Darcel Schlecht",
		"ask", "what", "should", "I", "work", "on?",
	}, Options{
		Stdout:  &stdout,
		Stderr:  &stderr,
		Timeout: 2 * time.Second,
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if gotMethod != http.MethodPost || gotPath != "/v1/agent/answer" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
	if gotAPIKey != "k1" || gotAgent != "Darcel Schlecht" {
		t.Fatalf("headers api_key=%q agent=%q", gotAPIKey, gotAgent)
	}
	if gotBody["question"] != "what should I work on?" {
		t.Fatalf("body = %v", gotBody)
	}
	if !strings.HasPrefix(stdout.String(), "Call Acme today.") || !strings.Contains(stdout.String(), "open_work(ok)") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunAskRequiresQuestion(t *testing.T) {
	var stderr bytes.Buffer
	if code := Run(context.Background(), []string{"ask"}, Options{Stderr: &stderr}); code != 2 {
		t.Fatalf("exit code = %d", code)
	}
}

func TestRunSuggestionsCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/suggestions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"sales_agent":"Darcel Schlecht","degraded":true,"suggestions":[{"title":"Review pipeline","rationale":"Stay fresh.","actions":["a","b"]}]}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "suggestions"}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	out := stdout.String()
	if !strings.Contains(out, "Today's focus for Darcel Schlecht (defaults)") || !strings.Contains(out, "1. Review pipeline") || !strings.Contains(out, "   - b") {
		t.Fatalf("stdout = %q", out)
	}
}

func TestRunJSONFlagPrintsRawResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"answer":"hi"}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "-json", "ask", "hello"}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout.String(), `"answer": "hi"`) {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunGetCommands(t *testing.T) {
	paths := map[string]string{
		"health":  "/v1/health",
		"ready":   "/v1/ready",
		"agents":  "/v1/sales-agents",
		"prompts": "/v1/prompts",
		"tools":   "/v1/tools",
	}
	for command, wantPath := range paths {
		var gotMethod, gotPath string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotPath = r.URL.Path
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		}))
		code := Run(context.Background(), []string{"-base-url", srv.URL, command}, Options{})
		srv.Close()
		if code != 0 {
			t.Fatalf("%s: exit code = %d", command, code)
		}
		if gotMethod != http.MethodGet || gotPath != wantPath {
			t.Fatalf("%s: request = %s %s", command, gotMethod, gotPath)
		}
	}
}

func TestRunReturnsErrorOnHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error_code":"FORBIDDEN"}`))
	}))
	defer srv.Close()

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "suggestions"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "http 403") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"lag"}, Options{Stderr: &stderr})
	if code != 2 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stderr.String(), "usage: salesdeskctl") {
		t.Fatal("expected usage output")
	}
}

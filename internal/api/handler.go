package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/salesdesk/salesdesk/internal/agent"
	"github.com/salesdesk/salesdesk/internal/auth"
	"github.com/salesdesk/salesdesk/internal/completion"
	"github.com/salesdesk/salesdesk/internal/config"
	"github.com/salesdesk/salesdesk/internal/observability"
	"github.com/salesdesk/salesdesk/internal/query"
	"github.com/salesdesk/salesdesk/internal/suggest"
)

// SalesAgentHeader selects the acting sales agent when auth is disabled.
const SalesAgentHeader = "X-Sales-Agent"

const maxRequestBodyBytes = 64 << 10

type ReadinessCheck func(ctx context.Context) error

type Answerer interface {
	Answer(ctx context.Context, request agent.Request) (agent.Reply, error)
}

type SuggestionSource interface {
	Daily(ctx context.Context, salesAgent string) ([]suggest.Suggestion, error)
}

type ToolLister interface {
	ListForModel() []completion.ToolDefinition
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Agent             Answerer
	Suggestions       SuggestionSource
	QueryEngine       query.Engine
	Tools             ToolLister
	Prompts           map[string]string
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	router := chi.NewRouter()
	router.Use(observability.TraceMiddleware, middleware.Recoverer, observability.MetricsMiddleware)
	if deps.Logger != nil {
		router.Use(observability.LoggingMiddleware(deps.Logger))
	}

	router.Get("/v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})
	router.Get("/v1/ready", func(w http.ResponseWriter, r *http.Request) {
		handleReady(deps, w, r)
	})
	router.Method(http.MethodGet, "/v1/metrics", promhttp.Handler())

	router.Group(func(protected chi.Router) {
		if cfg.Auth.Required {
			if deps.AuthMiddleware == nil {
				if deps.Logger != nil {
					deps.Logger.Error("auth required but auth middleware missing")
				}
				protected.Use(func(http.Handler) http.Handler {
					return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
						writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
					})
				})
			} else {
				protected.Use(deps.AuthMiddleware)
			}
		}

		protected.Get("/v1/sales-agents", func(w http.ResponseWriter, r *http.Request) {
			handleSalesAgents(deps, w, r)
		})
		protected.Get("/v1/prompts", func(w http.ResponseWriter, r *http.Request) {
			handlePrompts(deps, w, r)
		})
		protected.Get("/v1/tools", func(w http.ResponseWriter, r *http.Request) {
			handleTools(deps, w, r)
		})

		protected.Group(func(agentRoutes chi.Router) {
			agentRoutes.Use(auth.RequireRole(auth.RoleAgentUser))
			agentRoutes.Post("/v1/agent/answer", func(w http.ResponseWriter, r *http.Request) {
				handleAnswer(deps, w, r)
			})
			agentRoutes.Get("/v1/suggestions", func(w http.ResponseWriter, r *http.Request) {
				handleSuggestions(deps, w, r)
			})
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(r.Context(), w, http.StatusNotFound, "NOT_FOUND", "route not found", false, map[string]any{"path": r.URL.Path})
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(r.Context(), w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", false, map[string]any{"method": r.Method})
	})
	return router
}

func handleReady(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Readiness == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
		return
	}
	timeout := deps.DependencyTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	if err := deps.Readiness(ctx); err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// Pinger is satisfied by both query engines.
type Pinger interface {
	Ping(ctx context.Context) error
}

func CheckPing(name string, target Pinger) ReadinessCheck {
	return func(ctx context.Context) error {
		if target == nil {
			return errors.New(name + " is not configured")
		}
		if err := target.Ping(ctx); err != nil {
			return errors.New(name + " is unavailable: " + err.Error())
		}
		return nil
	}
}

func CheckCompletionConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if strings.TrimSpace(cfg.AI.BaseURL) == "" {
			return errors.New("completion base url is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// actingSalesAgent resolves who the request acts as: the authenticated
// identity, then the X-Sales-Agent header, then "Unknown".
func actingSalesAgent(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.SalesAgent != "" {
		return identity.SalesAgent
	}
	if header := strings.TrimSpace(r.Header.Get(SalesAgentHeader)); header != "" {
		return header
	}
	return agent.UnknownUser
}

func isUnavailable(err error) bool {
	return errors.Is(err, completion.ErrUnavailable) || errors.Is(err, query.ErrUnavailable)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}

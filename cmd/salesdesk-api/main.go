package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/salesdesk/salesdesk/internal/agent"
	"github.com/salesdesk/salesdesk/internal/api"
	"github.com/salesdesk/salesdesk/internal/auth"
	"github.com/salesdesk/salesdesk/internal/completion"
	"github.com/salesdesk/salesdesk/internal/config"
	"github.com/salesdesk/salesdesk/internal/crmtools"
	"github.com/salesdesk/salesdesk/internal/dataset"
	"github.com/salesdesk/salesdesk/internal/nl2sql"
	"github.com/salesdesk/salesdesk/internal/observability"
	"github.com/salesdesk/salesdesk/internal/query"
	duckdbengine "github.com/salesdesk/salesdesk/internal/query/duckdb"
	postgresengine "github.com/salesdesk/salesdesk/internal/query/postgres"
	"github.com/salesdesk/salesdesk/internal/schema"
	"github.com/salesdesk/salesdesk/internal/snapshot"
	s3store "github.com/salesdesk/salesdesk/internal/storage/s3"
	"github.com/salesdesk/salesdesk/internal/suggest"
	"github.com/salesdesk/salesdesk/internal/tool"
)

type engine interface {
	query.Engine
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("salesdesk-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 2*time.Minute)
	queryEngine, err := openEngine(startupCtx, cfg, logger)
	cancelStartup()
	if err != nil {
		logger.Error("failed to open query engine", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = queryEngine.Close() }()

	catalog := schema.DefaultCatalog()
	if cfg.Schema.CatalogPath != "" {
		catalog, err = schema.LoadCatalog(cfg.Schema.CatalogPath)
		if err != nil {
			logger.Error("failed to load schema catalog", slog.Any("error", err))
			os.Exit(1)
		}
	}
	var introspector query.Engine
	if cfg.Schema.Introspect {
		introspector = queryEngine
	}
	schemaProvider := schema.NewProvider(catalog, introspector, logger)

	clients, err := newCompletionClients(cfg)
	if err != nil {
		logger.Error("failed to initialize completion client", slog.Any("error", err))
		os.Exit(1)
	}

	generator := nl2sql.NewGenerator(clients.sql, queryEngine, schemaProvider, nl2sql.Config{
		Temperature: cfg.AI.SQLTemperature,
		RowLimit:    cfg.Agent.ToolResultRowLimit,
	}, logger)

	registry := tool.NewRegistry()
	if err := crmtools.Register(registry, crmtools.Deps{
		Generator:            generator,
		Engine:               queryEngine,
		MaxRetries:           cfg.Agent.SQLMaxRetries,
		ResultRowLimit:       cfg.Agent.ToolResultRowLimit,
		OpenWorkDefaultLimit: cfg.Agent.OpenWorkDefaultLimit,
		Logger:               logger,
	}); err != nil {
		logger.Error("failed to register tools", slog.Any("error", err))
		os.Exit(1)
	}

	assistant, err := agent.New(clients.agent, registry, agent.Config{
		MaxIterations: cfg.Agent.MaxIterations,
		Temperature:   cfg.AI.AgentTemperature,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize agent", slog.Any("error", err))
		os.Exit(1)
	}

	suggestions := suggest.NewGenerator(snapshot.NewBuilder(queryEngine, logger), clients.suggestions, cfg.AI.SuggestionTemperature, logger)

	deps := api.Dependencies{
		Logger:      logger,
		Agent:       assistant,
		Suggestions: suggestions,
		QueryEngine: queryEngine,
		Tools:       registry,
		Prompts:     promptTemplates(),
		Readiness: api.CombineReadinessChecks(
			api.CheckPing("query engine", queryEngine),
			api.CheckCompletionConfig(cfg),
		),
		DependencyTimeout: 2 * time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("db_driver", cfg.Database.Driver),
			slog.Int("tools", registry.Len()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func openEngine(ctx context.Context, cfg config.Config, logger *slog.Logger) (engine, error) {
	if cfg.Database.Driver == config.DriverPostgres {
		pg, err := postgresengine.Open(ctx, postgresengine.DBConfig{
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxOpenConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			QueryTimeout:    cfg.Database.QueryTimeout,
		})
		if err != nil {
			return nil, err
		}
		return pg, nil
	}

	path := cfg.Database.Path
	if cfg.Dataset.Enabled {
		fetched, err := fetchDataset(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		path = fetched
	}
	if cfg.Database.EnsureViews {
		if err := duckdbengine.EnsureViews(ctx, path); err != nil {
			return nil, err
		}
		logger.Info("analytical views applied", slog.String("path", path))
	}
	duck, err := duckdbengine.Open(ctx, duckdbengine.Config{
		Path:         path,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		QueryTimeout: cfg.Database.QueryTimeout,
	})
	if err != nil {
		return nil, err
	}
	return duck, nil
}

func fetchDataset(ctx context.Context, cfg config.Config, logger *slog.Logger) (string, error) {
	store, err := s3store.New(ctx, s3store.Config{
		Endpoint:        cfg.Dataset.Endpoint,
		Region:          cfg.Dataset.Region,
		Bucket:          cfg.Dataset.Bucket,
		AccessKeyID:     cfg.Dataset.AccessKeyID,
		SecretAccessKey: cfg.Dataset.SecretAccessKey,
		UseSSL:          cfg.Dataset.UseSSL,
		Prefix:          cfg.Dataset.Prefix,
	})
	if err != nil {
		return "", fmt.Errorf("initialize dataset store: %w", err)
	}
	result, err := dataset.Fetch(ctx, store, dataset.Source{
		ObjectKey: cfg.Dataset.ObjectKey,
		TableKeys: cfg.Dataset.TableKeys,
	}, cfg.Database.Path, logger)
	if err != nil {
		return "", fmt.Errorf("fetch dataset: %w", err)
	}
	return result.DatabasePath, nil
}

type completionClients struct {
	sql         completion.Client
	agent       completion.Client
	suggestions completion.Client
}

func newCompletionClients(cfg config.Config) (completionClients, error) {
	base, err := completion.NewOpenAIClient(completion.OpenAIConfig{
		BaseURL: cfg.AI.BaseURL,
		APIKey:  cfg.AI.APIKey,
		Model:   cfg.AI.Model,
		Timeout: cfg.AI.Timeout,
		Purpose: "agent",
	})
	if err != nil {
		return completionClients{}, err
	}
	return completionClients{
		sql:         base.WithPurpose("sql"),
		agent:       base,
		suggestions: base.WithPurpose("suggestions"),
	}, nil
}

func promptTemplates() map[string]string {
	prompts := map[string]string{}
	for _, set := range []map[string]string{
		agent.PromptTemplates(),
		nl2sql.PromptTemplates(),
		suggest.PromptTemplates(),
	} {
		for name, template := range set {
			prompts[name] = template
		}
	}
	return prompts
}

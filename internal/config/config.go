package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "postgres"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Database      DatabaseConfig
	Dataset       DatasetConfig
	Schema        SchemaConfig
	AI            AIConfig
	Agent         AgentConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Driver          string
	Path            string
	DSN             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
	EnsureViews     bool
}

// DatasetConfig points at an object store holding the sales dataset. Either
// ObjectKey (a DuckDB database file) or TableKeys (parquet objects) is used.
type DatasetConfig struct {
	Enabled         bool
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Prefix          string
	ObjectKey       string
	TableKeys       map[string]string
}

type SchemaConfig struct {
	CatalogPath string
	Introspect  bool
}

type AIConfig struct {
	BaseURL               string
	APIKey                string
	Model                 string
	Timeout               time.Duration
	SQLTemperature        float64
	AgentTemperature      float64
	SuggestionTemperature float64
}

type AgentConfig struct {
	MaxIterations        int
	SQLMaxRetries        int
	ToolResultRowLimit   int
	OpenWorkDefaultLimit int
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("SALESDESK_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid SALESDESK_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "SALESDESK_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "SALESDESK_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "SALESDESK_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "SALESDESK_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "SALESDESK_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyString(lookup, "SALESDESK_DB_DRIVER", &cfg.Database.Driver) },
		func() error { return applyString(lookup, "SALESDESK_DB_PATH", &cfg.Database.Path) },
		func() error { return applyString(lookup, "SALESDESK_DB_DSN", &cfg.Database.DSN) },
		func() error { return applyInt(lookup, "SALESDESK_DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns) },
		func() error { return applyDuration(lookup, "SALESDESK_DB_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime) },
		func() error { return applyDuration(lookup, "SALESDESK_DB_QUERY_TIMEOUT", &cfg.Database.QueryTimeout) },
		func() error { return applyBool(lookup, "SALESDESK_DB_ENSURE_VIEWS", &cfg.Database.EnsureViews) },
		func() error { return applyBool(lookup, "SALESDESK_DATASET_ENABLED", &cfg.Dataset.Enabled) },
		func() error { return applyString(lookup, "SALESDESK_DATASET_ENDPOINT", &cfg.Dataset.Endpoint) },
		func() error { return applyString(lookup, "SALESDESK_DATASET_REGION", &cfg.Dataset.Region) },
		func() error { return applyString(lookup, "SALESDESK_DATASET_BUCKET", &cfg.Dataset.Bucket) },
		func() error { return applyString(lookup, "SALESDESK_DATASET_ACCESS_KEY", &cfg.Dataset.AccessKeyID) },
		func() error { return applyString(lookup, "SALESDESK_DATASET_SECRET_KEY", &cfg.Dataset.SecretAccessKey) },
		func() error { return applyBool(lookup, "SALESDESK_DATASET_USE_SSL", &cfg.Dataset.UseSSL) },
		func() error { return applyString(lookup, "SALESDESK_DATASET_PREFIX", &cfg.Dataset.Prefix) },
		func() error { return applyString(lookup, "SALESDESK_DATASET_OBJECT_KEY", &cfg.Dataset.ObjectKey) },
		func() error { return applyKeyMap(lookup, "SALESDESK_DATASET_TABLE_KEYS", &cfg.Dataset.TableKeys) },
		func() error { return applyString(lookup, "SALESDESK_SCHEMA_CATALOG_PATH", &cfg.Schema.CatalogPath) },
		func() error { return applyBool(lookup, "SALESDESK_SCHEMA_INTROSPECT", &cfg.Schema.Introspect) },
		func() error { return applyString(lookup, "SALESDESK_AI_BASE_URL", &cfg.AI.BaseURL) },
		func() error { return applyString(lookup, "SALESDESK_AI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "SALESDESK_AI_MODEL", &cfg.AI.Model) },
		func() error { return applyDuration(lookup, "SALESDESK_AI_TIMEOUT", &cfg.AI.Timeout) },
		func() error { return applyFloat(lookup, "SALESDESK_AI_SQL_TEMPERATURE", &cfg.AI.SQLTemperature) },
		func() error { return applyFloat(lookup, "SALESDESK_AI_AGENT_TEMPERATURE", &cfg.AI.AgentTemperature) },
		func() error {
			return applyFloat(lookup, "SALESDESK_AI_SUGGESTION_TEMPERATURE", &cfg.AI.SuggestionTemperature)
		},
		func() error { return applyInt(lookup, "SALESDESK_AGENT_MAX_ITERATIONS", &cfg.Agent.MaxIterations) },
		func() error { return applyInt(lookup, "SALESDESK_SQL_MAX_RETRIES", &cfg.Agent.SQLMaxRetries) },
		func() error { return applyInt(lookup, "SALESDESK_TOOL_RESULT_ROW_LIMIT", &cfg.Agent.ToolResultRowLimit) },
		func() error {
			return applyInt(lookup, "SALESDESK_OPEN_WORK_DEFAULT_LIMIT", &cfg.Agent.OpenWorkDefaultLimit)
		},
		func() error { return applyBool(lookup, "SALESDESK_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "SALESDESK_LOG_LEVEL", &cfg.Observability.LogLevel) },
		func() error { return applyBool(lookup, "SALESDESK_AUTH_REQUIRED", &cfg.Auth.Required) },
		func() error { return applyString(lookup, "SALESDESK_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	cfg.Database.Driver = strings.ToLower(cfg.Database.Driver)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	switch cfg.Database.Driver {
	case DriverDuckDB:
		if cfg.Database.Path == "" {
			return fmt.Errorf("SALESDESK_DB_PATH is required for the duckdb driver")
		}
	case DriverPostgres:
		if cfg.Database.DSN == "" {
			return fmt.Errorf("SALESDESK_DB_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid SALESDESK_DB_DRIVER: %q", cfg.Database.Driver)
	}
	if cfg.Dataset.Enabled {
		if cfg.Dataset.Bucket == "" {
			return fmt.Errorf("SALESDESK_DATASET_BUCKET is required when the dataset fetch is enabled")
		}
		if cfg.Dataset.ObjectKey == "" && len(cfg.Dataset.TableKeys) == 0 {
			return fmt.Errorf("one of SALESDESK_DATASET_OBJECT_KEY or SALESDESK_DATASET_TABLE_KEYS is required")
		}
	}
	if cfg.Agent.MaxIterations <= 0 {
		return fmt.Errorf("SALESDESK_AGENT_MAX_ITERATIONS must be positive")
	}
	if cfg.Agent.SQLMaxRetries < 0 {
		return fmt.Errorf("SALESDESK_SQL_MAX_RETRIES must not be negative")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "salesdesk-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          DriverDuckDB,
			Path:            "db/sales.duckdb",
			MaxOpenConns:    8,
			ConnMaxLifetime: 30 * time.Minute,
			QueryTimeout:    10 * time.Second,
			EnsureViews:     true,
		},
		Dataset: DatasetConfig{
			Endpoint: "localhost:9000",
			Region:   "us-east-1",
			Bucket:   "salesdesk",
		},
		AI: AIConfig{
			BaseURL:               "https://api.openai.com",
			Model:                 "gpt-4o-mini",
			Timeout:               30 * time.Second,
			SQLTemperature:        0,
			AgentTemperature:      0,
			SuggestionTemperature: 0.7,
		},
		Agent: AgentConfig{
			MaxIterations:        6,
			SQLMaxRetries:        2,
			ToolResultRowLimit:   50,
			OpenWorkDefaultLimit: 25,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  false,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Observability.LogJSON = true
		cfg.Auth.Required = true
		cfg.Dataset.UseSSL = true
		cfg.Database.EnsureViews = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

// applyKeyMap parses "table=object/key.parquet,other=other.parquet".
func applyKeyMap(lookup LookupFunc, key string, dst *map[string]string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	out := map[string]string{}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, objectKey, found := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		objectKey = strings.TrimSpace(objectKey)
		if !found || name == "" || objectKey == "" {
			return fmt.Errorf("invalid %s entry %q: expected table=object_key", key, entry)
		}
		out[name] = objectKey
	}
	*dst = out
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}

// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.gitquery/config.yaml)
//  3. Default values
//
// Security: sensitive fields (API keys, passwords) are masked in
// MarshalJSON and never logged in the clear.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	// DefaultModelName is the chat model used for answers.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultEmbedderModel outputs 3072 dimensions by default but
	// supports truncation to 768 via OutputDimensionality.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultEmbedderDimension must match the vector column width in
	// the storage schema.
	DefaultEmbedderDimension = 768
)

// Storage backend identifiers used in Config.StorageBackend.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config stores application configuration.
// Sensitive fields are explicitly masked in MarshalJSON; when adding a
// new secret field, update MarshalJSON too.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`

	// Gemini configuration
	GeminiAPIKey      string `mapstructure:"gemini_api_key" json:"gemini_api_key"` // SENSITIVE: masked in MarshalJSON
	ModelName         string `mapstructure:"model_name" json:"model_name"`
	EmbedderModel     string `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedderDimension int    `mapstructure:"embedder_dimension" json:"embedder_dimension"`

	// Retrieval and chunking
	TopK         int `mapstructure:"top_k" json:"top_k"`
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Storage configuration
	StorageBackend   string `mapstructure:"storage_backend" json:"storage_backend"`
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`
	SQLitePath       string `mapstructure:"sqlite_path" json:"sqlite_path"`

	// GitHub fetcher configuration
	GitHubToken     string  `mapstructure:"github_token" json:"github_token"` // SENSITIVE: masked in MarshalJSON
	GitHubBranch    string  `mapstructure:"github_branch" json:"github_branch"`
	GitHubRateLimit float64 `mapstructure:"github_rate_limit" json:"github_rate_limit"`

	// Tracing configuration
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// TracingConfig controls the OTLP trace exporter.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".gitquery")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("listen_addr", ":8080")

	viper.SetDefault("model_name", DefaultModelName)
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("embedder_dimension", DefaultEmbedderDimension)

	viper.SetDefault("top_k", 8)
	viper.SetDefault("chunk_size", 1500)
	viper.SetDefault("chunk_overlap", 200)

	viper.SetDefault("storage_backend", BackendPostgres)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "gitquery")
	viper.SetDefault("postgres_password", "gitquery_dev_password")
	viper.SetDefault("postgres_db_name", "gitquery")
	viper.SetDefault("postgres_ssl_mode", "disable")
	viper.SetDefault("sqlite_path", filepath.Join("data", "gitquery.db"))

	viper.SetDefault("github_branch", "main")
	viper.SetDefault("github_rate_limit", 10.0)

	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.endpoint", "localhost:4318")
	viper.SetDefault("tracing.service_name", "gitquery")
	viper.SetDefault("tracing.environment", "dev")
}

// bindEnvVariables binds environment variables explicitly.
func bindEnvVariables() {
	// Hardcoded strings cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("gemini_api_key", "GEMINI_API_KEY")
	mustBind("github_token", "GITHUB_TOKEN")
	mustBind("listen_addr", "GITQUERY_LISTEN_ADDR")
	mustBind("storage_backend", "GITQUERY_STORAGE_BACKEND")
	mustBind("sqlite_path", "GITQUERY_SQLITE_PATH")
	mustBind("postgres_host", "GITQUERY_POSTGRES_HOST")
	mustBind("postgres_port", "GITQUERY_POSTGRES_PORT")
	mustBind("postgres_user", "GITQUERY_POSTGRES_USER")
	mustBind("postgres_password", "GITQUERY_POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "GITQUERY_POSTGRES_DB_NAME")
	mustBind("tracing.endpoint", "GITQUERY_OTLP_ENDPOINT")
}

// maskedValue uses full-width blocks to avoid substring matching with
// real secret content.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Secrets of 8 characters
// or fewer are fully masked; longer ones keep the first and last two
// characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit masking of
// sensitive fields.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.GeminiAPIKey = maskSecret(a.GeminiAPIKey)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.GitHubToken = maskSecret(a.GitHubToken)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// PostgresConnectionString returns the PostgreSQL DSN for pgx.
func (c *Config) PostgresConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPassword,
		c.PostgresHost, c.PostgresPort,
		c.PostgresDBName, c.PostgresSSLMode)
}

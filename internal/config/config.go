// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (TUVAN_* overrides, secrets)
//  2. Config file (~/.tuvan/config.yaml or ./config.yaml)
//  3. Default values
//
// Sensitive fields (API keys, passwords) are masked in MarshalJSON so the
// config can be logged or exposed on the admin endpoint safely. Validation
// is fail-fast: Load returns an error and the process must not continue.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required model API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrMissingTavilyKey indicates web search is enabled without a Tavily key.
	ErrMissingTavilyKey = errors.New("missing Tavily API key")

	// ErrInvalidModelName indicates the model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates a temperature outside [0, 2].
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates a non-positive max token budget.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidMaxRetries indicates a non-positive generation retry budget.
	ErrInvalidMaxRetries = errors.New("invalid max retries")

	// ErrInvalidChunking indicates chunk size/overlap values that cannot produce chunks.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidTopK indicates a retrieval top-k outside [1, 50].
	ErrInvalidTopK = errors.New("invalid retrieval top-k")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidHTTPPort indicates the HTTP port is out of range.
	ErrInvalidHTTPPort = errors.New("invalid HTTP port")

	// ErrMissingAdminKey indicates serve mode was requested without an admin API key.
	ErrMissingAdminKey = errors.New("missing admin API key")
)

// Defaults for the retrieval and generation pipeline.
const (
	DefaultCollection   = "academy"
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultTopK         = 5
	DefaultTemperature  = 0.7
	// DefaultRetryTemperature is used when regenerating after a failed
	// groundedness check. Lower temperature keeps the retry closer to the
	// retrieved evidence.
	DefaultRetryTemperature = 0.3
	DefaultMaxTokens        = 1000
	DefaultMaxRetries       = 3

	// DefaultEmbedderModel outputs 768-dimension vectors, matching the
	// pgvector column in db/migrations.
	DefaultEmbedderModel = "text-embedding-004"
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON. When
// adding new secrets, update MarshalJSON as well.
type Config struct {
	// Model configuration
	Provider      string  `mapstructure:"provider" json:"provider"` // "gemini" (default)
	ModelName     string  `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"`
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`
	// RetryTemperature applies to regeneration attempts after a
	// not-grounded verdict.
	RetryTemperature float32 `mapstructure:"retry_temperature" json:"retry_temperature"`
	MaxTokens        int     `mapstructure:"max_tokens" json:"max_tokens"`
	MaxRetries       int     `mapstructure:"max_retries" json:"max_retries"`

	// Retrieval configuration
	Collection   string `mapstructure:"collection" json:"collection"`
	TopK         int    `mapstructure:"top_k" json:"top_k"`
	ChunkSize    int    `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int    `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Web search configuration
	WebSearchEnabled bool   `mapstructure:"web_search_enabled" json:"web_search_enabled"`
	TavilyAPIKey     string `mapstructure:"tavily_api_key" json:"tavily_api_key"` // SENSITIVE: masked in MarshalJSON
	WebMaxResults    int    `mapstructure:"web_max_results" json:"web_max_results"`

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Serve mode configuration
	HTTPPort    int    `mapstructure:"http_port" json:"http_port"`
	AdminAPIKey string `mapstructure:"admin_api_key" json:"admin_api_key"` // SENSITIVE: masked in MarshalJSON

	// Offload pool for blocking retrieval backends
	WorkerCount int `mapstructure:"worker_count" json:"worker_count"`
	QueueSize   int `mapstructure:"queue_size" json:"queue_size"`

	// Observability configuration
	Trace TraceConfig `mapstructure:"trace" json:"trace"`
}

// TraceConfig configures OTLP trace export to a local agent.
type TraceConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	AgentHost   string `mapstructure:"agent_host" json:"agent_host"`
	Environment string `mapstructure:"environment" json:"environment"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".tuvan")
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
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	viper.SetDefault("provider", "gemini")
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("temperature", DefaultTemperature)
	viper.SetDefault("retry_temperature", DefaultRetryTemperature)
	viper.SetDefault("max_tokens", DefaultMaxTokens)
	viper.SetDefault("max_retries", DefaultMaxRetries)

	viper.SetDefault("collection", DefaultCollection)
	viper.SetDefault("top_k", DefaultTopK)
	viper.SetDefault("chunk_size", DefaultChunkSize)
	viper.SetDefault("chunk_overlap", DefaultChunkOverlap)

	viper.SetDefault("web_search_enabled", false)
	viper.SetDefault("web_max_results", 3)

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "tuvan")
	viper.SetDefault("postgres_password", "tuvan_dev_password")
	viper.SetDefault("postgres_db_name", "tuvan")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("http_port", 8080)

	viper.SetDefault("worker_count", 8)
	viper.SetDefault("queue_size", 64)

	viper.SetDefault("trace.enabled", false)
	viper.SetDefault("trace.agent_host", "localhost:4318")
	viper.SetDefault("trace.environment", "dev")
	viper.SetDefault("trace.service_name", "tuvan")
}

// bindEnvVariables binds environment variables explicitly.
// GEMINI_API_KEY is read directly by the Genkit plugin, not via viper;
// its presence is checked in Validate.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("tavily_api_key", "TAVILY_API_KEY")
	mustBind("admin_api_key", "TUVAN_ADMIN_API_KEY")
	mustBind("web_search_enabled", "TUVAN_WEB_SEARCH_ENABLED")

	mustBind("provider", "TUVAN_PROVIDER")
	mustBind("model_name", "TUVAN_MODEL_NAME")
	mustBind("embedder_model", "TUVAN_EMBEDDER_MODEL")
	mustBind("collection", "TUVAN_COLLECTION")
	mustBind("http_port", "TUVAN_HTTP_PORT")

	mustBind("chunk_size", "TUVAN_CHUNK_SIZE")
	mustBind("chunk_overlap", "TUVAN_CHUNK_OVERLAP")
	mustBind("top_k", "TUVAN_TOP_K")
	mustBind("temperature", "TUVAN_TEMPERATURE")
	mustBind("max_tokens", "TUVAN_MAX_TOKENS")
	mustBind("max_retries", "TUVAN_MAX_RETRIES")
}

// parseDatabaseURL overrides the Postgres fields from DATABASE_URL when set.
// DATABASE_URL has the highest priority for storage configuration.
func (c *Config) parseDatabaseURL() error {
	raw := os.Getenv("DATABASE_URL")
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	c.PostgresHost = u.Hostname()
	if p := u.Port(); p != "" {
		port := 0
		if _, err := fmt.Sscanf(p, "%d", &port); err != nil {
			return fmt.Errorf("invalid port %q", p)
		}
		c.PostgresPort = port
	}
	if u.User != nil {
		c.PostgresUser = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.PostgresPassword = pw
		}
	}
	if db := filepath.Base(u.Path); db != "." && db != "/" {
		c.PostgresDBName = db
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.PostgresSSLMode = mode
	}
	return nil
}

// Validate checks the configuration. Any error here is fatal at startup.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}
	if c.ModelName == "" {
		return fmt.Errorf("%w: model name is empty", ErrInvalidModelName)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %.2f (want 0..2)", ErrInvalidTemperature, c.Temperature)
	}
	if c.RetryTemperature < 0 || c.RetryTemperature > 2 {
		return fmt.Errorf("%w: retry %.2f (want 0..2)", ErrInvalidTemperature, c.RetryTemperature)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxTokens, c.MaxTokens)
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxRetries, c.MaxRetries)
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidChunking, c.ChunkSize, c.ChunkOverlap)
	}
	if c.TopK < 1 || c.TopK > 50 {
		return fmt.Errorf("%w: %d (want 1..50)", ErrInvalidTopK, c.TopK)
	}
	if c.PostgresHost == "" {
		return ErrInvalidPostgresHost
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return ErrInvalidPostgresDBName
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidHTTPPort, c.HTTPPort)
	}
	if c.Provider == "" || c.Provider == "gemini" {
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY is not set", ErrMissingAPIKey)
		}
	}
	if c.WebSearchEnabled && c.TavilyAPIKey == "" {
		return fmt.Errorf("%w: set TAVILY_API_KEY or disable web search", ErrMissingTavilyKey)
	}
	return nil
}

// ValidateServe checks additional requirements for serve mode.
func (c *Config) ValidateServe() error {
	if c == nil {
		return ErrConfigNil
	}
	if c.AdminAPIKey == "" {
		return fmt.Errorf("%w: set TUVAN_ADMIN_API_KEY", ErrMissingAdminKey)
	}
	return nil
}

// PostgresURL returns the connection string in URL form, used by migrations.
func (c *Config) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.PostgresUser),
		url.QueryEscape(c.PostgresPassword),
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDBName,
		c.PostgresSSLMode,
	)
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks avoid accidental substring matches with real secrets.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Secrets of 8 chars or fewer
// are fully masked; longer secrets keep the first and last two characters
// for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit masking of sensitive
// fields so the config can be returned by the admin endpoint.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	masked := alias(c)
	masked.PostgresPassword = maskSecret(c.PostgresPassword)
	masked.TavilyAPIKey = maskSecret(c.TavilyAPIKey)
	masked.AdminAPIKey = maskSecret(c.AdminAPIKey)
	return json.Marshal(masked)
}

// String implements fmt.Stringer using the masked JSON form.
func (c Config) String() string {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Sprintf("Config{marshal error: %v}", err)
	}
	return string(b)
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Index backend identifiers accepted by INDEX_BACKEND.
const (
	IndexBackendSQLite = "sqlite"
	IndexBackendRedis  = "redis"
)

// Config holds all application configuration, populated from the
// environment with sensible defaults.
//
// Environment Variables:
//
// LLM Configuration:
// - LLM_API_KEY: API key for the LLM provider (optional; echo backend without it)
// - LLM_API_URL: API endpoint URL (default: https://openrouter.ai/api/v1)
// - LLM_MODEL: Model name to use (default: openai/gpt-4o-mini)
// - LLM_MAX_TOKENS: Maximum tokens for responses (default: 8000)
// - LLM_TEMPERATURE: Temperature for responses (default: 0.3)
// - LLM_TIMEOUT: Request timeout in seconds (default: 60)
//
// HTTP Configuration:
// - HTTP_ADDR: Listen address (default: :8080)
//
// System Configuration:
// - DATA_DIR: Base directory for the database and staged artifacts (default: ./data)
// - LOG_FILE: Optional log file path (default: stdout only)
//
// Pipeline Configuration:
// - ALLOWED_LANGUAGES: Comma-separated source languages (default: latin,greek,english)
// - STAGE_TIMEOUT: Per-stage timeout (default: 10m)
// - CHUNK_SIZE: Paragraphs per chunk (default: 3)
// - INDEX_FAILURE_FATAL: Whether an indexing failure fails the job (default: true)
// - INDEX_BACKEND: Chunk index backend, sqlite or redis (default: sqlite)
// - INDEX_REDIS_URL: Redis connection URL, required for the redis backend
// - METADATA_API_BASE: Metadata catalogue base URL (default: empty, offline mode)
//
// Reconcile Configuration:
// - RECONCILE_CRON: Sweep schedule (default: */10 * * * *)
// - STALE_AFTER: Age after which a non-terminal job counts as stalled (default: 1h)
// - ARTIFACT_TTL: Age after which staged artifacts are pruned (default: 168h)
type Config struct {
	LLM       LLMConfig       `json:"llm"`
	HTTP      HTTPConfig      `json:"http"`
	System    SystemConfig    `json:"system"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Reconcile ReconcileConfig `json:"reconcile"`
}

// LLMConfig holds the configuration for the translation backend.
// Supports any OpenAI-compatible provider.
type LLMConfig struct {
	APIKey      string  `json:"api_key"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     int     `json:"timeout"`
	AppName     string  `json:"app_name"`
}

// HTTPConfig holds the HTTP server configuration.
type HTTPConfig struct {
	Addr string `json:"addr"`
}

// SystemConfig holds filesystem-level configuration.
type SystemConfig struct {
	DataDir string `json:"data_dir"`
	LogFile string `json:"log_file"`
}

// PipelineConfig holds the processing pipeline configuration.
type PipelineConfig struct {
	AllowedLanguages  []string      `json:"allowed_languages"`
	StageTimeout      time.Duration `json:"stage_timeout"`
	ChunkSize         int           `json:"chunk_size"`
	IndexFailureFatal bool          `json:"index_failure_fatal"`
	IndexBackend      string        `json:"index_backend"`
	IndexRedisURL     string        `json:"index_redis_url"`
	MetadataAPIBase   string        `json:"metadata_api_base"`
}

// ReconcileConfig holds the background sweep configuration.
type ReconcileConfig struct {
	CronExpr    string        `json:"cron_expr"`
	StaleAfter  time.Duration `json:"stale_after"`
	ArtifactTTL time.Duration `json:"artifact_ttl"`
}

// DBPath returns the sqlite database location under the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.System.DataDir, "works.db")
}

// StorageDir returns the staging directory for downloaded artifacts.
func (c *Config) StorageDir() string {
	return filepath.Join(c.System.DataDir, "artifacts")
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		LLM: LLMConfig{
			APIKey:      getEnvString("LLM_API_KEY", ""),
			APIURL:      getEnvString("LLM_API_URL", "https://openrouter.ai/api/v1"),
			Model:       getEnvString("LLM_MODEL", "openai/gpt-4o-mini"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 8000),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.3),
			Timeout:     getEnvInt("LLM_TIMEOUT", 60),
			AppName:     getEnvString("LLM_APP_NAME", "classical-works-processor"),
		},
		HTTP: HTTPConfig{
			Addr: getEnvString("HTTP_ADDR", ":8080"),
		},
		System: SystemConfig{
			DataDir: getEnvString("DATA_DIR", "./data"),
			LogFile: getEnvString("LOG_FILE", ""),
		},
		Pipeline: PipelineConfig{
			AllowedLanguages:  getEnvStringSlice("ALLOWED_LANGUAGES", []string{"latin", "greek", "english"}),
			StageTimeout:      getEnvDuration("STAGE_TIMEOUT", 10*time.Minute),
			ChunkSize:         getEnvInt("CHUNK_SIZE", 3),
			IndexFailureFatal: getEnvBool("INDEX_FAILURE_FATAL", true),
			IndexBackend:      getEnvString("INDEX_BACKEND", IndexBackendSQLite),
			IndexRedisURL:     getEnvString("INDEX_REDIS_URL", ""),
			MetadataAPIBase:   getEnvString("METADATA_API_BASE", ""),
		},
		Reconcile: ReconcileConfig{
			CronExpr:    getEnvString("RECONCILE_CRON", "*/10 * * * *"),
			StaleAfter:  getEnvDuration("STALE_AFTER", time.Hour),
			ArtifactTTL: getEnvDuration("ARTIFACT_TTL", 168*time.Hour),
		},
	}

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if strings.TrimSpace(c.System.DataDir) == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if len(c.Pipeline.AllowedLanguages) == 0 {
		return fmt.Errorf("ALLOWED_LANGUAGES must name at least one language")
	}
	if c.Pipeline.ChunkSize < 1 {
		return fmt.Errorf("CHUNK_SIZE must be greater than 0")
	}
	switch c.Pipeline.IndexBackend {
	case IndexBackendSQLite:
	case IndexBackendRedis:
		if strings.TrimSpace(c.Pipeline.IndexRedisURL) == "" {
			return fmt.Errorf("INDEX_REDIS_URL is required for the redis index backend")
		}
	default:
		return fmt.Errorf("unknown INDEX_BACKEND %q", c.Pipeline.IndexBackend)
	}
	if _, err := cron.ParseStandard(c.Reconcile.CronExpr); err != nil {
		return fmt.Errorf("invalid RECONCILE_CRON: %w", err)
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean value from environment variables with default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration value from environment variables with default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvStringSlice gets a comma-separated list from environment variables with default
func getEnvStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	ret := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			ret = append(ret, part)
		}
	}
	if len(ret) == 0 {
		return defaultValue
	}
	return ret
}

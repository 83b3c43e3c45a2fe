package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment"` // "development" or "production"
	Server      ServerConfig   `toml:"server"`
	Storage     StorageConfig  `toml:"storage"`
	Logging     LoggingConfig  `toml:"logging"`
	Audit       AuditConfig    `toml:"audit"`
	Claude      ClaudeConfig   `toml:"claude"`
	Gemini      GeminiConfig   `toml:"gemini"`
	LLM         LLMConfig      `toml:"llm"`
	Analysis    AnalysisConfig `toml:"analysis"`
	Poller      PollerConfig   `toml:"poller"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=1,max=65535"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// AuditConfig contains the audit runner's batch and timeout discipline
type AuditConfig struct {
	// MaxFilesPerBatch bounds how many pending files one run() claims.
	// Clamped to [1,5] so a single invocation stays time-boxed.
	MaxFilesPerBatch int `toml:"max_files_per_batch" validate:"min=1,max=5"`

	// FileTimeout wraps every per-file retrieve/extract/LLM pipeline.
	FileTimeout string `toml:"file_timeout"` // duration string, default "90s"

	// StaleGrace is added to FileTimeout when deciding whether a file left
	// in processing by a crashed invocation may be reclaimed.
	StaleGrace string `toml:"stale_grace"` // duration string, default "30s"

	// Retry policy for retryable LLM failures (rate limits, transient
	// network faults). Non-retryable errors propagate immediately.
	MaxRetries     int    `toml:"max_retries" validate:"min=0,max=5"`
	InitialBackoff string `toml:"initial_backoff"` // duration string, default "2s"
}

// FileTimeoutDuration parses the per-file timeout with its default
func (c *AuditConfig) FileTimeoutDuration() time.Duration {
	return parseDurationOr(c.FileTimeout, 90*time.Second)
}

// StaleGraceDuration parses the staleness grace with its default
func (c *AuditConfig) StaleGraceDuration() time.Duration {
	return parseDurationOr(c.StaleGrace, 30*time.Second)
}

// InitialBackoffDuration parses the retry backoff base with its default
func (c *AuditConfig) InitialBackoffDuration() time.Duration {
	return parseDurationOr(c.InitialBackoff, 2*time.Second)
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key
	Model       string  `toml:"model"`       // default: "claude-sonnet-4-20250514"
	MaxTokens   int     `toml:"max_tokens"`  // default: 8192
	Timeout     string  `toml:"timeout"`     // duration string, default "2m"
	RateLimit   string  `toml:"rate_limit"`  // minimum spacing between calls, default "1s"
	Temperature float32 `toml:"temperature"` // default: 0.2 (conservative extraction)
}

// GeminiConfig contains Google Gemini API configuration used for
// vision OCR of image documents
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`      // default: "gemini-2.5-flash"
	Timeout     string  `toml:"timeout"`    // duration string, default "2m"
	RateLimit   string  `toml:"rate_limit"` // default "4s" (15 RPM free tier)
	Temperature float32 `toml:"temperature"`
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	LLMProviderClaude LLMProvider = "claude"
	LLMProviderGemini LLMProvider = "gemini"
)

// LLMConfig selects the provider for fact extraction and synthesis.
// Vision OCR always goes through Gemini.
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"` // default: "claude"
}

// AnalysisConfig configures the optional secondary analysis backend
type AnalysisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
	APIKey   string `toml:"api_key"`
	Timeout  string `toml:"timeout"` // duration string, default "60s"
}

// PollerConfig drives the in-process poller that advances queued and
// running jobs. External callers hitting the run action remain the
// authoritative driver; the poller is a convenience for single-node
// deployments.
type PollerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // cron expression, default "@every 5s"
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability;
// only user-facing settings belong in indago.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/indago",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Audit: AuditConfig{
			MaxFilesPerBatch: 3,
			FileTimeout:      "90s",
			StaleGrace:       "30s",
			MaxRetries:       2,
			InitialBackoff:   "2s",
		},
		Claude: ClaudeConfig{
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   8192,
			Timeout:     "2m",
			RateLimit:   "1s",
			Temperature: 0.2,
		},
		Gemini: GeminiConfig{
			Model:     "gemini-2.5-flash",
			Timeout:   "2m",
			RateLimit: "4s",
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderClaude,
		},
		Analysis: AnalysisConfig{
			Timeout: "60s",
		},
		Poller: PollerConfig{
			Enabled:  true,
			Schedule: "@every 5s",
		},
	}
}

// LoadConfig loads configuration in priority order:
// defaults -> config files (in order) -> environment variables
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// applyEnvOverrides applies INDAGO_* environment variables over the
// loaded configuration. API keys also fall back to the vendor-standard
// variable names.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("INDAGO_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("INDAGO_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("INDAGO_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("INDAGO_DB_PATH"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("INDAGO_CLAUDE_API_KEY"); v != "" {
		config.Claude.APIKey = v
	} else if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && config.Claude.APIKey == "" {
		config.Claude.APIKey = v
	}
	if v := os.Getenv("INDAGO_GEMINI_API_KEY"); v != "" {
		config.Gemini.APIKey = v
	} else if v := os.Getenv("GEMINI_API_KEY"); v != "" && config.Gemini.APIKey == "" {
		config.Gemini.APIKey = v
	}
	if v := os.Getenv("INDAGO_ANALYSIS_ENDPOINT"); v != "" {
		config.Analysis.Endpoint = v
		config.Analysis.Enabled = true
	}
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

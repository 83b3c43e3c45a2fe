package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 3, config.Audit.MaxFilesPerBatch)
	assert.Equal(t, 2, config.Audit.MaxRetries)
	assert.Equal(t, LLMProviderClaude, config.LLM.DefaultProvider)
	assert.Equal(t, "claude-sonnet-4-20250514", config.Claude.Model)
	assert.True(t, config.Poller.Enabled)
	assert.False(t, config.Analysis.Enabled)
}

func TestLoadConfigFromFile(t *testing.T) {
	content := `
environment = "production"

[server]
port = 9090
host = "0.0.0.0"

[audit]
max_files_per_batch = 5
file_timeout = "45s"

[llm]
default_provider = "gemini"

[analysis]
enabled = true
endpoint = "https://analysis.example.com/v1/audit"
api_key = "test-key"
`
	path := filepath.Join(t.TempDir(), "indago.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "production", config.Environment)
	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 5, config.Audit.MaxFilesPerBatch)
	assert.Equal(t, 45*time.Second, config.Audit.FileTimeoutDuration())
	assert.Equal(t, LLMProviderGemini, config.LLM.DefaultProvider)
	assert.True(t, config.Analysis.Enabled)
	assert.Equal(t, "https://analysis.example.com/v1/audit", config.Analysis.Endpoint)

	// Untouched sections keep their defaults
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, 2, config.Audit.MaxRetries)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/indago.toml")
	assert.Error(t, err)
}

func TestLoadConfigRejectsInvalidBatchSize(t *testing.T) {
	content := `
[audit]
max_files_per_batch = 20
`
	path := filepath.Join(t.TempDir(), "indago.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("INDAGO_PORT", "7070")
	t.Setenv("INDAGO_HOST", "10.0.0.5")
	t.Setenv("INDAGO_LOG_LEVEL", "debug")
	t.Setenv("INDAGO_DB_PATH", "/var/lib/indago")
	t.Setenv("INDAGO_CLAUDE_API_KEY", "sk-test")
	t.Setenv("INDAGO_ANALYSIS_ENDPOINT", "https://analysis.example.com")

	config, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 7070, config.Server.Port)
	assert.Equal(t, "10.0.0.5", config.Server.Host)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "/var/lib/indago", config.Storage.Badger.Path)
	assert.Equal(t, "sk-test", config.Claude.APIKey)
	assert.Equal(t, "https://analysis.example.com", config.Analysis.Endpoint)
	assert.True(t, config.Analysis.Enabled, "setting the endpoint enables the backend")
}

func TestVendorAPIKeyFallback(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-vendor")
	t.Setenv("GEMINI_API_KEY", "gm-vendor")

	config, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "sk-vendor", config.Claude.APIKey)
	assert.Equal(t, "gm-vendor", config.Gemini.APIKey)
}

func TestExplicitKeyBeatsVendorFallback(t *testing.T) {
	t.Setenv("INDAGO_CLAUDE_API_KEY", "sk-explicit")
	t.Setenv("ANTHROPIC_API_KEY", "sk-vendor")

	config, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "sk-explicit", config.Claude.APIKey)
}

func TestDurationHelpers(t *testing.T) {
	audit := AuditConfig{}
	assert.Equal(t, 90*time.Second, audit.FileTimeoutDuration(), "empty falls back to default")
	assert.Equal(t, 30*time.Second, audit.StaleGraceDuration())
	assert.Equal(t, 2*time.Second, audit.InitialBackoffDuration())

	audit = AuditConfig{FileTimeout: "2m", StaleGrace: "garbage", InitialBackoff: "500ms"}
	assert.Equal(t, 2*time.Minute, audit.FileTimeoutDuration())
	assert.Equal(t, 30*time.Second, audit.StaleGraceDuration(), "unparseable falls back to default")
	assert.Equal(t, 500*time.Millisecond, audit.InitialBackoffDuration())
}

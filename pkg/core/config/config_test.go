package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestParse_OverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
active_provider: claude
agents:
  extraction:
    provider: gemini
    model: gemini-2.0-flash
pipeline:
  degrade_on_extraction_failure: true
retry:
  max_attempts: 5
`))
	require.NoError(t, err)
	assert.Equal(t, "claude", cfg.ActiveProvider)
	assert.Equal(t, "gemini", cfg.Agents["extraction"].Provider)
	assert.True(t, cfg.Pipeline.DegradeOnExtractionFailure)
	assert.Equal(t, 6, cfg.Pipeline.NarrativeConcurrency)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.InitialInterval)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestRetryConfig_Policy(t *testing.T) {
	p := Default().Retry.Policy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 120*time.Second, p.RequestTimeout)
	assert.Nil(t, p.OnRetry)
}

func TestParse_RejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown provider":  "active_provider: openai",
		"unknown override":  "agents:\n  chat:\n    provider: qwen",
		"zero attempts":     "retry:\n  max_attempts: 0",
		"max below initial": "retry:\n  initial_interval: 10s\n  max_interval: 1s",
		"bad level":         "log:\n  level: loud",
		"too many workers":  "pipeline:\n  narrative_concurrency: 12",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFileUsesDefaultsAndEnv(t *testing.T) {
	t.Setenv("ACTIVE_PROVIDER", "DeepSeek")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DEEPSEEK_API_KEY", "sk-test")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "g-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "deepseek", cfg.ActiveProvider)
	assert.Equal(t, "sk-test", cfg.Secrets.DeepSeekAPIKey)
	assert.Equal(t, "g-key", cfg.Secrets.GeminiAPIKey)
}

func TestLoad_ReadsFile(t *testing.T) {
	t.Setenv("ACTIVE_PROVIDER", "")
	t.Setenv("LOG_LEVEL", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("active_provider: gemini-legacy\nlog:\n  level: debug\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini-legacy", cfg.ActiveProvider)
	assert.Equal(t, "debug", cfg.Log.Level)
}

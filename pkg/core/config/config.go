// Package config loads the service configuration from YAML and the environment.
package config

import (
	"fmt"
	"os"
	"statement_report/pkg/core/llm"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// DefaultPath is where binaries look for the config file.
const DefaultPath = "config/config.yaml"

type Config struct {
	ActiveProvider string                 `yaml:"active_provider" validate:"required,oneof=gemini gemini-legacy claude deepseek"`
	Agents         map[string]AgentConfig `yaml:"agents" validate:"dive"`
	Pipeline       PipelineConfig         `yaml:"pipeline"`
	Retry          RetryConfig            `yaml:"retry"`
	RateLimit      RateLimitConfig        `yaml:"rate_limit"`
	Storage        StorageConfig          `yaml:"storage"`
	Server         ServerConfig           `yaml:"server"`
	Log            LogConfig              `yaml:"log"`
	PromptsDir     string                 `yaml:"prompts_dir"`

	// From the environment only.
	Secrets Secrets `yaml:"-"`
}

// AgentConfig optionally pins an agent type to a provider and model.
type AgentConfig struct {
	Provider    string `yaml:"provider" validate:"omitempty,oneof=gemini gemini-legacy claude deepseek"`
	Model       string `yaml:"model"`
	Description string `yaml:"description"`
}

type PipelineConfig struct {
	DegradeOnExtractionFailure bool `yaml:"degrade_on_extraction_failure"`
	NarrativeConcurrency       int  `yaml:"narrative_concurrency" validate:"gte=1,lte=6"`
}

type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts" validate:"gte=1,lte=10"`
	InitialInterval time.Duration `yaml:"initial_interval" validate:"gt=0"`
	MaxInterval     time.Duration `yaml:"max_interval" validate:"gtefield=InitialInterval"`
	RequestTimeout  time.Duration `yaml:"request_timeout" validate:"gt=0"`
}

// Policy converts the settings into the policy used by the stages.
func (r RetryConfig) Policy() llm.RetryPolicy {
	return llm.RetryPolicy{
		MaxAttempts:     r.MaxAttempts,
		InitialInterval: r.InitialInterval,
		MaxInterval:     r.MaxInterval,
		RequestTimeout:  r.RequestTimeout,
	}
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int     `yaml:"burst" validate:"gte=0"`
}

type StorageConfig struct {
	FileDir string `yaml:"file_dir"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr" validate:"required"`
	MaxUploadMB int64  `yaml:"max_upload_mb" validate:"gte=1"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// Secrets are read from the environment (and .env) and never from YAML.
type Secrets struct {
	GeminiAPIKey    string
	AnthropicAPIKey string
	DeepSeekAPIKey  string
	DatabaseURL     string
	SentryDSN       string
	Environment     string
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		ActiveProvider: "gemini",
		Agents:         map[string]AgentConfig{},
		Pipeline: PipelineConfig{
			DegradeOnExtractionFailure: false,
			NarrativeConcurrency:       6,
		},
		Retry: RetryConfig{
			MaxAttempts:     3,
			InitialInterval: 2 * time.Second,
			MaxInterval:     30 * time.Second,
			RequestTimeout:  120 * time.Second,
		},
		RateLimit: RateLimitConfig{RequestsPerSecond: 2, Burst: 6},
		Storage:   StorageConfig{FileDir: ".cache"},
		Server:    ServerConfig{Addr: ":8080", MaxUploadMB: 20},
		Log:       LogConfig{Level: "info"},
	}
}

// Load reads path (a missing file is not an error), overlays .env and the
// process environment, then validates.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	applyEnv(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults and validates. The environment is not consulted.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Secrets = Secrets{
		GeminiAPIKey:    firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		DeepSeekAPIKey:  os.Getenv("DEEPSEEK_API_KEY"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SentryDSN:       os.Getenv("SENTRY_DSN"),
		Environment:     os.Getenv("ENVIRONMENT"),
	}
	if p := os.Getenv("ACTIVE_PROVIDER"); p != "" {
		cfg.ActiveProvider = strings.ToLower(p)
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.Log.Level = strings.ToLower(lvl)
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

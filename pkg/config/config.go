// Package config loads the advisor configuration from YAML. Configuration is
// an immutable value passed to constructors; there is no global state.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults exported for documentation and validation.
const (
	DefaultProvider          = "openrouter"
	DefaultModel             = "moonshotai/kimi-k2-thinking"
	DefaultBaseURL           = "https://openrouter.ai/api/v1"
	DefaultTimeoutSeconds    = 120
	DefaultCriticMaxRounds   = 2
	DefaultMinProposals      = 1
	DefaultConfidenceFloor   = 0.35
	DefaultHistoryTokens     = 6000
	DefaultUserMessageRunes  = 4000
	DefaultFactsPerBucket    = 8
	DefaultRequestsPerMinute = 60
)

// Config is the complete advisor configuration.
type Config struct {
	Provider  ProviderConfig  `yaml:"provider"`
	Critic    CriticConfig    `yaml:"critic"`
	History   HistoryConfig   `yaml:"history"`
	Memory    MemoryConfig    `yaml:"memory"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ProviderConfig selects and tunes the model gateway.
type ProviderConfig struct {
	Name              string  `yaml:"name"`
	Model             string  `yaml:"model"`
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Temperature       float64 `yaml:"temperature"`
	MaxTokens         int     `yaml:"max_tokens"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	RequestsPerMinute int     `yaml:"requests_per_minute"`
}

// Timeout returns the provider call timeout as a duration.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// APIKey resolves the provider API key from the configured environment
// variable.
func (p ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// CriticConfig tunes the bounded critic-revise loop.
type CriticConfig struct {
	Enabled         bool    `yaml:"enabled"`
	MaxRounds       int     `yaml:"max_rounds"`
	MinProposals    int     `yaml:"min_proposals"`
	ConfidenceFloor float64 `yaml:"confidence_floor"`
}

// HistoryConfig bounds the conversation window sent with each model call.
type HistoryConfig struct {
	TokenBudget      int `yaml:"token_budget"`
	UserMessageRunes int `yaml:"user_message_runes"`
}

// MemoryConfig bounds per-bucket memory fact lists.
type MemoryConfig struct {
	FactsPerBucket int `yaml:"facts_per_bucket"`
}

// LoggingConfig selects log destination and verbosity.
type LoggingConfig struct {
	Dir      string `yaml:"dir"`
	MinLevel string `yaml:"min_level"`
}

// TelemetryConfig toggles trace export.
type TelemetryConfig struct {
	TracingEnabled bool `yaml:"tracing_enabled"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Provider: ProviderConfig{
			Name:              DefaultProvider,
			Model:             DefaultModel,
			BaseURL:           DefaultBaseURL,
			APIKeyEnv:         "OPENROUTER_API_KEY",
			Temperature:       0.4,
			TimeoutSeconds:    DefaultTimeoutSeconds,
			RequestsPerMinute: DefaultRequestsPerMinute,
		},
		Critic: CriticConfig{
			Enabled:         true,
			MaxRounds:       DefaultCriticMaxRounds,
			MinProposals:    DefaultMinProposals,
			ConfidenceFloor: DefaultConfidenceFloor,
		},
		History: HistoryConfig{
			TokenBudget:      DefaultHistoryTokens,
			UserMessageRunes: DefaultUserMessageRunes,
		},
		Memory: MemoryConfig{
			FactsPerBucket: DefaultFactsPerBucket,
		},
		Logging: LoggingConfig{
			Dir:      "",
			MinLevel: "info",
		},
	}
}

// Load reads YAML from path over the defaults. A missing path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Provider.Model == "" {
		return fmt.Errorf("provider.model must be set")
	}
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url must be set")
	}
	if c.Critic.MaxRounds < 0 {
		return fmt.Errorf("critic.max_rounds must not be negative")
	}
	if c.Critic.ConfidenceFloor < 0 || c.Critic.ConfidenceFloor > 1 {
		return fmt.Errorf("critic.confidence_floor must be within [0,1]")
	}
	if c.Memory.FactsPerBucket <= 0 {
		return fmt.Errorf("memory.facts_per_bucket must be positive")
	}
	return nil
}

// Package config loads runtime settings from hearth-config.json and
// HEARTH_* environment variables, environment winning over file values.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration surface.
type Config struct {
	Provider ProviderConfig `mapstructure:"provider"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Breaker  BreakerConfig  `mapstructure:"breaker"`
	Store    StoreConfig    `mapstructure:"store"`
	LogLevel string         `mapstructure:"log_level"`
}

// ProviderConfig selects and parameterizes the active model backend.
type ProviderConfig struct {
	Name        string  `mapstructure:"name"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	// TimeoutSeconds is the per-request HTTP timeout.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AgentConfig bounds the reasoning loop.
type AgentConfig struct {
	MaxIterations int `mapstructure:"max_iterations"`
	HistoryLimit  int `mapstructure:"history_limit"`
}

// RetryConfig controls provider retry behavior.
type RetryConfig struct {
	MaxAttempts     int `mapstructure:"max_attempts"`
	BaseDelayMillis int `mapstructure:"base_delay_ms"`
	MaxDelaySeconds int `mapstructure:"max_delay_seconds"`
}

// BreakerConfig controls the provider circuit breaker.
type BreakerConfig struct {
	FailureThreshold int `mapstructure:"failure_threshold"`
	CooldownSeconds  int `mapstructure:"cooldown_seconds"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Backend is one of "memory", "file", or "sqlite".
	Backend string `mapstructure:"backend"`
	// Path is the data directory (file backend) or database file (sqlite).
	Path string `mapstructure:"path"`
}

// BaseDelay returns the retry base delay as a duration.
func (c RetryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMillis) * time.Millisecond
}

// MaxDelay returns the retry delay ceiling as a duration.
func (c RetryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelaySeconds) * time.Second
}

// Cooldown returns the breaker cool-down as a duration.
func (c BreakerConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider.name", "ollama")
	v.SetDefault("provider.model", "llama3.1")
	v.SetDefault("provider.temperature", 0.3)
	v.SetDefault("provider.max_tokens", 1024)
	v.SetDefault("provider.timeout_seconds", 120)

	v.SetDefault("agent.max_iterations", 8)
	v.SetDefault("agent.history_limit", 40)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay_ms", 1000)
	v.SetDefault("retry.max_delay_seconds", 30)

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.cooldown_seconds", 30)

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.path", "")

	v.SetDefault("log_level", "info")
}

// Load reads hearth-config.json from the home directory or the working
// directory, then applies HEARTH_* environment overrides. A missing config
// file is fine; defaults cover everything.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("hearth-config")
	v.SetConfigType("json")
	v.AddConfigPath("$HOME")
	v.AddConfigPath(".")
	return load(v)
}

// LoadFile reads configuration from an explicit path, with the same
// environment overrides as Load.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("HEARTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that cannot possibly work.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Provider.Name) {
	case "ollama", "openai", "anthropic", "mock":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider.Name)
	}
	if c.Provider.Model == "" {
		return fmt.Errorf("provider.model is required")
	}
	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("agent.max_iterations must be at least 1")
	}
	switch strings.ToLower(c.Store.Backend) {
	case "memory":
	case "file", "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the %s backend", c.Store.Backend)
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hearth-config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"provider": {"name": "mock", "model": "m"}}`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "mock", cfg.Provider.Name)
	assert.Equal(t, 8, cfg.Agent.MaxIterations)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 120, cfg.Provider.TimeoutSeconds)
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hearth-config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"provider": {
			"name": "anthropic",
			"model": "claude-sonnet",
			"api_key": "sk-test",
			"temperature": 0.7,
			"max_tokens": 2048
		},
		"agent": {"max_iterations": 5},
		"breaker": {"failure_threshold": 3, "cooldown_seconds": 60},
		"store": {"backend": "sqlite", "path": "/tmp/hearth.db"}
	}`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Provider.Name)
	assert.Equal(t, "sk-test", cfg.Provider.APIKey)
	assert.InDelta(t, 0.7, cfg.Provider.Temperature, 0.0001)
	assert.Equal(t, 5, cfg.Agent.MaxIterations)
	assert.Equal(t, 3, cfg.Breaker.FailureThreshold)
	assert.Equal(t, float64(60), cfg.Breaker.Cooldown().Seconds())
	assert.Equal(t, "sqlite", cfg.Store.Backend)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	base := func() *Config {
		return &Config{
			Provider: ProviderConfig{Name: "ollama", Model: "llama3.1"},
			Agent:    AgentConfig{MaxIterations: 8},
			Store:    StoreConfig{Backend: "memory"},
		}
	}

	good := base()
	require.NoError(t, good.Validate())

	noModel := base()
	noModel.Provider.Model = ""
	assert.Error(t, noModel.Validate())

	badProvider := base()
	badProvider.Provider.Name = "grokbot"
	assert.Error(t, badProvider.Validate())

	zeroIterations := base()
	zeroIterations.Agent.MaxIterations = 0
	assert.Error(t, zeroIterations.Validate())

	sqliteWithoutPath := base()
	sqliteWithoutPath.Store = StoreConfig{Backend: "sqlite"}
	assert.Error(t, sqliteWithoutPath.Validate())

	badBackend := base()
	badBackend.Store = StoreConfig{Backend: "redis"}
	assert.Error(t, badBackend.Validate())
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hearth-config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"provider": {"name": "ollama", "model": "llama3.1"}}`), 0o644))

	t.Setenv("HEARTH_PROVIDER_MODEL", "qwen2.5")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5", cfg.Provider.Model)
}

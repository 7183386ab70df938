package llm

import (
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"hearth/internal/agent/ports"
	hearthErrors "hearth/internal/errors"
	"hearth/internal/logging"
	"hearth/internal/observability"
	"hearth/internal/parser"
)

// Supported provider names.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

const (
	defaultCacheSize = 64
	defaultCacheTTL  = 30 * time.Minute
)

// ProviderConfig describes how to reach one provider/model pair.
type ProviderConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	// Timeout is the per-request timeout in seconds. Zero picks the
	// provider default.
	Timeout int
}

func (c ProviderConfig) cacheKey() string {
	return c.Provider + ":" + c.Model + ":" + c.BaseURL
}

type cacheEntry struct {
	client    ports.LLMClient
	expiresAt time.Time
}

// Factory builds fully decorated provider clients and caches them.
//
// Assembly order matters: the bare HTTP client is wrapped with retry
// and circuit breaking first, then session rate limiting, then textual
// tool-call parsing, so parsed calls go through the same failure
// handling as native ones.
type Factory struct {
	mu       sync.Mutex
	cache    *lru.Cache[string, cacheEntry]
	cacheTTL time.Duration
	breakers *hearthErrors.CircuitBreakerManager
	logger   logging.Logger

	retryConfig   hearthErrors.RetryConfig
	breakerConfig hearthErrors.CircuitBreakerConfig
	rateConfig    RateLimitConfig
	metrics       *observability.Metrics

	retryEnabled     bool
	rateLimitEnabled bool
	parsingEnabled   bool
}

// NewFactory returns a factory with retry and tool-call parsing enabled
// and session rate limiting disabled.
func NewFactory() *Factory {
	cache, _ := lru.New[string, cacheEntry](defaultCacheSize)
	return &Factory{
		cache:          cache,
		cacheTTL:       defaultCacheTTL,
		breakers:       hearthErrors.NewCircuitBreakerManager(hearthErrors.DefaultCircuitBreakerConfig()),
		logger:         logging.NewComponentLogger("llm-factory"),
		retryConfig:    hearthErrors.DefaultRetryConfig(),
		breakerConfig:  hearthErrors.DefaultCircuitBreakerConfig(),
		rateConfig:     DefaultRateLimitConfig(),
		retryEnabled:   true,
		parsingEnabled: true,
	}
}

// SetRetryConfig replaces the retry policy for clients built afterwards.
func (f *Factory) SetRetryConfig(config hearthErrors.RetryConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retryConfig = config
}

// SetBreakerConfig replaces the circuit breaker policy for clients built
// afterwards. Existing breakers keep their original settings.
func (f *Factory) SetBreakerConfig(config hearthErrors.CircuitBreakerConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.breakerConfig = config
	f.breakers.SetConfig(f.wrappedBreakerConfig())
}

// SetMetrics attaches a metrics sink to clients built afterwards.
func (f *Factory) SetMetrics(metrics *observability.Metrics) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics = metrics
	f.breakers.SetConfig(f.wrappedBreakerConfig())
}

// EnableSessionRateLimit turns on per-session throttling.
func (f *Factory) EnableSessionRateLimit(config RateLimitConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rateConfig = config
	f.rateLimitEnabled = true
}

// DisableRetry strips the retry/breaker layer; mainly for tests.
func (f *Factory) DisableRetry() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retryEnabled = false
}

// SetCacheOptions resizes the client cache. Size must be positive.
func (f *Factory) SetCacheOptions(size int, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cache, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return err
	}
	f.cache = cache
	f.cacheTTL = ttl
	return nil
}

// GetClient returns a decorated client for the given provider config,
// reusing a cached instance when one is still fresh.
func (f *Factory) GetClient(config ProviderConfig) (ports.LLMClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := config.cacheKey()
	if entry, ok := f.cache.Get(key); ok {
		if time.Now().Before(entry.expiresAt) {
			return entry.client, nil
		}
		f.cache.Remove(key)
	}

	client, err := f.buildClient(config)
	if err != nil {
		return nil, err
	}

	f.cache.Add(key, cacheEntry{
		client:    client,
		expiresAt: time.Now().Add(f.cacheTTL),
	})
	f.logger.Debug("Built %s client for model %s", config.Provider, config.Model)
	return client, nil
}

func (f *Factory) buildClient(config ProviderConfig) (ports.LLMClient, error) {
	base, err := f.buildBaseClient(config)
	if err != nil {
		return nil, err
	}

	client := base
	if f.retryEnabled {
		client = NewRetryClient(client, f.retryConfig, f.breakerFor(config), f.metrics, config.Provider)
	}
	if f.rateLimitEnabled {
		client = WrapWithSessionRateLimit(client, f.rateConfig)
	}
	// Providers with native tool calling send the catalogue on the wire;
	// only the rest get the textual call convention.
	if f.parsingEnabled && !supportsNativeToolCalls(config.Provider) {
		client = WrapWithToolCallParsing(client, parser.New())
	}
	return client, nil
}

func supportsNativeToolCalls(provider string) bool {
	switch strings.ToLower(provider) {
	case ProviderOpenAI, ProviderAnthropic:
		return true
	default:
		return false
	}
}

func (f *Factory) buildBaseClient(config ProviderConfig) (ports.LLMClient, error) {
	model := config.Model
	if model == "" {
		return nil, fmt.Errorf("model name is required")
	}

	clientConfig := Config{
		APIKey:  config.APIKey,
		BaseURL: config.BaseURL,
		Timeout: config.Timeout,
	}

	switch strings.ToLower(config.Provider) {
	case ProviderOllama:
		return NewOllamaClient(model, clientConfig)
	case ProviderOpenAI:
		if config.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return NewOpenAIClient(model, clientConfig)
	case ProviderAnthropic:
		if config.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key")
		}
		return NewAnthropicClient(model, clientConfig)
	case ProviderMock:
		return NewMockClient(model), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", config.Provider)
	}
}

// breakerFor returns the per-model breaker. The manager creates it on first
// use so repeated cache rebuilds do not reset accumulated failure state.
func (f *Factory) breakerFor(config ProviderConfig) *hearthErrors.CircuitBreaker {
	return f.breakers.Get(fmt.Sprintf("llm-%s", config.Model))
}

// wrappedBreakerConfig layers the metrics callback onto the configured
// breaker policy. Callers must hold f.mu.
func (f *Factory) wrappedBreakerConfig() hearthErrors.CircuitBreakerConfig {
	config := f.breakerConfig
	if f.metrics == nil {
		return config
	}
	metrics := f.metrics
	userCallback := config.OnStateChange
	config.OnStateChange = func(from, to hearthErrors.CircuitState, name string) {
		metrics.RecordBreakerTransition(name, to.String())
		if userCallback != nil {
			userCallback(from, to, name)
		}
	}
	return config
}

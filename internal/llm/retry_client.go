package llm

import (
	"context"
	"time"

	"hearth/internal/agent/ports"
	hearthErrors "hearth/internal/errors"
	"hearth/internal/logging"
	"hearth/internal/observability"
)

// retryClient wraps a provider client with retry logic and a circuit
// breaker. Transient failures are retried with backoff; an open breaker
// short-circuits into a DegradedError without touching the network.
type retryClient struct {
	underlying     ports.LLMClient
	retryConfig    hearthErrors.RetryConfig
	circuitBreaker *hearthErrors.CircuitBreaker
	logger         logging.Logger
	metrics        *observability.Metrics
	provider       string
}

// NewRetryClient wraps client with retry and circuit breaker behavior.
func NewRetryClient(client ports.LLMClient, retryConfig hearthErrors.RetryConfig, circuitBreaker *hearthErrors.CircuitBreaker, metrics *observability.Metrics, provider string) ports.LLMClient {
	return &retryClient{
		underlying:     client,
		retryConfig:    retryConfig,
		circuitBreaker: circuitBreaker,
		logger:         logging.NewComponentLogger("llm-retry"),
		metrics:        metrics,
		provider:       provider,
	}
}

func (c *retryClient) Model() string {
	return c.underlying.Model()
}

func (c *retryClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	startTime := time.Now()
	attempt := 0

	resp, err := hearthErrors.RetryWithResultAndLog(ctx, c.retryConfig, func(ctx context.Context) (*ports.CompletionResponse, error) {
		attempt++
		if attempt > 1 {
			c.metrics.RecordProviderRetry(c.provider)
		}
		return hearthErrors.ExecuteFunc(c.circuitBreaker, ctx, func(ctx context.Context) (*ports.CompletionResponse, error) {
			return c.underlying.Complete(ctx, req)
		})
	}, c.logger)

	duration := time.Since(startTime)
	c.metrics.RecordProviderRequest(c.provider, c.underlying.Model(), duration, err)

	if err != nil {
		c.logger.Warn("Provider request failed after %d attempt(s) over %v: %v",
			attempt, duration.Round(time.Millisecond), err)
		return nil, err
	}

	if duration > 5*time.Second {
		c.logger.Debug("Provider request succeeded after %v", duration)
	}
	return resp, nil
}

package llm

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"hearth/internal/agent/ports"
	"hearth/internal/logging"
)

// sessionRateLimitClient throttles completions per session so one chatty
// conversation cannot starve the others. Sessions are identified by the
// session_id request metadata; requests without one share a single bucket.
type sessionRateLimitClient struct {
	underlying ports.LLMClient
	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	limit      rate.Limit
	burst      int
	logger     logging.Logger
}

// RateLimitConfig controls per-session request throttling.
type RateLimitConfig struct {
	RequestsPerMinute float64
	Burst             int
}

// DefaultRateLimitConfig allows 20 requests per minute with a burst of 5.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 20,
		Burst:             5,
	}
}

// WrapWithSessionRateLimit wraps client with per-session throttling.
func WrapWithSessionRateLimit(client ports.LLMClient, config RateLimitConfig) ports.LLMClient {
	if config.RequestsPerMinute <= 0 {
		config = DefaultRateLimitConfig()
	}
	if config.Burst < 1 {
		config.Burst = 1
	}
	return &sessionRateLimitClient{
		underlying: client,
		limiters:   make(map[string]*rate.Limiter),
		limit:      rate.Limit(config.RequestsPerMinute / 60.0),
		burst:      config.Burst,
		logger:     logging.NewComponentLogger("llm-ratelimit"),
	}
}

func (c *sessionRateLimitClient) Model() string {
	return c.underlying.Model()
}

func (c *sessionRateLimitClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	sessionID := extractSessionID(req.Metadata)
	if sessionID == "" {
		sessionID = "anonymous"
	}

	limiter := c.limiterFor(sessionID)
	if !limiter.Allow() {
		c.logger.Debug("Session %s throttled, waiting for rate limit slot", sessionID)
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	return c.underlying.Complete(ctx, req)
}

func (c *sessionRateLimitClient) limiterFor(sessionID string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	limiter, ok := c.limiters[sessionID]
	if !ok {
		limiter = rate.NewLimiter(c.limit, c.burst)
		c.limiters[sessionID] = limiter
	}
	return limiter
}

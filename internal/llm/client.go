// Package llm implements the provider abstraction: concrete chat-completion
// clients for Ollama, OpenAI-compatible, and Anthropic APIs behind the
// ports.LLMClient interface, plus the decorator stack (retry + circuit
// breaker, rate limiting, textual tool-call parsing) and a caching factory.
package llm

import (
	"bytes"
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"hearth/internal/agent/ports"
	"hearth/internal/logging"
)

// Config carries per-provider connection settings.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout int // seconds; 0 uses the provider default
	Headers map[string]string
}

// baseClient holds fields and helpers shared by the HTTP-based clients.
type baseClient struct {
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger
	headers    map[string]string
}

type baseClientOpts struct {
	defaultBaseURL string
	defaultTimeout time.Duration
	logComponent   string
}

func newBaseClient(model string, config Config, opts baseClientOpts) baseClient {
	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		baseURL = opts.defaultBaseURL
	}
	timeout := opts.defaultTimeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if config.Timeout > 0 {
		timeout = time.Duration(config.Timeout) * time.Second
	}
	return baseClient{
		model:      model,
		apiKey:     config.APIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger(opts.logComponent),
		headers:    config.Headers,
	}
}

// Model returns the model name used by this client.
func (c *baseClient) Model() string {
	return c.model
}

// buildLogPrefix extracts or mints a request ID and builds the structured
// log prefix used across request/response logging.
func (c *baseClient) buildLogPrefix(metadata map[string]any) (requestID, prefix string) {
	requestID = extractRequestID(metadata)
	if requestID == "" {
		requestID = uuid.NewString()[:8]
	}
	return requestID, "[req:" + requestID + "] "
}

// doPost sends a JSON POST with standard headers. Caller closes resp.Body.
func (c *baseClient) doPost(ctx context.Context, endpoint string, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	return c.httpClient.Do(httpReq)
}

func (c *baseClient) logRequestMeta(prefix, method, url string) {
	c.logger.Debug("%s=== LLM Request ===", prefix)
	c.logger.Debug("%sURL: %s %s", prefix, method, url)
	c.logger.Debug("%sModel: %s", prefix, c.model)
}

func (c *baseClient) logResponseStatus(prefix string, resp *http.Response) {
	c.logger.Debug("%s=== LLM Response ===", prefix)
	c.logger.Debug("%sStatus: %d %s", prefix, resp.StatusCode, resp.Status)
}

func (c *baseClient) logResponseSummary(prefix string, result *ports.CompletionResponse) {
	c.logger.Debug("%s=== LLM Response Summary ===", prefix)
	c.logger.Debug("%sStop Reason: %s", prefix, result.StopReason)
	c.logger.Debug("%sContent Length: %d chars", prefix, len(result.Content))
	c.logger.Debug("%sTool Calls: %d", prefix, len(result.ToolCalls))
	c.logger.Debug("%sUsage: %d prompt + %d completion = %d total tokens",
		prefix,
		result.Usage.PromptTokens,
		result.Usage.CompletionTokens,
		result.Usage.TotalTokens)
}

var validToolNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

func isValidToolName(name string) bool {
	return validToolNamePattern.MatchString(strings.TrimSpace(name))
}

func normalizeToolSchema(schema ports.ParameterSchema) ports.ParameterSchema {
	normalized := schema
	if strings.TrimSpace(normalized.Type) == "" {
		normalized.Type = "object"
	}
	if normalized.Properties == nil {
		normalized.Properties = map[string]ports.Property{}
	}
	return normalized
}

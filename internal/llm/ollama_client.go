package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"hearth/internal/agent/ports"
	"hearth/internal/logging"
)

// ollamaClient speaks the Ollama chat API. Ollama has no native structured
// tool calling for most models, so the factory layers the tool-call parsing
// decorator on top; the tool catalogue is rendered into the system prompt by
// that decorator, not sent on the wire here.
type ollamaClient struct {
	baseClient
}

// NewOllamaClient constructs a client for a local or remote Ollama server.
func NewOllamaClient(model string, config Config) (ports.LLMClient, error) {
	base := newBaseClient(model, config, baseClientOpts{
		defaultBaseURL: "http://localhost:11434/api",
		defaultTimeout: 5 * time.Minute, // local models can be slow to load
		logComponent:   "llm-ollama",
	})
	if !strings.HasSuffix(base.baseURL, "/api") {
		base.baseURL += "/api"
	}
	base.logger = logging.NewComponentLogger("llm-ollama")
	return &ollamaClient{baseClient: base}, nil
}

func (c *ollamaClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	_, prefix := c.buildLogPrefix(req.Metadata)

	request := ollamaRequest{
		Model:    c.model,
		Messages: convertOllamaMessages(req.Messages),
		Stream:   false,
	}
	options := make(map[string]any)
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if req.TopP > 0 {
		options["top_p"] = req.TopP
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if len(req.StopSequences) > 0 {
		options["stop"] = append([]string(nil), req.StopSequences...)
	}
	if len(options) > 0 {
		request.Options = options
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	endpoint := c.baseURL + "/chat"
	c.logRequestMeta(prefix, "POST", endpoint)

	resp, err := c.doPost(ctx, endpoint, body)
	if err != nil {
		c.logger.Debug("%sHTTP request failed: %v", prefix, err)
		return nil, wrapRequestError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logResponseStatus(prefix, resp)

	respBody, err := readResponseBody(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("%sError Response Body: %s", prefix, string(respBody))
		return nil, mapHTTPError(resp.StatusCode, respBody, resp.Header)
	}

	var response ollamaResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("ollama error: %s", response.Error)
	}

	stopReason := strings.TrimSpace(response.DoneReason)
	if stopReason == "" {
		stopReason = "stop"
	}
	result := &ports.CompletionResponse{
		Content:    response.Message.Content,
		StopReason: stopReason,
		Usage: ports.TokenUsage{
			PromptTokens:     response.PromptEvalCount,
			CompletionTokens: response.EvalCount,
			TotalTokens:      response.PromptEvalCount + response.EvalCount,
		},
		Metadata: map[string]any{
			"model":    response.Model,
			"provider": "ollama",
		},
	}

	c.logResponseSummary(prefix, result)
	return result, nil
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error"`
}

// convertOllamaMessages flattens the normalized history into plain role/text
// pairs. Tool turns are rendered as user messages carrying the observation,
// since the Ollama chat API has no tool role.
func convertOllamaMessages(msgs []ports.Message) []ollamaMessage {
	result := make([]ollamaMessage, 0, len(msgs))
	for _, msg := range msgs {
		role := strings.TrimSpace(msg.Role)
		if role == "" {
			continue
		}
		content := msg.Content
		if role == ports.RoleTool {
			role = ports.RoleUser
			content = fmt.Sprintf("Tool %s returned:\n%s", msg.ToolName, msg.Content)
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		result = append(result, ollamaMessage{Role: role, Content: content})
	}
	return result
}

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"hearth/internal/agent/ports"
	"hearth/internal/logging"
)

// toolCallParsingClient adapts a backend without native tool calling to the
// uniform contract: the tool catalogue is rendered into a system message
// with a textual call convention, and <tool_call> blocks in the response are
// parsed back into structured tool calls. Callers never see the difference.
type toolCallParsingClient struct {
	base   ports.LLMClient
	parser ports.FunctionCallParser
	logger logging.Logger
}

// WrapWithToolCallParsing enables prompt-simulated tool calling on a client.
func WrapWithToolCallParsing(client ports.LLMClient, parser ports.FunctionCallParser) ports.LLMClient {
	if parser == nil {
		return client
	}
	return &toolCallParsingClient{
		base:   client,
		parser: parser,
		logger: logging.NewComponentLogger("llm-toolcall"),
	}
}

func (c *toolCallParsingClient) Model() string {
	return c.base.Model()
}

func (c *toolCallParsingClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	if len(req.Tools) > 0 {
		req = injectToolPrompt(req)
	}

	resp, err := c.base.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	// Native tool calls win; only fall back to textual parsing without them.
	if len(resp.ToolCalls) > 0 || !strings.Contains(resp.Content, "<tool_call>") {
		return resp, nil
	}

	calls, err := c.parser.Parse(resp.Content)
	if err != nil {
		c.logger.Warn("Failed to parse textual tool calls: %v", err)
		return resp, nil
	}
	if len(calls) == 0 {
		return resp, nil
	}

	resp.ToolCalls = calls
	resp.Content = c.parser.Strip(resp.Content)
	c.logger.Debug("Parsed %d textual tool call(s) from response", len(calls))
	return resp, nil
}

// injectToolPrompt moves the tool catalogue off the wire and into a system
// message describing the textual call convention.
func injectToolPrompt(req ports.CompletionRequest) ports.CompletionRequest {
	var b strings.Builder
	b.WriteString("You have access to the following tools:\n\n")
	for _, tool := range req.Tools {
		schema, err := json.Marshal(normalizeToolSchema(tool.Parameters))
		if err != nil {
			schema = []byte("{}")
		}
		fmt.Fprintf(&b, "- %s: %s\n  Arguments schema: %s\n", tool.Name, tool.Description, schema)
	}
	b.WriteString("\nTo call a tool, respond with exactly:\n")
	b.WriteString("<tool_call>{\"name\": \"tool_name\", \"args\": {...}}</tool_call>\n")
	b.WriteString("You may emit several tool_call blocks in one response. ")
	b.WriteString("When no tool is needed, answer the user directly without any tool_call block.")

	out := req
	out.Tools = nil
	out.Messages = append([]ports.Message{{
		Role:    ports.RoleSystem,
		Content: b.String(),
	}}, req.Messages...)
	return out
}

package ports

import (
	"context"
	"encoding/json"
	"time"
)

// ToolExecutor executes a single tool call.
type ToolExecutor interface {
	// Execute runs the tool with given arguments
	Execute(ctx context.Context, call ToolCall) (*ToolResult, error)

	// Definition returns the tool's schema for the LLM
	Definition() ToolDefinition
}

// ToolRegistry manages available tools.
type ToolRegistry interface {
	// Register adds a tool to the registry
	Register(tool ToolExecutor) error

	// List returns the schema catalogue for the provider
	List() []ToolDefinition

	// Execute validates arguments against the tool's schema and dispatches.
	// Unknown names and schema violations come back as failed results, never
	// as errors that abort the agent loop.
	Execute(ctx context.Context, call ToolCall) *ToolResult
}

// ToolCall represents a request to execute a tool.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	SessionID string         `json:"session_id,omitempty"`
}

// ToolResult is the execution result. A call either fully succeeds (payload
// returned) or fully fails (error detail returned); callers must not assume
// side effects occurred on failure.
type ToolResult struct {
	CallID   string         `json:"call_id"`
	ToolName string         `json:"tool_name"`
	Success  bool           `json:"success"`
	Summary  string         `json:"summary,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// ObservationJSON renders the result the way it is fed back to the model.
func (r *ToolResult) ObservationJSON() string {
	data, err := json.Marshal(r)
	if err != nil {
		return `{"success":false,"error":"unencodable tool result"}`
	}
	return string(data)
}

// ToolDefinition describes a tool for the LLM.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParameterSchema `json:"parameters"`
}

// ParameterSchema defines tool parameters (JSON Schema format).
type ParameterSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property defines a single parameter.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []any    `json:"enum,omitempty"`
	Items       *Property `json:"items,omitempty"`
}

// FunctionCallParser extracts tool calls from plain-text LLM responses for
// backends without native tool calling.
type FunctionCallParser interface {
	// Parse extracts tool calls from content
	Parse(content string) ([]ToolCall, error)

	// Strip removes tool call markup from content, leaving prose
	Strip(content string) string
}

// Clock abstracts time for deterministic engine tests.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Package tools implements the tool registry: a declarative catalogue of
// operations the agent may invoke, with JSON-schema argument validation
// performed before any tool function runs.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"hearth/internal/agent/ports"
	"hearth/internal/logging"
)

// Registry dispatches tool calls by name. Safe for concurrent use: multiple
// sessions share one registry instance.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]ports.ToolExecutor
	logger logging.Logger
}

var _ ports.ToolRegistry = (*Registry)(nil)

// NewRegistry creates an empty tool registry.
func NewRegistry(logger logging.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]ports.ToolExecutor),
		logger: logging.OrNop(logger),
	}
}

// Register adds a tool. Names are unique within a registry; re-registering
// an existing name is a programming error.
func (r *Registry) Register(tool ports.ToolExecutor) error {
	def := tool.Definition()
	if def.Name == "" {
		return fmt.Errorf("tool definition missing name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %q already registered", def.Name)
	}
	r.tools[def.Name] = tool
	r.logger.Debug("Registered tool %s", def.Name)
	return nil
}

// Get returns the named tool, or false when it is not registered.
func (r *Registry) Get(name string) (ports.ToolExecutor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Unregister removes a tool. Removing an unknown name is a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; ok {
		delete(r.tools, name)
		r.logger.Debug("Unregistered tool %s", name)
	}
}

// List returns every registered definition, sorted by name, in the shape the
// provider layer serializes into its tool catalogue.
func (r *Registry) List() []ports.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ports.ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, tool.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute validates the call's arguments against the tool's schema and runs
// it. Failures never surface as errors: an unknown tool, a schema violation,
// or a tool-function error all come back as a failed ToolResult the agent
// loop can feed to the model as an observation.
func (r *Registry) Execute(ctx context.Context, call ports.ToolCall) *ports.ToolResult {
	r.mu.RLock()
	tool, ok := r.tools[call.Name]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("Unknown tool requested: %s", call.Name)
		return &ports.ToolResult{
			CallID:   call.ID,
			ToolName: call.Name,
			Success:  false,
			Error:    fmt.Sprintf("unknown tool %q", call.Name),
		}
	}

	def := tool.Definition()
	if err := validateArguments(def.Parameters, call.Arguments); err != nil {
		r.logger.Warn("Tool %s rejected arguments: %v", call.Name, err)
		return &ports.ToolResult{
			CallID:   call.ID,
			ToolName: call.Name,
			Success:  false,
			Error:    fmt.Sprintf("invalid arguments: %v", err),
		}
	}

	result, err := tool.Execute(ctx, call)
	if err != nil {
		r.logger.Warn("Tool %s failed: %v", call.Name, err)
		return &ports.ToolResult{
			CallID:   call.ID,
			ToolName: call.Name,
			Success:  false,
			Error:    err.Error(),
		}
	}
	if result == nil {
		result = &ports.ToolResult{Success: true}
	}
	result.CallID = call.ID
	result.ToolName = call.Name
	return result
}

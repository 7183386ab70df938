package llm

import (
	"context"
	"sync"

	"hearth/internal/agent/ports"
)

// MockClient is a scriptable in-memory client for tests and offline
// development. Each Complete call pops the next scripted step; once the
// script is exhausted it returns a canned final answer.
type MockClient struct {
	mu       sync.Mutex
	model    string
	steps    []mockStep
	requests []ports.CompletionRequest
}

type mockStep struct {
	response *ports.CompletionResponse
	err      error
}

// NewMockClient returns an empty mock for the given model name.
func NewMockClient(model string) *MockClient {
	if model == "" {
		model = "mock-model"
	}
	return &MockClient{model: model}
}

// EnqueueResponse scripts a successful completion.
func (c *MockClient) EnqueueResponse(resp *ports.CompletionResponse) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, mockStep{response: resp})
	return c
}

// EnqueueText scripts a plain final-answer completion.
func (c *MockClient) EnqueueText(content string) *MockClient {
	return c.EnqueueResponse(&ports.CompletionResponse{
		Content:    content,
		StopReason: "stop",
	})
}

// EnqueueToolCalls scripts a completion that requests tool execution.
func (c *MockClient) EnqueueToolCalls(calls ...ports.ToolCall) *MockClient {
	return c.EnqueueResponse(&ports.CompletionResponse{
		ToolCalls:  calls,
		StopReason: "tool_calls",
	})
}

// EnqueueError scripts a failure.
func (c *MockClient) EnqueueError(err error) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, mockStep{err: err})
	return c
}

func (c *MockClient) Model() string {
	return c.model
}

// Requests returns a copy of every request seen so far.
func (c *MockClient) Requests() []ports.CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ports.CompletionRequest, len(c.requests))
	copy(out, c.requests)
	return out
}

func (c *MockClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)

	if len(c.steps) == 0 {
		return &ports.CompletionResponse{
			Content:    "This is a mock response.",
			StopReason: "stop",
		}, nil
	}

	step := c.steps[0]
	c.steps = c.steps[1:]
	if step.err != nil {
		return nil, step.err
	}
	return step.response, nil
}

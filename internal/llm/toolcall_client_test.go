package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hearth/internal/agent/ports"
	"hearth/internal/parser"
)

func draftToolDefinition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "create_event_draft",
		Description: "Starts a new event draft.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"title": {Type: "string"},
			},
		},
	}
}

func TestToolCallParsingInjectsCatalogueIntoSystemPrompt(t *testing.T) {
	mock := NewMockClient("llama3.1")
	mock.EnqueueText("just chatting")
	client := WrapWithToolCallParsing(mock, parser.New())

	_, err := client.Complete(context.Background(), ports.CompletionRequest{
		Messages: []ports.Message{{Role: ports.RoleUser, Content: "hello"}},
		Tools:    []ports.ToolDefinition{draftToolDefinition()},
	})
	require.NoError(t, err)

	requests := mock.Requests()
	require.Len(t, requests, 1)
	sent := requests[0]
	assert.Empty(t, sent.Tools, "tool definitions must not go on the wire")
	require.Len(t, sent.Messages, 2)
	assert.Equal(t, ports.RoleSystem, sent.Messages[0].Role)
	assert.Contains(t, sent.Messages[0].Content, "create_event_draft")
	assert.Contains(t, sent.Messages[0].Content, "<tool_call>")
}

func TestToolCallParsingExtractsTextualCalls(t *testing.T) {
	mock := NewMockClient("llama3.1")
	mock.EnqueueText(`Let me set that up.
<tool_call>{"name": "create_event_draft", "args": {"title": "Pottery Workshop"}}</tool_call>`)
	client := WrapWithToolCallParsing(mock, parser.New())

	resp, err := client.Complete(context.Background(), ports.CompletionRequest{
		Messages: []ports.Message{{Role: ports.RoleUser, Content: "plan a pottery workshop"}},
		Tools:    []ports.ToolDefinition{draftToolDefinition()},
	})
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "create_event_draft", resp.ToolCalls[0].Name)
	assert.Equal(t, "Pottery Workshop", resp.ToolCalls[0].Arguments["title"])
	assert.Equal(t, "Let me set that up.", resp.Content)
}

func TestToolCallParsingPrefersNativeCalls(t *testing.T) {
	mock := NewMockClient("gpt-4o-mini")
	mock.EnqueueResponse(&ports.CompletionResponse{
		Content:   `<tool_call>{"name": "create_event_draft", "args": {}}</tool_call>`,
		ToolCalls: []ports.ToolCall{{ID: "native_1", Name: "get_event_draft", Arguments: map[string]any{}}},
	})
	client := WrapWithToolCallParsing(mock, parser.New())

	resp, err := client.Complete(context.Background(), ports.CompletionRequest{
		Messages: []ports.Message{{Role: ports.RoleUser, Content: "show the draft"}},
	})
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "get_event_draft", resp.ToolCalls[0].Name)
}

func TestToolCallParsingTreatsMalformedBlocksAsProse(t *testing.T) {
	mock := NewMockClient("llama3.1")
	mock.EnqueueText(`<tool_call>this is not json at all :::</tool_call>`)
	client := WrapWithToolCallParsing(mock, parser.New())

	resp, err := client.Complete(context.Background(), ports.CompletionRequest{
		Messages: []ports.Message{{Role: ports.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.ToolCalls)
	assert.NotEmpty(t, resp.Content)
}

func TestToolCallParsingNilParserReturnsClientUnchanged(t *testing.T) {
	mock := NewMockClient("m")
	assert.Same(t, ports.LLMClient(mock), WrapWithToolCallParsing(mock, nil))
}

package parser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSingleToolCall(t *testing.T) {
	p := New()

	content := `Let me set that up.
<tool_call>{"name": "create_event_draft", "args": {"title": "Story Time", "cost": 0}}</tool_call>`

	calls, err := p.Parse(content)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	require.Equal(t, "create_event_draft", calls[0].Name)
	require.Equal(t, "Story Time", calls[0].Arguments["title"])
	require.Equal(t, float64(0), calls[0].Arguments["cost"])
	require.Equal(t, "call_0", calls[0].ID)
}

func TestParseMultipleToolCalls(t *testing.T) {
	p := New()

	content := `<tool_call>{"name": "search_similar_events", "args": {"query": "story time"}}</tool_call>
<tool_call>{"name": "check_schedule_conflict", "args": {"location": "library"}}</tool_call>`

	calls, err := p.Parse(content)
	require.NoError(t, err)
	require.Len(t, calls, 2)
	require.Equal(t, "search_similar_events", calls[0].Name)
	require.Equal(t, "check_schedule_conflict", calls[1].Name)
	require.Equal(t, "call_1", calls[1].ID)
}

func TestParseNoToolCalls(t *testing.T) {
	p := New()

	calls, err := p.Parse("Your event is all set! Anything else?")
	require.NoError(t, err)
	require.Empty(t, calls)
}

func TestParseRepairsAlmostJSON(t *testing.T) {
	p := New()

	// Trailing comma and single quotes, typical small-model output.
	content := `<tool_call>{'name': 'create_event_draft', 'args': {'title': 'Park Day',}}</tool_call>`

	calls, err := p.Parse(content)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	require.Equal(t, "Park Day", calls[0].Arguments["title"])
}

func TestParseMalformedBlockIsError(t *testing.T) {
	p := New()

	_, err := p.Parse(`<tool_call>this is not even close to json</tool_call>`)
	require.Error(t, err)
}

func TestParseRejectsInvalidToolName(t *testing.T) {
	p := New()

	_, err := p.Parse(`<tool_call>{"name": "bad name!", "args": {}}</tool_call>`)
	require.Error(t, err)
}

func TestParseMissingArgsDefaultsToEmpty(t *testing.T) {
	p := New()

	calls, err := p.Parse(`<tool_call>{"name": "get_event_draft"}</tool_call>`)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].Arguments)
	require.Empty(t, calls[0].Arguments)
}

func TestStripRemovesToolCallBlocks(t *testing.T) {
	p := New()

	content := `Setting that up now.
<tool_call>{"name": "create_event_draft", "args": {}}</tool_call>
One moment.`

	stripped := p.Strip(content)
	require.NotContains(t, stripped, "tool_call")
	require.Contains(t, stripped, "Setting that up now.")
	require.Contains(t, stripped, "One moment.")
}

func TestStripRemovesLeakedMarkers(t *testing.T) {
	p := New()

	stripped := p.Strip("Done <|tool_call_begin|>garbage<|tool_call_end|> here")
	require.Equal(t, "Done  here", stripped)
}

package assistant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hearth/internal/agent/ports"
	"hearth/internal/draft"
	"hearth/internal/llm"
	"hearth/internal/session"
)

func newTestAssistant(t *testing.T) (*Assistant, *llm.MockClient) {
	t.Helper()
	mock := llm.NewMockClient("mock-model")
	a, err := New(Options{Client: mock})
	require.NoError(t, err)
	return a, mock
}

func TestAssistantRequiresClient(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestAssistantConversationFlow(t *testing.T) {
	a, mock := newTestAssistant(t)
	ctx := context.Background()

	sessionID, err := a.StartSession(ctx, "staff-1")
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	mock.EnqueueToolCalls(ports.ToolCall{
		ID:   "call_1",
		Name: "create_event_draft",
		Arguments: map[string]any{
			"title":     "Story Time",
			"starts_at": "2026-09-08T10:00:00Z",
			"cost":      0,
		},
	})
	mock.EnqueueText("Drafted! Want me to publish it?")

	reply, err := a.HandleMessage(ctx, sessionID, "free story time on the 8th at 10am")
	require.NoError(t, err)
	assert.Equal(t, session.StatusAwaitingUser, reply.Status)
	assert.Contains(t, reply.DraftPreview, "Story Time")

	current, err := a.GetDraft(ctx, sessionID)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "Story Time", current.Field(draft.FieldTitle))

	event, err := a.MaterializeDraft(ctx, sessionID)
	require.NoError(t, err)
	assert.NotEmpty(t, event.EventID)

	// The draft is retired after publishing.
	retired, err := a.GetDraft(ctx, sessionID)
	require.NoError(t, err)
	require.NotNil(t, retired)
	assert.True(t, retired.Materialized())
}

func TestAssistantGetDraftWithoutOne(t *testing.T) {
	a, _ := newTestAssistant(t)
	ctx := context.Background()

	sessionID, err := a.StartSession(ctx, "staff-1")
	require.NoError(t, err)

	current, err := a.GetDraft(ctx, sessionID)
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestAssistantMaterializeIncompleteDraft(t *testing.T) {
	a, mock := newTestAssistant(t)
	ctx := context.Background()

	sessionID, err := a.StartSession(ctx, "staff-1")
	require.NoError(t, err)

	mock.EnqueueToolCalls(ports.ToolCall{
		ID:        "call_1",
		Name:      "create_event_draft",
		Arguments: map[string]any{"title": "Untimed Event"},
	})
	mock.EnqueueText("Started a draft with just a title.")

	_, err = a.HandleMessage(ctx, sessionID, "start a draft called Untimed Event")
	require.NoError(t, err)

	_, err = a.MaterializeDraft(ctx, sessionID)
	var incomplete *draft.IncompleteDraftError
	require.ErrorAs(t, err, &incomplete)
	assert.Contains(t, incomplete.Missing, draft.FieldStartsAt)
}

func TestAssistantUnknownSession(t *testing.T) {
	a, _ := newTestAssistant(t)
	_, err := a.HandleMessage(context.Background(), "missing", "hello")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

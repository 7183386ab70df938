package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hearth/internal/agent/ports"
	"hearth/internal/booking"
	"hearth/internal/draft"
	hearthErrors "hearth/internal/errors"
	"hearth/internal/llm"
	"hearth/internal/session"
	"hearth/internal/tools"
	"hearth/internal/tools/builtin"
)

type engineEnv struct {
	engine   *Engine
	mock     *llm.MockClient
	sessions *session.MemoryStore
	drafts   *draft.Manager
	catalog  *booking.MemoryCatalog
}

func newEngineEnv(t *testing.T, config Config) *engineEnv {
	t.Helper()

	mock := llm.NewMockClient("mock-model")
	catalog := booking.NewMemoryCatalog()
	drafts := draft.NewManager(draft.NewMemoryStore(), catalog, nil)
	registry := tools.NewRegistry(nil)
	require.NoError(t, builtin.RegisterAll(registry, drafts, catalog))
	sessions := session.NewMemoryStore()

	return &engineEnv{
		engine:   NewEngine(mock, registry, sessions, drafts, config, nil),
		mock:     mock,
		sessions: sessions,
		drafts:   drafts,
		catalog:  catalog,
	}
}

func (env *engineEnv) startSession(t *testing.T) string {
	t.Helper()
	sess, err := env.sessions.Create(context.Background(), "staff-1")
	require.NoError(t, err)
	return sess.ID
}

func TestEngineCreatesDraftFromSingleToolCall(t *testing.T) {
	env := newEngineEnv(t, Config{})
	sessionID := env.startSession(t)

	env.mock.EnqueueToolCalls(ports.ToolCall{
		ID:   "call_1",
		Name: "create_event_draft",
		Arguments: map[string]any{
			"title":     "Story Time",
			"starts_at": "2026-09-08T10:00:00Z",
			"location":  "Town Library",
			"cost":      0,
		},
	})
	env.mock.EnqueueText("I've drafted the free story-time event for Tuesday at 10am at the library.")

	result, err := env.engine.HandleMessage(context.Background(),
		sessionID, "Create a free story-time event next Tuesday at 10am at the library")
	require.NoError(t, err)

	assert.Equal(t, session.StatusAwaitingUser, result.Status)
	assert.Contains(t, result.ResponseText, "story-time")
	assert.Equal(t, 2, result.Iterations)

	require.NotNil(t, result.Draft)
	assert.Equal(t, "Story Time", result.Draft.Field(draft.FieldTitle))
	assert.Equal(t, float64(0), result.Draft.Field(draft.FieldCost))
	assert.Equal(t, 1, result.Draft.Version)

	sess, err := env.sessions.Get(context.Background(), sessionID)
	require.NoError(t, err)
	roles := make([]string, 0, len(sess.Turns))
	for _, turn := range sess.Turns {
		roles = append(roles, turn.Role)
	}
	assert.Equal(t, []string{
		session.RoleUser,
		session.RoleAgent, // tool call
		session.RoleTool,  // observation
		session.RoleAgent, // final answer
	}, roles)
}

func TestEngineFeedsValidationErrorsBackToTheModel(t *testing.T) {
	env := newEngineEnv(t, Config{})
	sessionID := env.startSession(t)

	// First attempt omits the required starts_at argument; the registry
	// rejects it before dispatch and the failure becomes an observation.
	env.mock.EnqueueToolCalls(ports.ToolCall{
		ID:        "call_1",
		Name:      "check_schedule_conflict",
		Arguments: map[string]any{"location": "Community Hall"},
	})
	env.mock.EnqueueToolCalls(ports.ToolCall{
		ID:   "call_2",
		Name: "check_schedule_conflict",
		Arguments: map[string]any{
			"starts_at": "2026-09-12T10:00:00Z",
			"location":  "Community Hall",
		},
	})
	env.mock.EnqueueText("The hall is free that morning.")

	result, err := env.engine.HandleMessage(context.Background(), sessionID, "is the hall free on the 12th?")
	require.NoError(t, err)
	assert.Equal(t, session.StatusAwaitingUser, result.Status)

	requests := env.mock.Requests()
	require.Len(t, requests, 3)

	// The second request must carry the validation failure so the model can
	// self-correct.
	secondPrompt := requests[1].Messages
	last := secondPrompt[len(secondPrompt)-1]
	assert.Equal(t, ports.RoleTool, last.Role)
	assert.Contains(t, last.Content, "missing required argument")
	assert.Contains(t, last.Content, "starts_at")
}

func TestEngineStopsAtIterationCap(t *testing.T) {
	env := newEngineEnv(t, Config{MaxIterations: 3})
	sessionID := env.startSession(t)

	for i := 0; i < 10; i++ {
		env.mock.EnqueueToolCalls(ports.ToolCall{
			ID:        "call",
			Name:      "get_event_draft",
			Arguments: map[string]any{},
		})
	}

	result, err := env.engine.HandleMessage(context.Background(), sessionID, "keep going forever")
	require.NoError(t, err)

	assert.Len(t, env.mock.Requests(), 3, "loop must never exceed the cap")
	assert.Equal(t, 3, result.Iterations)
	assert.Equal(t, session.StatusAwaitingUser, result.Status)
	assert.Contains(t, result.ResponseText, "I need more information")
}

func TestEngineToolCallsTakePrecedenceOverFinalText(t *testing.T) {
	env := newEngineEnv(t, Config{})
	sessionID := env.startSession(t)

	env.mock.EnqueueResponse(&ports.CompletionResponse{
		Content: "All done!", // must be ignored while tool calls are pending
		ToolCalls: []ports.ToolCall{{
			ID:        "call_1",
			Name:      "create_event_draft",
			Arguments: map[string]any{"title": "Chess Club"},
		}},
	})
	env.mock.EnqueueText("The chess club draft is started.")

	result, err := env.engine.HandleMessage(context.Background(), sessionID, "start a chess club draft")
	require.NoError(t, err)

	assert.Equal(t, "The chess club draft is started.", result.ResponseText)
	require.NotNil(t, result.Draft)
	assert.Equal(t, "Chess Club", result.Draft.Field(draft.FieldTitle))
}

func TestEngineProviderFailureFailsSessionWithApology(t *testing.T) {
	env := newEngineEnv(t, Config{})
	sessionID := env.startSession(t)

	env.mock.EnqueueError(hearthErrors.NewDegradedError(
		errors.New("circuit breaker open for llm-mock-model"),
		"The assistant is temporarily unavailable after repeated failures.",
		""))

	result, err := env.engine.HandleMessage(context.Background(), sessionID, "hello?")
	require.NoError(t, err, "provider failure is a conversational outcome, not an engine error")

	assert.Equal(t, session.StatusFailed, result.Status)
	assert.Contains(t, result.ResponseText, "temporarily unavailable")

	sess, err := env.sessions.Get(context.Background(), sessionID)
	require.NoError(t, err)
	lastTurn := sess.Turns[len(sess.Turns)-1]
	assert.Equal(t, session.RoleAgent, lastTurn.Role)
	assert.Equal(t, result.ResponseText, lastTurn.Content)

	// Failed sessions accept no more messages.
	_, err = env.engine.HandleMessage(context.Background(), sessionID, "are you there?")
	assert.True(t, session.IsTerminalState(err))
}

func TestEngineKeepsCompletedMergesWhenProviderFailsMidLoop(t *testing.T) {
	env := newEngineEnv(t, Config{})
	sessionID := env.startSession(t)

	env.mock.EnqueueToolCalls(ports.ToolCall{
		ID:        "call_1",
		Name:      "create_event_draft",
		Arguments: map[string]any{"title": "Pottery Workshop"},
	})
	env.mock.EnqueueError(hearthErrors.NewTransientError(errors.New("HTTP 503"), "The model provider is down."))

	result, err := env.engine.HandleMessage(context.Background(), sessionID, "plan a pottery workshop")
	require.NoError(t, err)
	assert.Equal(t, session.StatusFailed, result.Status)

	require.NotNil(t, result.Draft, "the merge that completed before the failure is kept")
	assert.Equal(t, "Pottery Workshop", result.Draft.Field(draft.FieldTitle))
}

func TestEngineUnknownToolBecomesFailedObservation(t *testing.T) {
	env := newEngineEnv(t, Config{})
	sessionID := env.startSession(t)

	env.mock.EnqueueToolCalls(ports.ToolCall{
		ID:        "call_1",
		Name:      "book_flight",
		Arguments: map[string]any{},
	})
	env.mock.EnqueueText("Sorry, I can only help with event planning.")

	result, err := env.engine.HandleMessage(context.Background(), sessionID, "book me a flight")
	require.NoError(t, err)
	assert.Equal(t, session.StatusAwaitingUser, result.Status)

	sess, err := env.sessions.Get(context.Background(), sessionID)
	require.NoError(t, err)
	var observation string
	for _, turn := range sess.Turns {
		if turn.Role == session.RoleTool {
			observation = turn.Content
		}
	}
	assert.Contains(t, observation, "unknown tool")
}

func TestEngineSystemPromptCarriesDraftSnapshot(t *testing.T) {
	env := newEngineEnv(t, Config{})
	sessionID := env.startSession(t)

	_, err := env.drafts.Merge(context.Background(), sessionID, draft.Proposal{
		Fields: map[string]any{draft.FieldTitle: "Nature Walk"},
	}, draft.Provenance{Tool: "create_event_draft", CallID: "seed"})
	require.NoError(t, err)

	env.mock.EnqueueText("The draft currently has just a title.")

	_, err = env.engine.HandleMessage(context.Background(), sessionID, "what do we have so far?")
	require.NoError(t, err)

	requests := env.mock.Requests()
	require.Len(t, requests, 1)
	system := requests[0].Messages[0]
	assert.Equal(t, ports.RoleSystem, system.Role)
	assert.Contains(t, system.Content, "Nature Walk")
	assert.Contains(t, system.Content, "version 1")
}

func TestEngineResumesWaitingSessions(t *testing.T) {
	env := newEngineEnv(t, Config{})
	sessionID := env.startSession(t)

	env.mock.EnqueueText("Hi! What event would you like to plan?")
	first, err := env.engine.HandleMessage(context.Background(), sessionID, "hello")
	require.NoError(t, err)
	require.Equal(t, session.StatusAwaitingUser, first.Status)

	env.mock.EnqueueText("A science fair sounds great. When should it happen?")
	second, err := env.engine.HandleMessage(context.Background(), sessionID, "a science fair")
	require.NoError(t, err)
	assert.Equal(t, session.StatusAwaitingUser, second.Status)
}

func TestConvertTurnsPairsToolCallsWithResults(t *testing.T) {
	now := time.Now()
	turns := []session.Turn{
		{Role: session.RoleUser, Content: "check the hall", Timestamp: now},
		{Role: session.RoleAgent, ToolCallID: "c1", ToolName: "check_schedule_conflict", Arguments: map[string]any{"starts_at": "2026-09-12T10:00:00Z"}, Timestamp: now},
		{Role: session.RoleAgent, ToolCallID: "c2", ToolName: "get_event_draft", Arguments: map[string]any{}, Timestamp: now},
		{Role: session.RoleTool, ToolCallID: "c1", ToolName: "check_schedule_conflict", Content: `{"success":true}`, Timestamp: now},
		{Role: session.RoleTool, ToolCallID: "c2", ToolName: "get_event_draft", Content: `{"success":true}`, Timestamp: now},
		{Role: session.RoleAgent, Content: "all clear", Timestamp: now},
	}

	messages := convertTurns(turns, 0)
	require.Len(t, messages, 5)

	assert.Equal(t, ports.RoleUser, messages[0].Role)

	assert.Equal(t, ports.RoleAssistant, messages[1].Role)
	require.Len(t, messages[1].ToolCalls, 2, "consecutive calls fold into one assistant message")
	assert.Equal(t, "c1", messages[1].ToolCalls[0].ID)
	assert.Equal(t, "c2", messages[1].ToolCalls[1].ID)

	assert.Equal(t, ports.RoleTool, messages[2].Role)
	assert.Equal(t, "c1", messages[2].ToolCallID)
	assert.Equal(t, ports.RoleTool, messages[3].Role)

	assert.Equal(t, ports.RoleAssistant, messages[len(messages)-1].Role)
	assert.Equal(t, "all clear", messages[len(messages)-1].Content)
}

func TestConvertTurnsHonorsHistoryLimit(t *testing.T) {
	var turns []session.Turn
	for i := 0; i < 50; i++ {
		turns = append(turns, session.Turn{Role: session.RoleUser, Content: "msg"})
	}
	assert.Len(t, convertTurns(turns, 10), 10)
}

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

func TestEngineStampsTurnsWithItsClock(t *testing.T) {
	env := newEngineEnv(t, Config{})
	sessionID := env.startSession(t)

	at := time.Date(2026, 9, 1, 9, 30, 0, 0, time.UTC)
	env.engine.SetClock(fixedClock{at: at})

	env.mock.EnqueueToolCalls(ports.ToolCall{
		ID:        "call_1",
		Name:      "get_event_draft",
		Arguments: map[string]any{},
	})
	env.mock.EnqueueText("No draft yet; tell me about the event.")

	_, err := env.engine.HandleMessage(context.Background(), sessionID, "what do we have so far?")
	require.NoError(t, err)

	sess, err := env.sessions.Get(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, sess.Turns, 4)
	for i, turn := range sess.Turns {
		assert.True(t, turn.Timestamp.Equal(at), "turn %d should carry the engine clock's time", i)
	}
}

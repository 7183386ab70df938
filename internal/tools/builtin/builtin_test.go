package builtin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hearth/internal/agent/ports"
	"hearth/internal/booking"
	"hearth/internal/draft"
	"hearth/internal/tools"
)

func newToolEnv(t *testing.T, seed ...booking.Event) (ports.ToolRegistry, *draft.Manager, *booking.MemoryCatalog) {
	t.Helper()
	catalog := booking.NewMemoryCatalog(seed...)
	drafts := draft.NewManager(draft.NewMemoryStore(), catalog, nil)
	registry := tools.NewRegistry(nil)
	require.NoError(t, RegisterAll(registry, drafts, catalog))
	return registry, drafts, catalog
}

func call(name string, args map[string]any) ports.ToolCall {
	return ports.ToolCall{ID: "call-1", Name: name, SessionID: "sess-1", Arguments: args}
}

func TestRegisterAllExposesFullToolset(t *testing.T) {
	registry, _, _ := newToolEnv(t)
	defs := registry.List()
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	require.ElementsMatch(t, []string{
		"create_event_draft", "update_event_draft", "get_event_draft",
		"validate_event_draft", "materialize_event",
		"search_similar_events", "check_schedule_conflict", "suggest_pricing",
	}, names)
}

func TestCreateAndUpdateDraftFlow(t *testing.T) {
	ctx := context.Background()
	registry, drafts, _ := newToolEnv(t)

	result := registry.Execute(ctx, call("create_event_draft", map[string]any{
		"title":    "Nature Walk",
		"capacity": float64(20),
	}))
	require.True(t, result.Success, result.Error)
	require.Contains(t, result.Summary, "version 1")

	result = registry.Execute(ctx, call("update_event_draft", map[string]any{
		"starts_at": "2026-09-12T10:00:00Z",
		"cost":      float64(0),
	}))
	require.True(t, result.Success, result.Error)
	require.Contains(t, result.Summary, "version 2")

	d, err := drafts.Current(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, "Nature Walk", d.Fields["title"])
	require.Equal(t, "2026-09-12T10:00:00Z", d.Fields["starts_at"])
}

func TestCreateDraftRequiresAField(t *testing.T) {
	registry, _, _ := newToolEnv(t)
	result := registry.Execute(context.Background(), call("create_event_draft", map[string]any{}))
	require.False(t, result.Success)
	require.Contains(t, result.Error, "at least one draft field")
}

func TestUpdateDraftClearsFields(t *testing.T) {
	ctx := context.Background()
	registry, drafts, _ := newToolEnv(t)

	registry.Execute(ctx, call("create_event_draft", map[string]any{
		"title":    "Nature Walk",
		"location": "Oak Park",
	}))
	result := registry.Execute(ctx, call("update_event_draft", map[string]any{
		"clear": []any{"location"},
	}))
	require.True(t, result.Success, result.Error)

	d, _ := drafts.Current(ctx, "sess-1")
	require.NotContains(t, d.Fields, "location")
	require.Contains(t, d.Fields, "title")
}

func TestGetDraftBeforeAndAfterCreation(t *testing.T) {
	ctx := context.Background()
	registry, _, _ := newToolEnv(t)

	result := registry.Execute(ctx, call("get_event_draft", map[string]any{}))
	require.True(t, result.Success)
	require.Contains(t, result.Summary, "No draft exists yet")

	registry.Execute(ctx, call("create_event_draft", map[string]any{"title": "Nature Walk"}))
	result = registry.Execute(ctx, call("get_event_draft", map[string]any{}))
	require.True(t, result.Success)
	require.Contains(t, result.Summary, "Nature Walk")
}

func TestValidateDraftReportsMissing(t *testing.T) {
	ctx := context.Background()
	registry, _, _ := newToolEnv(t)

	registry.Execute(ctx, call("create_event_draft", map[string]any{"title": "Nature Walk"}))
	result := registry.Execute(ctx, call("validate_event_draft", map[string]any{}))
	require.True(t, result.Success)
	require.Contains(t, result.Summary, "missing")
	require.Contains(t, result.Summary, "starts_at")

	registry.Execute(ctx, call("update_event_draft", map[string]any{
		"starts_at": "2026-09-12T10:00:00Z",
		"cost":      float64(0),
	}))
	result = registry.Execute(ctx, call("validate_event_draft", map[string]any{}))
	require.True(t, result.Success)
	require.Contains(t, result.Summary, "ready to materialize")
}

func TestMaterializeEventTool(t *testing.T) {
	ctx := context.Background()
	registry, _, catalog := newToolEnv(t)

	registry.Execute(ctx, call("create_event_draft", map[string]any{
		"title":     "Nature Walk",
		"starts_at": "2026-09-12T10:00:00Z",
		"cost":      float64(0),
	}))

	result := registry.Execute(ctx, call("materialize_event", map[string]any{}))
	require.True(t, result.Success, result.Error)
	require.Contains(t, result.Summary, "created with id")
	require.Equal(t, 1, catalog.Len())
}

func TestMaterializeIncompleteDraftFails(t *testing.T) {
	ctx := context.Background()
	registry, _, catalog := newToolEnv(t)

	registry.Execute(ctx, call("create_event_draft", map[string]any{"title": "Nature Walk"}))
	result := registry.Execute(ctx, call("materialize_event", map[string]any{}))
	require.False(t, result.Success)
	require.Contains(t, result.Error, "incomplete")
	require.Zero(t, catalog.Len())
}

func TestSearchSimilarEventsTool(t *testing.T) {
	ctx := context.Background()
	registry, _, _ := newToolEnv(t, booking.Event{
		Title:    "Pottery Workshop",
		StartsAt: time.Date(2026, 9, 12, 10, 0, 0, 0, time.UTC),
		Cost:     15,
	})

	result := registry.Execute(ctx, call("search_similar_events", map[string]any{
		"query": "pottery workshop",
	}))
	require.True(t, result.Success, result.Error)
	require.Contains(t, result.Summary, "Pottery Workshop")

	result = registry.Execute(ctx, call("search_similar_events", map[string]any{
		"query": "underwater basket weaving",
	}))
	require.True(t, result.Success)
	require.Contains(t, result.Summary, "No events similar")
}

func TestSearchSimilarEventsRequiresQuery(t *testing.T) {
	registry, _, _ := newToolEnv(t)
	result := registry.Execute(context.Background(), call("search_similar_events", map[string]any{}))
	require.False(t, result.Success)
	require.Contains(t, result.Error, "missing required argument")
}

func TestCheckScheduleConflictTool(t *testing.T) {
	ctx := context.Background()
	registry, _, _ := newToolEnv(t, booking.Event{
		Title:    "Pottery Workshop",
		Location: "Community Hall",
		StartsAt: time.Date(2026, 9, 12, 10, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2026, 9, 12, 12, 0, 0, 0, time.UTC),
	})

	result := registry.Execute(ctx, call("check_schedule_conflict", map[string]any{
		"starts_at": "2026-09-12T11:00:00Z",
		"location":  "Community Hall",
	}))
	require.True(t, result.Success, result.Error)
	require.Contains(t, result.Summary, "conflicting")

	result = registry.Execute(ctx, call("check_schedule_conflict", map[string]any{
		"starts_at": "2026-09-20T11:00:00Z",
	}))
	require.True(t, result.Success)
	require.Contains(t, result.Summary, "No schedule conflicts")

	result = registry.Execute(ctx, call("check_schedule_conflict", map[string]any{
		"starts_at": "noonish",
	}))
	require.False(t, result.Success)
	require.Contains(t, result.Error, "RFC3339")
}

func TestSuggestPricingTool(t *testing.T) {
	ctx := context.Background()
	registry, _, _ := newToolEnv(t)

	result := registry.Execute(ctx, call("suggest_pricing", map[string]any{
		"title":          "falconry demonstration",
		"duration_hours": float64(3),
		"capacity":       float64(8),
	}))
	require.True(t, result.Success, result.Error)
	require.Contains(t, result.Summary, "Suggested price")
}

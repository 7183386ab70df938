package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hearth/internal/agent/ports"
	"hearth/internal/booking"
)

// SearchSimilarEventsTool queries the catalog for events like the described
// one, useful both for inspiration and duplicate detection.
type SearchSimilarEventsTool struct {
	Catalog booking.Catalog
}

func (t *SearchSimilarEventsTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "search_similar_events",
		Description: "Find published events similar to a description, to spot duplicates or compare details.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"query": {Type: "string", Description: "Free-text description of the event"},
				"limit": {Type: "integer", Description: "Maximum results to return (default 5)"},
			},
			Required: []string{"query"},
		},
	}
}

func (t *SearchSimilarEventsTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	query, _ := call.Arguments["query"].(string)
	limit := 5
	if l, ok := call.Arguments["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	events, err := t.Catalog.FindSimilar(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return &ports.ToolResult{
			Success: true,
			Summary: fmt.Sprintf("No events similar to %q found.", query),
			Payload: map[string]any{"events": []booking.Event{}},
		}, nil
	}

	var lines []string
	for _, ev := range events {
		lines = append(lines, describeEvent(ev))
	}
	return &ports.ToolResult{
		Success: true,
		Summary: fmt.Sprintf("Found %d similar event(s):\n%s", len(events), strings.Join(lines, "\n")),
		Payload: map[string]any{"events": events},
	}, nil
}

// CheckScheduleConflictTool looks for published events overlapping a
// proposed time window.
type CheckScheduleConflictTool struct {
	Catalog booking.Catalog
}

func (t *CheckScheduleConflictTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "check_schedule_conflict",
		Description: "Check whether any published event overlaps a proposed time window, optionally at one location.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"starts_at": {Type: "string", Description: "Window start, RFC3339"},
				"ends_at":   {Type: "string", Description: "Window end, RFC3339 (default two hours after start)"},
				"location":  {Type: "string", Description: "Restrict the check to this location"},
			},
			Required: []string{"starts_at"},
		},
	}
}

func (t *CheckScheduleConflictTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	startsRaw, _ := call.Arguments["starts_at"].(string)
	startsAt, err := time.Parse(time.RFC3339, startsRaw)
	if err != nil {
		return nil, fmt.Errorf("starts_at is not a valid RFC3339 timestamp: %v", err)
	}

	var endsAt time.Time
	if endsRaw, ok := call.Arguments["ends_at"].(string); ok && endsRaw != "" {
		endsAt, err = time.Parse(time.RFC3339, endsRaw)
		if err != nil {
			return nil, fmt.Errorf("ends_at is not a valid RFC3339 timestamp: %v", err)
		}
	}
	location, _ := call.Arguments["location"].(string)

	conflicts, err := t.Catalog.CheckConflict(ctx, startsAt, endsAt, location)
	if err != nil {
		return nil, err
	}
	if len(conflicts) == 0 {
		return &ports.ToolResult{
			Success: true,
			Summary: "No schedule conflicts in that window.",
			Payload: map[string]any{"conflicts": []booking.Event{}},
		}, nil
	}

	var lines []string
	for _, ev := range conflicts {
		lines = append(lines, describeEvent(ev))
	}
	return &ports.ToolResult{
		Success: true,
		Summary: fmt.Sprintf("%d conflicting event(s):\n%s", len(conflicts), strings.Join(lines, "\n")),
		Payload: map[string]any{"conflicts": conflicts},
	}, nil
}

// SuggestPricingTool recommends a per-attendee cost based on comparable
// events in the catalog.
type SuggestPricingTool struct {
	Catalog booking.Catalog
}

func (t *SuggestPricingTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "suggest_pricing",
		Description: "Suggest a per-attendee price for an event, based on comparable published events.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"title":          {Type: "string", Description: "Event title or short description"},
				"duration_hours": {Type: "number", Description: "Expected duration in hours (default 2)"},
				"capacity":       {Type: "integer", Description: "Planned number of attendees"},
			},
			Required: []string{"title"},
		},
	}
}

func (t *SuggestPricingTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	title, _ := call.Arguments["title"].(string)
	duration, _ := call.Arguments["duration_hours"].(float64)
	capacity := 0
	if c, ok := call.Arguments["capacity"].(float64); ok {
		capacity = int(c)
	}

	s, err := t.Catalog.SuggestPrice(ctx, title, duration, capacity)
	if err != nil {
		return nil, err
	}
	return &ports.ToolResult{
		Success: true,
		Summary: fmt.Sprintf("Suggested price $%.2f per attendee (range $%.2f-$%.2f; %s).",
			s.Suggested, s.Low, s.High, s.Basis),
		Payload: map[string]any{"suggestion": s},
	}, nil
}

func describeEvent(ev booking.Event) string {
	parts := []string{fmt.Sprintf("- %s", ev.Title)}
	if !ev.StartsAt.IsZero() {
		parts = append(parts, ev.StartsAt.Format("2006-01-02 15:04"))
	}
	if ev.Location != "" {
		parts = append(parts, "at "+ev.Location)
	}
	if ev.Cost > 0 {
		parts = append(parts, fmt.Sprintf("$%.2f", ev.Cost))
	} else {
		parts = append(parts, "free")
	}
	return strings.Join(parts, ", ")
}

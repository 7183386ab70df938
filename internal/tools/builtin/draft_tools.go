// Package builtin provides the event-booking tools the agent is wired with:
// draft construction, catalog search, conflict checking, pricing, and final
// event creation.
package builtin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"hearth/internal/agent/ports"
	"hearth/internal/draft"
)

// draftFieldProperties is the shared argument schema for every tool that
// proposes draft fields, mirroring the draft package's canonical field set.
func draftFieldProperties() map[string]ports.Property {
	return map[string]ports.Property{
		"title":       {Type: "string", Description: "Event title"},
		"description": {Type: "string", Description: "Longer event description"},
		"starts_at":   {Type: "string", Description: "Start time, RFC3339 (e.g. 2026-09-12T10:00:00Z)"},
		"ends_at":     {Type: "string", Description: "End time, RFC3339"},
		"location":    {Type: "string", Description: "Venue or meeting point"},
		"cost":        {Type: "number", Description: "Flat per-attendee cost; 0 for a free event"},
		"capacity":    {Type: "integer", Description: "Maximum number of attendees"},
		"min_age":     {Type: "integer", Description: "Minimum participant age"},
		"max_age":     {Type: "integer", Description: "Maximum participant age"},
		"ticket_tiers": {
			Type:        "array",
			Description: "Priced admission classes, each {name, price, quantity?}",
			Items:       &ports.Property{Type: "object"},
		},
	}
}

func draftFieldNames() []string {
	names := make([]string, 0, len(draftFieldProperties()))
	for name := range draftFieldProperties() {
		names = append(names, name)
	}
	return names
}

// collectFields splits tool arguments into draft field proposals, dropping
// non-field keys like "clear".
func collectFields(args map[string]any) map[string]any {
	props := draftFieldProperties()
	fields := make(map[string]any)
	for name, value := range args {
		if _, ok := props[name]; ok {
			fields[name] = value
		}
	}
	return fields
}

func draftPayload(d *draft.EventDraft) map[string]any {
	return map[string]any{
		"session_id": d.SessionID,
		"version":    d.Version,
		"fields":     d.Fields,
		"event_id":   d.EventID,
	}
}

// CreateEventDraftTool starts (or extends) the session's event draft from an
// initial set of fields.
type CreateEventDraftTool struct {
	Drafts *draft.Manager
}

func (t *CreateEventDraftTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name: "create_event_draft",
		Description: "Start an event draft from whatever details are known so far. " +
			"Provide at least one field; everything else can be added later with update_event_draft.",
		Parameters: ports.ParameterSchema{
			Type:       "object",
			Properties: draftFieldProperties(),
		},
	}
}

func (t *CreateEventDraftTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	fields := collectFields(call.Arguments)
	if len(fields) == 0 {
		return nil, fmt.Errorf("provide at least one draft field, any of: %s",
			strings.Join(draftFieldNames(), ", "))
	}
	return mergeIntoDraft(ctx, t.Drafts, call, fields, nil)
}

// UpdateEventDraftTool merges field changes into the existing draft and can
// clear fields explicitly.
type UpdateEventDraftTool struct {
	Drafts *draft.Manager
}

func (t *UpdateEventDraftTool) Definition() ports.ToolDefinition {
	props := draftFieldProperties()
	props["clear"] = ports.Property{
		Type:        "array",
		Description: "Field names to remove from the draft. Omitting a field never clears it.",
		Items:       &ports.Property{Type: "string"},
	}
	return ports.ToolDefinition{
		Name: "update_event_draft",
		Description: "Change fields on the current event draft. Only the fields you pass are " +
			"touched; use the clear list to remove a previously set field.",
		Parameters: ports.ParameterSchema{
			Type:       "object",
			Properties: props,
		},
	}
}

func (t *UpdateEventDraftTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	fields := collectFields(call.Arguments)
	var clear []string
	if raw, ok := call.Arguments["clear"].([]any); ok {
		for _, item := range raw {
			if name, ok := item.(string); ok {
				clear = append(clear, name)
			}
		}
	}
	if len(fields) == 0 && len(clear) == 0 {
		return nil, fmt.Errorf("nothing to update; pass draft fields or a clear list")
	}
	return mergeIntoDraft(ctx, t.Drafts, call, fields, clear)
}

// mergeIntoDraft performs a read-merge cycle against the draft manager,
// retrying once if another merge slipped in between read and write.
func mergeIntoDraft(ctx context.Context, drafts *draft.Manager, call ports.ToolCall, fields map[string]any, clear []string) (*ports.ToolResult, error) {
	prov := draft.Provenance{Tool: call.Name, CallID: call.ID}

	for attempt := 0; attempt < 2; attempt++ {
		base := 0
		if current, err := drafts.Current(ctx, call.SessionID); err == nil {
			base = current.Version
		} else if !errors.Is(err, draft.ErrNoDraft) {
			return nil, err
		}

		d, err := drafts.Merge(ctx, call.SessionID, draft.Proposal{
			BaseVersion: base,
			Fields:      fields,
			Clear:       clear,
		}, prov)
		if err != nil {
			var stale *draft.StaleDraftVersionError
			if errors.As(err, &stale) && attempt == 0 {
				continue
			}
			return nil, err
		}

		return &ports.ToolResult{
			Success: true,
			Summary: fmt.Sprintf("Draft updated to version %d.\n%s", d.Version, d.Summary()),
			Payload: draftPayload(d),
		}, nil
	}
	return nil, fmt.Errorf("draft changed concurrently; re-read and retry")
}

// GetEventDraftTool returns the current draft for inspection.
type GetEventDraftTool struct {
	Drafts *draft.Manager
}

func (t *GetEventDraftTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "get_event_draft",
		Description: "Look at the current event draft: every field set so far and its version.",
		Parameters:  ports.ParameterSchema{Type: "object", Properties: map[string]ports.Property{}},
	}
}

func (t *GetEventDraftTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	d, err := t.Drafts.Current(ctx, call.SessionID)
	if errors.Is(err, draft.ErrNoDraft) {
		return &ports.ToolResult{
			Success: true,
			Summary: "No draft exists yet. Use create_event_draft to start one.",
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &ports.ToolResult{
		Success: true,
		Summary: fmt.Sprintf("Draft version %d.\n%s", d.Version, d.Summary()),
		Payload: draftPayload(d),
	}, nil
}

// ValidateEventDraftTool dry-runs materialization and reports what is still
// missing.
type ValidateEventDraftTool struct {
	Drafts *draft.Manager
}

func (t *ValidateEventDraftTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name: "validate_event_draft",
		Description: "Check whether the draft has everything required to create the event " +
			"(title, start time, and resolved pricing). Reports missing fields without creating anything.",
		Parameters: ports.ParameterSchema{Type: "object", Properties: map[string]ports.Property{}},
	}
}

func (t *ValidateEventDraftTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	missing, err := t.Drafts.Validate(ctx, call.SessionID)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return &ports.ToolResult{
			Success: true,
			Summary: fmt.Sprintf("Draft is not ready: missing %s.", strings.Join(missing, ", ")),
			Payload: map[string]any{"ready": false, "missing": missing},
		}, nil
	}
	return &ports.ToolResult{
		Success: true,
		Summary: "Draft is complete and ready to materialize.",
		Payload: map[string]any{"ready": true},
	}, nil
}

// MaterializeEventTool finalizes the draft into a real published event.
type MaterializeEventTool struct {
	Drafts *draft.Manager
}

func (t *MaterializeEventTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name: "materialize_event",
		Description: "Create the real event from the completed draft. Only call this after the " +
			"user has confirmed the draft details.",
		Parameters: ports.ParameterSchema{Type: "object", Properties: map[string]ports.Property{}},
	}
}

func (t *MaterializeEventTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	ev, err := t.Drafts.Materialize(ctx, call.SessionID)
	if err != nil {
		var incomplete *draft.IncompleteDraftError
		if errors.As(err, &incomplete) {
			return nil, fmt.Errorf("draft is incomplete: missing %s",
				strings.Join(incomplete.Missing, ", "))
		}
		return nil, err
	}
	return &ports.ToolResult{
		Success: true,
		Summary: fmt.Sprintf("Event %q created with id %s.", ev.Title, ev.EventID),
		Payload: map[string]any{
			"event_id": ev.EventID,
			"title":    ev.Title,
		},
	}, nil
}

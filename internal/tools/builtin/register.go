package builtin

import (
	"hearth/internal/agent/ports"
	"hearth/internal/booking"
	"hearth/internal/draft"
)

// RegisterAll wires the full event-booking toolset into the registry.
func RegisterAll(registry ports.ToolRegistry, drafts *draft.Manager, catalog booking.Catalog) error {
	toolset := []ports.ToolExecutor{
		&CreateEventDraftTool{Drafts: drafts},
		&UpdateEventDraftTool{Drafts: drafts},
		&GetEventDraftTool{Drafts: drafts},
		&ValidateEventDraftTool{Drafts: drafts},
		&MaterializeEventTool{Drafts: drafts},
		&SearchSimilarEventsTool{Catalog: catalog},
		&CheckScheduleConflictTool{Catalog: catalog},
		&SuggestPricingTool{Catalog: catalog},
	}
	for _, tool := range toolset {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

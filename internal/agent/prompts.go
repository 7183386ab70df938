package agent

import (
	"fmt"
	"strings"

	"hearth/internal/draft"
)

const systemPromptBase = `You are Hearth, an assistant that helps homeschool group staff plan and book events through conversation.

You work on one event at a time. Gather details from the staff member, record them with the draft tools as soon as they appear, and use the catalog tools to check for schedule conflicts, find similar past events, and suggest pricing. Never invent details the user did not give you.

An event needs at least a title, a start time, and either a cost (0 means free) or ticket tiers before it can be published. When the draft is complete, confirm the details with the user before materializing it. After publishing, report the event id and stop editing the draft.

Dates and times must be RFC 3339 timestamps, for example 2026-09-12T10:00:00Z. If the user gives a vague time, ask for a concrete one. Keep replies short and concrete.`

// buildSystemPrompt renders the instructions plus the current draft
// snapshot so the model always reasons against the latest merged state.
func buildSystemPrompt(current *draft.EventDraft) string {
	var b strings.Builder
	b.WriteString(systemPromptBase)

	if current == nil {
		b.WriteString("\n\nThere is no event draft yet.")
		return b.String()
	}

	fmt.Fprintf(&b, "\n\nCurrent event draft (version %d):\n%s", current.Version, current.Summary())
	if current.Materialized() {
		fmt.Fprintf(&b, "\nThis draft was published as event %s and can no longer be edited.", current.EventID)
	}
	return b.String()
}

// degradedReply is returned when the iteration cap is hit without a final
// answer from the model.
const degradedReply = "I need more information to finish this. Could you tell me more about the event you have in mind?"

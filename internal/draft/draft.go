// Package draft owns the event-under-construction: the structured field set
// an agent conversation gradually assembles before it becomes a real event.
// The Manager is the single writer; everything else reads or proposes.
package draft

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Canonical draft field names. Tool outputs propose values under these keys;
// anything else is rejected at merge time.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldStartsAt    = "starts_at"
	FieldEndsAt      = "ends_at"
	FieldLocation    = "location"
	FieldCost        = "cost"
	FieldCapacity    = "capacity"
	FieldMinAge      = "min_age"
	FieldMaxAge      = "max_age"
	FieldTicketTiers = "ticket_tiers"
)

// TicketTier is one priced admission class on a paid event.
type TicketTier struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity,omitempty"`
}

// Provenance records which tool call, in which turn, produced a field value.
type Provenance struct {
	Tool      string    `json:"tool"`
	CallID    string    `json:"call_id,omitempty"`
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// EventDraft is one version of the draft. Versions are immutable once
// written; a merge produces a new version rather than editing in place.
type EventDraft struct {
	SessionID  string                `json:"session_id"`
	Version    int                   `json:"version"`
	Fields     map[string]any        `json:"fields"`
	Provenance map[string]Provenance `json:"provenance"`
	EventID    string                `json:"event_id,omitempty"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// Materialized reports whether the draft has been turned into a real event.
func (d *EventDraft) Materialized() bool {
	return d.EventID != ""
}

// Field returns a copy-safe field value, nil when unset.
func (d *EventDraft) Field(name string) any {
	if d.Fields == nil {
		return nil
	}
	return d.Fields[name]
}

// Summary renders the draft as a short human-readable preview for the
// conversation surface: set fields only, in canonical order.
func (d *EventDraft) Summary() string {
	order := []string{
		FieldTitle, FieldDescription, FieldStartsAt, FieldEndsAt,
		FieldLocation, FieldCost, FieldCapacity, FieldMinAge, FieldMaxAge,
		FieldTicketTiers,
	}
	var lines []string
	for _, name := range order {
		v, ok := d.Fields[name]
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %v", name, v))
	}
	if len(lines) == 0 {
		return "(empty draft)"
	}
	return strings.Join(lines, "\n")
}

func cloneDraft(src *EventDraft) *EventDraft {
	clone := *src
	clone.Fields = make(map[string]any, len(src.Fields))
	for k, v := range src.Fields {
		clone.Fields[k] = v
	}
	clone.Provenance = make(map[string]Provenance, len(src.Provenance))
	for k, v := range src.Provenance {
		clone.Provenance[k] = v
	}
	return &clone
}

// MaterializedEvent is the plain structured payload handed to the event
// catalog once a draft passes completeness validation.
type MaterializedEvent struct {
	EventID     string       `json:"event_id"`
	SessionID   string       `json:"session_id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	StartsAt    time.Time    `json:"starts_at"`
	EndsAt      time.Time    `json:"ends_at,omitempty"`
	Location    string       `json:"location,omitempty"`
	Cost        float64      `json:"cost"`
	Capacity    int          `json:"capacity,omitempty"`
	MinAge      int          `json:"min_age,omitempty"`
	MaxAge      int          `json:"max_age,omitempty"`
	TicketTiers []TicketTier `json:"ticket_tiers,omitempty"`
	DraftVer    int          `json:"draft_version"`
}

// IncompleteDraftError reports a materialize attempt on a draft missing
// required fields. Missing is sorted for stable messages.
type IncompleteDraftError struct {
	SessionID string
	Missing   []string
}

func (e *IncompleteDraftError) Error() string {
	missing := append([]string(nil), e.Missing...)
	sort.Strings(missing)
	return fmt.Sprintf("draft for session %s is incomplete: missing %s",
		e.SessionID, strings.Join(missing, ", "))
}

// StaleDraftVersionError rejects a merge whose base version no longer
// matches the draft. The caller must re-read and retry.
type StaleDraftVersionError struct {
	SessionID string
	Base      int
	Current   int
}

func (e *StaleDraftVersionError) Error() string {
	return fmt.Sprintf("stale draft merge for session %s: base version %d, current %d",
		e.SessionID, e.Base, e.Current)
}

// MaterializedDraftError rejects mutation of a finalized draft.
type MaterializedDraftError struct {
	SessionID string
	EventID   string
}

func (e *MaterializedDraftError) Error() string {
	return fmt.Sprintf("draft for session %s is already materialized as event %s",
		e.SessionID, e.EventID)
}

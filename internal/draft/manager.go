package draft

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"hearth/internal/logging"
	"hearth/internal/observability"
)

// EventCreator hands a finished draft to the event catalog. The returned id
// becomes the draft's materialized event id.
type EventCreator interface {
	CreateEvent(ctx context.Context, ev MaterializedEvent) (string, error)
}

// Proposal is one batch of field changes against a known draft version.
// BaseVersion implements optimistic concurrency: a proposal built against an
// outdated version is rejected so the caller re-reads and retries.
type Proposal struct {
	BaseVersion int
	Fields      map[string]any
	Clear       []string
}

// Manager is the only writer of event drafts. Merges are serialized so the
// version check and the write are atomic with respect to each other.
type Manager struct {
	mu      sync.Mutex
	store   Store
	creator EventCreator
	logger  logging.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewManager creates a draft manager backed by store, materializing through
// creator.
func NewManager(store Store, creator EventCreator, logger logging.Logger) *Manager {
	return &Manager{
		store:   store,
		creator: creator,
		logger:  logging.OrNop(logger),
		now:     time.Now,
	}
}

// SetMetrics attaches a metrics sink. Nil disables recording.
func (m *Manager) SetMetrics(metrics *observability.Metrics) {
	m.metrics = metrics
}

// Merge folds the proposal into the session's draft, producing a new version.
// The first merge for a session creates version 1. Empty or null incoming
// values are treated as omissions and dropped; a field is only removed when
// named in the proposal's Clear list.
func (m *Manager) Merge(ctx context.Context, sessionID string, p Proposal, prov Provenance) (*EventDraft, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("missing session id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.store.Get(ctx, sessionID)
	if err != nil && !isNoDraft(err) {
		return nil, err
	}

	if current != nil {
		if current.Materialized() {
			return nil, &MaterializedDraftError{SessionID: sessionID, EventID: current.EventID}
		}
		if p.BaseVersion != current.Version {
			return nil, &StaleDraftVersionError{
				SessionID: sessionID,
				Base:      p.BaseVersion,
				Current:   current.Version,
			}
		}
	} else if p.BaseVersion != 0 {
		return nil, &StaleDraftVersionError{SessionID: sessionID, Base: p.BaseVersion, Current: 0}
	}

	next := &EventDraft{
		SessionID:  sessionID,
		Version:    1,
		Fields:     make(map[string]any),
		Provenance: make(map[string]Provenance),
	}
	if current != nil {
		next = cloneDraft(current)
		next.Version = current.Version + 1
	}

	prov.Version = next.Version
	if prov.Timestamp.IsZero() {
		prov.Timestamp = m.now()
	}

	touched := 0
	for name, raw := range p.Fields {
		if isOmission(raw) {
			continue
		}
		value, err := normalizeField(name, raw)
		if err != nil {
			return nil, err
		}
		next.Fields[name] = value
		next.Provenance[name] = prov
		touched++
	}
	for _, name := range p.Clear {
		if !knownField(name) {
			return nil, fmt.Errorf("unknown draft field %q in clear list", name)
		}
		delete(next.Fields, name)
		delete(next.Provenance, name)
		touched++
	}
	if touched == 0 {
		return nil, fmt.Errorf("proposal for session %s contains no field changes", sessionID)
	}

	next.UpdatedAt = m.now()
	if err := m.store.Put(ctx, next); err != nil {
		return nil, err
	}

	m.metrics.RecordDraftMerge()
	m.logger.Debug("Merged draft v%d for session %s (%d changes via %s)",
		next.Version, sessionID, touched, prov.Tool)
	return cloneDraft(next), nil
}

// Current returns the latest draft for the session, ErrNoDraft when no tool
// has proposed any field yet.
func (m *Manager) Current(ctx context.Context, sessionID string) (*EventDraft, error) {
	return m.store.Get(ctx, sessionID)
}

// History returns every draft version for the session, oldest first.
func (m *Manager) History(ctx context.Context, sessionID string) ([]*EventDraft, error) {
	return m.store.History(ctx, sessionID)
}

// Validate dry-runs completeness checking without creating anything. It
// returns the missing required fields, empty when the draft would
// materialize cleanly. Cross-field violations come back as an error.
func (m *Manager) Validate(ctx context.Context, sessionID string) ([]string, error) {
	current, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := buildEvent(current); err != nil {
		var incomplete *IncompleteDraftError
		if errors.As(err, &incomplete) {
			return incomplete.Missing, nil
		}
		return nil, err
	}
	return nil, nil
}

// Materialize validates the draft's completeness and creates the real event.
// A second call with no intervening merges returns the same event id without
// creating a duplicate.
func (m *Manager) Materialize(ctx context.Context, sessionID string) (*MaterializedEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	ev, err := buildEvent(current)
	if err != nil {
		return nil, err
	}

	if current.Materialized() {
		ev.EventID = current.EventID
		return ev, nil
	}

	id, err := m.creator.CreateEvent(ctx, *ev)
	if err != nil {
		return nil, fmt.Errorf("event creation failed: %w", err)
	}
	ev.EventID = id

	final := cloneDraft(current)
	final.Version = current.Version + 1
	final.EventID = id
	final.UpdatedAt = m.now()
	if err := m.store.Put(ctx, final); err != nil {
		return nil, err
	}

	m.metrics.RecordEventMaterialized()
	m.logger.Info("Materialized draft v%d for session %s as event %s",
		current.Version, sessionID, id)
	return ev, nil
}

func isNoDraft(err error) bool {
	return errors.Is(err, ErrNoDraft)
}

// Renormalize re-canonicalizes field values after a persistence round trip,
// where JSON decoding widens integers to float64 and collapses tier structs
// into raw maps.
func Renormalize(d *EventDraft) error {
	for name, raw := range d.Fields {
		value, err := normalizeField(name, raw)
		if err != nil {
			return fmt.Errorf("stored draft field %s: %w", name, err)
		}
		d.Fields[name] = value
	}
	return nil
}

func isOmission(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return true
	}
	return false
}

func knownField(name string) bool {
	switch name {
	case FieldTitle, FieldDescription, FieldStartsAt, FieldEndsAt,
		FieldLocation, FieldCost, FieldCapacity, FieldMinAge, FieldMaxAge,
		FieldTicketTiers:
		return true
	}
	return false
}

// normalizeField validates a proposed value against the field's expected
// shape and returns its canonical representation.
func normalizeField(name string, raw any) (any, error) {
	switch name {
	case FieldTitle, FieldDescription, FieldLocation:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("field %s must be a string, got %T", name, raw)
		}
		return strings.TrimSpace(s), nil

	case FieldStartsAt, FieldEndsAt:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("field %s must be an RFC3339 timestamp string, got %T", name, raw)
		}
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("field %s is not a valid RFC3339 timestamp: %v", name, err)
		}
		return t.Format(time.RFC3339), nil

	case FieldCost:
		f, ok := asNumber(raw)
		if !ok || f < 0 {
			return nil, fmt.Errorf("field %s must be a non-negative number", name)
		}
		return f, nil

	case FieldCapacity, FieldMinAge, FieldMaxAge:
		f, ok := asNumber(raw)
		if !ok || f < 0 || f != math.Trunc(f) {
			return nil, fmt.Errorf("field %s must be a non-negative whole number", name)
		}
		return int(f), nil

	case FieldTicketTiers:
		return normalizeTiers(raw)
	}
	return nil, fmt.Errorf("unknown draft field %q", name)
}

func asNumber(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func normalizeTiers(raw any) ([]TicketTier, error) {
	if tiers, ok := raw.([]TicketTier); ok {
		return tiers, nil
	}
	items, ok := raw.([]any)
	if !ok || len(items) == 0 {
		return nil, fmt.Errorf("field %s must be a non-empty array of tiers", FieldTicketTiers)
	}

	tiers := make([]TicketTier, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("ticket tier %d must be an object", i)
		}
		name, _ := obj["name"].(string)
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("ticket tier %d is missing a name", i)
		}
		price, ok := asNumber(obj["price"])
		if !ok || price < 0 {
			return nil, fmt.Errorf("ticket tier %q must have a non-negative price", name)
		}
		tier := TicketTier{Name: strings.TrimSpace(name), Price: price}
		if q, ok := asNumber(obj["quantity"]); ok {
			if q < 0 || q != math.Trunc(q) {
				return nil, fmt.Errorf("ticket tier %q has an invalid quantity", name)
			}
			tier.Quantity = int(q)
		}
		tiers = append(tiers, tier)
	}
	return tiers, nil
}

// buildEvent converts a complete draft into the catalog payload, or reports
// which required fields are still missing.
func buildEvent(d *EventDraft) (*MaterializedEvent, error) {
	var missing []string

	title, _ := d.Field(FieldTitle).(string)
	if title == "" {
		missing = append(missing, FieldTitle)
	}

	startsRaw, _ := d.Field(FieldStartsAt).(string)
	var startsAt time.Time
	if startsRaw == "" {
		missing = append(missing, FieldStartsAt)
	} else {
		startsAt, _ = time.Parse(time.RFC3339, startsRaw)
	}

	cost, hasCost := d.Field(FieldCost).(float64)
	tiers := tierValue(d.Field(FieldTicketTiers))
	if !hasCost && len(tiers) == 0 {
		// ticketing must be resolved: either a flat cost (0 = free) or tiers
		missing = append(missing, FieldCost)
	}

	if len(missing) > 0 {
		return nil, &IncompleteDraftError{SessionID: d.SessionID, Missing: missing}
	}

	ev := &MaterializedEvent{
		SessionID:   d.SessionID,
		Title:       title,
		StartsAt:    startsAt,
		Cost:        cost,
		TicketTiers: tiers,
		DraftVer:    d.Version,
	}
	ev.Description, _ = d.Field(FieldDescription).(string)
	ev.Location, _ = d.Field(FieldLocation).(string)
	if endsRaw, ok := d.Field(FieldEndsAt).(string); ok && endsRaw != "" {
		endsAt, _ := time.Parse(time.RFC3339, endsRaw)
		if !endsAt.After(startsAt) {
			return nil, fmt.Errorf("draft for session %s has %s before %s",
				d.SessionID, FieldEndsAt, FieldStartsAt)
		}
		ev.EndsAt = endsAt
	}
	ev.Capacity, _ = d.Field(FieldCapacity).(int)
	ev.MinAge, _ = d.Field(FieldMinAge).(int)
	ev.MaxAge, _ = d.Field(FieldMaxAge).(int)
	if ev.MaxAge > 0 && ev.MinAge > ev.MaxAge {
		return nil, fmt.Errorf("draft for session %s has min_age above max_age", d.SessionID)
	}
	return ev, nil
}

func tierValue(v any) []TicketTier {
	tiers, _ := v.([]TicketTier)
	return tiers
}

// Package booking exposes the event-catalog operations the tool layer binds
// to. The real webapp wires its CRUD layer behind Catalog; MemoryCatalog is
// the in-process implementation used by tests and the CLI.
package booking

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hearth/internal/draft"
)

// Event is a published catalog entry.
type Event struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	StartsAt    time.Time    `json:"starts_at"`
	EndsAt      time.Time    `json:"ends_at,omitempty"`
	Location    string       `json:"location,omitempty"`
	Cost        float64      `json:"cost"`
	Capacity    int          `json:"capacity,omitempty"`
	MinAge      int          `json:"min_age,omitempty"`
	MaxAge      int          `json:"max_age,omitempty"`
	TicketTiers []draft.TicketTier `json:"ticket_tiers,omitempty"`
}

// PriceSuggestion is the outcome of a pricing query: a recommended cost plus
// the range it was derived from.
type PriceSuggestion struct {
	Suggested float64 `json:"suggested"`
	Low       float64 `json:"low"`
	High      float64 `json:"high"`
	Basis     string  `json:"basis"`
}

// Catalog is the booking-domain surface available to agent tools. All
// methods must be safe for concurrent use: independent sessions share one
// catalog.
type Catalog interface {
	// FindSimilar returns up to limit events ranked by title/description
	// similarity to the query
	FindSimilar(ctx context.Context, query string, limit int) ([]Event, error)

	// CheckConflict returns published events overlapping the window at the
	// given location (any location when empty)
	CheckConflict(ctx context.Context, startsAt, endsAt time.Time, location string) ([]Event, error)

	// SuggestPrice recommends a per-attendee cost for an event like the
	// described one
	SuggestPrice(ctx context.Context, title string, durationHours float64, capacity int) (*PriceSuggestion, error)

	// CreateEvent publishes a materialized draft and returns its event id
	CreateEvent(ctx context.Context, ev draft.MaterializedEvent) (string, error)
}

// MemoryCatalog keeps events in process memory.
type MemoryCatalog struct {
	mu     sync.RWMutex
	events map[string]Event
}

var _ Catalog = (*MemoryCatalog)(nil)
var _ draft.EventCreator = (*MemoryCatalog)(nil)

// NewMemoryCatalog creates a catalog pre-populated with seed events.
func NewMemoryCatalog(seed ...Event) *MemoryCatalog {
	c := &MemoryCatalog{events: make(map[string]Event)}
	for _, ev := range seed {
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		c.events[ev.ID] = ev
	}
	return c
}

// Get returns a published event by id.
func (c *MemoryCatalog) Get(id string) (Event, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ev, ok := c.events[id]
	return ev, ok
}

// Len reports the number of published events.
func (c *MemoryCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}

func (c *MemoryCatalog) FindSimilar(ctx context.Context, query string, limit int) ([]Event, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty search query")
	}
	if limit <= 0 {
		limit = 5
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	type scored struct {
		ev    Event
		score int
	}
	var matches []scored
	terms := tokenize(query)
	for _, ev := range c.events {
		score := overlap(terms, tokenize(ev.Title+" "+ev.Description))
		if score > 0 {
			matches = append(matches, scored{ev: ev, score: score})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].ev.Title < matches[j].ev.Title
	})

	out := make([]Event, 0, limit)
	for _, m := range matches {
		if len(out) == limit {
			break
		}
		out = append(out, m.ev)
	}
	return out, nil
}

func (c *MemoryCatalog) CheckConflict(ctx context.Context, startsAt, endsAt time.Time, location string) ([]Event, error) {
	if startsAt.IsZero() {
		return nil, fmt.Errorf("missing start time")
	}
	if endsAt.IsZero() {
		endsAt = startsAt.Add(2 * time.Hour)
	}
	if !endsAt.After(startsAt) {
		return nil, fmt.Errorf("window end must be after start")
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var conflicts []Event
	for _, ev := range c.events {
		evEnd := ev.EndsAt
		if evEnd.IsZero() {
			evEnd = ev.StartsAt.Add(2 * time.Hour)
		}
		if !ev.StartsAt.Before(endsAt) || !startsAt.Before(evEnd) {
			continue
		}
		if location != "" && !strings.EqualFold(ev.Location, location) {
			continue
		}
		conflicts = append(conflicts, ev)
	}
	sort.Slice(conflicts, func(i, j int) bool {
		return conflicts[i].StartsAt.Before(conflicts[j].StartsAt)
	})
	return conflicts, nil
}

func (c *MemoryCatalog) SuggestPrice(ctx context.Context, title string, durationHours float64, capacity int) (*PriceSuggestion, error) {
	if durationHours <= 0 {
		durationHours = 2
	}

	similar, _ := c.FindSimilar(ctx, title, 10)
	var costs []float64
	for _, ev := range similar {
		if ev.Cost > 0 {
			costs = append(costs, ev.Cost)
		}
	}

	if len(costs) == 0 {
		// no comparable paid events: flat rate per hour, small-group premium
		suggested := 5 * durationHours
		if capacity > 0 && capacity <= 10 {
			suggested *= 1.5
		}
		return &PriceSuggestion{
			Suggested: suggested,
			Low:       suggested * 0.5,
			High:      suggested * 1.5,
			Basis:     "no comparable events; hourly base rate",
		}, nil
	}

	sort.Float64s(costs)
	return &PriceSuggestion{
		Suggested: costs[len(costs)/2],
		Low:       costs[0],
		High:      costs[len(costs)-1],
		Basis:     fmt.Sprintf("median of %d comparable events", len(costs)),
	}, nil
}

func (c *MemoryCatalog) CreateEvent(ctx context.Context, ev draft.MaterializedEvent) (string, error) {
	if ev.Title == "" || ev.StartsAt.IsZero() {
		return "", fmt.Errorf("event is missing title or start time")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	event := Event{
		ID:          uuid.NewString(),
		Title:       ev.Title,
		Description: ev.Description,
		StartsAt:    ev.StartsAt,
		EndsAt:      ev.EndsAt,
		Location:    ev.Location,
		Cost:        ev.Cost,
		Capacity:    ev.Capacity,
		MinAge:      ev.MinAge,
		MaxAge:      ev.MaxAge,
		TicketTiers: ev.TicketTiers,
	}
	c.events[event.ID] = event
	return event.ID, nil
}

func tokenize(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(s)) {
		word = strings.Trim(word, ".,!?:;\"'()")
		if len(word) < 3 {
			continue
		}
		tokens[word] = struct{}{}
	}
	return tokens
}

func overlap(a, b map[string]struct{}) int {
	n := 0
	for t := range a {
		if _, ok := b[t]; ok {
			n++
		}
	}
	return n
}

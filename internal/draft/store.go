package draft

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoDraft is returned when a session has no draft yet.
var ErrNoDraft = errors.New("no draft for session")

// Store persists draft versions. Every Put appends to the session's version
// history; prior versions are never rewritten.
type Store interface {
	// Get returns the latest draft version for the session, or ErrNoDraft
	Get(ctx context.Context, sessionID string) (*EventDraft, error)

	// Put appends a new version as the session's current draft
	Put(ctx context.Context, d *EventDraft) error

	// History returns all versions for the session, oldest first
	History(ctx context.Context, sessionID string) ([]*EventDraft, error)
}

// MemoryStore keeps draft histories in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	versions map[string][]*EventDraft
}

// NewMemoryStore creates an empty in-memory draft store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{versions: make(map[string][]*EventDraft)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Get(ctx context.Context, sessionID string) (*EventDraft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.versions[sessionID]
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoDraft, sessionID)
	}
	return cloneDraft(history[len(history)-1]), nil
}

func (s *MemoryStore) Put(ctx context.Context, d *EventDraft) error {
	if d.SessionID == "" {
		return fmt.Errorf("draft missing session id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[d.SessionID] = append(s.versions[d.SessionID], cloneDraft(d))
	return nil
}

func (s *MemoryStore) History(ctx context.Context, sessionID string) ([]*EventDraft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.versions[sessionID]
	out := make([]*EventDraft, 0, len(history))
	for _, d := range history {
		out = append(out, cloneDraft(d))
	}
	return out, nil
}

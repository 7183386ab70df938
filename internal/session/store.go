package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists conversation sessions. Turns are append-only: no turn is
// ever edited or removed, so the full conversation can be replayed.
type Store interface {
	// Create starts a new active session owned by userID
	Create(ctx context.Context, userID string) (*Session, error)

	// Get retrieves a session by ID
	Get(ctx context.Context, id string) (*Session, error)

	// AppendTurn adds a turn to the session log. Terminal sessions reject
	// appends with a TerminalStateError.
	AppendTurn(ctx context.Context, id string, turn Turn) error

	// SetStatus transitions the session status, enforcing the state machine
	SetStatus(ctx context.Context, id string, status Status) error

	// Archive marks a terminal session archived; it is retained, not deleted
	Archive(ctx context.Context, id string) error

	// List returns all session IDs, most recently updated first
	List(ctx context.Context) ([]string, error)
}

// MemoryStore is the in-process Store used by tests and the CLI.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Create(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("missing user id")
	}

	now := time.Now()
	session := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    StatusActive,
		Turns:     []Turn{},
		Memory:    make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return cloneSession(session), nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cloneSession(session), nil
}

func (s *MemoryStore) AppendTurn(ctx context.Context, id string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if session.Status.Terminal() {
		return &TerminalStateError{SessionID: id, Status: session.Status}
	}

	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	session.Turns = append(session.Turns, turn)
	session.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if session.Status == status {
		return nil
	}
	if !CanTransition(session.Status, status) {
		if session.Status.Terminal() {
			return &TerminalStateError{SessionID: id, Status: session.Status}
		}
		return fmt.Errorf("invalid status transition %s -> %s", session.Status, status)
	}

	session.Status = status
	session.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Archive(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !session.Status.Terminal() {
		return fmt.Errorf("cannot archive session %s in status %s", id, session.Status)
	}
	if session.ArchivedAt == nil {
		now := time.Now()
		session.ArchivedAt = &now
		session.UpdatedAt = now
	}
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		all = append(all, session)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})

	ids := make([]string, 0, len(all))
	for _, session := range all {
		ids = append(ids, session.ID)
	}
	return ids, nil
}

func cloneSession(src *Session) *Session {
	clone := *src
	clone.Turns = append([]Turn(nil), src.Turns...)
	clone.Memory = make(map[string]string, len(src.Memory))
	for k, v := range src.Memory {
		clone.Memory[k] = v
	}
	if src.ArchivedAt != nil {
		archived := *src.ArchivedAt
		clone.ArchivedAt = &archived
	}
	return &clone
}

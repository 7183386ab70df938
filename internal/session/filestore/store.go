// Package filestore persists sessions as one JSON document per session,
// good enough for single-host deployments and local development.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hearth/internal/logging"
	"hearth/internal/session"
)

type store struct {
	baseDir string
	logger  logging.Logger

	// Serializes read-modify-write cycles on the per-session files.
	mu sync.Mutex
}

// New creates a file-backed session store rooted at baseDir.
func New(baseDir string) (session.Store, error) {
	if strings.HasPrefix(baseDir, "~/") {
		home, _ := os.UserHomeDir()
		baseDir = filepath.Join(home, baseDir[2:])
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &store{
		baseDir: baseDir,
		logger:  logging.NewComponentLogger("session-filestore"),
	}, nil
}

func (s *store) path(id string) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s.json", id))
}

func (s *store) Create(ctx context.Context, userID string) (*session.Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("missing user id")
	}

	now := time.Now()
	sess := &session.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    session.StatusActive,
		Turns:     []session.Turn{},
		Memory:    make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return nil, err
	}

	// O_EXCL guards against id collisions overwriting an existing session.
	f, err := os.OpenFile(s.path(sess.ID), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create session file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write session: %w", err)
	}
	return sess, nil
}

func (s *store) Get(ctx context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(id)
}

func (s *store) load(id string) (*session.Session, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}
	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		s.logger.Error("Failed to decode session file %s: %v", s.path(id), err)
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *store) save(sess *session.Session) error {
	sess.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(sess.ID), data, 0o644)
}

func (s *store) AppendTurn(ctx context.Context, id string, turn session.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.load(id)
	if err != nil {
		return err
	}
	if sess.Status.Terminal() {
		return &session.TerminalStateError{SessionID: id, Status: sess.Status}
	}

	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	sess.Turns = append(sess.Turns, turn)
	return s.save(sess)
}

func (s *store) SetStatus(ctx context.Context, id string, status session.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.load(id)
	if err != nil {
		return err
	}
	if sess.Status == status {
		return nil
	}
	if !session.CanTransition(sess.Status, status) {
		if sess.Status.Terminal() {
			return &session.TerminalStateError{SessionID: id, Status: sess.Status}
		}
		return fmt.Errorf("invalid status transition %s -> %s", sess.Status, status)
	}

	sess.Status = status
	return s.save(sess)
}

func (s *store) Archive(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.load(id)
	if err != nil {
		return err
	}
	if !sess.Status.Terminal() {
		return fmt.Errorf("cannot archive session %s in status %s", id, sess.Status)
	}
	if sess.ArchivedAt == nil {
		now := time.Now()
		sess.ArchivedAt = &now
	}
	return s.save(sess)
}

func (s *store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, err
	}

	type entry struct {
		id      string
		updated time.Time
	}
	var found []entry
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		info, err := e.Info()
		if err != nil {
			continue
		}
		found = append(found, entry{id: id, updated: info.ModTime()})
	}
	sort.Slice(found, func(i, j int) bool {
		return found[i].updated.After(found[j].updated)
	})

	ids := make([]string, 0, len(found))
	for _, e := range found {
		ids = append(ids, e.id)
	}
	return ids, nil
}

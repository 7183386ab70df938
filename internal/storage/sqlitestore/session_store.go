package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"hearth/internal/session"
)

// SessionStore implements session.Store on the shared SQLite database.
// The state machine rules match the in-memory store exactly; the only
// difference is durability.
type SessionStore struct {
	db *sql.DB
}

var _ session.Store = (*SessionStore)(nil)

const timeLayout = time.RFC3339Nano

func (s *SessionStore) Create(ctx context.Context, userID string) (*session.Session, error) {
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

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, status, memory, created_at, updated_at) VALUES (?, ?, ?, '{}', ?, ?)`,
		sess.ID, sess.UserID, string(sess.Status), now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	sess, err := s.loadSession(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, tool_name, tool_call_id, arguments, timestamp FROM turns WHERE session_id = ? ORDER BY seq`,
		id)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var turn session.Turn
		var args sql.NullString
		var ts string
		if err := rows.Scan(&turn.Role, &turn.Content, &turn.ToolName, &turn.ToolCallID, &args, &ts); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if args.Valid && args.String != "" {
			if err := json.Unmarshal([]byte(args.String), &turn.Arguments); err != nil {
				return nil, fmt.Errorf("decode turn arguments: %w", err)
			}
		}
		turn.Timestamp, err = time.Parse(timeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("parse turn timestamp: %w", err)
		}
		sess.Turns = append(sess.Turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) AppendTurn(ctx context.Context, id string, turn session.Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sess, err := s.loadSession(ctx, tx, id)
	if err != nil {
		return err
	}
	if sess.Status.Terminal() {
		return &session.TerminalStateError{SessionID: id, Status: sess.Status}
	}

	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	var args any
	if len(turn.Arguments) > 0 {
		data, err := json.Marshal(turn.Arguments)
		if err != nil {
			return fmt.Errorf("encode turn arguments: %w", err)
		}
		args = string(data)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO turns (session_id, seq, role, content, tool_name, tool_call_id, arguments, timestamp)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE session_id = ?), ?, ?, ?, ?, ?, ?)`,
		id, id, turn.Role, turn.Content, turn.ToolName, turn.ToolCallID, args, turn.Timestamp.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	if err := s.touch(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SessionStore) SetStatus(ctx context.Context, id string, status session.Status) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sess, err := s.loadSession(ctx, tx, id)
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

	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return tx.Commit()
}

func (s *SessionStore) Archive(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sess, err := s.loadSession(ctx, tx, id)
	if err != nil {
		return err
	}
	if !sess.Status.Terminal() {
		return fmt.Errorf("cannot archive session %s in status %s", id, sess.Status)
	}
	if sess.ArchivedAt != nil {
		return nil
	}

	now := time.Now().Format(timeLayout)
	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET archived_at = ?, updated_at = ? WHERE id = ?`, now, now, id)
	if err != nil {
		return fmt.Errorf("archive session: %w", err)
	}
	return tx.Commit()
}

func (s *SessionStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// loadSession reads the session row without its turns.
func (s *SessionStore) loadSession(ctx context.Context, q queryer, id string) (*session.Session, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, user_id, status, memory, created_at, updated_at, archived_at FROM sessions WHERE id = ?`, id)

	var sess session.Session
	var status, memory, createdAt, updatedAt string
	var archivedAt sql.NullString
	err := row.Scan(&sess.ID, &sess.UserID, &status, &memory, &createdAt, &updatedAt, &archivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	sess.Status = session.Status(status)
	sess.Turns = []session.Turn{}
	sess.Memory = make(map[string]string)
	if memory != "" {
		if err := json.Unmarshal([]byte(memory), &sess.Memory); err != nil {
			return nil, fmt.Errorf("decode session memory: %w", err)
		}
	}
	if sess.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if sess.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if archivedAt.Valid {
		at, err := time.Parse(timeLayout, archivedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse archived_at: %w", err)
		}
		sess.ArchivedAt = &at
	}
	return &sess, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SessionStore) touch(ctx context.Context, e execer, id string) error {
	_, err := e.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`, time.Now().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

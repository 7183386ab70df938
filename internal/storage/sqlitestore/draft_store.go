package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"hearth/internal/draft"
)

// DraftStore implements draft.Store on the shared SQLite database. Each
// version is one immutable row; the latest version is the current draft.
type DraftStore struct {
	db *sql.DB
}

var _ draft.Store = (*DraftStore)(nil)

func (s *DraftStore) Get(ctx context.Context, sessionID string) (*draft.EventDraft, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM drafts WHERE session_id = ? ORDER BY version DESC LIMIT 1`, sessionID)

	var payload string
	err := row.Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", draft.ErrNoDraft, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}
	return decodeDraft(payload)
}

func (s *DraftStore) Put(ctx context.Context, d *draft.EventDraft) error {
	if d == nil || d.SessionID == "" {
		return fmt.Errorf("draft missing session id")
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO drafts (session_id, version, payload) VALUES (?, ?, ?)`,
		d.SessionID, d.Version, string(payload))
	if err != nil {
		return fmt.Errorf("insert draft version: %w", err)
	}
	return nil
}

func (s *DraftStore) History(ctx context.Context, sessionID string) ([]*draft.EventDraft, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM drafts WHERE session_id = ? ORDER BY version`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query draft history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var history []*draft.EventDraft
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan draft version: %w", err)
		}
		d, err := decodeDraft(payload)
		if err != nil {
			return nil, err
		}
		history = append(history, d)
	}
	return history, rows.Err()
}

// decodeDraft unmarshals a stored version and restores canonical field
// types, since JSON round trips decay ints to float64 and typed slices to
// generic maps.
func decodeDraft(payload string) (*draft.EventDraft, error) {
	var d draft.EventDraft
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	if err := draft.Renormalize(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionInfo is a named browser session with persisted storage state.
type SessionInfo struct {
	Name             string    `json:"name"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
	StorageStatePath string    `json:"storageStatePath"`
	Notes            string    `json:"notes,omitempty"`
	Headed           bool      `json:"headed"`
}

// ActionLogEntry records one executed browser action.
type ActionLogEntry struct {
	ID          string    `json:"id"`
	SessionName string    `json:"sessionName"`
	URL         string    `json:"url"`
	ActionJSON  string    `json:"action"`
	ResultJSON  string    `json:"result"`
	CreatedAt   time.Time `json:"createdAt"`
}

// UpsertSession creates or refreshes a session row. created_at survives
// updates; updated_at always moves forward.
func (s *Store) UpsertSession(ctx context.Context, session *SessionInfo) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (name, created_at, updated_at, storage_state_path, notes, headed)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			updated_at = excluded.updated_at,
			storage_state_path = excluded.storage_state_path,
			notes = excluded.notes,
			headed = excluded.headed
	`, session.Name, now, now, session.StorageStatePath, nullable(session.Notes),
		boolToInt(session.Headed))
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", session.Name, err)
	}
	return nil
}

// TouchSession bumps a session's updated_at after its storage state is saved.
func (s *Store) TouchSession(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET updated_at = ? WHERE name = ?
	`, time.Now().UTC().Format(time.RFC3339Nano), name)
	if err != nil {
		return fmt.Errorf("touch session %s: %w", name, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSession returns a session by name, ErrNotFound when absent.
func (s *Store) GetSession(ctx context.Context, name string) (*SessionInfo, error) {
	var (
		session   SessionInfo
		createdAt string
		updatedAt string
		notes     sql.NullString
		headed    int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT name, created_at, updated_at, storage_state_path, notes, headed
		FROM sessions WHERE name = ?
	`, name).Scan(&session.Name, &createdAt, &updatedAt, &session.StorageStatePath, &notes, &headed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", name, err)
	}

	if session.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at for session %s: %w", name, err)
	}
	if session.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at for session %s: %w", name, err)
	}
	session.Notes = notes.String
	session.Headed = headed != 0
	return &session, nil
}

// ListSessions returns all sessions, most recently updated first.
func (s *Store) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan session name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sessions := make([]*SessionInfo, 0, len(names))
	for _, name := range names {
		session, err := s.GetSession(ctx, name)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// AppendActionLog records an executed action and its outcome.
func (s *Store) AppendActionLog(ctx context.Context, sessionName, url, actionJSON, resultJSON string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actions_log (id, session_name, url, action_json, result_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, sessionName, url, actionJSON, resultJSON, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("append action log: %w", err)
	}
	return id, nil
}

// ListActionLog returns a session's executed actions, newest first.
func (s *Store) ListActionLog(ctx context.Context, sessionName string, limit int) ([]*ActionLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_name, url, action_json, result_json, created_at
		FROM actions_log WHERE session_name = ?
		ORDER BY created_at DESC LIMIT ?
	`, sessionName, limit)
	if err != nil {
		return nil, fmt.Errorf("list action log for %s: %w", sessionName, err)
	}
	defer rows.Close()

	var entries []*ActionLogEntry
	for rows.Next() {
		var entry ActionLogEntry
		var createdAt string
		if err := rows.Scan(&entry.ID, &entry.SessionName, &entry.URL,
			&entry.ActionJSON, &entry.ResultJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan action log entry: %w", err)
		}
		if entry.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parse action log created_at: %w", err)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

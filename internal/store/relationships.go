package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Relationship is the index row for a stored snapshot.
type Relationship struct {
	ID        int64  `json:"id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// LoadSnapshot returns the stored snapshot for (userID, sessionID). A
// relationship that was never saved yields nil, nil.
func (db *DB) LoadSnapshot(ctx context.Context, userID, sessionID string) ([]byte, error) {
	var snapshot string
	err := db.QueryRowContext(ctx, `
		SELECT snapshot FROM relationships WHERE user_id = ? AND session_id = ?
	`, userID, sessionID).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return []byte(snapshot), nil
}

// SaveSnapshot creates or replaces the snapshot for (userID, sessionID).
func (db *DB) SaveSnapshot(ctx context.Context, userID, sessionID string, snapshot []byte) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO relationships (user_id, session_id, snapshot, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, session_id) DO UPDATE SET
			snapshot = excluded.snapshot,
			updated_at = excluded.updated_at
	`, userID, sessionID, string(snapshot), now, now)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// DeleteSnapshot removes a relationship and its update log. Deleting a
// relationship that does not exist is not an error.
func (db *DB) DeleteSnapshot(ctx context.Context, userID, sessionID string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM relationships WHERE user_id = ? AND session_id = ?
	`, userID, sessionID); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM update_log WHERE user_id = ? AND session_id = ?
	`, userID, sessionID); err != nil {
		return fmt.Errorf("delete update log: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// ListRelationships returns the most recently updated relationships first.
func (db *DB) ListRelationships(ctx context.Context, limit int) ([]Relationship, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, session_id, created_at, updated_at
		FROM relationships ORDER BY updated_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}
	defer rows.Close()

	var out []Relationship
	for rows.Next() {
		var r Relationship
		if err := rows.Scan(&r.ID, &r.UserID, &r.SessionID, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

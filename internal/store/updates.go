package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// maxEventSize caps the stored event JSON.
const maxEventSize = 10 * 1024 // 10KB

// UpdateRecord is one processed update in the log.
type UpdateRecord struct {
	ID           string  `json:"id"`
	UserID       string  `json:"user_id"`
	SessionID    string  `json:"session_id"`
	ElapsedHours float64 `json:"elapsed_hours"`
	Event        string  `json:"event"` // JSON
	Category     string  `json:"category"`
	Loops        string  `json:"loops"` // comma-separated feedback loops that fired
	CreatedAt    int64   `json:"created_at"`
}

// AppendUpdate stores an update record. ID and CreatedAt are filled in when
// empty. The event payload is truncated to 10KB.
func (db *DB) AppendUpdate(ctx context.Context, rec UpdateRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().UnixMilli()
	}
	if len(rec.Event) > maxEventSize {
		rec.Event = rec.Event[:maxEventSize]
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO update_log (id, user_id, session_id, elapsed_hours, event, category, loops, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.UserID, rec.SessionID, rec.ElapsedHours, rec.Event, rec.Category, rec.Loops, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("append update: %w", err)
	}
	return nil
}

// GetUpdates returns the most recent updates for a relationship, oldest
// first.
func (db *DB) GetUpdates(ctx context.Context, userID, sessionID string, limit int) ([]UpdateRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, session_id, elapsed_hours, event, category, loops, created_at FROM (
			SELECT rowid AS seq, * FROM update_log
			WHERE user_id = ? AND session_id = ?
			ORDER BY created_at DESC, seq DESC LIMIT ?
		) ORDER BY created_at, seq
	`, userID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}
	defer rows.Close()

	var out []UpdateRecord
	for rows.Next() {
		var r UpdateRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.SessionID, &r.ElapsedHours, &r.Event, &r.Category, &r.Loops, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan update: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountUpdates returns the number of logged updates for a relationship.
func (db *DB) CountUpdates(ctx context.Context, userID, sessionID string) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM update_log WHERE user_id = ? AND session_id = ?
	`, userID, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count updates: %w", err)
	}
	return count, nil
}

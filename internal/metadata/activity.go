package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Activity is one audit-trail row recording who did what, when.
type Activity struct {
	ID        uuid.UUID         `json:"id"`
	Username  string            `json:"username"`
	Action    string            `json:"action"` // REGISTER_EVIDENCE, VERIFY_EVIDENCE, VIEW_RESULTS, ...
	Detail    map[string]string `json:"detail,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// LogActivity appends an audit-trail row. The log is append-only; there is
// no update or delete path.
func (s *Store) LogActivity(ctx context.Context, username, action string, detail map[string]string) (*Activity, error) {
	entry := &Activity{
		ID:        uuid.New(),
		Username:  username,
		Action:    action,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}

	detailJSON, err := json.Marshal(entry.Detail)
	if err != nil {
		return nil, fmt.Errorf("marshal activity detail: %w", err)
	}

	if _, err := s.db.Exec(ctx, `
		INSERT INTO activity_log (id, username, action, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.Username, entry.Action, detailJSON, entry.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert activity row: %w", err)
	}
	return entry, nil
}

// ListActivity returns the most recent audit rows, newest first, optionally
// filtered by username.
func (s *Store) ListActivity(ctx context.Context, username string, limit int) ([]*Activity, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, username, action, detail, created_at
		FROM activity_log
		WHERE ($1 = '' OR username = $1)
		ORDER BY created_at DESC
		LIMIT $2`,
		username, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query activity log: %w", err)
	}
	defer rows.Close()

	var entries []*Activity
	for rows.Next() {
		entry := &Activity{}
		var detailJSON []byte
		if err := rows.Scan(&entry.ID, &entry.Username, &entry.Action, &detailJSON, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity row: %w", err)
		}
		if len(detailJSON) > 0 {
			if err := json.Unmarshal(detailJSON, &entry.Detail); err != nil {
				return nil, fmt.Errorf("decode activity detail: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

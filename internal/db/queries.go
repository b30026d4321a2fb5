package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/kiki/internal/errors"
)

// StatusRow is the persisted form of the current snapshot.
type StatusRow struct {
	PublishID  string
	State      string
	Message    string
	Subagents  int
	LastUpdate int64 // Unix milliseconds
	WrittenAt  int64 // Unix milliseconds
}

// SaveCurrent overwrites the single current-status row.
func SaveCurrent(ctx context.Context, db *sql.DB, row StatusRow) error {
	if row.WrittenAt == 0 {
		row.WrittenAt = time.Now().UnixMilli()
	}

	query := `
		INSERT INTO current_status (id, publish_id, state, message, subagents, last_update, written_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			publish_id  = excluded.publish_id,
			state       = excluded.state,
			message     = excluded.message,
			subagents   = excluded.subagents,
			last_update = excluded.last_update,
			written_at  = excluded.written_at
	`
	_, err := db.ExecContext(ctx, query,
		row.PublishID, row.State, row.Message, row.Subagents, row.LastUpdate, row.WrittenAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// LoadCurrent returns the current-status row.
// Returns STATUS_MISSING if nothing has been saved yet.
func LoadCurrent(ctx context.Context, db *sql.DB) (*StatusRow, error) {
	query := `
		SELECT publish_id, state, message, subagents, last_update, written_at
		FROM current_status
		WHERE id = 1
	`
	var row StatusRow
	err := db.QueryRowContext(ctx, query).Scan(
		&row.PublishID, &row.State, &row.Message, &row.Subagents, &row.LastUpdate, &row.WrittenAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewStatusMissing(err)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &row, nil
}

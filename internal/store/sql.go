package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hpungsan/kiki/internal/db"
	"github.com/hpungsan/kiki/internal/errors"
	"github.com/hpungsan/kiki/internal/snapshot"
)

// SQLStore keeps the snapshot in the single-row current_status table.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an initialized database (see db.Init).
func NewSQLStore(database *sql.DB) *SQLStore {
	return &SQLStore{db: database}
}

// Save upserts the current row.
func (s *SQLStore) Save(ctx context.Context, rec Record) error {
	return db.SaveCurrent(ctx, s.db, db.StatusRow{
		PublishID:  rec.ID,
		State:      string(rec.Snapshot.State),
		Message:    rec.Snapshot.Message,
		Subagents:  rec.Snapshot.Subagents,
		LastUpdate: rec.Snapshot.Timestamp.UnixMilli(),
	})
}

// Load reads the current row.
func (s *SQLStore) Load(ctx context.Context) (snapshot.Snapshot, error) {
	rec, err := s.LoadRecord(ctx)
	return rec.Snapshot, err
}

// LoadRecord reads the current row including its publication ID.
func (s *SQLStore) LoadRecord(ctx context.Context) (Record, error) {
	row, err := db.LoadCurrent(ctx, s.db)
	if err != nil {
		return Record{}, err
	}
	state := snapshot.State(row.State)
	if !snapshot.IsServerState(state) {
		return Record{}, errors.NewStatusCorrupt(fmt.Errorf("stored state %q is not publishable", row.State))
	}
	return Record{
		ID:       row.PublishID,
		Snapshot: snapshot.New(state, row.Message, row.Subagents, time.UnixMilli(row.LastUpdate)),
	}, nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

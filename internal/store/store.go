// Package store keeps the single durable copy of the current snapshot.
// Writes overwrite; there is no history.
package store

import (
	"context"
	"fmt"

	"github.com/hpungsan/kiki/internal/config"
	"github.com/hpungsan/kiki/internal/db"
	"github.com/hpungsan/kiki/internal/snapshot"
)

// Record is one accepted publication.
type Record struct {
	ID       string
	Snapshot snapshot.Snapshot
}

// Store persists the current snapshot.
//
// Load returns STATUS_MISSING when nothing has been written yet and
// STATUS_CORRUPT when the stored copy cannot be parsed.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context) (snapshot.Snapshot, error)
	Close() error
}

// Open returns the store selected by cfg.Backend.
func Open(cfg *config.Config, baseDir string) (Store, error) {
	switch cfg.Backend {
	case "", config.BackendFile:
		return NewFileStore(cfg.StatusPath(baseDir)), nil
	case config.BackendSQLite:
		database, err := db.Init(baseDir)
		if err != nil {
			return nil, err
		}
		return NewSQLStore(database), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

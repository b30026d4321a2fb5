package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hpungsan/kiki/internal/errors"
	"github.com/hpungsan/kiki/internal/snapshot"
)

// FileStore keeps the snapshot as a wire-format JSON file. Readers observe
// either the previous or the new copy, never a partial one.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the status file location.
func (f *FileStore) Path() string {
	return f.path
}

// Save writes rec to a temp file in the same directory, then renames it
// over the status file.
func (f *FileStore) Save(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := snapshot.Encode(rec.Snapshot)
	if err != nil {
		return errors.NewInternal(err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create status directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := f.path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create status file: %w", err))
	}

	// Clean up temp file on failure (original file is preserved)
	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Close(); err != nil {
		file = nil
		return errors.NewInternal(err)
	}
	file = nil

	if err := os.Rename(tempPath, f.path); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to replace status file: %w", err))
	}
	success = true
	return nil
}

// Load reads and decodes the status file.
func (f *FileStore) Load(ctx context.Context) (snapshot.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return snapshot.Snapshot{}, err
	}
	data, err := f.ReadRaw()
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	d, err := snapshot.Decode(data)
	if err != nil {
		return snapshot.Snapshot{}, errors.NewStatusCorrupt(err)
	}
	return d.Snapshot, nil
}

// ReadRaw returns the status file bytes unparsed.
func (f *FileStore) ReadRaw() ([]byte, error) {
	file, err := openFileNoFollowRead(f.path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.NewStatusCorrupt(err)
	}
	return data, nil
}

// Close is a no-op.
func (f *FileStore) Close() error {
	return nil
}

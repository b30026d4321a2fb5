package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/kiki/internal/config"
	"github.com/hpungsan/kiki/internal/errors"
	"github.com/hpungsan/kiki/internal/snapshot"
)

var stamp = time.Date(2026, 3, 4, 5, 6, 7, 890_000_000, time.UTC)

func sample() Record {
	return Record{
		ID:       "01HZX0000000000000000000AA",
		Snapshot: snapshot.New(snapshot.StateDelegating, "delegating to 2 helpers", 2, stamp),
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fs := NewFileStore(filepath.Join(t.TempDir(), "nested", "status.json"))

	require.NoError(t, fs.Save(ctx, sample()))

	got, err := fs.Load(ctx)
	require.NoError(t, err)
	require.True(t, snapshot.Equal(sample().Snapshot, got), "got %+v", got)

	raw, err := fs.ReadRaw()
	require.NoError(t, err)
	require.Contains(t, string(raw), `"lastUpdate": "2026-03-04T05:06:07.890Z"`)
}

func TestFileStore_OverwritesAndLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs := NewFileStore(filepath.Join(dir, "status.json"))

	require.NoError(t, fs.Save(ctx, sample()))
	next := Record{ID: "b", Snapshot: snapshot.New(snapshot.StateIdle, "observing the digital horizon...", 0, stamp.Add(time.Minute))}
	require.NoError(t, fs.Save(ctx, next))

	got, err := fs.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, snapshot.StateIdle, got.State)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must be renamed or removed")
}

func TestFileStore_Missing(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "status.json"))
	_, err := fs.Load(context.Background())
	require.True(t, errors.Is(err, errors.ErrStatusMissing), "err = %v", err)
}

func TestFileStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := NewFileStore(path).Load(context.Background())
	require.True(t, errors.Is(err, errors.ErrStatusCorrupt), "err = %v", err)
}

func TestFileStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fs := NewFileStore(filepath.Join(t.TempDir(), "status.json"))
	require.ErrorIs(t, fs.Save(ctx, sample()), context.Canceled)
}

func TestSQLStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultConfig()
	cfg.Backend = config.BackendSQLite

	st, err := Open(cfg, t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	_, err = st.Load(ctx)
	require.True(t, errors.Is(err, errors.ErrStatusMissing), "err = %v", err)

	require.NoError(t, st.Save(ctx, sample()))
	got, err := st.Load(ctx)
	require.NoError(t, err)
	require.True(t, snapshot.Equal(sample().Snapshot, got), "got %+v", got)

	rec, err := st.(*SQLStore).LoadRecord(ctx)
	require.NoError(t, err)
	require.Equal(t, sample().ID, rec.ID)
}

func TestSQLStore_RejectsUnpublishableState(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultConfig()
	cfg.Backend = config.BackendSQLite

	st, err := Open(cfg, t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	bad := Record{ID: "x", Snapshot: snapshot.Snapshot{State: snapshot.StateDisconnected, Timestamp: stamp}}
	require.NoError(t, st.Save(ctx, bad))

	_, err = st.Load(ctx)
	require.True(t, errors.Is(err, errors.ErrStatusCorrupt), "err = %v", err)
}

func TestOpen_FileBackend(t *testing.T) {
	base := t.TempDir()
	st, err := Open(config.DefaultConfig(), base)
	require.NoError(t, err)

	fs, ok := st.(*FileStore)
	require.True(t, ok)
	require.Equal(t, filepath.Join(base, "status.json"), fs.Path())
}

func TestOpen_UnknownBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Backend = "redis"
	_, err := Open(cfg, t.TempDir())
	require.Error(t, err)
}

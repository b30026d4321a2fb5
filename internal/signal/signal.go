// Package signal reads the filesystem evidence the classifier works from.
//
// Every reader absorbs its own failures: a missing directory, an unreadable
// file or a malformed registry reads as "no signal", never as an error.
package signal

import (
	"encoding/json"
	"os"
	"strings"
	"time"
)

// Reading is one observation of the filesystem signals.
type Reading struct {
	// LastSignal is the newest modification time among the activity
	// records. Zero when nothing could be read.
	LastSignal time.Time

	// Workers is the number of delegated workers updated within the window.
	Workers int
}

// Reader gathers a Reading on demand.
type Reader interface {
	Read(now time.Time) Reading
}

// FSReader reads activity records and the worker registry from disk.
type FSReader struct {
	SessionsDir  string
	Ext          string
	RegistryPath string
	WorkerWindow time.Duration
	KeyMatch     string
}

// Read implements Reader.
func (r *FSReader) Read(now time.Time) Reading {
	return Reading{
		LastSignal: LastModified(r.SessionsDir, r.Ext),
		Workers:    ActiveWorkers(r.RegistryPath, r.KeyMatch, r.WorkerWindow, now),
	}
}

// LastModified returns the newest modification time among regular files in
// dir whose name ends in ext (all files when ext is empty). Entries that
// fail to stat are skipped.
func LastModified(dir, ext string) time.Time {
	var newest time.Time
	if dir == "" {
		return newest
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return newest
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext != "" && !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		if fi.ModTime().After(newest) {
			newest = fi.ModTime()
		}
	}
	return newest
}

// registryEntry is the only part of a registry value we look at.
type registryEntry struct {
	UpdatedAt json.RawMessage `json:"updatedAt"`
}

// ActiveWorkers counts registry entries updated within window before now.
// The registry is a JSON object keyed by session id; updatedAt is either
// epoch milliseconds or an RFC 3339 string. When keyMatch is non-empty only
// keys containing it are counted.
func ActiveWorkers(path, keyMatch string, window time.Duration, now time.Time) int {
	if path == "" {
		return 0
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}

	var registry map[string]registryEntry
	if err := json.Unmarshal(data, &registry); err != nil {
		return 0
	}

	cutoff := now.Add(-window)
	count := 0
	for key, entry := range registry {
		if keyMatch != "" && !strings.Contains(key, keyMatch) {
			continue
		}
		updated, ok := parseUpdatedAt(entry.UpdatedAt)
		if !ok {
			continue
		}
		if updated.After(cutoff) {
			count++
		}
	}
	return count
}

func parseUpdatedAt(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 {
		return time.Time{}, false
	}

	var ms float64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return time.UnixMilli(int64(ms)), true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// Static is a Reader that always returns the same Reading.
type Static Reading

// Read implements Reader.
func (s Static) Read(time.Time) Reading { return Reading(s) }


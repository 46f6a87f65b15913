// Package ledger tracks the last-known modification time of every written
// integration artifact, keyed by absolute output path. The batch processor
// consults it before writing so unchanged batches are skipped.
//
// The durable form is a single flat JSON object {path: unix_mtime_seconds}
// read and rewritten wholesale. Concurrent pipeline invocations are not
// supported; serialization is the operator's job.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Store is the key-value contract the processor depends on. FileStore is the
// durable implementation; MemStore backs tests.
type Store interface {
	// Get returns the recorded mtime for path, or ok=false if never written.
	Get(path string) (time.Time, bool)
	// Put records mtime for path and persists the change.
	Put(path string, mtime time.Time) error
}

// FileStore persists the ledger as JSON on disk.
type FileStore struct {
	path    string
	entries map[string]float64 // path -> unix seconds (fractional)
}

// OpenFile loads the ledger at path. A missing file is an empty ledger; a
// corrupt one is an error, not silently discarded.
func OpenFile(path string) (*FileStore, error) {
	s := &FileStore{path: path, entries: map[string]float64{}}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("ledger: read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, &s.entries); err != nil {
		return nil, fmt.Errorf("ledger: parse %s: %w", path, err)
	}
	return s, nil
}

func (s *FileStore) Get(path string) (time.Time, bool) {
	sec, ok := s.entries[path]
	if !ok {
		return time.Time{}, false
	}
	return fromUnixSeconds(sec), true
}

func (s *FileStore) Put(path string, mtime time.Time) error {
	s.entries[path] = toUnixSeconds(mtime)
	b, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("ledger: encode: %w", err)
	}
	if err := os.WriteFile(s.path, b, 0o644); err != nil {
		return fmt.Errorf("ledger: write %s: %w", s.path, err)
	}
	return nil
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	Entries map[string]time.Time
	Puts    int
}

func NewMem() *MemStore { return &MemStore{Entries: map[string]time.Time{}} }

func (m *MemStore) Get(path string) (time.Time, bool) {
	t, ok := m.Entries[path]
	return t, ok
}

func (m *MemStore) Put(path string, mtime time.Time) error {
	m.Entries[path] = mtime
	m.Puts++
	return nil
}

func toUnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromUnixSeconds(sec float64) time.Time {
	return time.Unix(0, int64(sec*float64(time.Second)))
}

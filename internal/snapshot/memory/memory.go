package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ledgerlens/internal/ingest"
	"ledgerlens/internal/snapshot"
)

// SeedFile is the file NewFromFiles reads inside the data directory.
const SeedFile = "expenses.json"

type Store struct {
	mu   sync.RWMutex
	snap snapshot.Snapshot
}

func New(s snapshot.Snapshot) *Store {
	return &Store{snap: s.Clone()}
}

// NewFromFiles seeds the store from <base>/expenses.json. A missing file
// yields an empty store; a malformed one is an error.
func NewFromFiles(base string) (*Store, error) {
	path := filepath.Join(base, SeedFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(snapshot.New(ingest.Result{}, time.Now())), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	res, err := ingest.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("seed %s: %w", path, err)
	}
	return New(snapshot.New(res, time.Now())), nil
}

// Load returns a copy of the held snapshot.
func (s *Store) Load(_ context.Context) (snapshot.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone(), nil
}

// Replace swaps the held snapshot.
func (s *Store) Replace(_ context.Context, snap snapshot.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap.Clone()
	return nil
}

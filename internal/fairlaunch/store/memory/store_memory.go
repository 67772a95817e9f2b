// Package memory implements the keyed store with an in-process map. It is
// the reference implementation for create-if-absent semantics and backs the
// unit tests and single-node deployments.
package memory

import (
	"context"
	"sync"

	"fairlaunch/internal/fairlaunch/keys"
	"fairlaunch/pkg/sentinel"
)

type entry struct {
	capacity uint64
	data     []byte
}

// Store is a thread-safe in-memory keyed store.
type Store struct {
	mu      sync.RWMutex
	entries map[keys.Key]*entry
}

// New creates an empty store.
func New() *Store {
	return &Store{entries: make(map[keys.Key]*entry)}
}

// CreateIfAbsent reserves a record. Exactly one concurrent caller wins.
func (s *Store) CreateIfAbsent(ctx context.Context, key keys.Key, size uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; ok {
		return sentinel.ErrConflict
	}
	s.entries[key] = &entry{capacity: size}
	return nil
}

// Read returns a copy of the record's current value.
func (s *Store) Read(ctx context.Context, key keys.Key) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, nil
}

// Write replaces the record's value, enforcing the reserved capacity.
func (s *Store) Write(ctx context.Context, key keys.Key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return sentinel.ErrNotFound
	}
	if uint64(len(value)) > e.capacity {
		return sentinel.ErrSizeExceeded
	}
	e.data = make([]byte, len(value))
	copy(e.data, value)
	return nil
}

// Exists reports whether a record has been reserved under the key.
func (s *Store) Exists(ctx context.Context, key keys.Key) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.entries[key]
	return ok, nil
}

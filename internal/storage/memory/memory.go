// Package memory provides an in-process implementation of storage.Store.
//
// It does not implement storage.Transactor: it models a shared
// key-value store with no transactional guarantee, such as browser local
// storage, and is what the ledger's lost-update tests run against.
package memory

import (
	"context"
	"sync"

	"github.com/mmynk/settle/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store is a map guarded by a mutex. Individual Get and Set calls are atomic;
// sequences of them are not.
type Store struct {
	mu     sync.RWMutex
	values map[string]string
}

// New creates an empty Store.
func New() *Store {
	return &Store{values: make(map[string]string)}
}

// Get returns the value stored under key.
func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// Set stores value under key.
func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"
)

// Keys holding the serialized ledger. Each value is a JSON object keyed by id.
const (
	GroupsKey       = "settle_groups"
	PaymentsKey     = "settle_payments"
	NeedsRefreshKey = "settle_needs_refresh"
)

// ErrConflict is returned by Transactor.Update when concurrent writers kept
// invalidating the read set and retries ran out.
var ErrConflict = errors.New("storage: concurrent update conflict")

// Store is the key-value persistence the ledger is built on.
// This abstraction allows swapping storage backends (memory, SQLite, Redis)
// without changing the ledger.
//
// A plain Store offers no locking: a caller that reads, mutates and writes back
// races with every other writer, and the last Set wins.
type Store interface {
	// Get returns the value for key. found is false when the key was never set.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Close releases any resources held by the store.
	Close() error
}

// UpdateFunc receives the current values of the watched keys (absent keys are
// missing from the map) and returns the values to write. Returning an error
// aborts the update without writing. It may be called more than once.
type UpdateFunc func(current map[string]string) (map[string]string, error)

// Transactor is implemented by backends that can run a read-modify-write cycle
// over several keys without losing concurrent updates.
type Transactor interface {
	Update(ctx context.Context, keys []string, fn UpdateFunc) error
}

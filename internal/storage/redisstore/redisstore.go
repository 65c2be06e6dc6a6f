// Package redisstore provides a Redis-backed implementation of storage.Store.
//
// Unlike the in-memory and browser-style stores, Redis is shared between
// processes, so the ledger's read-modify-write cycle runs under WATCH/MULTI
// and is retried when another writer touches the same keys.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mmynk/settle/internal/storage"
)

var (
	_ storage.Store      = (*Store)(nil)
	_ storage.Transactor = (*Store)(nil)
)

// DefaultMaxRetries bounds optimistic retries in Update.
const DefaultMaxRetries = 10

// Store keeps each ledger key as a plain Redis string.
type Store struct {
	client     *redis.Client
	prefix     string // Key prefix for namespacing (e.g., "settle:")
	maxRetries int
}

// New creates a Store over client. prefix is prepended to every key.
func New(client *redis.Client, prefix string) *Store {
	return &Store{
		client:     client,
		prefix:     prefix,
		maxRetries: DefaultMaxRetries,
	}
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, s.buildKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get key %s from redis: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key without expiry.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.buildKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set key %s in redis: %w", key, err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Update watches keys, hands their values to fn and writes the result in a
// MULTI/EXEC block. If any watched key changed in between, the cycle is
// retried from a fresh read.
func (s *Store) Update(ctx context.Context, keys []string, fn storage.UpdateFunc) error {
	fullKeys := make([]string, len(keys))
	for i, key := range keys {
		fullKeys[i] = s.buildKey(key)
	}

	txf := func(tx *redis.Tx) error {
		values, err := tx.MGet(ctx, fullKeys...).Result()
		if err != nil {
			return fmt.Errorf("failed to read keys from redis: %w", err)
		}

		current := make(map[string]string, len(keys))
		for i, v := range values {
			if str, ok := v.(string); ok {
				current[keys[i]] = str
			}
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for key, value := range next {
				pipe.Set(ctx, s.buildKey(key), value, 0)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, fullKeys...)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return storage.ErrConflict
}

// buildKey constructs the full Redis key with prefix
func (s *Store) buildKey(key string) string {
	return s.prefix + key
}

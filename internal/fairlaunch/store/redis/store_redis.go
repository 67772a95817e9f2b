// Package redis implements the keyed store on Redis. SETNX on the capacity
// key provides create-if-absent; record data lives under a sibling key.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"fairlaunch/internal/fairlaunch/keys"
	"fairlaunch/pkg/sentinel"
)

// Store is a Redis-backed keyed store.
type Store struct {
	client *goredis.Client
}

// New wraps a connected client.
func New(client *goredis.Client) *Store {
	return &Store{client: client}
}

func capKey(k keys.Key) string  { return "fl:cap:" + k.String() }
func dataKey(k keys.Key) string { return "fl:data:" + k.String() }

// CreateIfAbsent reserves a record; SETNX decides creation races.
func (s *Store) CreateIfAbsent(ctx context.Context, key keys.Key, size uint64) error {
	ok, err := s.client.SetNX(ctx, capKey(key), strconv.FormatUint(size, 10), 0).Result()
	if err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}
	return nil
}

// Read returns the record's current value, empty when reserved but unwritten.
func (s *Store) Read(ctx context.Context, key keys.Key) ([]byte, error) {
	data, err := s.client.Get(ctx, dataKey(key)).Bytes()
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("read record: %w", err)
	}

	exists, err := s.exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	return []byte{}, nil
}

// Write replaces the record's value, enforcing the reserved capacity.
func (s *Store) Write(ctx context.Context, key keys.Key, value []byte) error {
	capStr, err := s.client.Get(ctx, capKey(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	capacity, err := strconv.ParseUint(capStr, 10, 64)
	if err != nil {
		return fmt.Errorf("write record: corrupt capacity: %w", err)
	}
	if uint64(len(value)) > capacity {
		return sentinel.ErrSizeExceeded
	}

	if err := s.client.Set(ctx, dataKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// Exists reports whether a record has been reserved under the key.
func (s *Store) Exists(ctx context.Context, key keys.Key) (bool, error) {
	return s.exists(ctx, key)
}

func (s *Store) exists(ctx context.Context, key keys.Key) (bool, error) {
	n, err := s.client.Exists(ctx, capKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("record exists: %w", err)
	}
	return n > 0, nil
}

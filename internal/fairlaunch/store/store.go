// Package store defines the keyed storage substrate the auction core runs
// against. Entities live in fixed-size records addressed by derived keys;
// the create-if-absent primitive is the only uniqueness mechanism the core
// relies on (one ticket per buyer, one bitmap per auction).
//
// Implementations: memory (tests, single-node), postgres, redis. The hosting
// runtime serializes all writes to a given key; the core performs
// read-modify-write on the auction aggregate under that assumption and the
// store does not need to provide its own compare-and-swap.
package store

import (
	"context"

	"fairlaunch/internal/fairlaunch/keys"
)

// KeyedStore is the content-addressed storage collaborator.
//
// CreateIfAbsent reserves a record of the given size under the key and
// fails with sentinel.ErrConflict when one already exists. Read returns
// sentinel.ErrNotFound for unreserved keys and an empty slice for reserved
// but never-written records. Write fails with sentinel.ErrNotFound for
// unreserved keys and sentinel.ErrSizeExceeded when the value outgrows the
// reservation.
type KeyedStore interface {
	CreateIfAbsent(ctx context.Context, key keys.Key, size uint64) error
	Read(ctx context.Context, key keys.Key) ([]byte, error)
	Write(ctx context.Context, key keys.Key, value []byte) error
	Exists(ctx context.Context, key keys.Key) (bool, error)
}

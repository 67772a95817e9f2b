// Package postgres implements the keyed store on PostgreSQL. Each record is
// one row; create-if-absent maps onto INSERT ... ON CONFLICT DO NOTHING so
// the database's primary key resolves creation races.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fairlaunch/internal/fairlaunch/keys"
	"fairlaunch/pkg/sentinel"
)

// Schema creates the backing table. Applied at startup by cmd/server and by
// the integration suite.
const Schema = `
CREATE TABLE IF NOT EXISTS fair_launch_records (
	key        BYTEA PRIMARY KEY,
	capacity   BIGINT NOT NULL,
	data       BYTEA NOT NULL DEFAULT ''::bytea,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store is a PostgreSQL-backed keyed store.
type Store struct {
	db *sql.DB
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema applies the table definition.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure fair_launch_records schema: %w", err)
	}
	return nil
}

// CreateIfAbsent reserves a record; the primary key decides creation races.
func (s *Store) CreateIfAbsent(ctx context.Context, key keys.Key, size uint64) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO fair_launch_records (key, capacity) VALUES ($1, $2)
		 ON CONFLICT (key) DO NOTHING`,
		key[:], int64(size),
	)
	if err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

// Read returns the record's current value.
func (s *Store) Read(ctx context.Context, key keys.Key) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM fair_launch_records WHERE key = $1`,
		key[:],
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	return data, nil
}

// Write replaces the record's value, enforcing the reserved capacity.
func (s *Store) Write(ctx context.Context, key keys.Key, value []byte) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE fair_launch_records
		 SET data = $2, updated_at = now()
		 WHERE key = $1 AND capacity >= $3`,
		key[:], value, int64(len(value)),
	)
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Distinguish a missing record from a capacity rejection.
	var capacity int64
	err = s.db.QueryRowContext(ctx,
		`SELECT capacity FROM fair_launch_records WHERE key = $1`,
		key[:],
	).Scan(&capacity)
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return sentinel.ErrSizeExceeded
}

// Exists reports whether a record has been reserved under the key.
func (s *Store) Exists(ctx context.Context, key keys.Key) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM fair_launch_records WHERE key = $1`,
		key[:],
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("record exists: %w", err)
	}
	return true, nil
}

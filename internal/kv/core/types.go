// Package core defines core abstractions for key-value storage backends
// used internally by the swarm lifecycle service.
package core

import (
	"context"
	"errors"
)

// Driver identifies a concrete key-value backend implementation.
type Driver string

const (
	// DriverMemory represents an in-memory implementation typically used in tests.
	DriverMemory Driver = "memory" // in-memory (tests)
	// DriverFilesystem represents one file per key under a root directory.
	DriverFilesystem Driver = "fs" // local filesystem (default, dev)
	// DriverBolt represents a bbolt database file.
	DriverBolt Driver = "bolt"
	// DriverSQLite represents an embedded sqlite file.
	DriverSQLite Driver = "sqlite"
	// DriverPostgres represents a table in a PostgreSQL server.
	DriverPostgres Driver = "postgres"
	// DriverS3 represents an S3 / MinIO compatible bucket prefix.
	DriverS3 Driver = "s3"
)

// Store provides single-key get / put / delete. Put is a full overwrite.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Driver() Driver
	Close() error
}

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kv: key not found")

// ErrInvalidKey is returned for empty keys or keys a backend cannot address.
var ErrInvalidKey = errors.New("kv: invalid key")

// Package kv re-exports core key-value abstractions and wraps the infra
// backends so that other packages never import internal/infra/kv directly.
package kv

import (
	"swarmspawn/internal/kv/core"
)

type (
	// Driver identifies a key-value backend driver.
	Driver = core.Driver
	// Store is the interface for key-value storage backends.
	Store = core.Store
)

const (
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
	// DriverFilesystem is the one-file-per-key driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverBolt is the bbolt file driver.
	DriverBolt = core.DriverBolt
	// DriverSQLite is the embedded sqlite driver.
	DriverSQLite = core.DriverSQLite
	// DriverPostgres is the PostgreSQL table driver.
	DriverPostgres = core.DriverPostgres
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
)

var (
	// ErrNotFound indicates a Get on a missing key.
	ErrNotFound = core.ErrNotFound
	// ErrInvalidKey indicates an empty or unaddressable key.
	ErrInvalidKey = core.ErrInvalidKey
)

// Drivers lists every supported driver.
func Drivers() []Driver {
	return []Driver{DriverMemory, DriverFilesystem, DriverBolt, DriverSQLite, DriverPostgres, DriverS3}
}

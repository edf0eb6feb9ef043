package kv

import (
	"context"

	boltstore "swarmspawn/internal/infra/kv/bolt"
	fsstore "swarmspawn/internal/infra/kv/fs"
	memorystore "swarmspawn/internal/infra/kv/memory"
	"swarmspawn/internal/infra/kv/postgres"
	infraS3 "swarmspawn/internal/infra/kv/s3"
	"swarmspawn/internal/infra/kv/sqlite"
)

// S3Config re-exports the infra S3 configuration type.
type S3Config = infraS3.Config

// NewMemory returns an in-memory Store suitable for tests.
func NewMemory() Store { return memorystore.New() }

// NewFilesystem returns a Store keeping one file per key under root.
func NewFilesystem(root string) (Store, error) { return fsstore.New(root) }

// NewBolt returns a Store backed by the bbolt file at path.
func NewBolt(path string) (Store, error) { return boltstore.New(path) }

// NewSQLite returns a Store backed by the sqlite file at path.
func NewSQLite(path string) (Store, error) { return sqlite.NewStore(path) }

// NewPostgres returns a Store backed by table in the database at dsn.
func NewPostgres(ctx context.Context, dsn, table string) (Store, error) {
	return postgres.NewStore(ctx, dsn, table)
}

// NewS3 constructs an S3-backed Store from the provided configuration.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// NewMockS3ForTests exposes the in-memory S3 mock for cross-package tests.
func NewMockS3ForTests(prefix string) Store { return infraS3.NewMockForTests(prefix) }

package kv

import (
	"context"
	"fmt"
	"strings"
)

// Options selects and locates one store. Location is interpreted per driver:
//
//	fs:       directory root
//	bolt:     database file path
//	sqlite:   database file path
//	postgres: table name within PostgresDSN
//	s3:       object key prefix within S3.Bucket
//	memory:   ignored
type Options struct {
	Driver      Driver
	Location    string
	PostgresDSN string
	S3          S3Config
}

// Open constructs the store described by opts.
func Open(ctx context.Context, opts Options) (Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	if driver != DriverMemory && strings.TrimSpace(opts.Location) == "" {
		return nil, fmt.Errorf("%s store location required", driver)
	}
	switch driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverFilesystem:
		return NewFilesystem(opts.Location)
	case DriverBolt:
		return NewBolt(opts.Location)
	case DriverSQLite:
		return NewSQLite(opts.Location)
	case DriverPostgres:
		return NewPostgres(ctx, opts.PostgresDSN, opts.Location)
	case DriverS3:
		cfg := opts.S3
		cfg.Prefix = opts.Location
		return NewS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown kv driver %s", driver)
	}
}

// ParseDriver validates a driver name.
func ParseDriver(raw string) (Driver, error) {
	d := Driver(strings.ToLower(strings.TrimSpace(raw)))
	if d == "" {
		return DriverFilesystem, nil
	}
	for _, known := range Drivers() {
		if d == known {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown kv driver %s", raw)
}

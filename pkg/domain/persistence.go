package domain

import "context"

// KeyValueStore is the single-key persistence collaborator the lifecycle
// service is built on. Each call is atomic for its key only; nothing is
// ordered or transactional across keys.
type KeyValueStore interface {
	// Get returns the stored value. Missing keys return an error matching
	// the backend's not-found sentinel.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores value at key, replacing any previous value in one step.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Returns (false, nil) if it did not exist.
	Delete(ctx context.Context, key string) (bool, error)
}

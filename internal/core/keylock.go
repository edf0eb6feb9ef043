package core

import "sync"

// keyLocks hands out one mutex per record key. Entries are reference
// counted and dropped once no goroutine holds or waits on them.
type keyLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{entries: make(map[string]*lockEntry)}
}

// lock blocks until key is held and returns the release func.
func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &lockEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}

// lockAll acquires keys in the order given, skipping repeats, and releases
// them in reverse. Callers pass user keys sorted, then swarm keys.
func (k *keyLocks) lockAll(keys ...string) func() {
	seen := make(map[string]struct{}, len(keys))
	releases := make([]func(), 0, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		releases = append(releases, k.lock(key))
	}
	return func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
}

// held reports the number of keys with live entries.
func (k *keyLocks) held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

func userLockKey(userID string) string   { return "user:" + userID }
func swarmLockKey(swarmID string) string { return "swarm:" + swarmID }

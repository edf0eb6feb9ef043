package core

import (
	"context"
	"encoding/json"
	"errors"

	"swarmspawn/internal/kv"
	"swarmspawn/pkg/domain"
)

// MembershipStore owns the UserIndex records, keyed by user id.
type MembershipStore struct {
	kv domain.KeyValueStore
}

// NewMembershipStore wraps the user-index key-value store.
func NewMembershipStore(store domain.KeyValueStore) *MembershipStore {
	return &MembershipStore{kv: store}
}

// Load returns the user's index or a NotFoundError of kind user.
func (m *MembershipStore) Load(ctx context.Context, userID string) (domain.UserIndex, error) {
	raw, err := m.kv.Get(ctx, userID)
	if errors.Is(err, kv.ErrNotFound) {
		return domain.UserIndex{}, domain.NotFoundError{Kind: domain.KindUser, ID: userID}
	}
	if err != nil {
		return domain.UserIndex{}, domain.StoreError{Op: "get", Key: userID, Err: err}
	}
	var index domain.UserIndex
	if err := json.Unmarshal(raw, &index); err != nil {
		return domain.UserIndex{}, domain.StoreError{Op: "decode", Key: userID, Err: err}
	}
	return index.Normalized(), nil
}

// Save replaces the user's index with a single put.
func (m *MembershipStore) Save(ctx context.Context, userID string, index domain.UserIndex) error {
	if err := index.Validate(); err != nil {
		return domain.StoreError{Op: "encode", Key: userID, Err: err}
	}
	raw, err := json.Marshal(index.Normalized())
	if err != nil {
		return domain.StoreError{Op: "encode", Key: userID, Err: err}
	}
	if err := m.kv.Put(ctx, userID, raw); err != nil {
		return domain.StoreError{Op: "put", Key: userID, Err: err}
	}
	return nil
}

// SwarmStore owns the Swarm records, keyed by swarm id.
type SwarmStore struct {
	kv domain.KeyValueStore
}

// NewSwarmStore wraps the swarm key-value store.
func NewSwarmStore(store domain.KeyValueStore) *SwarmStore {
	return &SwarmStore{kv: store}
}

// Load returns the swarm or a NotFoundError of kind swarm.
func (s *SwarmStore) Load(ctx context.Context, swarmID string) (domain.Swarm, error) {
	raw, err := s.kv.Get(ctx, swarmID)
	if errors.Is(err, kv.ErrNotFound) {
		return domain.Swarm{}, domain.NotFoundError{Kind: domain.KindSwarm, ID: swarmID}
	}
	if err != nil {
		return domain.Swarm{}, domain.StoreError{Op: "get", Key: swarmID, Err: err}
	}
	var swarm domain.Swarm
	if err := json.Unmarshal(raw, &swarm); err != nil {
		return domain.Swarm{}, domain.StoreError{Op: "decode", Key: swarmID, Err: err}
	}
	// records written without an embedded id are addressed by their key
	if swarm.ID == "" {
		swarm.ID = swarmID
	}
	if swarm.SwarmUsers == nil {
		swarm.SwarmUsers = []string{}
	}
	return swarm, nil
}

// Exists reports whether a record is stored under swarmID.
func (s *SwarmStore) Exists(ctx context.Context, swarmID string) (bool, error) {
	_, err := s.Load(ctx, swarmID)
	switch {
	case err == nil:
		return true, nil
	case domain.IsNotFoundKind(err, domain.KindSwarm):
		return false, nil
	default:
		return false, err
	}
}

// Save replaces the swarm record with a single put.
func (s *SwarmStore) Save(ctx context.Context, swarm domain.Swarm) error {
	raw, err := json.Marshal(swarm)
	if err != nil {
		return domain.StoreError{Op: "encode", Key: swarm.ID, Err: err}
	}
	if err := s.kv.Put(ctx, swarm.ID, raw); err != nil {
		return domain.StoreError{Op: "put", Key: swarm.ID, Err: err}
	}
	return nil
}

// Remove deletes the swarm record, reporting whether it existed.
func (s *SwarmStore) Remove(ctx context.Context, swarmID string) (bool, error) {
	existed, err := s.kv.Delete(ctx, swarmID)
	if err != nil {
		return false, domain.StoreError{Op: "delete", Key: swarmID, Err: err}
	}
	return existed, nil
}

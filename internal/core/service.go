// Package core implements the swarm lifecycle: create, delete, start and get
// over two independently stored record families, the per-user UserIndex and
// the per-swarm Swarm record.
package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"swarmspawn/pkg/domain"
)

const maxIDAttempts = 3

// Operation names reported to the logger, metrics, tracer and audit sinks.
const (
	OpCreateSwarm = "create_swarm"
	OpDeleteSwarm = "delete_swarm"
	OpStartSwarm  = "start_swarm"
	OpGetSwarm    = "get_swarm"
	OpListSwarms  = "list_swarms"
	OpEnsureUser  = "ensure_user"
)

// Service orchestrates reads and writes across the membership and swarm
// stores. Each record update is one atomic put; mutations of the same key
// are serialized in process by keyLocks, always taking user keys before
// swarm keys.
type Service struct {
	members *MembershipStore
	swarms  *SwarmStore
	locks   *keyLocks
	opts    serviceOptions
}

// NewService constructs a lifecycle service over the user-index store and the
// swarm store. Both are required.
func NewService(userIndex, swarms domain.KeyValueStore, opts ...ServiceOption) (*Service, error) {
	if userIndex == nil {
		return nil, domain.ConfigurationError{Setting: "USER_INFO_DB_PATH"}
	}
	if swarms == nil {
		return nil, domain.ConfigurationError{Setting: "SWARMS_DB_PATH"}
	}
	options := defaultServiceOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Service{
		members: NewMembershipStore(userIndex),
		swarms:  NewSwarmStore(swarms),
		locks:   newKeyLocks(),
		opts:    options,
	}, nil
}

// CreateSwarm creates an empty swarm owned by userID and records it in the
// user's index. It returns the swarm and the updated index.
func (s *Service) CreateSwarm(ctx context.Context, userID, name string) (domain.Swarm, domain.UserIndex, error) {
	var (
		created domain.Swarm
		index   domain.UserIndex
	)
	name = strings.TrimSpace(name)
	err := s.run(ctx, OpCreateSwarm, userID, "", func(ctx context.Context) error {
		if err := requireUser(userID); err != nil {
			return err
		}
		if name == "" {
			return domain.ValidationError{Field: "swarm_name", Message: "Swarm name is required"}
		}

		release := s.locks.lock(userLockKey(userID))
		defer release()

		var err error
		index, err = s.members.Load(ctx, userID)
		if err != nil {
			return err
		}
		swarmID, releaseSwarm, err := s.reserveSwarmID(ctx, name)
		if err != nil {
			return err
		}
		defer releaseSwarm()

		// The swarm record goes first: a failure here leaves the index untouched.
		created = domain.NewSwarm(swarmID, name, userID)
		if err := s.swarms.Save(ctx, created); err != nil {
			return err
		}
		updated := index.Clone()
		updated.Add(swarmID, name)
		if err := s.members.Save(ctx, userID, updated); err != nil {
			s.compensate(ctx, "remove orphaned swarm", swarmID, func(ctx context.Context) error {
				_, rmErr := s.swarms.Remove(ctx, swarmID)
				return rmErr
			})
			return err
		}
		index = updated
		return nil
	}, func() string { return created.ID })
	if err != nil {
		return domain.Swarm{}, domain.UserIndex{}, err
	}
	return created.Clone(), index.Clone(), nil
}

// reserveSwarmID generates an unused id and returns it with its lock held.
func (s *Service) reserveSwarmID(ctx context.Context, name string) (string, func(), error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := s.opts.ids(name)
		release := s.locks.lock(swarmLockKey(id))
		exists, err := s.swarms.Exists(ctx, id)
		if err != nil {
			release()
			return "", nil, err
		}
		if !exists {
			return id, release, nil
		}
		release()
		s.opts.logger.Warn("swarm id collision", "swarm_id", id, "attempt", attempt+1)
	}
	return "", nil, domain.StoreError{Op: "allocate", Key: name, Err: errors.New("could not allocate unique swarm id")}
}

// DeleteSwarm destroys the swarm for every member: the id is retracted from
// each listed member's index and the swarm record is removed. The caller
// must list the swarm in its own index.
func (s *Service) DeleteSwarm(ctx context.Context, userID, swarmID string) (domain.UserIndex, error) {
	var index domain.UserIndex
	err := s.run(ctx, OpDeleteSwarm, userID, swarmID, func(ctx context.Context) error {
		if err := requireUser(userID); err != nil {
			return err
		}
		if swarmID == "" {
			return domain.ValidationError{Field: "swarm_id", Message: "Swarm ID is required"}
		}

		// swarm_users is fixed at creation, so reading it before locking is safe.
		members := []string{}
		if swarm, err := s.swarms.Load(ctx, swarmID); err == nil {
			members = swarm.SwarmUsers
		} else if !domain.IsNotFoundKind(err, domain.KindSwarm) {
			return err
		}
		users := uniqueSorted(append([]string{userID}, members...))
		keys := make([]string, 0, len(users)+1)
		for _, u := range users {
			keys = append(keys, userLockKey(u))
		}
		release := s.locks.lockAll(append(keys, swarmLockKey(swarmID))...)
		defer release()

		var err error
		index, err = s.members.Load(ctx, userID)
		if err != nil {
			return err
		}
		if !index.Contains(swarmID) {
			return domain.AuthorizationError{UserID: userID, SwarmID: swarmID}
		}
		cachedName := index.SwarmNames[swarmID]
		updated := index.Clone()
		updated.Remove(swarmID)
		if err := s.members.Save(ctx, userID, updated); err != nil {
			return err
		}
		index = updated

		if _, err := s.swarms.Remove(ctx, swarmID); err != nil {
			s.compensate(ctx, "restore membership", swarmID, func(ctx context.Context) error {
				restored := updated.Clone()
				restored.Add(swarmID, cachedName)
				return s.members.Save(ctx, userID, restored)
			})
			return err
		}

		for _, other := range users {
			if other == userID {
				continue
			}
			s.retract(ctx, other, swarmID)
		}
		return nil
	}, nil)
	if err != nil {
		return domain.UserIndex{}, err
	}
	return index.Clone(), nil
}

// retract removes swarmID from another member's index after the swarm is gone.
// Failures are logged: the swarm record no longer exists, so a stale entry
// only yields NotFound on the member's next get.
func (s *Service) retract(ctx context.Context, userID, swarmID string) {
	other, err := s.members.Load(ctx, userID)
	if err != nil {
		if !domain.IsNotFoundKind(err, domain.KindUser) {
			s.opts.logger.Warn("retract membership: load failed", "user_id", userID, "swarm_id", swarmID, "error", err)
		}
		return
	}
	if !other.Remove(swarmID) {
		return
	}
	if err := s.members.Save(ctx, userID, other); err != nil {
		s.opts.logger.Warn("retract membership: save failed", "user_id", userID, "swarm_id", swarmID, "error", err)
	}
}

// StartSwarm activates the swarm with goal. Repeating the call overwrites
// the goal; the last writer wins.
func (s *Service) StartSwarm(ctx context.Context, userID, swarmID, goal string) error {
	return s.run(ctx, OpStartSwarm, userID, swarmID, func(ctx context.Context) error {
		if err := requireUser(userID); err != nil {
			return err
		}
		if swarmID == "" {
			return domain.ValidationError{Field: "swarm_id", Message: "Swarm ID is required"}
		}
		if strings.TrimSpace(goal) == "" {
			return domain.ValidationError{Field: "goal", Message: "Swarm goal is required"}
		}
		if err := s.requireMember(ctx, userID, swarmID); err != nil {
			return err
		}

		release := s.locks.lock(swarmLockKey(swarmID))
		defer release()

		swarm, err := s.swarms.Load(ctx, swarmID)
		if err != nil {
			return err
		}
		swarm.Activate(goal)
		return s.swarms.Save(ctx, swarm)
	}, nil)
}

// GetSwarm returns the swarm if userID is a member. An empty swarmID yields
// the empty placeholder swarm without touching the stores.
func (s *Service) GetSwarm(ctx context.Context, userID, swarmID string) (domain.Swarm, error) {
	if swarmID == "" {
		return domain.EmptySwarm(), nil
	}
	var swarm domain.Swarm
	err := s.run(ctx, OpGetSwarm, userID, swarmID, func(ctx context.Context) error {
		if err := requireUser(userID); err != nil {
			return err
		}
		if err := s.requireMember(ctx, userID, swarmID); err != nil {
			return err
		}
		var err error
		swarm, err = s.swarms.Load(ctx, swarmID)
		return err
	}, nil)
	if err != nil {
		return domain.Swarm{}, err
	}
	return swarm, nil
}

// ListSwarms returns the caller's index.
func (s *Service) ListSwarms(ctx context.Context, userID string) (domain.UserIndex, error) {
	var index domain.UserIndex
	err := s.run(ctx, OpListSwarms, userID, "", func(ctx context.Context) error {
		if err := requireUser(userID); err != nil {
			return err
		}
		var err error
		index, err = s.members.Load(ctx, userID)
		return err
	}, nil)
	return index, err
}

// EnsureUserIndex creates an empty index for userID if none exists and
// returns the current index.
func (s *Service) EnsureUserIndex(ctx context.Context, userID string) (domain.UserIndex, error) {
	var index domain.UserIndex
	err := s.run(ctx, OpEnsureUser, userID, "", func(ctx context.Context) error {
		if err := requireUser(userID); err != nil {
			return err
		}
		release := s.locks.lock(userLockKey(userID))
		defer release()

		var err error
		index, err = s.members.Load(ctx, userID)
		if err == nil || !domain.IsNotFoundKind(err, domain.KindUser) {
			return err
		}
		index = domain.NewUserIndex()
		return s.members.Save(ctx, userID, index)
	}, nil)
	return index, err
}

func (s *Service) requireMember(ctx context.Context, userID, swarmID string) error {
	index, err := s.members.Load(ctx, userID)
	if err != nil {
		return err
	}
	if !index.Contains(swarmID) {
		return domain.AuthorizationError{UserID: userID, SwarmID: swarmID}
	}
	return nil
}

// compensate runs an undo step for a half-applied mutation. It ignores the
// caller's cancellation so the undo is attempted even if the request died.
func (s *Service) compensate(ctx context.Context, action, swarmID string, fn func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	if s.opts.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.storeTimeout)
		defer cancel()
	}
	if err := fn(ctx); err != nil {
		s.opts.logger.Error("compensation failed; records may be inconsistent",
			"action", action, "swarm_id", swarmID, "error", err)
		return
	}
	s.opts.logger.Warn("compensation applied", "action", action, "swarm_id", swarmID)
}

// run wraps fn with the tracer, store timeout, metrics, logging and (for
// mutations) audit. swarmIDFn resolves ids that are only known after fn.
func (s *Service) run(ctx context.Context, op, userID, swarmID string, fn func(context.Context) error, swarmIDFn func() string) error {
	ctx, span := s.opts.tracer.Start(ctx, op)
	started := s.opts.clock.Now()
	callCtx := ctx
	if s.opts.storeTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.opts.storeTimeout)
		defer cancel()
	}

	err := fn(callCtx)

	elapsed := s.opts.clock.Now().Sub(started)
	span.End(err)
	s.opts.metrics.Observe(ctx, op, err == nil, elapsed)
	if swarmIDFn != nil && swarmID == "" {
		swarmID = swarmIDFn()
	}
	s.logOutcome(op, userID, swarmID, err)
	if isMutation(op) {
		entry := AuditEntry{
			Operation:  op,
			Status:     AuditStatusSuccess,
			UserID:     userID,
			SwarmID:    swarmID,
			OccurredAt: s.opts.clock.Now(),
		}
		if err != nil {
			entry.Status = AuditStatusError
			entry.Error = err.Error()
		}
		s.opts.audit.Record(ctx, entry)
	}
	return err
}

func (s *Service) logOutcome(op, userID, swarmID string, err error) {
	switch {
	case err == nil:
		s.opts.logger.Debug(op, "user_id", userID, "swarm_id", swarmID)
	case domain.IsStore(err) || domain.IsConfiguration(err):
		s.opts.logger.Error(op+" failed", "user_id", userID, "swarm_id", swarmID, "error", err)
	default:
		s.opts.logger.Info(op+" rejected", "user_id", userID, "swarm_id", swarmID, "error", err)
	}
}

func isMutation(op string) bool {
	switch op {
	case OpCreateSwarm, OpDeleteSwarm, OpStartSwarm:
		return true
	}
	return false
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return domain.ValidationError{Field: "user_id", Message: "user id is required"}
	}
	return nil
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// String renders the backing drivers for diagnostics.
func (s *Service) String() string {
	return fmt.Sprintf("core.Service{members:%T swarms:%T}", s.members.kv, s.swarms.kv)
}

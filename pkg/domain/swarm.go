// Package domain defines the persistent swarm and membership records and the
// error taxonomy shared by the lifecycle service and its adapters.
package domain

import (
	"fmt"
	"slices"
	"sort"
)

// Swarm is a shared workspace: a name fixed at creation, a goal and
// activation flag set once by start, and the ordered member list.
type Swarm struct {
	ID         string   `json:"swarm_id"`
	Name       string   `json:"name"`
	Goal       string   `json:"goal"`
	Spawned    bool     `json:"spawned"`
	SwarmUsers []string `json:"swarm_users"`
}

// EmptySwarm returns the "no current swarm selected" placeholder.
func EmptySwarm() Swarm {
	return Swarm{SwarmUsers: []string{}}
}

// NewSwarm returns a swarm in the CREATED state owned by creator.
func NewSwarm(id, name, creator string) Swarm {
	return Swarm{ID: id, Name: name, SwarmUsers: []string{creator}}
}

// Activate transitions the swarm to ACTIVE with the supplied goal. A second
// call overwrites the goal; spawned never returns to false.
func (s *Swarm) Activate(goal string) {
	s.Spawned = true
	s.Goal = goal
}

// HasMember reports whether userID is listed in swarm_users.
func (s Swarm) HasMember(userID string) bool {
	return slices.Contains(s.SwarmUsers, userID)
}

// Owner returns the creator of the swarm, or "" for a swarm without members.
func (s Swarm) Owner() string {
	if len(s.SwarmUsers) == 0 {
		return ""
	}
	return s.SwarmUsers[0]
}

// Clone returns a deep copy.
func (s Swarm) Clone() Swarm {
	out := s
	out.SwarmUsers = append([]string{}, s.SwarmUsers...)
	return out
}

// UserIndex lists the swarms a user belongs to together with the display
// name cached when the membership was recorded.
type UserIndex struct {
	SwarmIDs   []string          `json:"swarm_ids"`
	SwarmNames map[string]string `json:"swarm_names"`
}

// NewUserIndex returns an index with no memberships.
func NewUserIndex() UserIndex {
	return UserIndex{SwarmIDs: []string{}, SwarmNames: map[string]string{}}
}

// Contains reports whether swarmID is listed in the index.
func (u UserIndex) Contains(swarmID string) bool {
	return slices.Contains(u.SwarmIDs, swarmID)
}

// Add records membership of swarmID. Adding an id that is already present
// only refreshes the cached name.
func (u *UserIndex) Add(swarmID, name string) {
	u.normalize()
	if !slices.Contains(u.SwarmIDs, swarmID) {
		u.SwarmIDs = append(u.SwarmIDs, swarmID)
	}
	u.SwarmNames[swarmID] = name
}

// Remove retracts swarmID from both the id set and the name map. It reports
// whether the id was present.
func (u *UserIndex) Remove(swarmID string) bool {
	u.normalize()
	idx := slices.Index(u.SwarmIDs, swarmID)
	_, named := u.SwarmNames[swarmID]
	if idx >= 0 {
		u.SwarmIDs = slices.Delete(u.SwarmIDs, idx, idx+1)
	}
	delete(u.SwarmNames, swarmID)
	return idx >= 0 || named
}

// Clone returns a deep copy.
func (u UserIndex) Clone() UserIndex {
	out := NewUserIndex()
	out.SwarmIDs = append(out.SwarmIDs, u.SwarmIDs...)
	for k, v := range u.SwarmNames {
		out.SwarmNames[k] = v
	}
	return out
}

// Validate checks that swarm_ids holds unique entries and that the keys of
// swarm_names equal the id set.
func (u UserIndex) Validate() error {
	seen := make(map[string]struct{}, len(u.SwarmIDs))
	for _, id := range u.SwarmIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("user index lists swarm %s twice", id)
		}
		seen[id] = struct{}{}
		if _, ok := u.SwarmNames[id]; !ok {
			return fmt.Errorf("user index missing name for swarm %s", id)
		}
	}
	if len(u.SwarmNames) != len(seen) {
		extra := make([]string, 0)
		for id := range u.SwarmNames {
			if _, ok := seen[id]; !ok {
				extra = append(extra, id)
			}
		}
		sort.Strings(extra)
		return fmt.Errorf("user index names unknown swarms %v", extra)
	}
	return nil
}

// normalize replaces nil collections decoded from sparse records.
func (u *UserIndex) normalize() {
	if u.SwarmIDs == nil {
		u.SwarmIDs = []string{}
	}
	if u.SwarmNames == nil {
		u.SwarmNames = map[string]string{}
	}
}

// Normalized returns a copy whose collections are non-nil, so that JSON
// renders [] and {} rather than null.
func (u UserIndex) Normalized() UserIndex {
	u.normalize()
	return u
}

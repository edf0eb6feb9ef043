package core

import "github.com/google/uuid"

// swarmNamespace scopes name-derived swarm ids.
var swarmNamespace = uuid.MustParse("6f1c1d3e-4b7a-5c2e-9a0d-2f5b8e7c4a10")

// NewSwarmID derives a swarm id from name plus fresh random entropy, so two
// creators choosing the same name at the same instant still get distinct ids.
func NewSwarmID(name string) string {
	salt := uuid.New()
	return uuid.NewSHA1(swarmNamespace, append([]byte(name+"\x00"), salt[:]...)).String()
}

// Package auth resolves the caller identity for spawn requests from a bearer
// token. It makes no authorization decisions; membership checks live in the
// lifecycle service.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnauthorized reports a missing or unknown token.
var ErrUnauthorized = errors.New("auth: unauthorized")

// IdentityProvider maps a bearer token to a user id.
type IdentityProvider interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// FuncProvider adapts a function into an IdentityProvider.
type FuncProvider func(ctx context.Context, token string) (string, error)

// Resolve implements IdentityProvider.
func (f FuncProvider) Resolve(ctx context.Context, token string) (string, error) {
	return f(ctx, token)
}

// StaticTokens is a fixed token table for development and small
// deployments.
type StaticTokens struct {
	entries []tokenEntry
}

type tokenEntry struct {
	token  []byte
	userID string
}

// NewStaticTokens builds a provider from token -> user id pairs.
func NewStaticTokens(tokens map[string]string) *StaticTokens {
	s := &StaticTokens{entries: make([]tokenEntry, 0, len(tokens))}
	for token, user := range tokens {
		if token == "" || user == "" {
			continue
		}
		s.entries = append(s.entries, tokenEntry{token: []byte(token), userID: user})
	}
	return s
}

// Resolve compares token against every entry in constant time.
func (s *StaticTokens) Resolve(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthorized
	}
	candidate := []byte(token)
	match := ""
	for _, e := range s.entries {
		if subtle.ConstantTimeCompare(e.token, candidate) == 1 {
			match = e.userID
		}
	}
	if match == "" {
		return "", ErrUnauthorized
	}
	return match, nil
}

// Len reports the number of configured tokens.
func (s *StaticTokens) Len() int { return len(s.entries) }

// ParseTokens reads "token=user,token2=user2".
func ParseTokens(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, user, ok := strings.Cut(pair, "=")
		token, user = strings.TrimSpace(token), strings.TrimSpace(user)
		if !ok || token == "" || user == "" {
			return nil, fmt.Errorf("auth: malformed token entry %q", pair)
		}
		out[token] = user
	}
	return out, nil
}

// BearerToken extracts the token from an Authorization: Bearer header.
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

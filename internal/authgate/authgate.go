// Package authgate checks the admin password and tracks logged-in sessions.
//
// The check is an unsalted SHA-256 compare against a configured digest and
// the session set lives in memory: a restart logs everybody out.
package authgate

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/starford/evolve/internal/checksum"
)

// Digest returns the hex digest Check compares against.
func Digest(candidate string) string {
	return checksum.SumString(strings.TrimSpace(candidate))
}

// Check reports whether the trimmed candidate hashes to expectedDigestHex.
func Check(candidate, expectedDigestHex string) bool {
	return checksum.Match(Digest(candidate), expectedDigestHex)
}

// Sessions is the set of issued session tokens.
type Sessions struct {
	mu     sync.RWMutex
	tokens map[string]struct{}
}

// NewSessions returns an empty session set.
func NewSessions() *Sessions {
	return &Sessions{tokens: make(map[string]struct{})}
}

// Issue creates and records a new token.
func (s *Sessions) Issue() string {
	tok := uuid.NewString()
	s.mu.Lock()
	s.tokens[tok] = struct{}{}
	s.mu.Unlock()
	return tok
}

// Valid reports whether tok was issued and not yet revoked.
func (s *Sessions) Valid(tok string) bool {
	if tok == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tokens[tok]
	return ok
}

// Revoke forgets tok.
func (s *Sessions) Revoke(tok string) {
	s.mu.Lock()
	delete(s.tokens, tok)
	s.mu.Unlock()
}

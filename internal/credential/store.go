// Package credential holds the bearer token and two-factor challenge state
// for the current session.
package credential

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidState is returned when an operation requires a pending two-factor
// challenge and none is recorded.
var ErrInvalidState = errors.New("credential: no pending two-factor challenge")

// State identifies which leg of the credential lifecycle is active.
type State int

const (
	// Unauthenticated means neither a token nor a challenge is held.
	Unauthenticated State = iota
	// PendingChallenge means login succeeded partially and a two-factor
	// challenge id is awaiting a code.
	PendingChallenge
	// Authenticated means a bearer token is held.
	Authenticated
)

func (s State) String() string {
	switch s {
	case PendingChallenge:
		return "pending_challenge"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// Store keeps the current bearer token or pending challenge id. Exactly one
// of {authenticated, pending challenge, unauthenticated} holds at any time.
type Store struct {
	mu        sync.Mutex
	token     string
	challenge string
}

// NewStore returns an empty, unauthenticated store.
func NewStore() *Store {
	return &Store{}
}

// SetAuthenticated records token and drops any pending challenge.
func (s *Store) SetAuthenticated(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.challenge = ""
}

// SetChallenge records a pending two-factor challenge id and drops any token.
func (s *Store) SetChallenge(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenge = sessionID
	s.token = ""
}

// Clear resets the store to unauthenticated. Reachable from any state.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.challenge = ""
}

// IsAuthenticated reports whether a bearer token is held.
func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != ""
}

// Token returns the current bearer token, or "" when not authenticated.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Challenge returns the pending challenge id. ErrInvalidState is returned
// when no challenge is pending, e.g. a second factor submitted out of order.
func (s *Store) Challenge() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.challenge == "" {
		return "", ErrInvalidState
	}
	return s.challenge, nil
}

// CurrentState returns the active leg of the lifecycle.
func (s *Store) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.token != "":
		return Authenticated
	case s.challenge != "":
		return PendingChallenge
	default:
		return Unauthenticated
	}
}

// Expired reports whether the held token is a JWT whose exp claim has passed.
// The token is parsed without signature verification; only the server can
// truly validate it, this is a best-effort guard against opening a socket
// with a dead credential. Opaque (non-JWT) tokens report false.
func (s *Store) Expired(now time.Time) bool {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()
	if token == "" {
		return false
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(now)
}

package application

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultSessionTTL = 5 * time.Minute

type session struct {
	identityKey string
	expiresAt   time.Time
}

// SessionStore hands out short-lived bearer tokens after a successful
// authentication. Tokens are bound to one identity key and live in memory
// only; a restart invalidates them.
type SessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]session
}

// NewSessionStore creates a SessionStore issuing tokens valid for ttl.
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &SessionStore{ttl: ttl, now: time.Now, sessions: make(map[string]session)}
}

// Issue creates a token for identityKey and returns it with its expiry.
func (s *SessionStore) Issue(identityKey string) (string, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)

	token := uuid.NewString()
	expires := now.Add(s.ttl)
	s.sessions[token] = session{identityKey: identityKey, expiresAt: expires}
	return token, expires
}

// Valid reports whether token is live and bound to identityKey.
func (s *SessionStore) Valid(token, identityKey string) bool {
	if _, err := uuid.Parse(token); err != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return false
	}
	if !s.now().Before(sess.expiresAt) {
		delete(s.sessions, token)
		return false
	}
	return sess.identityKey == identityKey
}

// Revoke drops every token bound to identityKey.
func (s *SessionStore) Revoke(identityKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, sess := range s.sessions {
		if sess.identityKey == identityKey {
			delete(s.sessions, token)
		}
	}
}

// sweep drops expired sessions. Callers hold mu.
func (s *SessionStore) sweep(now time.Time) {
	for token, sess := range s.sessions {
		if !now.Before(sess.expiresAt) {
			delete(s.sessions, token)
		}
	}
}

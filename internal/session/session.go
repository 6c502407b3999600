// Package session holds the identity and per-user state of one running surface.
// A Session is created at surface start, passed by reference to the pieces
// that need it and invalidated explicitly at logout or teardown.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"deliverySync/internal/auth"
)

// Role is the kind of surface.
type Role string

const (
	RoleAdmin      Role = auth.KindAdmin
	RoleRestaurant Role = auth.KindRestaurant
	RoleAgent      Role = auth.KindAgent
	RoleCustomer   Role = auth.KindCustomer
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleRestaurant, RoleAgent, RoleCustomer:
		return true
	}
	return false
}

// ErrInvalidated is returned by accessors once the session has ended.
var ErrInvalidated = errors.New("session invalidated")

// Session is safe for concurrent use.
type Session struct {
	mu        sync.RWMutex
	role      Role
	subjectID int64
	name      string
	token     string
	startedAt time.Time
	clearedAt time.Time
	invalid   bool
	onEnd     []func()
}

// New starts a session. subjectID is the agent, restaurant or customer id.
func New(role Role, subjectID int64, name, token string) (*Session, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	if role != RoleAdmin && subjectID <= 0 {
		return nil, fmt.Errorf("role %s needs a subject id", role)
	}
	return &Session{role: role, subjectID: subjectID, name: name, token: token, startedAt: time.Now()}, nil
}

// FromToken starts a session from the bearer token handed to the surface.
// The signature is verified by the service, not here.
func FromToken(token string) (*Session, error) {
	c, err := auth.PeekClaims(token)
	if err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	p, err := c.Principal()
	if err != nil {
		return nil, err
	}
	return New(Role(p.Kind), p.ID, p.Name, token)
}

// Role returns the surface role.
func (s *Session) Role() Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

// SubjectID returns the agent, restaurant or customer id.
func (s *Session) SubjectID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subjectID
}

// Name returns the display name carried by the token.
func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// StartedAt returns when the session began.
func (s *Session) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

// Token returns the bearer token, or ErrInvalidated after Invalidate.
func (s *Session) Token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.invalid {
		return "", ErrInvalidated
	}
	return s.token, nil
}

// Valid reports whether the session is still live.
func (s *Session) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.invalid
}

// ClearNotifications records that the user dismissed everything up to now.
func (s *Session) ClearNotifications(now time.Time) {
	s.mu.Lock()
	s.clearedAt = now
	s.mu.Unlock()
}

// NotificationsClearedAt returns the dismissal marker; zero means never cleared.
func (s *Session) NotificationsClearedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clearedAt
}

// OnInvalidate registers fn to run once when the session ends.
func (s *Session) OnInvalidate(fn func()) {
	s.mu.Lock()
	if s.invalid {
		s.mu.Unlock()
		fn()
		return
	}
	s.onEnd = append(s.onEnd, fn)
	s.mu.Unlock()
}

// Invalidate ends the session, forgets the token and runs OnInvalidate hooks.
func (s *Session) Invalidate() {
	s.mu.Lock()
	if s.invalid {
		s.mu.Unlock()
		return
	}
	s.invalid = true
	s.token = ""
	hooks := s.onEnd
	s.onEnd = nil
	s.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/port"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/repository"
)

type storedSession struct {
	session  domain.Session
	deadline time.Time
}

// SessionStore keeps sessions in process memory. It is used when Redis is
// disabled; sessions do not survive a restart.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]storedSession
	now      func() time.Time
}

// NewSessionStore constructs an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]storedSession),
		now:      time.Now,
	}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (s *SessionStore) WithClock(now func() time.Time) *SessionStore {
	if now != nil {
		s.now = now
	}
	return s
}

// Save stores the session for ttl.
func (s *SessionStore) Save(ctx context.Context, session domain.Session, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id := strings.TrimSpace(session.ID)
	if id == "" {
		return fmt.Errorf("session id is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.sessions[id] = storedSession{session: session, deadline: s.now().Add(ttl)}
	return nil
}

// Touch loads the session and pushes its expiry ttl into the future.
func (s *SessionStore) Touch(ctx context.Context, sessionID string, ttl time.Duration) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := strings.TrimSpace(sessionID)
	stored, ok := s.sessions[id]
	now := s.now()
	if !ok || !now.Before(stored.deadline) {
		delete(s.sessions, id)
		return nil, repository.ErrNotFound
	}

	stored.session.LastSeen = now.UTC()
	stored.session.ExpiresAt = now.UTC().Add(ttl)
	stored.deadline = now.Add(ttl)
	s.sessions[id] = stored

	session := stored.session
	return &session, nil
}

// Delete drops the session. Unknown ids are ignored.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.sessions, strings.TrimSpace(sessionID))
	s.mu.Unlock()
	return nil
}

func (s *SessionStore) sweepLocked() {
	now := s.now()
	for id, stored := range s.sessions {
		if !now.Before(stored.deadline) {
			delete(s.sessions, id)
		}
	}
}

var _ port.SessionStore = (*SessionStore)(nil)

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/port"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/repository"
)

const defaultSessionPrefix = "smartlock:session"

// SessionStore persists dashboard sessions as JSON strings with a sliding TTL.
type SessionStore struct {
	client *red.Client
	prefix string
	now    func() time.Time
}

// NewSessionStore constructs a Redis-backed session store.
func NewSessionStore(client *red.Client, keyPrefix string) *SessionStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultSessionPrefix
	}
	return &SessionStore{client: client, prefix: prefix, now: time.Now}
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
	key := s.key(session.ID)
	if key == "" {
		return fmt.Errorf("session id is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

// Touch loads the session and pushes its expiry ttl into the future.
func (s *SessionStore) Touch(ctx context.Context, sessionID string, ttl time.Duration) (*domain.Session, error) {
	key := s.key(sessionID)
	if key == "" {
		return nil, repository.ErrNotFound
	}

	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	now := s.now().UTC()
	session.LastSeen = now
	session.ExpiresAt = now.Add(ttl)

	if err := s.Save(ctx, session, ttl); err != nil {
		return nil, err
	}
	return &session, nil
}

// Delete drops the session. Unknown ids are ignored.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	key := s.key(sessionID)
	if key == "" {
		return nil
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

func (s *SessionStore) key(sessionID string) string {
	trimmed := strings.TrimSpace(sessionID)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", s.prefix, trimmed)
}

var _ port.SessionStore = (*SessionStore)(nil)

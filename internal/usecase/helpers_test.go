package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/security"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/repository/docstore"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/repository/memory"
)

const testSecret = "test-secret-0123456789abcdef0123"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRepos(t *testing.T) *docstore.Repositories {
	t.Helper()
	return docstore.NewRepositories(memory.NewDocumentStore(), time.Second)
}

func newTestHasher(t *testing.T) *security.Argon2Hasher {
	t.Helper()
	h, err := security.NewArgon2Hasher(security.Argon2Config{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2Hasher returned error: %v", err)
	}
	return h
}

type recordingSink struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (s *recordingSink) WriteAudit(_ context.Context, entry domain.AuditEntry) error {
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) types() []domain.AuditEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AuditEventType, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.EventType)
	}
	return out
}

func (s *recordingSink) count(eventType domain.AuditEventType) int {
	n := 0
	for _, t := range s.types() {
		if t == eventType {
			n++
		}
	}
	return n
}

func newRecordingAudit() (*AuditService, *recordingSink) {
	sink := &recordingSink{}
	return NewAuditService(domain.AuditModeConsole, nil, nil, nil).WithSinks(sink), sink
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.LockEvent
	err    error
}

func (p *recordingPublisher) PublishLockEvent(_ context.Context, event domain.LockEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) typesPublished() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

package usecase

import (
	"errors"
	"sync"
	"time"
)

const (
	defaultBruteForceAttempts = 10
	defaultBruteForceWindow   = 30 * time.Minute
	bruteForceSweepThreshold  = 10000
)

// ErrBruteForceBlocked indicates the identifier exhausted its login attempts.
var ErrBruteForceBlocked = errors.New("too many failed login attempts; contact an administrator")

type attemptWindow struct {
	count int
	first time.Time
}

// BruteForceGuard counts login attempts per username or IP. The window opens
// at the first attempt; once it lapses the next attempt starts a fresh one.
// Counters live in process memory and are lost on restart.
type BruteForceGuard struct {
	mu          sync.Mutex
	attempts    map[string]*attemptWindow
	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

// NewBruteForceGuard builds a guard allowing maxAttempts per window.
func NewBruteForceGuard(maxAttempts int, window time.Duration) *BruteForceGuard {
	if maxAttempts <= 0 {
		maxAttempts = defaultBruteForceAttempts
	}
	if window <= 0 {
		window = defaultBruteForceWindow
	}
	return &BruteForceGuard{
		attempts:    make(map[string]*attemptWindow),
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (g *BruteForceGuard) WithClock(clock func() time.Time) *BruteForceGuard {
	if clock != nil {
		g.now = clock
	}
	return g
}

// Attempt registers an attempt for identifier before credentials are checked.
// It returns ErrBruteForceBlocked once maxAttempts were already spent in the
// current window.
func (g *BruteForceGuard) Attempt(identifier string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if len(g.attempts) >= bruteForceSweepThreshold {
		g.sweepLocked(now)
	}

	entry, ok := g.attempts[identifier]
	if !ok {
		g.attempts[identifier] = &attemptWindow{count: 1, first: now}
		return nil
	}

	if now.Sub(entry.first) > g.window {
		entry.count = 1
		entry.first = now
		return nil
	}

	if entry.count >= g.maxAttempts {
		return ErrBruteForceBlocked
	}
	entry.count++
	return nil
}

// Reset clears the counter after a successful login.
func (g *BruteForceGuard) Reset(identifier string) {
	g.mu.Lock()
	delete(g.attempts, identifier)
	g.mu.Unlock()
}

// Attempts returns the count recorded in the current window.
func (g *BruteForceGuard) Attempts(identifier string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.attempts[identifier]
	if !ok || g.now().Sub(entry.first) > g.window {
		return 0
	}
	return entry.count
}

func (g *BruteForceGuard) sweepLocked(now time.Time) {
	for id, entry := range g.attempts {
		if now.Sub(entry.first) > g.window {
			delete(g.attempts, id)
		}
	}
}

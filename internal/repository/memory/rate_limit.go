package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/port"
)

// RateLimitRepository keeps sliding-window attempts in process memory.
// Counters are not shared between instances and vanish on restart.
type RateLimitRepository struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
}

// NewRateLimitRepository constructs an empty repository.
func NewRateLimitRepository() *RateLimitRepository {
	return &RateLimitRepository{attempts: make(map[string][]time.Time)}
}

// RecordAttempt stores the timestamp for identifier.
func (r *RateLimitRepository) RecordAttempt(_ context.Context, identifier string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := append(r.attempts[identifier], at)
	if n := len(list); n > 1 && list[n-1].Before(list[n-2]) {
		sort.Slice(list, func(i, j int) bool { return list[i].Before(list[j]) })
	}
	r.attempts[identifier] = list
	return nil
}

// CountAttempts returns how many attempts fall inside (reference-window, reference].
func (r *RateLimitRepository) CountAttempts(_ context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	if window <= 0 {
		return 0, errors.New("window must be positive")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	start := reference.Add(-window)
	count := 0
	for _, at := range r.attempts[identifier] {
		if at.After(start) && !at.After(reference) {
			count++
		}
	}
	return count, nil
}

// TrimWindow drops attempts at or before reference-window.
func (r *RateLimitRepository) TrimWindow(_ context.Context, identifier string, window time.Duration, reference time.Time) error {
	if window <= 0 {
		return errors.New("window must be positive")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	threshold := reference.Add(-window)
	list := r.attempts[identifier]
	idx := 0
	for idx < len(list) && !list[idx].After(threshold) {
		idx++
	}
	if idx == len(list) {
		delete(r.attempts, identifier)
		return nil
	}
	r.attempts[identifier] = append([]time.Time(nil), list[idx:]...)
	return nil
}

// OldestAttempt returns the earliest attempt still inside the window.
func (r *RateLimitRepository) OldestAttempt(_ context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	if window <= 0 {
		return time.Time{}, false, errors.New("window must be positive")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	start := reference.Add(-window)
	for _, at := range r.attempts[identifier] {
		if at.After(start) && !at.After(reference) {
			return at, true, nil
		}
	}
	return time.Time{}, false, nil
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)

package port

import (
	"context"
	"time"
)

// RateLimitStore holds sliding-window attempt timestamps. Identifiers arrive
// already scoped by policy name, e.g. "login:198.51.100.7".
type RateLimitStore interface {
	TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error
	CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error)
	RecordAttempt(ctx context.Context, identifier string, at time.Time) error
	OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error)
}

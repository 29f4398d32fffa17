package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/telemetry"
)

const (
	rateLimitProblemType  = "https://smartlock.local/errors/rate-limit-exceeded"
	rateLimitProblemTitle = "Rate Limit Exceeded"
)

// Policy names used for rule keys, metrics and audit.
const (
	LoginPolicy         = "login"
	APIPolicy           = "api"
	ServiceTogglePolicy = "service_toggle"
)

// RateLimitStore defines the persistence operations required by the middleware.
type RateLimitStore interface {
	TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error
	CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error)
	RecordAttempt(ctx context.Context, identifier string, at time.Time) error
	OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error)
}

// IdentifierFunc extracts the identifier used to scope rate limits (e.g., client IP).
type IdentifierFunc func(*gin.Context) (string, bool)

// RateLimitRule configures a sliding-window limit for a particular identifier.
type RateLimitRule struct {
	Name       string
	Limit      int
	Window     time.Duration
	Identifier IdentifierFunc
}

// RejectHook observes rejected requests before the response is written.
type RejectHook func(c *gin.Context, rule RateLimitRule)

// RateLimiter enforces sliding-window rules over a RateLimitStore. Store
// failures let the request through.
type RateLimiter struct {
	store    RateLimitStore
	logger   *zap.Logger
	metrics  *telemetry.Metrics
	onReject RejectHook
	now      func() time.Time
}

// verdict is the outcome of one rule for one request.
type verdict struct {
	rule      RateLimitRule
	allowed   bool
	remaining int
	resetAt   time.Time
}

// retryAfter rounds the wait until resetAt up to whole seconds.
func (v verdict) retryAfter(now time.Time) int {
	wait := v.resetAt.Sub(now)
	if wait <= 0 {
		return 0
	}
	return int(math.Ceil(wait.Seconds()))
}

// tighter reports whether v is more restrictive than other.
func (v verdict) tighter(other verdict) bool {
	if v.allowed != other.allowed {
		return !v.allowed
	}
	if v.remaining != other.remaining {
		return v.remaining < other.remaining
	}
	return v.resetAt.Before(other.resetAt)
}

// ProblemDetails is the RFC 9457 body sent to API clients on rejection.
type ProblemDetails struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail"`
	Instance   string `json:"instance"`
	RetryAfter int    `json:"retry_after"`
	TraceID    string `json:"trace_id,omitempty"`
}

// NewRateLimiter builds a limiter. A nil store disables limiting.
func NewRateLimiter(store RateLimitStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{store: store, logger: logger, now: time.Now}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// WithMetrics counts rejections per policy.
func (rl *RateLimiter) WithMetrics(metrics *telemetry.Metrics) *RateLimiter {
	rl.metrics = metrics
	return rl
}

// WithRejectHook registers a callback run for every rejected request.
func (rl *RateLimiter) WithRejectHook(hook RejectHook) *RateLimiter {
	rl.onReject = hook
	return rl
}

// ClientIPIdentifier scopes a rule to the caller's IP.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		return ip, ip != ""
	}
}

// RateLimit returns a Gin middleware enforcing rules in order. The first
// rejecting rule ends the request; otherwise headers describe the tightest rule.
func (rl *RateLimiter) RateLimit(rules ...RateLimitRule) gin.HandlerFunc {
	active := make([]RateLimitRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Identifier == nil || rule.Limit <= 0 || rule.Window <= 0 {
			continue
		}
		if rule.Name == "" {
			rule.Name = "default"
		}
		active = append(active, rule)
	}

	return func(c *gin.Context) {
		if len(active) == 0 || rl.store == nil {
			c.Next()
			return
		}

		now := rl.now()
		var tightest *verdict
		for _, rule := range active {
			identifier, ok := rule.Identifier(c)
			if !ok || identifier == "" {
				continue
			}

			v, err := rl.check(c.Request.Context(), rule, rule.Name+":"+identifier, now)
			if err != nil {
				rl.logger.Warn("rate limit check failed",
					zap.String("rule", rule.Name),
					zap.String("identifier", identifier),
					zap.Error(err),
				)
				continue
			}

			if !v.allowed {
				rl.writeHeaders(c, v, now)
				rl.reject(c, v, now)
				return
			}
			if tightest == nil || v.tighter(*tightest) {
				tightest = &v
			}
		}

		if tightest != nil {
			rl.writeHeaders(c, *tightest, now)
		}
		c.Next()
	}
}

// check trims the window, counts what is left and records the attempt when
// the rule still has room. Rejected attempts are not recorded.
func (rl *RateLimiter) check(ctx context.Context, rule RateLimitRule, key string, now time.Time) (verdict, error) {
	if err := rl.store.TrimWindow(ctx, key, rule.Window, now); err != nil {
		return verdict{}, err
	}
	count, err := rl.store.CountAttempts(ctx, key, rule.Window, now)
	if err != nil {
		return verdict{}, err
	}
	oldest, found, err := rl.store.OldestAttempt(ctx, key, rule.Window, now)
	if err != nil {
		return verdict{}, err
	}

	v := verdict{rule: rule, resetAt: now.Add(rule.Window)}
	if found {
		v.resetAt = oldest.Add(rule.Window)
	}

	if count >= rule.Limit {
		return v, nil
	}

	if err := rl.store.RecordAttempt(ctx, key, now); err != nil {
		return verdict{}, err
	}
	v.allowed = true
	v.remaining = max(rule.Limit-count-1, 0)
	return v, nil
}

func (rl *RateLimiter) writeHeaders(c *gin.Context, v verdict, now time.Time) {
	headers := c.Writer.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(v.rule.Limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(v.remaining))
	headers.Set("X-RateLimit-Reset", strconv.FormatInt(v.resetAt.Unix(), 10))
	if !v.allowed {
		headers.Set("Retry-After", strconv.Itoa(v.retryAfter(now)))
	}
}

// reject answers browsers with a flash redirect to the login page and API
// clients with a problem document.
func (rl *RateLimiter) reject(c *gin.Context, v verdict, now time.Time) {
	wait := v.retryAfter(now)
	rl.logger.Warn("rate limit exceeded",
		zap.String("rule", v.rule.Name),
		zap.String("path", c.Request.URL.Path),
		zap.Int("retry_after", wait),
	)
	rl.metrics.RateLimited(v.rule.Name)
	if rl.onReject != nil {
		rl.onReject(c, v.rule)
	}

	detail := fmt.Sprintf("Too many requests. Try again in %d seconds.", wait)
	if ClientKindOf(c) == domain.ClientBrowser {
		RedirectWithFlash(c, loginPath, detail)
		return
	}

	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}
	c.AbortWithStatusJSON(http.StatusTooManyRequests, ProblemDetails{
		Type:       rateLimitProblemType,
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     detail,
		Instance:   instance,
		RetryAfter: wait,
		TraceID:    GetTraceID(c),
	})
}

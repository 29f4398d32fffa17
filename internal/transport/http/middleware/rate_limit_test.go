package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/telemetry"
)

type fakeRateLimitStore struct {
	trimErr   error
	count     int
	countErr  error
	oldest    time.Time
	hasOldest bool
	oldestErr error
	recordErr error

	trimmedKeys []string
	countedKeys []string
	recordedKey string
	recordCalls int
}

func (f *fakeRateLimitStore) TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error {
	f.trimmedKeys = append(f.trimmedKeys, identifier)
	return f.trimErr
}

func (f *fakeRateLimitStore) CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	f.countedKeys = append(f.countedKeys, identifier)
	return f.count, f.countErr
}

func (f *fakeRateLimitStore) RecordAttempt(ctx context.Context, identifier string, at time.Time) error {
	f.recordedKey = identifier
	f.recordCalls++
	return f.recordErr
}

func (f *fakeRateLimitStore) OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	return f.oldest, f.hasOldest, f.oldestErr
}

var limiterNow = time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)

func fixedIP(c *gin.Context) (string, bool) { return "192.0.2.1", true }

// serveLimited runs one GET /api/locks through a limiter holding rule.
func serveLimited(t *testing.T, store *fakeRateLimitStore, rule RateLimitRule) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	limiter := NewRateLimiter(store, zaptest.NewLogger(t)).WithClock(func() time.Time { return limiterNow })
	router := gin.New()
	router.Use(limiter.RateLimit(rule))
	router.GET("/api/locks", func(c *gin.Context) { c.Status(http.StatusOK) })

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/locks", nil))
	return rr
}

func TestRateLimiterAllowsWhenBelowLimit(t *testing.T) {
	oldest := limiterNow.Add(-30 * time.Second)
	store := &fakeRateLimitStore{count: 2, oldest: oldest, hasOldest: true}

	rr := serveLimited(t, store, RateLimitRule{Name: LoginPolicy, Limit: 5, Window: time.Minute, Identifier: fixedIP})

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if store.recordCalls != 1 || store.recordedKey != "login:192.0.2.1" {
		t.Fatalf("expected one attempt recorded under login:192.0.2.1, got %d under %q", store.recordCalls, store.recordedKey)
	}

	wantHeaders := map[string]string{
		"X-RateLimit-Limit":     "5",
		"X-RateLimit-Remaining": "2",
		"X-RateLimit-Reset":     strconv.FormatInt(oldest.Add(time.Minute).Unix(), 10),
		"Retry-After":           "",
	}
	for name, want := range wantHeaders {
		if got := rr.Header().Get(name); got != want {
			t.Fatalf("expected %s %q, got %q", name, want, got)
		}
	}
}

func TestRateLimiterBlocksWhenLimitExceeded(t *testing.T) {
	store := &fakeRateLimitStore{count: 5, oldest: limiterNow.Add(-30 * time.Second), hasOldest: true}

	rr := serveLimited(t, store, RateLimitRule{Name: LoginPolicy, Limit: 5, Window: time.Minute, Identifier: fixedIP})

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if store.recordCalls != 0 {
		t.Fatalf("rejected attempts must not be recorded, got %d", store.recordCalls)
	}
	if got := rr.Header().Get("Retry-After"); got != "30" {
		t.Fatalf("expected retry-after 30, got %q", got)
	}

	var problem ProblemDetails
	if err := json.Unmarshal(rr.Body.Bytes(), &problem); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if problem.Status != http.StatusTooManyRequests || problem.RetryAfter != 30 || problem.Instance != "/api/locks" {
		t.Fatalf("unexpected problem %+v", problem)
	}
}

func TestRateLimiterFailsOpenOnStoreError(t *testing.T) {
	cases := map[string]*fakeRateLimitStore{
		"trim":   {trimErr: errors.New("redis down")},
		"count":  {countErr: errors.New("redis down")},
		"oldest": {oldestErr: errors.New("redis down")},
	}
	for name, store := range cases {
		t.Run(name, func(t *testing.T) {
			rr := serveLimited(t, store, RateLimitRule{Name: APIPolicy, Limit: 5, Window: time.Minute, Identifier: fixedIP})
			if rr.Code != http.StatusOK {
				t.Fatalf("expected 200 when failing open, got %d", rr.Code)
			}
			if store.recordCalls != 0 {
				t.Fatalf("expected no record attempt on failure, got %d", store.recordCalls)
			}
		})
	}
}

func TestRateLimiterSkipsUnusableRules(t *testing.T) {
	store := &fakeRateLimitStore{count: 100}

	rr := serveLimited(t, store, RateLimitRule{Name: APIPolicy, Limit: 0, Window: time.Minute, Identifier: fixedIP})
	if rr.Code != http.StatusOK || len(store.countedKeys) != 0 {
		t.Fatalf("zero-limit rule should be ignored, got %d with %v", rr.Code, store.countedKeys)
	}

	rr = serveLimited(t, store, RateLimitRule{Name: APIPolicy, Limit: 5, Window: time.Minute,
		Identifier: func(*gin.Context) (string, bool) { return "", false }})
	if rr.Code != http.StatusOK || len(store.countedKeys) != 0 {
		t.Fatalf("rule without identifier should be skipped, got %d with %v", rr.Code, store.countedKeys)
	}
}

func TestVerdictTighter(t *testing.T) {
	soon := verdict{allowed: true, remaining: 3, resetAt: limiterNow.Add(time.Minute)}
	later := verdict{allowed: true, remaining: 3, resetAt: limiterNow.Add(time.Hour)}
	fewer := verdict{allowed: true, remaining: 1, resetAt: limiterNow.Add(time.Hour)}
	blocked := verdict{allowed: false, resetAt: limiterNow.Add(time.Hour)}

	if !soon.tighter(later) || later.tighter(soon) {
		t.Fatal("earlier reset should win on equal remaining")
	}
	if !fewer.tighter(soon) {
		t.Fatal("fewer remaining should win")
	}
	if !blocked.tighter(fewer) || fewer.tighter(blocked) {
		t.Fatal("a blocked verdict should always win")
	}
	if got := (verdict{resetAt: limiterNow.Add(1500 * time.Millisecond)}).retryAfter(limiterNow); got != 2 {
		t.Fatalf("expected retry-after rounded up to 2, got %d", got)
	}
	if got := (verdict{resetAt: limiterNow.Add(-time.Second)}).retryAfter(limiterNow); got != 0 {
		t.Fatalf("expected zero retry-after for elapsed reset, got %d", got)
	}
}

func TestRateLimiterRedirectsBrowsersWithFlash(t *testing.T) {
	gin.SetMode(gin.TestMode)

	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	store := &fakeRateLimitStore{count: 5, oldest: now.Add(-time.Minute), hasOldest: true}

	var rejected []string
	limiter := NewRateLimiter(store, zaptest.NewLogger(t)).
		WithClock(func() time.Time { return now }).
		WithRejectHook(func(c *gin.Context, rule RateLimitRule) {
			rejected = append(rejected, rule.Name)
		})

	router := gin.New()
	router.Use(ClassifyClient())
	router.POST("/login", limiter.RateLimit(RateLimitRule{
		Name:       LoginPolicy,
		Limit:      5,
		Window:     15 * time.Minute,
		Identifier: ClientIPIdentifier(),
	}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rr.Code)
	}
	if got := rr.Header().Get("Location"); got != "/login" {
		t.Fatalf("expected redirect to /login, got %q", got)
	}

	var flash string
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == FlashCookieName {
			flash = cookie.Value
		}
	}
	if flash == "" {
		t.Fatal("expected a flash cookie")
	}
	if len(rejected) != 1 || rejected[0] != LoginPolicy {
		t.Fatalf("expected reject hook for login, got %v", rejected)
	}
}

func TestRateLimiterCountsRejections(t *testing.T) {
	gin.SetMode(gin.TestMode)

	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	store := &fakeRateLimitStore{count: 60}
	metrics, err := telemetry.NewMetrics(prometheus.NewRegistry(), "test")
	if err != nil {
		t.Fatalf("NewMetrics returned error: %v", err)
	}

	limiter := NewRateLimiter(store, nil).WithClock(func() time.Time { return now }).WithMetrics(metrics)
	router := gin.New()
	router.Use(limiter.RateLimit(RateLimitRule{Name: APIPolicy, Limit: 60, Window: time.Minute, Identifier: ClientIPIdentifier()}))
	router.POST("/api/temp-codes/verify", func(c *gin.Context) { c.Status(http.StatusOK) })

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/temp-codes/verify", nil))

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := testutil.ToFloat64(metrics.RateLimitRejections.WithLabelValues(APIPolicy)); got != 1 {
		t.Fatalf("expected one rejection counted, got %v", got)
	}
}

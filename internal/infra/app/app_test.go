package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/config"
)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		App:     config.AppSettings{Name: "smartlock-test", Env: "test", Host: "127.0.0.1", Port: 0},
		Storage: config.StorageSettings{Backend: "memory", OperationTimeout: time.Second},
		Auth: config.AuthSettings{
			AdminUsername: "admin",
			AdminPassword: "Admin-Pass-9137",
			JWTSecret:     "app-test-secret-0123456789-abcdefghijkl",
			APIKey:        "app-test-api-key",
			CookieName:    "smartlock_session",
		},
		RateLimit: config.RateLimitSettings{
			Backend: "memory",
			Login:   config.RateLimitPolicy{Limit: 5, Window: 15 * time.Minute},
			API:     config.RateLimitPolicy{Limit: 60, Window: time.Minute},
		},
		TempCodes: config.TempCodeSettings{DisplayTimezone: "UTC"},
		Audit:     config.AuditSettings{Mode: "console"},
		Cleanup:   config.CleanupSettings{Enabled: true, RunHour: 2, Interval: 24 * time.Hour},
		Jobs:      config.JobsSettings{StopTimeout: time.Second},
		Argon2: config.Argon2Settings{
			Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
		},
		Telemetry: config.TelemetrySettings{ServiceName: "smartlock-test", SamplingRate: 0},
	}
}

func TestNewWithMemoryBackendServesHealth(t *testing.T) {
	a, err := New(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { a.closeResources(context.Background()) })

	if a.pool != nil || a.redis != nil || a.grpcServer != nil {
		t.Fatal("memory backend should not open external connections")
	}
	if a.scheduler == nil {
		t.Fatal("expected cleanup scheduler when cleanup is enabled")
	}

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected ready status, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestNewWithRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("parse miniredis port: %v", err)
	}

	cfg := testConfig()
	cfg.Storage.Backend = "redis"
	cfg.RateLimit.Backend = "redis"
	cfg.Redis = config.RedisSettings{
		Enabled:        true,
		Host:           mr.Host(),
		Port:           port,
		DocumentPrefix: "smartlock",
		SessionPrefix:  "smartlock:session",
	}

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { a.closeResources(context.Background()) })

	body := strings.NewReader(`{"username":"admin","password":"Admin-Pass-9137"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected login to succeed, got %d: %s", rec.Code, rec.Body.String())
	}

	if keys := mr.Keys(); len(keys) == 0 {
		t.Fatal("expected session and rate limit keys in redis")
	}

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"redis":"ok"`) {
		t.Fatalf("expected redis readiness check, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestNewRejectsRedisStorageWithoutRedis(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Backend = "redis"

	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected error when redis storage is selected without redis")
	}
}

func TestRateLimitTTLUsesLongestWindow(t *testing.T) {
	got := rateLimitTTL(config.RateLimitSettings{
		Login:         config.RateLimitPolicy{Window: 15 * time.Minute},
		API:           config.RateLimitPolicy{Window: time.Minute},
		ServiceToggle: config.RateLimitPolicy{Window: 5 * time.Minute},
	})
	if got != 30*time.Minute {
		t.Fatalf("expected 30m ttl, got %v", got)
	}
	if got := rateLimitTTL(config.RateLimitSettings{}); got != 2*time.Minute {
		t.Fatalf("expected 2m floor, got %v", got)
	}
}

func TestJobSpecsNamesJobs(t *testing.T) {
	specs := jobSpecs(config.JobsSettings{
		Recognizer: config.JobSettings{Command: "python3", Args: []string{"recognize.py"}},
	})
	if len(specs) != 2 || specs[0].Name != "recognizer" || specs[1].Name != "trainer" {
		t.Fatalf("unexpected specs %+v", specs)
	}
	if specs[0].Command != "python3" || specs[1].Command != "" {
		t.Fatalf("unexpected commands %+v", specs)
	}
}

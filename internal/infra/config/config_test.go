package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaultsAndEnvironment(t *testing.T) {
	t.Setenv("SMARTLOCK_AUTH_JWT_SECRET", "config-test-secret-0123456789")
	t.Setenv("ADMIN_PASSWORD", "Admin-Pass-9137")
	t.Setenv("SMARTLOCK_STORAGE_BACKEND", "memory")
	t.Setenv("SMARTLOCK_RATE_LIMIT_LOGIN_WINDOW", "10m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Auth.AdminPassword != "Admin-Pass-9137" {
		t.Fatalf("expected legacy ADMIN_PASSWORD to bind, got %q", cfg.Auth.AdminPassword)
	}
	if cfg.Storage.Backend != "memory" {
		t.Fatalf("expected memory backend, got %q", cfg.Storage.Backend)
	}
	if cfg.RateLimit.Login.Window != 10*time.Minute || cfg.RateLimit.Login.Limit != 5 {
		t.Fatalf("unexpected login policy %+v", cfg.RateLimit.Login)
	}
	if cfg.App.Port != 3000 || cfg.Audit.Mode != "console" || cfg.TempCodes.DisplayTimezone != "Asia/Ho_Chi_Minh" {
		t.Fatalf("unexpected defaults %+v %+v %+v", cfg.App, cfg.Audit, cfg.TempCodes)
	}
	if cfg.Cleanup.RunHour != 2 || cfg.Cleanup.Interval != 24*time.Hour {
		t.Fatalf("unexpected cleanup defaults %+v", cfg.Cleanup)
	}
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("SMARTLOCK_AUTH_JWT_SECRET", "")
	t.Setenv("SMARTLOCK_AUTH_ADMIN_PASSWORD", "Admin-Pass-9137")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "jwt_secret") {
		t.Fatalf("expected jwt_secret error, got %v", err)
	}
}

func validConfig() AppConfig {
	return AppConfig{
		App:     AppSettings{Env: "development"},
		Auth:    AuthSettings{JWTSecret: "config-test-secret-0123456789", AdminPassword: "x"},
		Storage: StorageSettings{Backend: "memory"},
		Cleanup: CleanupSettings{RunHour: 2},
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*AppConfig) {}},
		{name: "short production secret", mutate: func(c *AppConfig) { c.App.Env = "production" }, wantErr: "at least 32 bytes"},
		{name: "missing admin password", mutate: func(c *AppConfig) { c.Auth.AdminPassword = " " }, wantErr: "admin_password"},
		{name: "unknown backend", mutate: func(c *AppConfig) { c.Storage.Backend = "firebase" }, wantErr: "unknown storage.backend"},
		{name: "redis storage without redis", mutate: func(c *AppConfig) { c.Storage.Backend = "redis" }, wantErr: "requires redis.enabled"},
		{name: "redis limiter without redis", mutate: func(c *AppConfig) { c.RateLimit.Backend = "redis" }, wantErr: "rate_limit.backend"},
		{name: "run hour out of range", mutate: func(c *AppConfig) { c.Cleanup.RunHour = 24 }, wantErr: "run_hour"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

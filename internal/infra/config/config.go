package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App         AppSettings         `mapstructure:"app"`
	Storage     StorageSettings     `mapstructure:"storage"`
	Postgres    PostgresSettings    `mapstructure:"postgres"`
	Redis       RedisSettings       `mapstructure:"redis"`
	Kafka       KafkaSettings       `mapstructure:"kafka"`
	Auth        AuthSettings        `mapstructure:"auth"`
	GRPC        GRPCSettings        `mapstructure:"grpc"`
	Telemetry   TelemetrySettings   `mapstructure:"telemetry"`
	RateLimit   RateLimitSettings   `mapstructure:"rate_limit"`
	BruteForce  BruteForceSettings  `mapstructure:"brute_force"`
	TempCodes   TempCodeSettings    `mapstructure:"temp_codes"`
	Audit       AuditSettings       `mapstructure:"audit"`
	Cleanup     CleanupSettings     `mapstructure:"cleanup"`
	ObjectStore ObjectStoreSettings `mapstructure:"object_store"`
	Jobs        JobsSettings        `mapstructure:"jobs"`
	Argon2      Argon2Settings      `mapstructure:"argon2"`
}

type AppSettings struct {
	Name           string   `mapstructure:"name"`
	Env            string   `mapstructure:"env"`
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	Debug          bool     `mapstructure:"debug"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type GRPCSettings struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Enabled bool   `mapstructure:"enabled"`
}

// StorageSettings selects the document store backend.
type StorageSettings struct {
	Backend          string        `mapstructure:"backend"` // postgres | redis | memory
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	DB             int    `mapstructure:"db"`
	Password       string `mapstructure:"password"`
	TLSEnabled     bool   `mapstructure:"tls_enabled"`
	DocumentPrefix string `mapstructure:"document_prefix"`
	SessionPrefix  string `mapstructure:"session_prefix"`
}

// KafkaSettings configures Kafka producer
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

// AuthSettings carries the bootstrap credentials and secrets.
type AuthSettings struct {
	AdminUsername string        `mapstructure:"admin_username"`
	AdminPassword string        `mapstructure:"admin_password"`
	JWTSecret     string        `mapstructure:"jwt_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	APIKey        string        `mapstructure:"api_key"`
	CookieName    string        `mapstructure:"cookie_name"`
	CookieSecure  bool          `mapstructure:"cookie_secure"`
}

// RateLimitPolicy is a single sliding window.
type RateLimitPolicy struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// RateLimitSettings configures the per-IP policies.
type RateLimitSettings struct {
	Backend       string          `mapstructure:"backend"` // memory | redis
	Login         RateLimitPolicy `mapstructure:"login"`
	API           RateLimitPolicy `mapstructure:"api"`
	ServiceToggle RateLimitPolicy `mapstructure:"service_toggle"`
}

type BruteForceSettings struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Window      time.Duration `mapstructure:"window"`
}

type TempCodeSettings struct {
	DisplayTimezone    string `mapstructure:"display_timezone"`
	DefaultDescription string `mapstructure:"default_description"`
	MaxUses            int    `mapstructure:"max_uses"`
	GenerationAttempts int    `mapstructure:"generation_attempts"`
}

type AuditSettings struct {
	Mode string `mapstructure:"mode"` // firebase | store | console | off
}

type CleanupSettings struct {
	Enabled            bool          `mapstructure:"enabled"`
	RunHour            int           `mapstructure:"run_hour"`
	Interval           time.Duration `mapstructure:"interval"`
	ActivityRetention  time.Duration `mapstructure:"activity_retention"`
	ActivityMaxPerLock int           `mapstructure:"activity_max_per_lock"`
	AuditRetention     time.Duration `mapstructure:"audit_retention"`
	AuditMaxEntries    int           `mapstructure:"audit_max_entries"`
}

// ObjectStoreSettings point at the bucket with enrolment images.
type ObjectStoreSettings struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// JobSettings describes one supervised external process.
type JobSettings struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
	WorkDir string   `mapstructure:"work_dir"`
}

type JobsSettings struct {
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
	Recognizer  JobSettings   `mapstructure:"recognizer"`
	Trainer     JobSettings   `mapstructure:"trainer"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("SMARTLOCK")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.debug",
		"app.allowed_origins",
		"storage.backend",
		"storage.operation_timeout",
		"grpc.host",
		"grpc.port",
		"grpc.enabled",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.enabled",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.document_prefix",
		"redis.session_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"auth.admin_username",
		"auth.admin_password",
		"auth.jwt_secret",
		"auth.token_ttl",
		"auth.session_ttl",
		"auth.api_key",
		"auth.cookie_name",
		"auth.cookie_secure",
		"rate_limit.backend",
		"rate_limit.login.limit",
		"rate_limit.login.window",
		"rate_limit.api.limit",
		"rate_limit.api.window",
		"rate_limit.service_toggle.limit",
		"rate_limit.service_toggle.window",
		"brute_force.max_attempts",
		"brute_force.window",
		"temp_codes.display_timezone",
		"temp_codes.default_description",
		"temp_codes.max_uses",
		"temp_codes.generation_attempts",
		"audit.mode",
		"cleanup.enabled",
		"cleanup.run_hour",
		"cleanup.interval",
		"cleanup.activity_retention",
		"cleanup.activity_max_per_lock",
		"cleanup.audit_retention",
		"cleanup.audit_max_entries",
		"object_store.bucket",
		"object_store.prefix",
		"object_store.endpoint",
		"object_store.credentials_file",
		"jobs.stop_timeout",
		"jobs.recognizer.command",
		"jobs.recognizer.args",
		"jobs.recognizer.work_dir",
		"jobs.trainer.command",
		"jobs.trainer.args",
		"jobs.trainer.work_dir",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
	}); err != nil {
		return nil, err
	}

	// Deployment variable names inherited from the dashboard's .env files.
	legacy := map[string]string{
		"auth.admin_password": "ADMIN_PASSWORD",
		"auth.jwt_secret":     "JWT_SECRET",
		"auth.api_key":        "EXTERNAL_API_KEY",
		"audit.mode":          "AUDIT_LOG_MODE",
		"app.debug":           "DEBUG_MODE",
	}
	for key, env := range legacy {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "SMARTLOCK_"+envKey, envKey, env); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("config: auth.jwt_secret is required")
	}
	if c.App.Env == "production" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("config: auth.jwt_secret must be at least 32 bytes in production")
	}
	if strings.TrimSpace(c.Auth.AdminPassword) == "" {
		return fmt.Errorf("config: auth.admin_password is required")
	}
	switch c.Storage.Backend {
	case "postgres", "redis", "memory":
	default:
		return fmt.Errorf("config: unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("config: storage.backend redis requires redis.enabled")
	}
	if c.RateLimit.Backend == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("config: rate_limit.backend redis requires redis.enabled")
	}
	if c.Cleanup.RunHour < 0 || c.Cleanup.RunHour > 23 {
		return fmt.Errorf("config: cleanup.run_hour must be within 0-23")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "smartlock-dashboard")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 3000)
	v.SetDefault("app.debug", false)
	v.SetDefault("app.allowed_origins", []string{})

	v.SetDefault("storage.backend", "postgres")
	v.SetDefault("storage.operation_timeout", "5s")

	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)
	v.SetDefault("grpc.enabled", true)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "smartlock")
	v.SetDefault("postgres.password", "smartlock_password")
	v.SetDefault("postgres.database", "smartlock")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.document_prefix", "smartlock")
	v.SetDefault("redis.session_prefix", "smartlock:session")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "smartlock")
	v.SetDefault("kafka.async", true)

	v.SetDefault("auth.admin_username", "admin")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.session_ttl", "24h")
	v.SetDefault("auth.cookie_name", "smartlock_session")
	v.SetDefault("auth.cookie_secure", false)

	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.login.limit", 5)
	v.SetDefault("rate_limit.login.window", "15m")
	v.SetDefault("rate_limit.api.limit", 60)
	v.SetDefault("rate_limit.api.window", "1m")
	v.SetDefault("rate_limit.service_toggle.limit", 10)
	v.SetDefault("rate_limit.service_toggle.window", "5m")

	v.SetDefault("brute_force.max_attempts", 10)
	v.SetDefault("brute_force.window", "30m")

	v.SetDefault("temp_codes.display_timezone", "Asia/Ho_Chi_Minh")
	v.SetDefault("temp_codes.default_description", "Temporary code")
	v.SetDefault("temp_codes.max_uses", 1)
	v.SetDefault("temp_codes.generation_attempts", 10)

	v.SetDefault("audit.mode", "console")

	v.SetDefault("cleanup.enabled", true)
	v.SetDefault("cleanup.run_hour", 2)
	v.SetDefault("cleanup.interval", "24h")
	v.SetDefault("cleanup.activity_retention", "720h")
	v.SetDefault("cleanup.activity_max_per_lock", 200)
	v.SetDefault("cleanup.audit_retention", "720h")
	v.SetDefault("cleanup.audit_max_entries", 1000)

	v.SetDefault("object_store.prefix", "faces")

	v.SetDefault("jobs.stop_timeout", "10s")
	v.SetDefault("jobs.recognizer.command", "python3")
	v.SetDefault("jobs.recognizer.args", []string{"recognizer/recognize.py"})
	v.SetDefault("jobs.trainer.command", "python3")
	v.SetDefault("jobs.trainer.args", []string{"recognizer/train.py"})

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "smartlock-dashboard")
	v.SetDefault("telemetry.sampling_rate", 1.0)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "SMARTLOCK_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}

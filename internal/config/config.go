// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"

	"accessguard/internal/security"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// MetricsAddr is the address of the Prometheus /metrics listener; empty disables it.
	MetricsAddr string `mapstructure:"METRICS_ADDR"`
	// DatabaseURL is the Postgres DSN; empty selects in-memory stores.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisAddr, when set, keeps refresh-token sets in Redis so several instances share them.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the optional Redis AUTH password.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	// JWTAccessSecret signs access tokens with HS256 unless JWTPrivateKey is set.
	JWTAccessSecret string `mapstructure:"JWT_ACCESS_SECRET"`
	// JWTRefreshSecret signs refresh tokens (HS256). Must differ from the access secret.
	JWTRefreshSecret string `mapstructure:"JWT_REFRESH_SECRET"`
	// JWTPrivateKey is an optional PEM private key (RSA or ECDSA) or path to file for access tokens.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "7d").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`

	// Argon2MemoryKiB, Argon2Time and Argon2Threads are the argon2id cost parameters.
	Argon2MemoryKiB uint32 `mapstructure:"ARGON2_MEMORY_KIB"`
	Argon2Time      uint32 `mapstructure:"ARGON2_TIME"`
	Argon2Threads   uint8  `mapstructure:"ARGON2_THREADS"`
	// PasswordMinLength is the hard minimum password length.
	PasswordMinLength int `mapstructure:"PASSWORD_MIN_LENGTH"`
	// PasswordMaxAgeDays is how long a password stays valid after it was changed.
	PasswordMaxAgeDays int `mapstructure:"PASSWORD_MAX_AGE_DAYS"`
	// PasswordHistory is how many previous hashes a new password must not match.
	PasswordHistory int `mapstructure:"PASSWORD_HISTORY"`

	// MaxFailedLogins locks the account when reached.
	MaxFailedLogins int `mapstructure:"MAX_FAILED_LOGINS"`
	// LockoutDuration is how long a locked account stays locked (e.g. "30m").
	LockoutDuration string `mapstructure:"LOCKOUT_DURATION"`
	// LoginRatePerMinute is the per-source login budget.
	LoginRatePerMinute int `mapstructure:"LOGIN_RATE_PER_MINUTE"`

	// MaxSessions is the concurrent-session ceiling per identity.
	MaxSessions int `mapstructure:"MAX_SESSIONS"`
	// SessionSweepInterval, CSRFSweepInterval and MonitorSweepInterval drive the background sweeps.
	SessionSweepInterval string `mapstructure:"SESSION_SWEEP_INTERVAL"`
	CSRFSweepInterval    string `mapstructure:"CSRF_SWEEP_INTERVAL"`
	MonitorSweepInterval string `mapstructure:"MONITOR_SWEEP_INTERVAL"`
	// CSRFTTL is the lifetime of an anti-forgery token (e.g. "60m").
	CSRFTTL string `mapstructure:"CSRF_TTL"`

	// AuditRetentionDays is the audit retention horizon used by auditctl purge.
	AuditRetentionDays int `mapstructure:"AUDIT_RETENTION_DAYS"`
	// ThreatRetention is how long resolved threats are kept (e.g. "720h").
	ThreatRetention string `mapstructure:"THREAT_RETENTION"`
	// BlockCeiling is the total threat count above which a source is blocked.
	BlockCeiling int `mapstructure:"BLOCK_CEILING"`
	// BlockPolicyFile is an optional Rego module replacing the built-in block policy.
	BlockPolicyFile string `mapstructure:"BLOCK_POLICY_FILE"`

	// RolesFile is an optional TOML role table; empty uses the built-in table.
	RolesFile string `mapstructure:"ROLES_FILE"`

	// OTLPEndpoint is the OpenTelemetry collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext OTLP connection.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	// When set, security events are published to SecurityKafkaTopic.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// SecurityKafkaTopic is the Kafka topic for security events.
	SecurityKafkaTopic string `mapstructure:"SECURITY_KAFKA_TOPIC"`
	// Worker-only: KafkaGroupID is the consumer group ID for the security-event worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// Worker-only: LokiURL is where the worker pushes security events (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`

	// TrustedProxies is a comma-separated list of proxy IPs or CIDRs (e.g. "10.0.0.0/8"). Forwarded
	// client addresses (x-forwarded-for, x-real-ip) are honored only from these peers.
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("METRICS_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_ACCESS_SECRET", "")
	v.SetDefault("JWT_REFRESH_SECRET", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "accessguard-auth")
	v.SetDefault("JWT_AUDIENCE", "accessguard-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "7d")
	v.SetDefault("ARGON2_MEMORY_KIB", 64*1024)
	v.SetDefault("ARGON2_TIME", 2)
	v.SetDefault("ARGON2_THREADS", 1)
	v.SetDefault("PASSWORD_MIN_LENGTH", 8)
	v.SetDefault("PASSWORD_MAX_AGE_DAYS", 90)
	v.SetDefault("PASSWORD_HISTORY", 5)
	v.SetDefault("MAX_FAILED_LOGINS", 5)
	v.SetDefault("LOCKOUT_DURATION", "30m")
	v.SetDefault("LOGIN_RATE_PER_MINUTE", 30)
	v.SetDefault("MAX_SESSIONS", 5)
	v.SetDefault("SESSION_SWEEP_INTERVAL", "5m")
	v.SetDefault("CSRF_SWEEP_INTERVAL", "5m")
	v.SetDefault("MONITOR_SWEEP_INTERVAL", "1h")
	v.SetDefault("CSRF_TTL", "60m")
	v.SetDefault("AUDIT_RETENTION_DAYS", 2555)
	v.SetDefault("THREAT_RETENTION", "720h")
	v.SetDefault("BLOCK_CEILING", 50)
	v.SetDefault("BLOCK_POLICY_FILE", "")
	v.SetDefault("ROLES_FILE", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("SECURITY_KAFKA_TOPIC", "accessguard-security")
	v.SetDefault("KAFKA_GROUP_ID", "accessguard-security-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}
	if cfg.Env == "production" && (cfg.JWTRefreshSecret == "" || (cfg.JWTAccessSecret == "" && cfg.JWTPrivateKey == "")) {
		return nil, errors.New("config: JWT secrets must be set when APP_ENV=production")
	}
	if cfg.JWTAccessSecret != "" && cfg.JWTAccessSecret == cfg.JWTRefreshSecret {
		return nil, errors.New("config: JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if cfg.MaxSessions < 1 {
		return nil, errors.New("config: MAX_SESSIONS must be at least 1")
	}
	if cfg.PasswordMinLength < 1 {
		cfg.PasswordMinLength = 8
	}
	if cfg.Argon2Time == 0 || cfg.Argon2MemoryKiB == 0 || cfg.Argon2Threads == 0 {
		return nil, errors.New("config: ARGON2_MEMORY_KIB, ARGON2_TIME and ARGON2_THREADS must be positive")
	}
	if cfg.Argon2MemoryKiB > security.MaxArgon2MemoryKiB || cfg.Argon2Time > security.MaxArgon2Iterations || cfg.Argon2Threads > security.MaxArgon2Parallelism {
		return nil, fmt.Errorf("config: argon2 parameters exceed m=%d,t=%d,p=%d",
			security.MaxArgon2MemoryKiB, security.MaxArgon2Iterations, security.MaxArgon2Parallelism)
	}
	for _, p := range cfg.TrustedProxiesList() {
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			return nil, fmt.Errorf("config: TRUSTED_PROXIES entry %q is not an IP or CIDR", p)
		}
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return security.ParseTTL(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL. Returns 7d if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return security.ParseTTL(c.JWTRefreshTTL, 7*24*time.Hour)
}

// Lockout parses LockoutDuration. Returns 30m if unset or invalid.
func (c *Config) Lockout() time.Duration {
	return security.ParseTTL(c.LockoutDuration, 30*time.Minute)
}

// CSRFTokenTTL parses CSRFTTL. Returns 60m if unset or invalid.
func (c *Config) CSRFTokenTTL() time.Duration {
	return security.ParseTTL(c.CSRFTTL, 60*time.Minute)
}

// SessionSweep parses SessionSweepInterval. Returns 5m if unset or invalid.
func (c *Config) SessionSweep() time.Duration {
	return security.ParseTTL(c.SessionSweepInterval, 5*time.Minute)
}

// CSRFSweep parses CSRFSweepInterval. Returns 5m if unset or invalid.
func (c *Config) CSRFSweep() time.Duration {
	return security.ParseTTL(c.CSRFSweepInterval, 5*time.Minute)
}

// MonitorSweep parses MonitorSweepInterval. Returns 1h if unset or invalid.
func (c *Config) MonitorSweep() time.Duration {
	return security.ParseTTL(c.MonitorSweepInterval, time.Hour)
}

// ResolvedThreatRetention parses ThreatRetention. Returns 30 days if unset or invalid.
func (c *Config) ResolvedThreatRetention() time.Duration {
	return security.ParseTTL(c.ThreatRetention, 30*24*time.Hour)
}

// PasswordPolicy returns the password policy derived from config.
func (c *Config) PasswordPolicy() security.PasswordPolicy {
	return security.PasswordPolicy{
		MinLength:    c.PasswordMinLength,
		MaxAge:       time.Duration(c.PasswordMaxAgeDays) * 24 * time.Hour,
		HistoryDepth: c.PasswordHistory,
	}
}

// Argon2Params returns the argon2id cost parameters derived from config.
func (c *Config) Argon2Params() security.Argon2Params {
	return security.Argon2Params{
		MemoryKiB:   c.Argon2MemoryKiB,
		Iterations:  c.Argon2Time,
		Parallelism: c.Argon2Threads,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if security-event publishing is enabled (non-empty list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

// TrustedProxiesList returns the trusted proxy IPs and CIDRs from the comma-separated config.
func (c *Config) TrustedProxiesList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TrustedProxies)
}

func splitList(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

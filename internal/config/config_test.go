package config

import (
	"os"
	"reflect"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPCAddr != ":8080" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":8080")
	}
	if cfg.JWTIssuer != "accessguard-auth" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "accessguard-auth")
	}
	if cfg.JWTAudience != "accessguard-api" {
		t.Errorf("JWTAudience = %q, want %q", cfg.JWTAudience, "accessguard-api")
	}
	if cfg.AccessTTL() != 15*time.Minute {
		t.Errorf("AccessTTL = %v, want 15m", cfg.AccessTTL())
	}
	if cfg.RefreshTTL() != 7*24*time.Hour {
		t.Errorf("RefreshTTL = %v, want 168h", cfg.RefreshTTL())
	}
	if cfg.MaxFailedLogins != 5 || cfg.Lockout() != 30*time.Minute {
		t.Errorf("lockout = %d/%v, want 5/30m", cfg.MaxFailedLogins, cfg.Lockout())
	}
	if cfg.MaxSessions != 5 {
		t.Errorf("MaxSessions = %d, want 5", cfg.MaxSessions)
	}
	if cfg.CSRFTokenTTL() != time.Hour {
		t.Errorf("CSRFTokenTTL = %v, want 1h", cfg.CSRFTokenTTL())
	}
	if cfg.AuditRetentionDays != 2555 {
		t.Errorf("AuditRetentionDays = %d, want 2555", cfg.AuditRetentionDays)
	}
	if cfg.BlockCeiling != 50 {
		t.Errorf("BlockCeiling = %d, want 50", cfg.BlockCeiling)
	}
	if cfg.SecurityKafkaTopic != "accessguard-security" {
		t.Errorf("SecurityKafkaTopic = %q, want default", cfg.SecurityKafkaTopic)
	}
	p := cfg.Argon2Params()
	if p.MemoryKiB != 65536 || p.Iterations != 2 || p.Parallelism != 1 {
		t.Errorf("Argon2Params = %+v, want 65536/2/1", p)
	}
	pol := cfg.PasswordPolicy()
	if pol.MinLength != 8 || pol.MaxAge != 90*24*time.Hour || pol.HistoryDepth != 5 {
		t.Errorf("PasswordPolicy = %+v", pol)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	t.Setenv("GRPC_ADDR", ":9090")
	t.Setenv("JWT_ISSUER", "custom-issuer")
	t.Setenv("ARGON2_TIME", "4")
	t.Setenv("MAX_SESSIONS", "3")
	t.Setenv("JWT_REFRESH_TTL", "14d")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPCAddr != ":9090" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":9090")
	}
	if cfg.JWTIssuer != "custom-issuer" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "custom-issuer")
	}
	if cfg.Argon2Time != 4 {
		t.Errorf("Argon2Time = %d, want 4", cfg.Argon2Time)
	}
	if cfg.MaxSessions != 3 {
		t.Errorf("MaxSessions = %d, want 3", cfg.MaxSessions)
	}
	if cfg.RefreshTTL() != 14*24*time.Hour {
		t.Errorf("RefreshTTL = %v, want 336h", cfg.RefreshTTL())
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"production without secrets", map[string]string{"APP_ENV": "production"}},
		{"production without refresh secret", map[string]string{"APP_ENV": "production", "JWT_ACCESS_SECRET": "a"}},
		{"identical secrets", map[string]string{"JWT_ACCESS_SECRET": "same", "JWT_REFRESH_SECRET": "same"}},
		{"zero session ceiling", map[string]string{"MAX_SESSIONS": "0"}},
		{"zero argon2 time", map[string]string{"ARGON2_TIME": "0"}},
		{"argon2 memory above bound", map[string]string{"ARGON2_MEMORY_KIB": "4194304"}},
		{"malformed trusted proxy", map[string]string{"TRUSTED_PROXIES": "10.0.0.0/8, proxy.internal"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load()
			if err == nil {
				t.Fatal("Load should return error")
			}
			if cfg != nil {
				t.Error("Load should return nil config on error")
			}
		})
	}
}

func TestLoad_ProductionWithSecrets(t *testing.T) {
	os.Clearenv()
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_ACCESS_SECRET", "access")
	t.Setenv("JWT_REFRESH_SECRET", "refresh")
	if _, err := Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestDurationAccessors_FallBackOnInvalid(t *testing.T) {
	cfg := &Config{
		JWTAccessTTL:         "invalid",
		JWTRefreshTTL:        "-1h",
		LockoutDuration:      "0",
		CSRFTTL:              "",
		SessionSweepInterval: "nope",
		CSRFSweepInterval:    "2m",
		MonitorSweepInterval: "",
		ThreatRetention:      "x",
	}
	checks := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"AccessTTL", cfg.AccessTTL(), 15 * time.Minute},
		{"RefreshTTL", cfg.RefreshTTL(), 7 * 24 * time.Hour},
		{"Lockout", cfg.Lockout(), 30 * time.Minute},
		{"CSRFTokenTTL", cfg.CSRFTokenTTL(), time.Hour},
		{"SessionSweep", cfg.SessionSweep(), 5 * time.Minute},
		{"CSRFSweep", cfg.CSRFSweep(), 2 * time.Minute},
		{"MonitorSweep", cfg.MonitorSweep(), time.Hour},
		{"ResolvedThreatRetention", cfg.ResolvedThreatRetention(), 30 * 24 * time.Hour},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestKafkaBrokersList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"localhost:9092", []string{"localhost:9092"}},
		{" a:1 , b:2 ,, ", []string{"a:1", "b:2"}},
	}
	for _, tt := range tests {
		cfg := &Config{KafkaBrokers: tt.in}
		got := cfg.KafkaBrokersList()
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("KafkaBrokersList(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	var nilCfg *Config
	if nilCfg.KafkaBrokersList() != nil {
		t.Error("nil config should return nil brokers")
	}
}

func TestTrustedProxiesList(t *testing.T) {
	os.Clearenv()
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.10 ,")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"10.0.0.0/8", "192.0.2.10"}
	if got := cfg.TrustedProxiesList(); !reflect.DeepEqual(got, want) {
		t.Errorf("TrustedProxiesList = %v, want %v", got, want)
	}
	if (&Config{}).TrustedProxiesList() != nil {
		t.Error("empty TRUSTED_PROXIES should trust no proxy")
	}
}

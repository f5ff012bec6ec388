package authgrid

import (
	"strings"
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := defaultConfig()
	cfg.Token.AccessSecret = []byte("test-access-secret-0123456789abcdef")
	cfg.Token.RefreshSecret = []byte("test-refresh-secret-0123456789abcde")
	return cfg
}

func TestDefaultConfigNeedsSecrets(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation to fail without signing secrets")
	}

	cfg = validTestConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults plus secrets to validate, got %v", err)
	}
}

func TestConfigValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"short access secret", func(c *Config) { c.Token.AccessSecret = []byte("short") }, "AccessSecret"},
		{"short refresh secret", func(c *Config) { c.Token.RefreshSecret = []byte("short") }, "RefreshSecret"},
		{"identical secrets", func(c *Config) { c.Token.RefreshSecret = c.Token.AccessSecret }, "must differ"},
		{"missing issuer", func(c *Config) { c.Token.Issuer = "" }, "Issuer"},
		{"zero access ttl", func(c *Config) { c.Token.PlatformAccessTTL = 0 }, "PlatformAccessTTL"},
		{"zero refresh ttl", func(c *Config) { c.Token.RefreshTTL = 0 }, "RefreshTTL"},
		{"tiny argon memory", func(c *Config) { c.Password.Memory = 1024 }, "Memory"},
		{"zero reset ttl", func(c *Config) { c.PasswordReset.TTL = 0 }, "PasswordReset TTL"},
		{"zero reset attempts", func(c *Config) { c.PasswordReset.MaxAttempts = 0 }, "MaxAttempts"},
		{"audit without buffer", func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 }, "BufferSize"},
		{"zero min password length", func(c *Config) { c.PlatformPolicy.MinPasswordLength = 0 }, "MinPasswordLength"},
		{"locking without attempts", func(c *Config) { c.PlatformPolicy.MaxLoginAttempts = 0 }, "MaxLoginAttempts"},
		{"locking without duration", func(c *Config) { c.PlatformPolicy.LockoutDuration = 0 }, "LockoutDuration"},
		{"zero session timeout", func(c *Config) { c.PlatformPolicy.SessionTimeout = 0 }, "SessionTimeout"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validTestConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestCloneConfigDetachesSecrets(t *testing.T) {
	cfg := validTestConfig()
	clone := cloneConfig(cfg)

	clone.Token.AccessSecret[0] ^= 0xff
	if cfg.Token.AccessSecret[0] == clone.Token.AccessSecret[0] {
		t.Fatal("expected cloned secret to be an independent copy")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("AUTHGRID_ACCESS_SECRET", "env-access-secret-0123456789abcdef0")
	t.Setenv("AUTHGRID_REFRESH_SECRET", "env-refresh-secret-0123456789abcdef")
	t.Setenv("AUTHGRID_ISSUER", "my-platform")
	t.Setenv("AUTHGRID_REFRESH_TTL", "48h")
	t.Setenv("AUTHGRID_MAX_LOGIN_ATTEMPTS", "3")
	t.Setenv("AUTHGRID_METRICS_ENABLED", "true")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv failed: %v", err)
	}

	if string(cfg.Token.AccessSecret) != "env-access-secret-0123456789abcdef0" {
		t.Fatalf("access secret not taken from env: %q", cfg.Token.AccessSecret)
	}
	if cfg.Token.Issuer != "my-platform" {
		t.Fatalf("issuer not taken from env: %q", cfg.Token.Issuer)
	}
	if cfg.Token.RefreshTTL != 48*time.Hour {
		t.Fatalf("refresh ttl not taken from env: %v", cfg.Token.RefreshTTL)
	}
	if cfg.PlatformPolicy.MaxLoginAttempts != 3 {
		t.Fatalf("max login attempts not taken from env: %d", cfg.PlatformPolicy.MaxLoginAttempts)
	}
	if !cfg.Metrics.Enabled {
		t.Fatal("metrics enable flag not taken from env")
	}

	// Untouched knobs keep their defaults.
	if cfg.Session.RedisPrefix != "ag" {
		t.Fatalf("expected default redis prefix, got %q", cfg.Session.RedisPrefix)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("env config must validate: %v", err)
	}
}

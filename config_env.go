package authgrid

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// envConfig is the flat environment-variable surface. Only deployment-varying
// knobs are exposed; structural defaults stay in defaultConfig.
type envConfig struct {
	AccessSecret  string `env:"AUTHGRID_ACCESS_SECRET"`
	RefreshSecret string `env:"AUTHGRID_REFRESH_SECRET"`
	Issuer        string `env:"AUTHGRID_ISSUER"`
	Audience      string `env:"AUTHGRID_AUDIENCE"`

	PlatformAccessTTL time.Duration `env:"AUTHGRID_PLATFORM_ACCESS_TTL"`
	RefreshTTL        time.Duration `env:"AUTHGRID_REFRESH_TTL"`

	RedisPrefix string `env:"AUTHGRID_REDIS_PREFIX"`

	ResetTTL        time.Duration `env:"AUTHGRID_RESET_TTL"`
	VerificationTTL time.Duration `env:"AUTHGRID_VERIFICATION_TTL"`

	AuditEnabled   bool `env:"AUTHGRID_AUDIT_ENABLED"`
	MetricsEnabled bool `env:"AUTHGRID_METRICS_ENABLED"`

	MaxLoginAttempts int           `env:"AUTHGRID_MAX_LOGIN_ATTEMPTS"`
	LockoutDuration  time.Duration `env:"AUTHGRID_LOCKOUT_DURATION"`
	SessionTimeout   time.Duration `env:"AUTHGRID_SESSION_TIMEOUT"`
	MaxSessions      int           `env:"AUTHGRID_MAX_SESSIONS"`
}

// ConfigFromEnv builds a Config from the environment on top of the defaults.
// A .env file in the working directory is loaded first when present; real
// environment variables win over file entries.
func ConfigFromEnv() (Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		return Config{}, err
	}

	cfg := defaultConfig()

	if ec.AccessSecret != "" {
		cfg.Token.AccessSecret = []byte(ec.AccessSecret)
	}
	if ec.RefreshSecret != "" {
		cfg.Token.RefreshSecret = []byte(ec.RefreshSecret)
	}
	if ec.Issuer != "" {
		cfg.Token.Issuer = ec.Issuer
	}
	if ec.Audience != "" {
		cfg.Token.Audience = ec.Audience
	}
	if ec.PlatformAccessTTL > 0 {
		cfg.Token.PlatformAccessTTL = ec.PlatformAccessTTL
	}
	if ec.RefreshTTL > 0 {
		cfg.Token.RefreshTTL = ec.RefreshTTL
	}
	if ec.RedisPrefix != "" {
		cfg.Session.RedisPrefix = ec.RedisPrefix
	}
	if ec.ResetTTL > 0 {
		cfg.PasswordReset.TTL = ec.ResetTTL
	}
	if ec.VerificationTTL > 0 {
		cfg.EmailVerification.TTL = ec.VerificationTTL
	}
	cfg.Audit.Enabled = ec.AuditEnabled
	cfg.Metrics.Enabled = ec.MetricsEnabled
	if ec.MaxLoginAttempts > 0 {
		cfg.PlatformPolicy.MaxLoginAttempts = ec.MaxLoginAttempts
	}
	if ec.LockoutDuration > 0 {
		cfg.PlatformPolicy.LockoutDuration = ec.LockoutDuration
	}
	if ec.SessionTimeout > 0 {
		cfg.PlatformPolicy.SessionTimeout = ec.SessionTimeout
	}
	if ec.MaxSessions > 0 {
		cfg.PlatformPolicy.MaxSessions = ec.MaxSessions
	}

	return cfg, nil
}

package authgrid

import (
	"bytes"
	"errors"
	"time"
)

// Config is the engine's static configuration. Per-project behavior lives in
// Policy; Config holds what is identical across all projects.
type Config struct {
	Token             TokenConfig
	Session           SessionConfig
	Password          PasswordConfig
	PasswordReset     PasswordResetConfig
	EmailVerification EmailVerificationConfig
	Audit             AuditConfig
	Metrics           MetricsConfig
	Mail              MailConfig

	// PlatformPolicy governs platform-scope principals and is the fallback
	// for any zero field a project policy leaves unset.
	PlatformPolicy Policy

	// LoginHistoryLimit bounds the per-principal login history.
	LoginHistoryLimit int
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig holds the JWT signing material and lifetimes. Access and
// refresh tokens are signed with independent HS256 secrets so a leak of one
// cannot forge the other.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration

	// PlatformAccessTTL is the access-token lifetime at platform scope.
	// Project scopes use their policy's SessionTimeout instead.
	PlatformAccessTTL time.Duration
	RefreshTTL        time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	RedisPrefix string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type PasswordResetConfig struct {
	TTL         time.Duration
	MaxAttempts int
}

type EmailVerificationConfig struct {
	TTL         time.Duration
	MaxAttempts int
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

type MailConfig struct {
	BufferSize  int
	SendTimeout time.Duration
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			Issuer:            "authgrid",
			Audience:          "authgrid",
			Leeway:            30 * time.Second,
			PlatformAccessTTL: 15 * time.Minute,
			RefreshTTL:        7 * 24 * time.Hour,
		},
		Session: SessionConfig{
			RedisPrefix: "ag",
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		PasswordReset: PasswordResetConfig{
			TTL:         1 * time.Hour,
			MaxAttempts: 5,
		},
		EmailVerification: EmailVerificationConfig{
			TTL:         24 * time.Hour,
			MaxAttempts: 5,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Mail: MailConfig{
			BufferSize:  256,
			SendTimeout: 10 * time.Second,
		},
		PlatformPolicy: Policy{
			AllowSignup:              true,
			RequireEmailVerification: false,
			MinPasswordLength:        8,
			MaxLoginAttempts:         5,
			LockoutDuration:          15 * time.Minute,
			EnableAccountLocking:     true,
			SessionTimeout:           15 * time.Minute,
			MaxSessions:              5,
		},
		LoginHistoryLimit: 10,
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.AccessSecret = cloneBytes(cfg.Token.AccessSecret)
	out.Token.RefreshSecret = cloneBytes(cfg.Token.RefreshSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

func (c *Config) Validate() error {
	// Token
	if len(c.Token.AccessSecret) < 32 {
		return errors.New("Token AccessSecret must be >= 32 bytes")
	}
	if len(c.Token.RefreshSecret) < 32 {
		return errors.New("Token RefreshSecret must be >= 32 bytes")
	}
	if bytes.Equal(c.Token.AccessSecret, c.Token.RefreshSecret) {
		return errors.New("Token AccessSecret and RefreshSecret must differ")
	}
	if c.Token.Issuer == "" {
		return errors.New("Token Issuer is required")
	}
	if c.Token.PlatformAccessTTL <= 0 {
		return errors.New("Token PlatformAccessTTL must be > 0")
	}
	if c.Token.RefreshTTL <= 0 {
		return errors.New("Token RefreshTTL must be > 0")
	}
	if c.Token.Leeway < 0 {
		return errors.New("Token Leeway must be >= 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Password Reset
	if c.PasswordReset.TTL <= 0 {
		return errors.New("PasswordReset TTL must be > 0")
	}
	if c.PasswordReset.MaxAttempts <= 0 {
		return errors.New("PasswordReset MaxAttempts must be > 0")
	}

	// Email Verification
	if c.EmailVerification.TTL <= 0 {
		return errors.New("EmailVerification TTL must be > 0")
	}
	if c.EmailVerification.MaxAttempts <= 0 {
		return errors.New("EmailVerification MaxAttempts must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Mail
	if c.Mail.BufferSize < 0 {
		return errors.New("Mail BufferSize must be >= 0")
	}
	if c.Mail.SendTimeout < 0 {
		return errors.New("Mail SendTimeout must be >= 0")
	}

	// Platform policy
	if err := validatePolicy(c.PlatformPolicy); err != nil {
		return err
	}

	if c.LoginHistoryLimit < 0 {
		return errors.New("LoginHistoryLimit must be >= 0")
	}

	return nil
}

func validatePolicy(p Policy) error {
	if p.MinPasswordLength < 1 {
		return errors.New("Policy MinPasswordLength must be >= 1")
	}
	if p.EnableAccountLocking {
		if p.MaxLoginAttempts <= 0 {
			return errors.New("Policy MaxLoginAttempts must be > 0 when locking is enabled")
		}
		if p.LockoutDuration <= 0 {
			return errors.New("Policy LockoutDuration must be > 0 when locking is enabled")
		}
	}
	if p.SessionTimeout <= 0 {
		return errors.New("Policy SessionTimeout must be > 0")
	}
	if p.MaxSessions < 0 {
		return errors.New("Policy MaxSessions must be >= 0")
	}
	return nil
}

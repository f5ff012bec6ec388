package authgrid

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/authgrid/authgrid/internal/lockout"
	"github.com/authgrid/authgrid/password"
	"github.com/authgrid/authgrid/session"
	"github.com/authgrid/authgrid/token"
)

// Builder assembles an Engine. It is single-use: Build may be called once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	credentials CredentialStore
	directory   ProjectDirectory
	mailer      Mailer
	auditSink   AuditSink
	clock       func() time.Time

	built bool
}

// New returns a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the principal persistence backend. Required.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

// WithProjectDirectory sets the API-key resolver. Without it the engine runs
// in platform-only mode and rejects project-scoped operations.
func (b *Builder) WithProjectDirectory(dir ProjectDirectory) *Builder {
	b.directory = dir
	return b
}

// WithMailer enables outbound email (verification, reset, change notices).
// Without it those workflows still succeed; no mail is sent.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the engine's time source. Tests use it to step through
// lockout and expiry windows.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires the stores, and returns a ready
// Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.credentials == nil {
		return nil, errors.New("credential store required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	engine := &Engine{
		config:      cfg,
		clock:       clock,
		credentials: b.credentials,
		directory:   b.directory,
	}

	engine.sessions = session.NewStore(b.redis, cfg.Session.RedisPrefix)
	engine.lockouts = lockout.NewTracker(b.redis, cfg.Session.RedisPrefix+":lk")
	engine.challenges = newChallengeStore(b.redis)
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.mail = newMailDispatcher(b.mailer, cfg.Mail.BufferSize, cfg.Mail.SendTimeout)
	engine.metrics = NewMetrics(cfg.Metrics)

	ph, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwords = ph

	tm, err := token.NewManager(token.Config{
		AccessSecret:  cloneBytes(cfg.Token.AccessSecret),
		RefreshSecret: cloneBytes(cfg.Token.RefreshSecret),
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
		Leeway:        cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}
	engine.tokens = tm

	b.built = true

	return engine, nil
}

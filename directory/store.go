package directory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	authgrid "github.com/authgrid/authgrid"
	"github.com/redis/go-redis/v9"
)

// Store implements [authgrid.ProjectDirectory] on Redis.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a project directory [Store] under the given key prefix.
func New(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "dir"
	}
	return &Store{redis: redisClient, prefix: prefix}
}

func (s *Store) projectKey(id string) string {
	return s.prefix + ":pj:" + id
}

func (s *Store) apiKeyIndex(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return s.prefix + ":ak:" + hex.EncodeToString(sum[:])
}

type record struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`

	AllowSignup              bool `json:"allow_signup"`
	RequireEmailVerification bool `json:"require_email_verification"`

	MinPasswordLength   int  `json:"min_password_length"`
	RequireUppercase    bool `json:"require_uppercase"`
	RequireLowercase    bool `json:"require_lowercase"`
	RequireNumbers      bool `json:"require_numbers"`
	RequireSpecialChars bool `json:"require_special_chars"`

	MaxLoginAttempts     int   `json:"max_login_attempts"`
	LockoutDurationMS    int64 `json:"lockout_duration_ms"`
	EnableAccountLocking bool  `json:"enable_account_locking"`

	SessionTimeoutMS int64 `json:"session_timeout_ms"`
	MaxSessions      int   `json:"max_sessions"`
}

func toRecord(p *authgrid.Project) *record {
	return &record{
		ID:                       p.ID,
		Name:                     p.Name,
		Active:                   p.Active,
		AllowSignup:              p.Policy.AllowSignup,
		RequireEmailVerification: p.Policy.RequireEmailVerification,
		MinPasswordLength:        p.Policy.MinPasswordLength,
		RequireUppercase:         p.Policy.RequireUppercase,
		RequireLowercase:         p.Policy.RequireLowercase,
		RequireNumbers:           p.Policy.RequireNumbers,
		RequireSpecialChars:      p.Policy.RequireSpecialChars,
		MaxLoginAttempts:         p.Policy.MaxLoginAttempts,
		LockoutDurationMS:        p.Policy.LockoutDuration.Milliseconds(),
		EnableAccountLocking:     p.Policy.EnableAccountLocking,
		SessionTimeoutMS:         p.Policy.SessionTimeout.Milliseconds(),
		MaxSessions:              p.Policy.MaxSessions,
	}
}

func (r *record) toProject() *authgrid.Project {
	return &authgrid.Project{
		ID:     r.ID,
		Name:   r.Name,
		Active: r.Active,
		Policy: authgrid.Policy{
			AllowSignup:              r.AllowSignup,
			RequireEmailVerification: r.RequireEmailVerification,
			MinPasswordLength:        r.MinPasswordLength,
			RequireUppercase:         r.RequireUppercase,
			RequireLowercase:         r.RequireLowercase,
			RequireNumbers:           r.RequireNumbers,
			RequireSpecialChars:      r.RequireSpecialChars,
			MaxLoginAttempts:         r.MaxLoginAttempts,
			LockoutDuration:          time.Duration(r.LockoutDurationMS) * time.Millisecond,
			EnableAccountLocking:     r.EnableAccountLocking,
			SessionTimeout:           time.Duration(r.SessionTimeoutMS) * time.Millisecond,
			MaxSessions:              r.MaxSessions,
		},
	}
}

// Register stores the project and binds the given API key to it. Re-registering
// the same project ID overwrites its policy; binding a second key to a project
// keeps both keys valid until Unbind.
func (s *Store) Register(ctx context.Context, project *authgrid.Project, apiKey string) error {
	if project.ID == "" {
		return errors.New("project id is required")
	}
	if apiKey == "" {
		return errors.New("api key is required")
	}

	blob, err := json.Marshal(toRecord(project))
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.projectKey(project.ID), blob, 0)
		pipe.Set(ctx, s.apiKeyIndex(apiKey), project.ID, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", authgrid.ErrTransient, err)
	}
	return nil
}

// Update rewrites the project record without touching key bindings.
func (s *Store) Update(ctx context.Context, project *authgrid.Project) error {
	if project.ID == "" {
		return errors.New("project id is required")
	}

	blob, err := json.Marshal(toRecord(project))
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.projectKey(project.ID), blob, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", authgrid.ErrTransient, err)
	}
	return nil
}

// Unbind revokes one API key. The project record is untouched.
func (s *Store) Unbind(ctx context.Context, apiKey string) error {
	if err := s.redis.Del(ctx, s.apiKeyIndex(apiKey)).Err(); err != nil {
		return fmt.Errorf("%w: %v", authgrid.ErrTransient, err)
	}
	return nil
}

// Deactivate flips the project inactive; its keys keep resolving but the
// engine rejects operations with ErrProjectInactive.
func (s *Store) Deactivate(ctx context.Context, projectID string) error {
	return s.setActive(ctx, projectID, false)
}

// Reactivate flips the project active again.
func (s *Store) Reactivate(ctx context.Context, projectID string) error {
	return s.setActive(ctx, projectID, true)
}

func (s *Store) setActive(ctx context.Context, projectID string, active bool) error {
	rec, err := s.getRecord(ctx, projectID)
	if err != nil {
		return err
	}

	rec.Active = active
	blob, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.projectKey(projectID), blob, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", authgrid.ErrTransient, err)
	}
	return nil
}

// ResolveAPIKey maps an API key to its project. Unknown keys and dangling
// bindings both report ErrProjectNotFound.
func (s *Store) ResolveAPIKey(ctx context.Context, apiKey string) (*authgrid.Project, error) {
	projectID, err := s.redis.Get(ctx, s.apiKeyIndex(apiKey)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, authgrid.ErrProjectNotFound
		}
		return nil, fmt.Errorf("%w: %v", authgrid.ErrTransient, err)
	}

	rec, err := s.getRecord(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return rec.toProject(), nil
}

// Lookup fetches one project by ID.
func (s *Store) Lookup(ctx context.Context, projectID string) (*authgrid.Project, error) {
	rec, err := s.getRecord(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return rec.toProject(), nil
}

func (s *Store) getRecord(ctx context.Context, projectID string) (*record, error) {
	data, err := s.redis.Get(ctx, s.projectKey(projectID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, authgrid.ErrProjectNotFound
		}
		return nil, fmt.Errorf("%w: %v", authgrid.ErrTransient, err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: corrupt project record", authgrid.ErrTransient)
	}
	return &rec, nil
}

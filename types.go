package authgrid

import (
	"context"
	"time"
)

// ScopeKind distinguishes the platform namespace from project namespaces.
type ScopeKind uint8

const (
	// ScopePlatform is the global namespace for platform owner accounts.
	ScopePlatform ScopeKind = iota
	// ScopeProject is the namespace of one project's end-user pool.
	ScopeProject
)

// Scope identifies the namespace a principal or operation belongs to.
// The zero value is the platform scope.
type Scope struct {
	Kind      ScopeKind
	ProjectID string
}

// PlatformScope returns the platform namespace scope.
func PlatformScope() Scope {
	return Scope{Kind: ScopePlatform}
}

// ProjectScope returns the namespace scope of the given project.
func ProjectScope(projectID string) Scope {
	return Scope{Kind: ScopeProject, ProjectID: projectID}
}

// Key returns the canonical storage namespace for the scope. Platform
// principals share one global namespace; project principals are namespaced
// by project ID, which is what makes identity uniqueness per-project.
func (s Scope) Key() string {
	if s.Kind == ScopeProject {
		return "proj:" + s.ProjectID
	}
	return "platform"
}

// AccountStatus is the lifecycle state of a principal.
type AccountStatus uint8

const (
	// StatusActive allows all operations.
	StatusActive AccountStatus = iota
	// StatusInactive blocks authentication with ErrAccountDeactivated.
	StatusInactive
	// StatusSuspended blocks authentication with ErrAccountSuspended,
	// optionally until a timestamp.
	StatusSuspended
)

// VerificationState tracks the email verification lifecycle.
type VerificationState uint8

const (
	// VerificationUnverified means no challenge has been issued.
	VerificationUnverified VerificationState = iota
	// VerificationPending means a challenge is outstanding.
	VerificationPending
	// VerificationVerified means the address has been confirmed.
	VerificationVerified
)

// Principal is the unified authenticatable identity: a platform owner or a
// project-scoped end user, distinguished only by Scope.
type Principal struct {
	ID       string
	Scope    Scope
	Email    string
	Username string

	PasswordHash string

	Status         AccountStatus
	SuspendedUntil time.Time // zero = indefinite when Status is Suspended

	Verification VerificationState

	Name string

	Deleted   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Policy is the per-project (or platform-default) configuration controlling
// signup, password, lockout, and session rules. It is read once per operation
// and applied consistently for that operation's duration.
type Policy struct {
	AllowSignup              bool
	RequireEmailVerification bool

	MinPasswordLength   int
	RequireUppercase    bool
	RequireLowercase    bool
	RequireNumbers      bool
	RequireSpecialChars bool

	MaxLoginAttempts     int
	LockoutDuration      time.Duration
	EnableAccountLocking bool

	SessionTimeout time.Duration // access-token lifetime
	MaxSessions    int
}

// Project is the resolution result for an API key.
type Project struct {
	ID     string
	Name   string
	Policy Policy
	Active bool
}

// ProjectDirectory resolves project API keys to projects and their policies.
// The engine treats it as a pure lookup dependency.
type ProjectDirectory interface {
	// ResolveAPIKey returns the project owning the key, or an error wrapping
	// ErrProjectNotFound when the key is unknown.
	ResolveAPIKey(ctx context.Context, apiKey string) (*Project, error)
	// Lookup returns the project by ID, or an error wrapping
	// ErrProjectNotFound.
	Lookup(ctx context.Context, projectID string) (*Project, error)
}

// TemplateKind selects the outbound email template.
type TemplateKind string

const (
	// TemplateVerifyEmail carries an email verification challenge.
	TemplateVerifyEmail TemplateKind = "verify_email"
	// TemplatePasswordReset carries a password reset challenge.
	TemplatePasswordReset TemplateKind = "password_reset"
	// TemplatePasswordChanged notifies that the password was changed.
	TemplatePasswordChanged TemplateKind = "password_changed"
)

// Mail is one outbound email request handed to the Mailer collaborator.
type Mail struct {
	To       string
	Template TemplateKind
	Params   map[string]string
}

// Mailer delivers email. The engine only triggers best-effort async sends and
// tolerates delivery failure; implementations must not assume retries.
type Mailer interface {
	Send(ctx context.Context, mail Mail) error
}

// LoginRecord is one entry of a principal's bounded login history.
type LoginRecord struct {
	At        time.Time `json:"at"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	SessionID string    `json:"session_id"`
}

// ProfileUpdate carries the mutable profile fields. Nil pointers leave the
// field unchanged.
type ProfileUpdate struct {
	Name     *string
	Username *string
}

// CredentialStore persists principal records. Implementations must enforce
// per-scope identity uniqueness on Create and bump UpdatedAt on every
// mutation. Principals are tombstoned, never hard-deleted.
type CredentialStore interface {
	Create(ctx context.Context, p *Principal) error
	FindByIdentifier(ctx context.Context, scope Scope, identifier string) (*Principal, error)
	FindByID(ctx context.Context, id string) (*Principal, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	SetVerification(ctx context.Context, id string, state VerificationState) error
	UpdateStatus(ctx context.Context, id string, status AccountStatus, suspendedUntil time.Time) error
	UpdateProfile(ctx context.Context, id string, update ProfileUpdate) error
	AppendLoginRecord(ctx context.Context, id string, rec LoginRecord, limit int) error
	LoginHistory(ctx context.Context, id string) ([]LoginRecord, error)
	Tombstone(ctx context.Context, id string) error
}

// TokenPair is one issued access/refresh grant.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// SignupResult is returned by [Engine.Signup].
type SignupResult struct {
	Principal *Principal
	Tokens    TokenPair
	// NeedsVerification is true when the policy requires email verification
	// before the principal may log in.
	NeedsVerification bool
}

// LoginResult is returned by [Engine.Login].
type LoginResult struct {
	Principal *Principal
	Tokens    TokenPair
	SessionID string
}

// SessionInfo is a read-only view of one live session.
type SessionInfo struct {
	SessionID    string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastActiveAt time.Time
	IP           string
	UserAgent    string
}

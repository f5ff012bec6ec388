package authgrid

import "errors"

// Error taxonomy for workflow outcomes. All values are terminal, user-facing
// results; only ErrTransient is safe for the caller to retry. The HTTP shell
// is expected to map each sentinel 1:1 to a stable status code.
var (
	// ErrInvalidCredentials covers both an unknown identifier and a wrong
	// password so that responses never reveal account existence.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDeactivated rejects operations on an Inactive principal.
	ErrAccountDeactivated = errors.New("account deactivated")
	// ErrAccountSuspended rejects operations on a Suspended principal.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrAccountLocked rejects login while a failed-attempt lock is active,
	// regardless of whether the submitted password is correct.
	ErrAccountLocked = errors.New("account locked")
	// ErrEmailNotVerified blocks login until the pending verification
	// challenge is completed.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrDuplicateIdentity rejects signup when the email or username is
	// already taken within the target scope.
	ErrDuplicateIdentity = errors.New("identity already exists in scope")
	// ErrWeakPassword rejects passwords failing the policy's length or
	// complexity requirements.
	ErrWeakPassword = errors.New("password does not meet policy")
	// ErrPasswordReuse rejects a password change to the current password.
	ErrPasswordReuse = errors.New("new password must differ from current password")
	// ErrSignupDisabled rejects signup when the project policy disallows it.
	ErrSignupDisabled = errors.New("signup disabled for project")
	// ErrProjectNotFound means the API key resolved to no project.
	ErrProjectNotFound = errors.New("project not found")
	// ErrProjectInactive means the API key resolved to a disabled project.
	ErrProjectInactive = errors.New("project inactive")
	// ErrInvalidToken uniformly covers malformed, expired, wrong-secret and
	// wrong-type tokens as well as dead sessions; the distinction is never
	// surfaced to callers.
	ErrInvalidToken = errors.New("invalid token")
	// ErrPrincipalNotFound is returned by lookups that are allowed to reveal
	// existence (profile access by ID), never by login.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrTransient wraps storage and network failures. It must never be
	// interpreted as an authentication failure.
	ErrTransient = errors.New("transient backend failure")
	// ErrEngineNotReady is returned when a required collaborator is missing.
	ErrEngineNotReady = errors.New("engine not initialized")
)

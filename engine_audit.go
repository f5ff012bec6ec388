package authgrid

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginLocked           = "login_locked"
	auditEventRefreshSuccess        = "refresh_success"
	auditEventRefreshInvalid        = "refresh_invalid"
	auditEventSignupSuccess         = "signup_success"
	auditEventSignupFailure         = "signup_failure"
	auditEventSignupDuplicate       = "signup_duplicate"
	auditEventPasswordChangeSuccess = "password_change_success"
	auditEventPasswordChangeFailure = "password_change_failure"
	auditEventPasswordResetRequest  = "password_reset_request"
	auditEventPasswordResetConfirm  = "password_reset_confirm"
	auditEventVerificationRequest   = "email_verification_request"
	auditEventVerificationConfirm   = "email_verification_confirm"
	auditEventProfileUpdated        = "profile_updated"
	auditEventAccountStatusChange   = "account_status_change"
	auditEventAccountDeleted        = "account_deleted"
	auditEventLogoutSession         = "logout_session"
	auditEventLogoutAll             = "logout_all"
	auditEventSessionEvicted        = "session_evicted"
	auditEventProjectRejected       = "project_rejected"
)

// AuditErrorCode is the stable error vocabulary used in audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrAccountDeactivated AuditErrorCode = "account_deactivated"
	auditErrAccountSuspended   AuditErrorCode = "account_suspended"
	auditErrEmailNotVerified   AuditErrorCode = "email_not_verified"
	auditErrDuplicate          AuditErrorCode = "duplicate_identity"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrSignupDisabled     AuditErrorCode = "signup_disabled"
	auditErrProjectNotFound    AuditErrorCode = "project_not_found"
	auditErrProjectInactive    AuditErrorCode = "project_inactive"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrPrincipalNotFound  AuditErrorCode = "principal_not_found"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	principalID string,
	scope Scope,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:   time.Now().UTC(),
		EventType:   eventType,
		PrincipalID: principalID,
		Scope:       scope.Key(),
		SessionID:   sessionID,
		IP:          clientIPFromContext(ctx),
		Success:     success,
		Metadata:    metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountDeactivated):
		return auditErrAccountDeactivated
	case errors.Is(err, ErrAccountSuspended):
		return auditErrAccountSuspended
	case errors.Is(err, ErrEmailNotVerified):
		return auditErrEmailNotVerified
	case errors.Is(err, ErrDuplicateIdentity):
		return auditErrDuplicate
	case errors.Is(err, ErrWeakPassword):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrSignupDisabled):
		return auditErrSignupDisabled
	case errors.Is(err, ErrProjectNotFound):
		return auditErrProjectNotFound
	case errors.Is(err, ErrProjectInactive):
		return auditErrProjectInactive
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrPrincipalNotFound):
		return auditErrPrincipalNotFound
	case errors.Is(err, ErrTransient):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

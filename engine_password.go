package authgrid

import (
	"context"
	"fmt"

	"github.com/authgrid/authgrid/password"
)

// ChangePassword replaces a principal's password after re-proving the current
// one. On success every session of the principal is revoked; the caller must
// log in again.
func (e *Engine) ChangePassword(ctx context.Context, scope Scope, principalID, oldPassword, newPassword string) error {
	if e == nil || e.credentials == nil {
		return ErrEngineNotReady
	}

	policy, err := e.policyFor(ctx, scope)
	if err != nil {
		return err
	}

	principal, err := e.credentials.FindByID(ctx, principalID)
	if err != nil {
		return err
	}
	if statusErr := statusError(principal, e.now()); statusErr != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, principalID, scope, "", statusErr, nil)
		return statusErr
	}

	ok, verr := e.passwords.Verify(oldPassword, principal.PasswordHash)
	if verr != nil || !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, principalID, scope, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "invalid_old_password"}
		})
		return ErrInvalidCredentials
	}
	oldPassword = ""

	if !password.CheckRules(newPassword, rulesFromPolicy(policy)) {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, principalID, scope, "", ErrWeakPassword, nil)
		return ErrWeakPassword
	}

	if same, verr := e.passwords.Verify(newPassword, principal.PasswordHash); verr == nil && same {
		e.metricInc(MetricPasswordChangeReuseRejected)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, principalID, scope, "", ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	hash, err := e.passwords.Hash(newPassword)
	if err != nil {
		return err
	}
	newPassword = ""

	if err := e.credentials.UpdatePasswordHash(ctx, principalID, hash); err != nil {
		return err
	}

	if err := e.sessions.RevokeAll(ctx, scope.Key(), principalID); err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	e.mail.Enqueue(Mail{
		To:       principal.Email,
		Template: TemplatePasswordChanged,
		Params:   map[string]string{"name": principal.Name},
	})

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, principalID, scope, "", nil, nil)
	return nil
}

package authgrid

import (
	"context"
	"errors"
	"fmt"

	"github.com/authgrid/authgrid/internal"
	"github.com/authgrid/authgrid/password"
)

// ForgotPassword issues a password reset challenge for the identifier. The
// response is identical whether or not the account exists; only transient
// backend failures surface.
func (e *Engine) ForgotPassword(ctx context.Context, scope Scope, identifier string) error {
	if e == nil || e.credentials == nil {
		return ErrEngineNotReady
	}

	principal, err := e.credentials.FindByIdentifier(ctx, scope, identifier)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil
		}
		return err
	}
	if statusError(principal, e.now()) != nil {
		return nil
	}

	challengeID, err := internal.NewChallengeID()
	if err != nil {
		return err
	}
	secret, err := internal.NewChallengeSecret()
	if err != nil {
		return err
	}

	record := &challengeRecord{
		PrincipalID: principal.ID,
		SecretHash:  internal.HashChallengeSecret(secret),
		ExpiresAt:   e.now().Add(e.config.PasswordReset.TTL).Unix(),
		Kind:        challengeReset,
	}

	if err := e.challenges.Save(ctx, challengeReset, scope.Key(), challengeID.String(), record, e.config.PasswordReset.TTL); err != nil {
		return ErrTransient
	}

	e.mail.Enqueue(Mail{
		To:       principal.Email,
		Template: TemplatePasswordReset,
		Params: map[string]string{
			"token": internal.EncodeChallengeToken(challengeID, secret),
			"name":  principal.Name,
		},
	})

	e.metricInc(MetricResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, principal.ID, scope, "", nil, nil)
	return nil
}

// ResetPassword redeems a reset token and replaces the password. The token is
// single use; on success every session of the principal is revoked and any
// lockout cleared.
func (e *Engine) ResetPassword(ctx context.Context, scope Scope, challengeToken, newPassword string) error {
	if e == nil || e.credentials == nil {
		return ErrEngineNotReady
	}

	policy, err := e.policyFor(ctx, scope)
	if err != nil {
		return err
	}

	challengeID, secret, err := internal.DecodeChallengeToken(challengeToken)
	if err != nil {
		e.metricInc(MetricResetConfirmFailure)
		return ErrInvalidToken
	}

	// Reject a weak password before touching the challenge so a legitimate
	// holder keeps the token through a validation failure.
	if !password.CheckRules(newPassword, rulesFromPolicy(policy)) {
		e.metricInc(MetricResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", scope, "", ErrWeakPassword, nil)
		return ErrWeakPassword
	}

	// Verify burns attempts on a wrong secret but leaves a matching record in
	// place; the challenge is only deleted once the reset went through.
	record, err := e.challenges.Verify(
		ctx,
		challengeReset,
		scope.Key(),
		challengeID.String(),
		internal.HashChallengeSecret(secret),
		e.config.PasswordReset.MaxAttempts,
	)
	if err != nil {
		if errors.Is(err, errChallengeRedisUnavailable) {
			return ErrTransient
		}
		e.metricInc(MetricResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", scope, "", ErrInvalidToken, nil)
		return ErrInvalidToken
	}

	principal, err := e.credentials.FindByID(ctx, record.PrincipalID)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			e.metricInc(MetricResetConfirmFailure)
			return ErrInvalidToken
		}
		return err
	}

	if same, verr := e.passwords.Verify(newPassword, principal.PasswordHash); verr == nil && same {
		e.metricInc(MetricResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, principal.ID, scope, "", ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	hash, err := e.passwords.Hash(newPassword)
	if err != nil {
		return err
	}
	newPassword = ""

	if err := e.credentials.UpdatePasswordHash(ctx, principal.ID, hash); err != nil {
		return err
	}

	if err := e.challenges.Delete(ctx, challengeReset, scope.Key(), challengeID.String()); err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	// A reset proves control of the mailbox; stale lockout state and every
	// outstanding session die with the old password.
	if err := e.lockouts.Reset(ctx, scope.Key(), principal.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	if err := e.sessions.RevokeAll(ctx, scope.Key(), principal.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	e.mail.Enqueue(Mail{
		To:       principal.Email,
		Template: TemplatePasswordChanged,
		Params:   map[string]string{"name": principal.Name},
	})

	e.metricInc(MetricResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, principal.ID, scope, "", nil, nil)
	return nil
}

package authgrid

import (
	"context"
	"errors"

	"github.com/authgrid/authgrid/internal"
)

// issueVerificationChallenge mints a verification token, stores its hash, and
// mails the opaque token to the principal.
func (e *Engine) issueVerificationChallenge(ctx context.Context, scope Scope, principal *Principal) error {
	challengeID, err := internal.NewChallengeID()
	if err != nil {
		return err
	}
	secret, err := internal.NewChallengeSecret()
	if err != nil {
		return err
	}

	now := e.now()
	record := &challengeRecord{
		PrincipalID: principal.ID,
		SecretHash:  internal.HashChallengeSecret(secret),
		ExpiresAt:   now.Add(e.config.EmailVerification.TTL).Unix(),
		Kind:        challengeVerifyEmail,
	}

	if err := e.challenges.Save(ctx, challengeVerifyEmail, scope.Key(), challengeID.String(), record, e.config.EmailVerification.TTL); err != nil {
		return ErrTransient
	}

	e.mail.Enqueue(Mail{
		To:       principal.Email,
		Template: TemplateVerifyEmail,
		Params: map[string]string{
			"token": internal.EncodeChallengeToken(challengeID, secret),
			"name":  principal.Name,
		},
	})

	e.metricInc(MetricVerificationRequest)
	e.emitAudit(ctx, auditEventVerificationRequest, true, principal.ID, scope, "", nil, nil)
	return nil
}

// VerifyEmail redeems a verification token and marks the principal verified.
// The token is single use; any failure burns an attempt and reports
// ErrInvalidToken.
func (e *Engine) VerifyEmail(ctx context.Context, scope Scope, challengeToken string) error {
	if e == nil || e.credentials == nil {
		return ErrEngineNotReady
	}

	challengeID, secret, err := internal.DecodeChallengeToken(challengeToken)
	if err != nil {
		e.metricInc(MetricVerificationFailure)
		return ErrInvalidToken
	}

	record, err := e.challenges.Consume(
		ctx,
		challengeVerifyEmail,
		scope.Key(),
		challengeID.String(),
		internal.HashChallengeSecret(secret),
		e.config.EmailVerification.MaxAttempts,
	)
	if err != nil {
		if errors.Is(err, errChallengeRedisUnavailable) {
			return ErrTransient
		}
		e.metricInc(MetricVerificationFailure)
		e.emitAudit(ctx, auditEventVerificationConfirm, false, "", scope, "", ErrInvalidToken, nil)
		return ErrInvalidToken
	}

	if err := e.credentials.SetVerification(ctx, record.PrincipalID, VerificationVerified); err != nil {
		return err
	}

	e.metricInc(MetricVerificationSuccess)
	e.emitAudit(ctx, auditEventVerificationConfirm, true, record.PrincipalID, scope, "", nil, nil)
	return nil
}

// ResendVerification issues a fresh verification challenge. It reveals
// nothing about account existence: unknown identifiers and already-verified
// accounts both return success without sending mail.
func (e *Engine) ResendVerification(ctx context.Context, scope Scope, identifier string) error {
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
	if principal.Verification == VerificationVerified {
		return nil
	}

	if principal.Verification != VerificationPending {
		if err := e.credentials.SetVerification(ctx, principal.ID, VerificationPending); err != nil {
			return err
		}
	}

	return e.issueVerificationChallenge(ctx, scope, principal)
}

package authgrid

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/authgrid/authgrid/password"
)

// SignupRequest carries the inputs of one signup attempt.
type SignupRequest struct {
	Email    string
	Username string
	Password string
	Name     string
}

// Signup registers a new principal in the scope and logs it in. When the
// policy requires email verification a challenge is mailed out and the result
// flags NeedsVerification; the token pair is issued either way, but Login
// stays refused until the challenge is redeemed.
func (e *Engine) Signup(ctx context.Context, scope Scope, req SignupRequest) (*SignupResult, error) {
	if e == nil || e.credentials == nil {
		return nil, ErrEngineNotReady
	}

	policy, err := e.policyFor(ctx, scope)
	if err != nil {
		return nil, err
	}

	if !policy.AllowSignup {
		e.metricInc(MetricSignupDisabled)
		e.emitAudit(ctx, auditEventSignupFailure, false, "", scope, "", ErrSignupDisabled, nil)
		return nil, ErrSignupDisabled
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		e.emitAudit(ctx, auditEventSignupFailure, false, "", scope, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "invalid_email"}
		})
		return nil, ErrInvalidCredentials
	}

	if !password.CheckRules(req.Password, rulesFromPolicy(policy)) {
		e.emitAudit(ctx, auditEventSignupFailure, false, "", scope, "", ErrWeakPassword, nil)
		return nil, ErrWeakPassword
	}

	hash, err := e.passwords.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	req.Password = ""

	// Without a verification requirement the account counts as verified, so
	// tightening the policy later never locks out existing principals.
	verification := VerificationVerified
	if policy.RequireEmailVerification {
		verification = VerificationPending
	}

	principal := &Principal{
		ID:           uuid.NewString(),
		Scope:        scope,
		Email:        email,
		Username:     strings.TrimSpace(req.Username),
		PasswordHash: hash,
		Status:       StatusActive,
		Verification: verification,
		Name:         strings.TrimSpace(req.Name),
	}

	if err := e.credentials.Create(ctx, principal); err != nil {
		if errors.Is(err, ErrDuplicateIdentity) {
			e.metricInc(MetricSignupDuplicate)
			e.emitAudit(ctx, auditEventSignupDuplicate, false, "", scope, "", ErrDuplicateIdentity, nil)
			return nil, ErrDuplicateIdentity
		}
		return nil, err
	}

	result := &SignupResult{
		Principal:         principal,
		NeedsVerification: policy.RequireEmailVerification,
	}

	if policy.RequireEmailVerification {
		// Challenge issuance is best effort; the account exists either way
		// and ResendVerification can recover a lost mail.
		_ = e.issueVerificationChallenge(ctx, scope, principal)
	}

	tokens, _, err := e.establishSession(ctx, principal, scope, policy)
	if err != nil {
		return nil, err
	}
	result.Tokens = tokens

	e.metricInc(MetricSignupSuccess)
	e.emitAudit(ctx, auditEventSignupSuccess, true, principal.ID, scope, "", nil, nil)

	principal.PasswordHash = ""
	return result, nil
}

func rulesFromPolicy(policy Policy) password.Rules {
	return password.Rules{
		MinLength:           policy.MinPasswordLength,
		RequireUppercase:    policy.RequireUppercase,
		RequireLowercase:    policy.RequireLowercase,
		RequireNumbers:      policy.RequireNumbers,
		RequireSpecialChars: policy.RequireSpecialChars,
	}
}

package authgrid

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/authgrid/authgrid/internal"
	"github.com/authgrid/authgrid/internal/lockout"
	"github.com/authgrid/authgrid/password"
	"github.com/authgrid/authgrid/session"
	"github.com/authgrid/authgrid/token"
)

// Engine is the authentication engine. Construct it with a Builder; all
// methods are safe for concurrent use once built.
type Engine struct {
	config Config
	clock  func() time.Time

	credentials CredentialStore
	directory   ProjectDirectory

	sessions   *session.Store
	lockouts   *lockout.Tracker
	challenges *challengeStore
	tokens     *token.Manager
	passwords  *password.Hasher

	audit   *auditDispatcher
	mail    *mailDispatcher
	metrics *Metrics
}

// Close drains and stops the audit and mail dispatchers. The engine must not
// be used after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	if e.mail != nil {
		e.mail.Close()
	}
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MailDropped() uint64 {
	if e == nil || e.mail == nil {
		return 0
	}
	return e.mail.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

/*
====================================
SCOPE AND POLICY RESOLUTION
====================================
*/

// ResolveScope maps an API key to its operation scope. An empty key is the
// platform scope. Inactive projects resolve but are rejected here, so no
// workflow ever runs against a disabled project.
func (e *Engine) ResolveScope(ctx context.Context, apiKey string) (Scope, error) {
	if apiKey == "" {
		return PlatformScope(), nil
	}
	if e.directory == nil {
		return Scope{}, ErrEngineNotReady
	}

	project, err := e.directory.ResolveAPIKey(ctx, apiKey)
	if err != nil {
		e.metricInc(MetricProjectRejected)
		e.emitAudit(ctx, auditEventProjectRejected, false, "", PlatformScope(), "", err, nil)
		return Scope{}, err
	}
	if !project.Active {
		e.metricInc(MetricProjectRejected)
		e.emitAudit(ctx, auditEventProjectRejected, false, "", ProjectScope(project.ID), "", ErrProjectInactive, nil)
		return Scope{}, ErrProjectInactive
	}

	return ProjectScope(project.ID), nil
}

// policyFor returns the effective policy for a scope. Project policies are
// read once per operation; zero-valued numeric fields fall back to the
// platform policy so a sparse project record still behaves sanely.
func (e *Engine) policyFor(ctx context.Context, scope Scope) (Policy, error) {
	if scope.Kind == ScopePlatform {
		return e.config.PlatformPolicy, nil
	}
	if e.directory == nil {
		return Policy{}, ErrEngineNotReady
	}

	project, err := e.directory.Lookup(ctx, scope.ProjectID)
	if err != nil {
		return Policy{}, err
	}
	if !project.Active {
		return Policy{}, ErrProjectInactive
	}

	return e.normalizePolicy(project.Policy), nil
}

func (e *Engine) normalizePolicy(p Policy) Policy {
	base := e.config.PlatformPolicy
	if p.MinPasswordLength <= 0 {
		p.MinPasswordLength = base.MinPasswordLength
	}
	if p.MaxLoginAttempts <= 0 {
		p.MaxLoginAttempts = base.MaxLoginAttempts
	}
	if p.LockoutDuration <= 0 {
		p.LockoutDuration = base.LockoutDuration
	}
	if p.SessionTimeout <= 0 {
		p.SessionTimeout = base.SessionTimeout
	}
	if p.MaxSessions <= 0 {
		p.MaxSessions = base.MaxSessions
	}
	return p
}

func scopeTag(scope Scope) string {
	if scope.Kind == ScopeProject {
		return token.ScopeTagProject
	}
	return token.ScopeTagPlatform
}

func scopeFromClaims(claims *token.Claims) Scope {
	if claims.ScopeTag == token.ScopeTagProject {
		return ProjectScope(claims.ProjectID)
	}
	return PlatformScope()
}

// accessTTL is the access-token lifetime for a scope: project tokens live for
// the project's session timeout, platform tokens for the fixed platform TTL.
func (e *Engine) accessTTL(scope Scope, policy Policy) time.Duration {
	if scope.Kind == ScopeProject {
		return policy.SessionTimeout
	}
	return e.config.Token.PlatformAccessTTL
}

// statusError maps a principal's lifecycle state to its login error. An
// expired suspension counts as active; the stored status heals lazily on the
// next successful operation.
func statusError(p *Principal, now time.Time) error {
	switch p.Status {
	case StatusInactive:
		return ErrAccountDeactivated
	case StatusSuspended:
		if !p.SuspendedUntil.IsZero() && !p.SuspendedUntil.After(now) {
			return nil
		}
		return ErrAccountSuspended
	default:
		return nil
	}
}

/*
====================================
LOGIN
====================================
*/

// Login authenticates an identifier/password pair within a scope. The gates
// run in a fixed order: account status first (a deactivated or suspended
// account refuses before the password is even checked and records no lockout
// failure), then the lock, then password, then the verification requirement.
// Unknown identifiers and wrong passwords are indistinguishable to the caller.
func (e *Engine) Login(ctx context.Context, scope Scope, identifier, plaintext string) (*LoginResult, error) {
	if e == nil || e.credentials == nil {
		return nil, ErrEngineNotReady
	}
	started := e.now()

	policy, err := e.policyFor(ctx, scope)
	if err != nil {
		return nil, err
	}

	if identifier == "" || plaintext == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", scope, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "empty_input"}
		})
		return nil, ErrInvalidCredentials
	}

	principal, err := e.credentials.FindByIdentifier(ctx, scope, identifier)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", scope, "", ErrInvalidCredentials, func() map[string]string {
				return map[string]string{"reason": "unknown_identifier"}
			})
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	now := e.now()
	scopeKey := scope.Key()

	if statusErr := statusError(principal, now); statusErr != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, principal.ID, scope, "", statusErr, func() map[string]string {
			return map[string]string{"reason": "account_status"}
		})
		return nil, statusErr
	}

	if policy.EnableAccountLocking {
		state, err := e.lockouts.Gate(ctx, scopeKey, principal.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransient, err)
		}
		if state.Locked(now) {
			e.metricInc(MetricLoginLocked)
			e.emitAudit(ctx, auditEventLoginLocked, false, principal.ID, scope, "", ErrAccountLocked, nil)
			return nil, ErrAccountLocked
		}
	}

	ok, verr := e.passwords.Verify(plaintext, principal.PasswordHash)
	if verr != nil || !ok {
		state, ferr := e.lockouts.RecordFailure(ctx, scopeKey, principal.ID, lockout.Params{
			Enabled:     policy.EnableAccountLocking,
			MaxAttempts: policy.MaxLoginAttempts,
			Duration:    policy.LockoutDuration,
		}, now)
		if ferr != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransient, ferr)
		}

		e.metricInc(MetricLoginFailure)
		if state.Locked(now) {
			e.metricInc(MetricLoginLocked)
			e.emitAudit(ctx, auditEventLoginLocked, false, principal.ID, scope, "", ErrAccountLocked, func() map[string]string {
				return map[string]string{"attempts": fmt.Sprintf("%d", state.Attempts)}
			})
		} else {
			e.emitAudit(ctx, auditEventLoginFailure, false, principal.ID, scope, "", ErrInvalidCredentials, func() map[string]string {
				return map[string]string{"reason": "password_mismatch"}
			})
		}
		return nil, ErrInvalidCredentials
	}
	plaintext = ""

	// The correct password clears the failure counter even when the
	// verification gate below still refuses the login.
	if err := e.lockouts.Reset(ctx, scopeKey, principal.ID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	if policy.RequireEmailVerification && principal.Verification != VerificationVerified {
		e.metricInc(MetricLoginUnverified)
		e.emitAudit(ctx, auditEventLoginFailure, false, principal.ID, scope, "", ErrEmailNotVerified, func() map[string]string {
			return map[string]string{"reason": "unverified_email"}
		})
		return nil, ErrEmailNotVerified
	}

	tokens, sessionID, err := e.establishSession(ctx, principal, scope, policy)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, principal.ID, scope, "", err, func() map[string]string {
			return map[string]string{"reason": "session_creation"}
		})
		return nil, err
	}

	if e.config.LoginHistoryLimit > 0 {
		rec := LoginRecord{
			At:        now.UTC(),
			IP:        clientIPFromContext(ctx),
			UserAgent: userAgentFromContext(ctx),
			SessionID: sessionID,
		}
		// History is advisory; a write failure does not fail the login.
		_ = e.credentials.AppendLoginRecord(ctx, principal.ID, rec, e.config.LoginHistoryLimit)
	}

	e.metricInc(MetricLoginSuccess)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricLoginLatency, e.now().Sub(started))
	}
	e.emitAudit(ctx, auditEventLoginSuccess, true, principal.ID, scope, sessionID, nil, nil)

	principal.PasswordHash = ""
	return &LoginResult{
		Principal: principal,
		Tokens:    tokens,
		SessionID: sessionID,
	}, nil
}

// establishSession mints a session ID and token pair and registers the
// session, evicting the oldest sessions beyond the policy cap.
func (e *Engine) establishSession(ctx context.Context, principal *Principal, scope Scope, policy Policy) (TokenPair, string, error) {
	now := e.now()

	sessionID, err := internal.NewSessionID()
	if err != nil {
		return TokenPair{}, "", err
	}

	tag := scopeTag(scope)
	access, err := e.tokens.IssueAccess(principal.ID, tag, scope.ProjectID, sessionID, e.accessTTL(scope, policy), now)
	if err != nil {
		return TokenPair{}, "", err
	}
	refresh, err := e.tokens.IssueRefresh(principal.ID, tag, scope.ProjectID, sessionID, e.config.Token.RefreshTTL, now)
	if err != nil {
		return TokenPair{}, "", err
	}

	refreshHash := internal.HashTokenString(refresh)
	sess := &session.Session{
		SessionID:    sessionID,
		PrincipalID:  principal.ID,
		ScopeTag:     tag,
		ProjectID:    scope.ProjectID,
		RefreshHash:  refreshHash[:],
		IP:           clientIPFromContext(ctx),
		UserAgent:    userAgentFromContext(ctx),
		Active:       true,
		CreatedAt:    now.Unix(),
		ExpiresAt:    now.Add(e.config.Token.RefreshTTL).Unix(),
		LastActiveAt: now.Unix(),
	}

	evicted, err := e.sessions.Add(ctx, scope.Key(), sess, e.config.Token.RefreshTTL, policy.MaxSessions)
	if err != nil {
		return TokenPair{}, "", fmt.Errorf("%w: %v", ErrTransient, err)
	}

	e.metricInc(MetricSessionCreated)
	for _, evictedID := range evicted {
		e.metricInc(MetricSessionEvicted)
		e.emitAudit(ctx, auditEventSessionEvicted, true, principal.ID, scope, evictedID, nil, nil)
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, sessionID, nil
}

/*
====================================
REFRESH / VALIDATE
====================================
*/

// Refresh redeems a refresh token for a fresh access token. The refresh token
// itself is not rotated; it stays valid until its session ends. Every failure
// mode is reported as ErrInvalidToken.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.credentials == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", PlatformScope(), "", ErrInvalidToken, nil)
		return nil, ErrInvalidToken
	}

	scope := scopeFromClaims(claims)
	now := e.now()

	sess, err := e.sessions.Get(ctx, scope.Key(), claims.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.PrincipalID(), scope, claims.SessionID, ErrInvalidToken, nil)
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	providedHash := internal.HashTokenString(refreshToken)
	if !sess.Live(now) ||
		sess.PrincipalID != claims.PrincipalID() ||
		subtle.ConstantTimeCompare(sess.RefreshHash, providedHash[:]) != 1 {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.PrincipalID(), scope, claims.SessionID, ErrInvalidToken, nil)
		return nil, ErrInvalidToken
	}

	principal, err := e.credentials.FindByID(ctx, claims.PrincipalID())
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			e.metricInc(MetricRefreshFailure)
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if statusErr := statusError(principal, now); statusErr != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, principal.ID, scope, claims.SessionID, statusErr, nil)
		return nil, statusErr
	}

	policy, err := e.policyFor(ctx, scope)
	if err != nil {
		return nil, err
	}

	access, err := e.tokens.IssueAccess(principal.ID, claims.ScopeTag, claims.ProjectID, claims.SessionID, e.accessTTL(scope, policy), now)
	if err != nil {
		return nil, err
	}

	// Advisory freshness marker; failure is ignored.
	_ = e.sessions.Touch(ctx, scope.Key(), claims.SessionID, now)

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, principal.ID, scope, claims.SessionID, nil, nil)

	return &TokenPair{AccessToken: access, RefreshToken: refreshToken}, nil
}

// ValidateAccess checks an access token and its backing session and returns
// the verified claims. Tokens of revoked or expired sessions are invalid even
// when their signature still verifies.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*token.Claims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	scope := scopeFromClaims(claims)
	sess, err := e.sessions.Get(ctx, scope.Key(), claims.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	if !sess.Live(e.now()) || sess.PrincipalID != claims.PrincipalID() {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

/*
====================================
LOGOUT / SESSIONS
====================================
*/

// Logout revokes the session behind a refresh token. Revoking an already-dead
// session reports ErrInvalidToken.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	claims, err := e.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return ErrInvalidToken
	}

	scope := scopeFromClaims(claims)
	sess, err := e.sessions.Get(ctx, scope.Key(), claims.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	providedHash := internal.HashTokenString(refreshToken)
	if sess.PrincipalID != claims.PrincipalID() ||
		subtle.ConstantTimeCompare(sess.RefreshHash, providedHash[:]) != 1 {
		return ErrInvalidToken
	}

	if err := e.sessions.Revoke(ctx, scope.Key(), sess.PrincipalID, claims.SessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventLogoutSession, true, sess.PrincipalID, scope, claims.SessionID, nil, nil)
	return nil
}

// LogoutAll revokes every session of a principal within a scope.
func (e *Engine) LogoutAll(ctx context.Context, scope Scope, principalID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if principalID == "" {
		return ErrPrincipalNotFound
	}

	if err := e.sessions.RevokeAll(ctx, scope.Key(), principalID); err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, principalID, scope, "", nil, nil)
	return nil
}

// ListSessions returns the principal's live sessions, oldest first.
func (e *Engine) ListSessions(ctx context.Context, scope Scope, principalID string) ([]SessionInfo, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	sessions, err := e.sessions.List(ctx, scope.Key(), principalID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	infos := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, SessionInfo{
			SessionID:    sess.SessionID,
			CreatedAt:    time.Unix(sess.CreatedAt, 0),
			ExpiresAt:    time.Unix(sess.ExpiresAt, 0),
			LastActiveAt: time.Unix(sess.LastActiveAt, 0),
			IP:           sess.IP,
			UserAgent:    sess.UserAgent,
		})
	}
	return infos, nil
}

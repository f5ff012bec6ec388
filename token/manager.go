package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token type claim values. Verification rejects a token presented against
// the wrong endpoint even before the signature check can fail, because each
// type validates only against its own secret.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Scope tag claim values.
const (
	ScopeTagPlatform = "platform"
	ScopeTagProject  = "project"
)

// ErrInvalid uniformly covers bad signature, expiry, wrong issuer/audience,
// and wrong token type. Callers must not distinguish these cases outward.
var ErrInvalid = errors.New("invalid token")

// Claims is the authgrid token payload.
type Claims struct {
	ScopeTag  string `json:"scope"`
	ProjectID string `json:"pid,omitempty"`
	SessionID string `json:"sid"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// PrincipalID returns the subject claim.
func (c *Claims) PrincipalID() string {
	return c.Subject
}

// Config holds the signing material and fixed claim values.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// Manager signs and verifies authgrid tokens.
type Manager struct {
	config Config
}

// NewManager validates the signing configuration and returns a [Manager].
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) < 32 {
		return nil, errors.New("access secret must be at least 32 bytes")
	}
	if len(cfg.RefreshSecret) < 32 {
		return nil, errors.New("refresh secret must be at least 32 bytes")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if cfg.Audience == "" {
		return nil, errors.New("audience is required")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	return &Manager{config: cfg}, nil
}

// IssueAccess mints an access token for the principal. ttl comes from the
// resolved policy: platform tokens use the fixed platform lifetime, project
// tokens use the project's session timeout.
func (m *Manager) IssueAccess(principalID, scopeTag, projectID, sessionID string, ttl time.Duration, now time.Time) (string, error) {
	return m.issue(m.config.AccessSecret, TypeAccess, principalID, scopeTag, projectID, sessionID, ttl, now)
}

// IssueRefresh mints a refresh token signed with the refresh secret.
func (m *Manager) IssueRefresh(principalID, scopeTag, projectID, sessionID string, ttl time.Duration, now time.Time) (string, error) {
	return m.issue(m.config.RefreshSecret, TypeRefresh, principalID, scopeTag, projectID, sessionID, ttl, now)
}

// VerifyAccess parses and validates an access token.
func (m *Manager) VerifyAccess(tokenStr string) (*Claims, error) {
	return m.verify(m.config.AccessSecret, TypeAccess, tokenStr)
}

// VerifyRefresh parses and validates a refresh token.
func (m *Manager) VerifyRefresh(tokenStr string) (*Claims, error) {
	return m.verify(m.config.RefreshSecret, TypeRefresh, tokenStr)
}

func (m *Manager) issue(secret []byte, typ, principalID, scopeTag, projectID, sessionID string, ttl time.Duration, now time.Time) (string, error) {
	if ttl <= 0 {
		return "", errors.New("token ttl must be > 0")
	}
	if principalID == "" || sessionID == "" {
		return "", errors.New("principal and session ids are required")
	}

	claims := Claims{
		ScopeTag:  scopeTag,
		ProjectID: projectID,
		SessionID: sessionID,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			Issuer:    m.config.Issuer,
			Audience:  jwt.ClaimStrings{m.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (m *Manager) verify(secret []byte, typ, tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return nil, ErrInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	if claims.TokenType != typ {
		return nil, ErrInvalid
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return nil, ErrInvalid
	}
	switch claims.ScopeTag {
	case ScopeTagPlatform:
		if claims.ProjectID != "" {
			return nil, ErrInvalid
		}
	case ScopeTagProject:
		if claims.ProjectID == "" {
			return nil, ErrInvalid
		}
	default:
		return nil, ErrInvalid
	}

	return claims, nil
}

package session

import "time"

// Session is one live refresh-token grant tying a principal to a client.
type Session struct {
	SessionID   string `json:"sid"`
	PrincipalID string `json:"pid"`
	ScopeTag    string `json:"scope"`
	ProjectID   string `json:"project_id,omitempty"`

	// RefreshHash is the SHA-256 of the refresh token string. The raw token
	// never reaches storage.
	RefreshHash []byte `json:"refresh_hash"`

	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	Active       bool  `json:"active"`
	CreatedAt    int64 `json:"created_at"`
	ExpiresAt    int64 `json:"expires_at"`
	LastActiveAt int64 `json:"last_active_at"`
}

// Live reports whether the session may still redeem refresh tokens.
func (s *Session) Live(now time.Time) bool {
	return s != nil && s.Active && s.ExpiresAt > now.Unix()
}

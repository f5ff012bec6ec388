package authgrid

import (
	"context"
	"strings"
)

// GetProfile returns the principal without its password hash.
func (e *Engine) GetProfile(ctx context.Context, principalID string) (*Principal, error) {
	if e == nil || e.credentials == nil {
		return nil, ErrEngineNotReady
	}

	principal, err := e.credentials.FindByID(ctx, principalID)
	if err != nil {
		return nil, err
	}

	principal.PasswordHash = ""
	return principal, nil
}

// UpdateProfile applies the non-nil fields of update and returns the fresh
// profile. A username change re-checks uniqueness within the scope.
func (e *Engine) UpdateProfile(ctx context.Context, scope Scope, principalID string, update ProfileUpdate) (*Principal, error) {
	if e == nil || e.credentials == nil {
		return nil, ErrEngineNotReady
	}

	if update.Username != nil {
		trimmed := strings.TrimSpace(*update.Username)
		update.Username = &trimmed
	}
	if update.Name != nil {
		trimmed := strings.TrimSpace(*update.Name)
		update.Name = &trimmed
	}

	if err := e.credentials.UpdateProfile(ctx, principalID, update); err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventProfileUpdated, true, principalID, scope, "", nil, nil)
	return e.GetProfile(ctx, principalID)
}

// LoginHistory returns the principal's bounded login history, most recent
// first.
func (e *Engine) LoginHistory(ctx context.Context, principalID string) ([]LoginRecord, error) {
	if e == nil || e.credentials == nil {
		return nil, ErrEngineNotReady
	}
	return e.credentials.LoginHistory(ctx, principalID)
}

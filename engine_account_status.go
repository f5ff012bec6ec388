package authgrid

import (
	"context"
	"fmt"
	"time"
)

// Suspend blocks a principal until the given time. A zero until suspends
// indefinitely. Existing sessions are revoked immediately.
func (e *Engine) Suspend(ctx context.Context, scope Scope, principalID string, until time.Time) error {
	return e.setStatus(ctx, scope, principalID, StatusSuspended, until, MetricAccountSuspended)
}

// Deactivate disables a principal indefinitely and revokes its sessions.
func (e *Engine) Deactivate(ctx context.Context, scope Scope, principalID string) error {
	return e.setStatus(ctx, scope, principalID, StatusInactive, time.Time{}, MetricAccountDeactivated)
}

// Reactivate restores a suspended or deactivated principal. Sessions are not
// restored; the principal logs in again.
func (e *Engine) Reactivate(ctx context.Context, scope Scope, principalID string) error {
	return e.setStatus(ctx, scope, principalID, StatusActive, time.Time{}, metricIDCount)
}

func (e *Engine) setStatus(ctx context.Context, scope Scope, principalID string, status AccountStatus, until time.Time, metric MetricID) error {
	if e == nil || e.credentials == nil {
		return ErrEngineNotReady
	}

	if err := e.credentials.UpdateStatus(ctx, principalID, status, until); err != nil {
		return err
	}

	if status != StatusActive {
		if err := e.sessions.RevokeAll(ctx, scope.Key(), principalID); err != nil {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
	}

	e.metricInc(metric)
	e.emitAudit(ctx, auditEventAccountStatusChange, true, principalID, scope, "", nil, func() map[string]string {
		meta := map[string]string{"status": statusLabel(status)}
		if !until.IsZero() {
			meta["until"] = until.UTC().Format(time.RFC3339)
		}
		return meta
	})
	return nil
}

// DeleteAccount tombstones the principal and revokes everything attached to
// it. The record survives for audit but no longer resolves.
func (e *Engine) DeleteAccount(ctx context.Context, scope Scope, principalID string) error {
	if e == nil || e.credentials == nil {
		return ErrEngineNotReady
	}

	if err := e.credentials.Tombstone(ctx, principalID); err != nil {
		return err
	}
	if err := e.sessions.RevokeAll(ctx, scope.Key(), principalID); err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	if err := e.lockouts.Reset(ctx, scope.Key(), principalID); err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	e.metricInc(MetricAccountDeleted)
	e.emitAudit(ctx, auditEventAccountDeleted, true, principalID, scope, "", nil, nil)
	return nil
}

func statusLabel(status AccountStatus) string {
	switch status {
	case StatusActive:
		return "active"
	case StatusInactive:
		return "inactive"
	case StatusSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

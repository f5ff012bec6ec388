package internaldefs

import (
	authgrid "github.com/authgrid/authgrid"
)

// CounterDef binds one engine counter to its exported name.
type CounterDef struct {
	ID   authgrid.MetricID
	Name string
	Help string
}

// HistogramDef binds one engine histogram to its exported name.
type HistogramDef struct {
	ID   authgrid.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authgrid.MetricLoginSuccess, Name: "authgrid_login_success_total", Help: "Successful login attempts."},
	{ID: authgrid.MetricLoginFailure, Name: "authgrid_login_failure_total", Help: "Failed login attempts."},
	{ID: authgrid.MetricLoginLocked, Name: "authgrid_login_locked_total", Help: "Logins rejected or locks set by the lockout policy."},
	{ID: authgrid.MetricLoginUnverified, Name: "authgrid_login_unverified_total", Help: "Logins rejected pending email verification."},
	{ID: authgrid.MetricSignupSuccess, Name: "authgrid_signup_success_total", Help: "Successful signups."},
	{ID: authgrid.MetricSignupDuplicate, Name: "authgrid_signup_duplicate_total", Help: "Signups rejected as duplicate identity."},
	{ID: authgrid.MetricSignupDisabled, Name: "authgrid_signup_disabled_total", Help: "Signups rejected by project policy."},
	{ID: authgrid.MetricRefreshSuccess, Name: "authgrid_refresh_success_total", Help: "Successful refresh operations."},
	{ID: authgrid.MetricRefreshFailure, Name: "authgrid_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: authgrid.MetricLogout, Name: "authgrid_logout_total", Help: "Single-session logout operations."},
	{ID: authgrid.MetricLogoutAll, Name: "authgrid_logout_all_total", Help: "Logout-all operations."},
	{ID: authgrid.MetricSessionCreated, Name: "authgrid_session_created_total", Help: "Created sessions."},
	{ID: authgrid.MetricSessionEvicted, Name: "authgrid_session_evicted_total", Help: "Sessions evicted by the per-principal cap."},
	{ID: authgrid.MetricSessionRevoked, Name: "authgrid_session_revoked_total", Help: "Explicitly revoked sessions."},
	{ID: authgrid.MetricPasswordChangeSuccess, Name: "authgrid_password_change_success_total", Help: "Successful password changes."},
	{ID: authgrid.MetricPasswordChangeInvalidOld, Name: "authgrid_password_change_invalid_old_total", Help: "Password change attempts with invalid old password."},
	{ID: authgrid.MetricPasswordChangeReuseRejected, Name: "authgrid_password_change_reuse_rejected_total", Help: "Password change attempts rejected for reuse."},
	{ID: authgrid.MetricResetRequest, Name: "authgrid_password_reset_request_total", Help: "Password reset requests."},
	{ID: authgrid.MetricResetConfirmSuccess, Name: "authgrid_password_reset_confirm_success_total", Help: "Successful password reset confirmations."},
	{ID: authgrid.MetricResetConfirmFailure, Name: "authgrid_password_reset_confirm_failure_total", Help: "Failed password reset confirmations."},
	{ID: authgrid.MetricVerificationRequest, Name: "authgrid_email_verification_request_total", Help: "Email verification requests."},
	{ID: authgrid.MetricVerificationSuccess, Name: "authgrid_email_verification_success_total", Help: "Successful email verifications."},
	{ID: authgrid.MetricVerificationFailure, Name: "authgrid_email_verification_failure_total", Help: "Failed email verifications."},
	{ID: authgrid.MetricAccountSuspended, Name: "authgrid_account_suspended_total", Help: "Account suspend operations."},
	{ID: authgrid.MetricAccountDeactivated, Name: "authgrid_account_deactivated_total", Help: "Account deactivate operations."},
	{ID: authgrid.MetricAccountDeleted, Name: "authgrid_account_deleted_total", Help: "Account delete operations."},
	{ID: authgrid.MetricProjectRejected, Name: "authgrid_project_rejected_total", Help: "Operations rejected at project resolution."},
}

var HistogramDefs = []HistogramDef{
	{ID: authgrid.MetricLoginLatency, Name: "authgrid_login_latency_seconds", Help: "Login latency histogram."},
}

var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed width.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to cumulative form.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

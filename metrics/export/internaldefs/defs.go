package internaldefs

import (
	portalAuth "github.com/MrEthical07/portalAuth"
)

// CounterDef names one store counter for export.
type CounterDef struct {
	ID   portalAuth.MetricID
	Name string
	Help string
}

// HistogramDef names one latency histogram for export.
type HistogramDef struct {
	ID   portalAuth.MetricID
	Name string
	Help string
}

// StoreCounter is implemented by sources that hold one store per browser device.
type StoreCounter interface {
	Len() int
}

const (
	// LiveStoresName is the gauge reported for a [StoreCounter] source.
	LiveStoresName = "portal_live_stores"
	// LiveStoresHelp describes [LiveStoresName].
	LiveStoresHelp = "Device session stores currently held in memory."
)

// CounterDefs is an exported constant or variable used by the metric exporters.
var CounterDefs = []CounterDef{
	{ID: portalAuth.MetricLoginSuccess, Name: "portal_login_success_total", Help: "Successful logins."},
	{ID: portalAuth.MetricLoginFailure, Name: "portal_login_failure_total", Help: "Failed logins."},
	{ID: portalAuth.MetricLoginRateLimited, Name: "portal_login_rate_limited_total", Help: "Logins refused by the provider's rate limit."},
	{ID: portalAuth.MetricLoginRoleMismatch, Name: "portal_login_role_mismatch_total", Help: "Logins whose stored role differed from the selected role."},
	{ID: portalAuth.MetricSignupSuccess, Name: "portal_signup_success_total", Help: "Accounts created."},
	{ID: portalAuth.MetricSignupFailure, Name: "portal_signup_failure_total", Help: "Failed signups."},
	{ID: portalAuth.MetricSignupDuplicate, Name: "portal_signup_duplicate_total", Help: "Signups rejected because the email was taken."},
	{ID: portalAuth.MetricLogout, Name: "portal_logout_total", Help: "Local sign-outs."},
	{ID: portalAuth.MetricLogoutProviderFailure, Name: "portal_logout_provider_failure_total", Help: "Sign-outs the provider failed to confirm."},
	{ID: portalAuth.MetricProfileUpdateSuccess, Name: "portal_profile_update_success_total", Help: "Confirmed profile updates."},
	{ID: portalAuth.MetricProfileUpdateFailure, Name: "portal_profile_update_failure_total", Help: "Failed profile updates."},
	{ID: portalAuth.MetricProfileFetchFailure, Name: "portal_profile_fetch_failure_total", Help: "Profile rows that could not be loaded after sign-in."},
	{ID: portalAuth.MetricSessionRestored, Name: "portal_session_restored_total", Help: "Sessions restored by the startup check."},
	{ID: portalAuth.MetricRemoteSignOut, Name: "portal_remote_sign_out_total", Help: "Sign-outs pushed by another tab or device."},
	{ID: portalAuth.MetricStaleProfileDiscarded, Name: "portal_stale_profile_discarded_total", Help: "Profile fetch results discarded as superseded."},
	{ID: portalAuth.MetricOperationRejected, Name: "portal_operation_rejected_total", Help: "Calls refused because another operation was in flight."},
}

// HistogramDefs is an exported constant or variable used by the metric exporters.
var HistogramDefs = []HistogramDef{
	{ID: portalAuth.MetricSignInLatency, Name: "portal_sign_in_latency_seconds", Help: "Provider password sign-in latency."},
}

// HistogramBounds are the upper bounds, in seconds, matching the store's buckets.
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

// HistogramBoundSuffix is an exported constant or variable used by the metric exporters.
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

// NormalizeBuckets copies raw into a fixed eight-bucket array, zero-filling short input.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals (Prometheus le semantics).
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

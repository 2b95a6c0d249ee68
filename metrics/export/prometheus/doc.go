// Package prometheus renders portalAuth store metrics in Prometheus text
// exposition format.
//
// [NewExporter] takes anything with MetricsSnapshot and ActivityDropped (a single
// *portalAuth.Store, or an aggregate over many) and exposes an [http.Handler].
// Counters are named portal_*_total; the one histogram is
// portal_sign_in_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global registry; callers mount the Handler.
//   - Mutate store state.
package prometheus

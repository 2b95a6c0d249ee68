// Package middleware adapts the route guard to net/http.
//
// # Guards
//
//   - [Guard] evaluates the request's session against a required role.
//   - [RequireAuthenticated] admits any signed-in user.
//   - [RequireRole] is Guard with a role.
//
// Each guard reads a session snapshot from a [SessionSource], asks guard.Evaluate
// for a decision and maps it to an HTTP response. Admitted requests carry the
// evaluated snapshot in their context ([SessionFromContext]).
//
// # Architecture boundaries
//
// This package translates guard decisions into HTTP semantics. It does NOT decide
// anything itself; every decision comes from guard.Evaluate.
//
// # What this package must NOT do
//
//   - Call the identity provider or mutate a Store.
//   - Redirect while the session is still loading.
//   - Render real pages (the loading placeholder is the only body it writes).
package middleware

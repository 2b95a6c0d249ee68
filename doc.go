// Package portalAuth provides the role-aware session layer of the campus portal:
// a single [Store] that knows who is signed in and as which [Role], and the
// identity-provider contract it drives.
//
// Store methods are safe to call from multiple goroutines after construction through
// [Builder.Build]. Only one of Login, Signup, Logout or the initial session check runs
// at a time; a second attempt returns [ErrOperationInProgress] instead of racing the
// first.
//
// # Architecture boundaries
//
// portalAuth is the public surface. It exposes [Store], [Builder], [Config], the
// [IdentityProvider] contract and value types ([Session], [UserProfile],
// [ProfileUpdate]). Activity dispatch lives under internal/ and is only reachable
// through the [ActivitySink] aliases. Route decisions live in the guard package and
// their HTTP mapping in the middleware package.
//
// # What this package must NOT do
//
//   - Hold the store mutex while calling the identity provider.
//   - Let a stale profile fetch overwrite a newer sign-in or sign-out.
//   - Trust a caller-supplied role: the landing route always comes from the stored
//     profile row.
//   - Import any sub-package that re-imports portalAuth (no import cycles).
package portalAuth

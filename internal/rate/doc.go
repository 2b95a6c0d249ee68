// Package rate provides the Redis fixed-window limiters the identity provider puts
// in front of password sign-in and account creation.
//
// # Window semantics
//
// Fixed-window counters: INCR + EXPIRE on the first hit of a window. Key prefixes:
//   - pp:rl:login:  failed sign-ins per email
//   - pp:rl:signup: account creations per client address
//
// # What this package must NOT do
//
//   - Decide what a limited caller is told (the provider maps ErrRateLimited).
//   - Be imported outside the portalAuth module.
package rate

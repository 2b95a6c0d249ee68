// Package session provides Redis-backed persistence for provider-side sign-in
// records and their compact binary encoding.
//
// # Binary encoding
//
// Records are stored as a versioned binary blob (schema v1 and v2) and migrated
// forward on read. New versions append fields; they never reinterpret old ones.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Record] model. It does
// NOT sign tokens, check passwords or know about profile rows; those belong to the
// identity provider built on top of it.
//
// # What this package must NOT do
//
//   - Import portalAuth, jwt or the provider packages (no upward imports).
//   - Decide who may sign in.
//   - Store plaintext secrets in [Record] fields.
package session

// Package redisprovider is a Redis-backed portalAuth.IdentityProvider.
//
// A [Backend] owns the shared pieces: the Redis client, the Argon2id hasher, the
// session-token manager, the login limiter and the profile rows. [Backend.Client]
// returns the provider for one device key; a device key stands for a browser's
// shared storage, so every tab of that browser sees the same session.
//
// # Redis layout
//
//	<p>:acct:email:<email>    -> user id
//	<p>:acct:<id>             hash: email, hash, created_at
//	<p>:acct:<id>:devices     set of device keys signed in as the user
//	<p>:device:<key>          signed session token
//	<p>:sess:<sid>            binary session record (package session)
//	<p>:profile:<id>          hash: profile row (RedisProfileStore)
//	<p>:events:<key>          pub/sub channel of session events
//	<p>:activity              stream of activity records
//
// # Architecture boundaries
//
// This package answers the provider contract and nothing else: it does not keep a
// client-side session state machine and does not route pages.
//
// # What this package must NOT do
//
//   - Log or store plaintext passwords or session tokens.
//   - Change a profile's role after creation.
package redisprovider

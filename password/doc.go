// Package password hashes and verifies portal account passwords with Argon2id.
//
// # Output format
//
// Hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Hasher.NeedsRehash] reports hashes produced with weaker parameters so the
// provider can re-hash after the next successful sign-in.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Whether a password is
// acceptable beyond its byte length is decided by the caller.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other portalAuth package.
//   - Log plaintext passwords.
package password

// Package guard decides whether a protected page may render for the current session.
//
// # Components
//
//   - [Evaluate]: pure decision from a session snapshot and the page's required role.
//   - [Policy]: login route and per-role dashboard table used to resolve redirects.
//   - [Mount]: per-page state machine that re-evaluates on every store change.
//
// # Architecture boundaries
//
// This package reads snapshots only. It never calls the identity provider and never
// mutates a store.
//
// # What this package must NOT do
//
//   - Redirect while a session operation is in flight (render a placeholder instead).
//   - Infer the user's role from anything but the stored profile in the snapshot.
//   - Perform I/O.
package guard

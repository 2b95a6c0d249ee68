// Package pgprofile stores portal profile rows in PostgreSQL.
//
// [Store] satisfies redisprovider.ProfileStore, so a deployment can keep accounts
// and sessions in Redis while the profile table lives next to the rest of the
// portal's relational data.
//
// # What this package must NOT do
//
//   - Update the role column after the row is created.
//   - Own the connection pool's lifecycle; callers close the pool.
package pgprofile

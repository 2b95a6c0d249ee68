// Package audit implements best-effort, asynchronous delivery of user activity records.
//
// # Components
//
//   - [Sink]: interface for record consumers (channel, JSON writer, func, no-op).
//   - [Dispatcher]: buffered relay with drop-if-full / block-if-full semantics and a
//     per-record delivery timeout.
//   - [Activity]: one record: action, user, outcome, request origin, details.
//
// # Architecture boundaries
//
// This package owns buffering and sink delivery. It does NOT decide which actions are
// recorded; the session store does.
//
// # What this package must NOT do
//
//   - Surface sink failures to the operation that produced the record.
//   - Import portalAuth or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit

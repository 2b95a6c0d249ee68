// Package internal holds helpers that are private to portalAuth.
//
// # Sub-packages
//
//   - audit: async activity dispatch (Dispatcher + Sink implementations)
//   - config: viper/dotenv configuration for the portald binary
//   - logging: slog handler setup
//   - rate: Redis-backed login and signup throttling
//   - web: HTTP surface (device cookie, per-device store registry, pages)
//
// # What this package must NOT do
//
//   - Export types that appear in the public portalAuth API.
//   - Be imported by any package outside the portalAuth module.
package internal

// Package devserver is a reference backend that speaks the same wire contract as
// the production API: JWT access tokens, opaque rotating refresh tokens, DRF-style
// {"detail": ...} errors, and {count, next, previous, results} list pages with
// absolute next URLs.
//
// The end-to-end tests and the load test run against it. Refresh
// sessions and login throttling live in redis (miniredis in tests); users and
// resources live in memory.
//
// Test hooks let callers force the client paths under test:
// [Server.ExpireAccessTokens] invalidates every outstanding access token,
// [Server.RevokeRefreshTokens] ends every refresh session, and
// [Server.RefreshCalls] counts refresh exchanges.
//
// # What this package must NOT do
//
//   - Depend on the client package; it is a stand-in for a separate service.
//   - Persist anything outside redis.
package devserver

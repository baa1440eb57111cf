// Package rate provides redis-backed fixed-window counters that throttle failed
// logins and refresh calls on the development backend.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key layout:
//   - <prefix>:login:<identifier>
//   - <prefix>:login-ip:<ip>
//   - <prefix>:refresh:<session id>
//
// # What this package must NOT do
//
//   - Decide what a failed login is; callers report failures.
//   - Be imported outside the ecoauth module.
package rate

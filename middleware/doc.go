// Package middleware holds the HTTP bearer guard used by the development
// backend.
//
// # Guards
//
//   - [Guard]: reads the Authorization header, calls a [Verifier], and stores the
//     verified claims in the request context.
//   - [RequireRole]: answers 403 unless the stored claims carry an allowed role.
//
// Rejections use the backend's error shape, {"detail": "..."}, with 401 for
// missing or invalid credentials so clients run their refresh-and-retry path.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to the Verifier).
//   - Access redis.
package middleware

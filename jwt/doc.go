// Package jwt reads and issues the access tokens exchanged with the EcoChallenge backend.
//
// Clients only ever need [ParseUnverified]: the backend is the authority on token
// validity and signals rejection with a 401, so the client decodes claims for display
// and role checks without holding any key. [Manager] signs and verifies tokens for the
// local development backend and for tests.
//
// # What this package must NOT do
//
//   - Treat an unverified decode as proof of authenticity.
//   - Perform I/O or import ecoauth.
package jwt

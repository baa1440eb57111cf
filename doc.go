// Package ecoauth is the client-side session layer of the EcoChallenge apps: it
// attaches bearer credentials to outbound calls, refreshes them transparently on a
// 401, and ends the session deterministically when refresh is impossible.
//
// A [Manager] is built once per logical session through [New] ... [Builder.Build]
// and shared by all feature code. [Manager.AuthenticatedFetch] is the single entry
// point for authenticated calls; [FetchAllPages] walks the {results, next} list
// envelope on top of it.
//
// # Refresh guarantees
//
//   - A request is retried at most once, and only after a successful refresh.
//   - Concurrent requests rejected with the same access token share one refresh call.
//   - Both halves of the credential pair are written and cleared together.
//   - A failed refresh clears the pair and surfaces an error; it never looks like success.
//
// # Architecture boundaries
//
// ecoauth is the public surface. It exposes [Manager], [Builder], [Config], the
// error taxonomy, and value types. Flow orchestration, audit dispatch, metric
// storage, and redaction live under internal/; persistence lives in credstore.
//
// # What this package must NOT do
//
//   - Interpret response bodies on the authenticated path beyond the error detail.
//   - Retry a request more than once or refresh more than once per request.
//   - Log raw tokens or passwords.
//   - Hold process-wide session state; every Manager is independent.
package ecoauth

// Package flows contains pure-function orchestrators for the Manager's credential flows.
//
// RunFetch drives the send / refresh / retry-once sequence of an authenticated
// request, and RunRefresh drives the token exchange and persistence of a refresh.
// Each accepts a typed dependency struct and returns a result carrying a failure
// kind that the root package maps onto its error taxonomy, metrics, and audit events.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the credential store, the HTTP transport, and the
// single-flight refresh gate. They do NOT own any of these resources; ownership stays
// with the Manager.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import ecoauth (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
//   - Clear credentials. Reacting to a failed refresh is the Manager's decision.
package flows

// Package credstore provides the narrow key-value persistence used to hold the
// access/refresh credential pair between process runs.
//
// # Backends
//
//   - [Memory] keeps values in process memory (tests, ephemeral sessions).
//   - [File] keeps values in a single owner-only JSON file (CLI and desktop clients).
//   - [Redis] keeps values under a key prefix in Redis (shared or server-side clients).
//
// # Architecture boundaries
//
// This package owns storage only. It never interprets the values it stores and keeps
// no cache: every [Store.Get] reaches the backing store. Backend failures are returned
// wrapped in [ErrUnavailable]; nothing here retries.
//
// # What this package must NOT do
//
//   - Import ecoauth, jwt, or any flow package.
//   - Parse, validate, or log credential values.
//   - Write a multi-key [Store.Set] partially.
package credstore

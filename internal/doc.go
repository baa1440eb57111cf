// Package internal holds helpers private to ecoauth: opaque refresh-token and
// reset-token generation for the development backend.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - devserver: reference backend speaking the same wire contract as production
//   - flows: pure orchestration of the fetch-refresh-retry and refresh sequences
//   - metrics: lock-free counters and latency histograms
//   - rate: redis-backed fixed-window counters for the development backend
//   - redact: log-safe renderings of tokens and emails
//
// # What this package must NOT do
//
//   - Export types that appear in the public ecoauth API.
//   - Be imported by any package outside the ecoauth module.
package internal

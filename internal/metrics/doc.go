// Package metrics keeps the Manager's counters and latency histograms.
//
// Each counter sits on its own cache line and is bumped with a single atomic
// add. The two latency IDs also own an 8-bucket histogram (5ms up to +Inf).
// Recording never allocates; [Metrics.Snapshot] copies everything into maps
// for the exporters under metrics/export.
//
// The package does no I/O and must not import ecoauth.
package metrics

// Package prometheus renders ecoauth metrics in the Prometheus text exposition
// format.
//
// [NewPrometheusExporter] wraps a [ecoauth.Manager] and exposes an [http.Handler].
// Counters are named ecoauth_*_total; the fetch and refresh latency histograms
// appear only when latency histograms are enabled on the Manager.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount the Handler.
//   - Mutate Manager state.
package prometheus

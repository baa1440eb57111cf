package internaldefs

import (
	"strings"

	"github.com/ecochallenge/ecoauth"
)

// Source is what both exporters read from; *ecoauth.Manager satisfies it.
type Source interface {
	MetricsSnapshot() ecoauth.MetricsSnapshot
	AuditDropped() uint64
}

// Kind tells an exporter how to publish a family.
type Kind uint8

const (
	Counter Kind = iota
	Histogram
)

// Def describes one exported metric family.
type Def struct {
	ID   ecoauth.MetricID
	Kind Kind
	Name string
	Help string
}

func counter(id ecoauth.MetricID, name, help string) Def {
	return Def{ID: id, Kind: Counter, Name: "ecoauth_" + name + "_total", Help: help}
}

func latency(id ecoauth.MetricID, name, help string) Def {
	return Def{ID: id, Kind: Histogram, Name: "ecoauth_" + name + "_latency_seconds", Help: help}
}

// Defs lists every family backed by a Manager metric, in exposition order.
var Defs = []Def{
	counter(ecoauth.MetricFetchTotal, "fetch", "Authenticated fetch calls."),
	counter(ecoauth.MetricFetchUnauthorized, "fetch_unauthorized", "Responses with status 401, first attempts and retries."),
	counter(ecoauth.MetricFetchRetry, "fetch_retry", "Requests re-sent after a successful refresh."),
	counter(ecoauth.MetricFetchTransportFailure, "fetch_transport_failure", "Authenticated fetch calls that failed in transport."),
	counter(ecoauth.MetricRefreshSuccess, "refresh_success", "Refresh exchanges that produced a new access token."),
	counter(ecoauth.MetricRefreshFailure, "refresh_failure", "Refresh exchanges that failed."),
	counter(ecoauth.MetricRefreshShared, "refresh_shared", "Callers that received the result of a refresh started by another caller."),
	counter(ecoauth.MetricRefreshSkipped, "refresh_skipped", "Refreshes skipped because the access token had already been replaced."),
	counter(ecoauth.MetricRefreshRotated, "refresh_rotated", "Refreshes that also rotated the refresh token."),
	counter(ecoauth.MetricLoginSuccess, "login_success", "Successful logins."),
	counter(ecoauth.MetricLoginFailure, "login_failure", "Failed logins."),
	counter(ecoauth.MetricRegisterSuccess, "register_success", "Successful registrations."),
	counter(ecoauth.MetricRegisterFailure, "register_failure", "Failed registrations."),
	counter(ecoauth.MetricTokensSaved, "tokens_saved", "Credential pairs written by SaveTokens."),
	counter(ecoauth.MetricSessionEnded, "session_ended", "Sessions ended by an unrecoverable refresh failure."),
	counter(ecoauth.MetricSignOut, "sign_out", "Explicit sign-outs."),
	counter(ecoauth.MetricPagesFetched, "pages_fetched", "List pages fetched by the page aggregator."),
	counter(ecoauth.MetricPaginationFailure, "pagination_failure", "Page walks that failed."),
	latency(ecoauth.MetricFetchLatency, "fetch", "Authenticated fetch latency including refresh and retry."),
	latency(ecoauth.MetricRefreshLatency, "refresh", "Refresh exchange latency."),
}

// AuditDropped is published alongside Defs from Source.AuditDropped.
var AuditDropped = Def{Kind: Counter, Name: "ecoauth_audit_dropped_total", Help: "Audit events dropped under dispatcher backpressure."}

// Bounds are the bucket upper bounds in seconds, as Prometheus le labels.
var Bounds = [ecoauth.HistBucketCount]string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// BoundSuffix turns a bound into an instrument-name suffix: "0.005" becomes
// "0_005" and "+Inf" becomes "inf".
func BoundSuffix(le string) string {
	if le == "+Inf" {
		return "inf"
	}
	return strings.ReplaceAll(le, ".", "_")
}

// Sample is one family read from a snapshot. Buckets are cumulative; for
// histograms the last bucket is the sample count.
type Sample struct {
	Def     Def
	Value   uint64
	Buckets [ecoauth.HistBucketCount]uint64
}

// Count returns the total number of observations of a histogram sample.
func (s Sample) Count() uint64 { return s.Buckets[len(s.Buckets)-1] }

// Gather reads src once. Histograms missing from the snapshot are left out.
// The second result is false when the snapshot holds nothing at all, which
// is how a Manager with metrics disabled presents itself.
func Gather(src Source) ([]Sample, bool) {
	snap := src.MetricsSnapshot()
	dropped := src.AuditDropped()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 && dropped == 0 {
		return nil, false
	}

	out := make([]Sample, 0, len(Defs)+1)
	for _, d := range Defs {
		switch d.Kind {
		case Counter:
			out = append(out, Sample{Def: d, Value: snap.Counters[d.ID]})
		case Histogram:
			raw, ok := snap.Histograms[d.ID]
			if !ok {
				continue
			}
			s := Sample{Def: d}
			var running uint64
			for i := range s.Buckets {
				if i < len(raw) {
					running += raw[i]
				}
				s.Buckets[i] = running
			}
			out = append(out, s)
		}
	}
	out = append(out, Sample{Def: AuditDropped, Value: dropped})
	return out, true
}

package ecoauth

import (
	"io"
	"log/slog"
	"net/http"

	internalaudit "github.com/ecochallenge/ecoauth/internal/audit"
	internalmetrics "github.com/ecochallenge/ecoauth/internal/metrics"
)

// RequestOptions shapes one authenticated call. The zero value is a GET with no body.
//
// Body is held as bytes so the request can be re-sent unchanged after a refresh.
// When JSON is non-nil it is marshalled into the body and Content-Type is set to
// application/json; Body and JSON must not both be set.
type RequestOptions struct {
	Method string
	Header http.Header
	Body   []byte
	JSON   any
}

// CredentialPair is a consistent snapshot of the stored tokens.
type CredentialPair struct {
	Access  string
	Refresh string
}

// Complete reports whether both halves are present.
func (p CredentialPair) Complete() bool {
	return p.Access != "" && p.Refresh != ""
}

// RegisterInput is the account registration payload.
type RegisterInput struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
}

// LoginResult carries the profile fields the backend returns alongside the tokens.
// Any of them may be empty.
type LoginResult struct {
	UserID string
	Email  string
	Role   string
}

// AuditEvent is a structured audit record emitted by the Manager.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the Manager's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink is an [AuditSink] that writes events as structured log records.
type SlogSink = internalaudit.SlogSink

// NewChannelSink returns a sink whose Events channel holds up to buffer events.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink writes one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink logs events through logger, or slog.Default when it is nil.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}

// MetricID identifies a counter or latency histogram.
type MetricID = internalmetrics.MetricID

const (
	MetricFetchTotal            = internalmetrics.MetricFetchTotal
	MetricFetchUnauthorized     = internalmetrics.MetricFetchUnauthorized
	MetricFetchRetry            = internalmetrics.MetricFetchRetry
	MetricFetchTransportFailure = internalmetrics.MetricFetchTransportFailure
	MetricRefreshSuccess        = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure        = internalmetrics.MetricRefreshFailure
	MetricRefreshShared         = internalmetrics.MetricRefreshShared
	MetricRefreshSkipped        = internalmetrics.MetricRefreshSkipped
	MetricRefreshRotated        = internalmetrics.MetricRefreshRotated
	MetricLoginSuccess          = internalmetrics.MetricLoginSuccess
	MetricLoginFailure          = internalmetrics.MetricLoginFailure
	MetricRegisterSuccess       = internalmetrics.MetricRegisterSuccess
	MetricRegisterFailure       = internalmetrics.MetricRegisterFailure
	MetricTokensSaved           = internalmetrics.MetricTokensSaved
	MetricSessionEnded          = internalmetrics.MetricSessionEnded
	MetricSignOut               = internalmetrics.MetricSignOut
	MetricPagesFetched          = internalmetrics.MetricPagesFetched
	MetricPaginationFailure     = internalmetrics.MetricPaginationFailure
	MetricFetchLatency          = internalmetrics.MetricFetchLatency
	MetricRefreshLatency        = internalmetrics.MetricRefreshLatency
)

// HistBucketCount is the number of buckets in every latency histogram.
const HistBucketCount = internalmetrics.HistBucketCount

// Metrics holds atomic counters and optional latency histograms.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance. When Enabled is false, all operations
// are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}

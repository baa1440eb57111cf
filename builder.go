package ecoauth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ecochallenge/ecoauth/credstore"
	internalaudit "github.com/ecochallenge/ecoauth/internal/audit"
)

// Builder assembles a [Manager]. A Builder is single-use.
type Builder struct {
	config Config

	store      credstore.Store
	httpClient *http.Client
	logger     *slog.Logger
	auditSink  AuditSink
	now        func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. Later With* calls override its fields.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBaseURL overrides Config.BaseURL.
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.config.BaseURL = baseURL
	return b
}

// WithStore supplies the credential store. Without it Build opens the backend named
// by Config.Store and the Manager closes it on Close.
func (b *Builder) WithStore(store credstore.Store) *Builder {
	b.store = store
	return b
}

// WithHTTPClient supplies the transport. Config.HTTP.Timeout is applied per request
// through the context, so the client's own Timeout may stay zero.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// WithLogger sets the structured logger; slog.Default is used when it is nil.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets where audit events go when Config.Audit.Enabled is true.
// Without one, events are logged through the Manager's logger.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled overrides Config.Metrics.Enabled.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms overrides Config.Metrics.EnableLatencyHistograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock replaces time.Now for audit timestamps and latency measurement.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and returns a ready Manager in state Idle.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, ErrBuilderAlreadyBuilt
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("ecoauth: parse base url: %w", err)
	}

	store := b.store
	closeStore := func() error { return nil }
	if store == nil {
		store, closeStore, err = credstore.Open(cfg.Store)
		if err != nil {
			return nil, err
		}
	}
	if store == nil {
		return nil, errors.New("credential store required")
	}

	client := b.httpClient
	if client == nil {
		client = &http.Client{}
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	sink := b.auditSink
	if cfg.Audit.Enabled && sink == nil {
		sink = internalaudit.NewSlogSink(logger)
	}

	m := &Manager{
		config:     cfg,
		baseURL:    baseURL,
		client:     client,
		store:      store,
		closeStore: closeStore,
		logger:     logger.With(slog.String("component", "ecoauth")),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, sink),
		metrics: NewMetrics(cfg.Metrics),
		now:     now,
	}
	m.state.Store(int32(StateIdle))

	for _, w := range cfg.Lint() {
		m.logger.Warn("configuration warning", "code", w.Code, "detail", w.Message)
	}

	b.built = true
	return m, nil
}

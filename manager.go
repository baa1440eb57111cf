package ecoauth

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ecochallenge/ecoauth/credstore"
	internalaudit "github.com/ecochallenge/ecoauth/internal/audit"
	"golang.org/x/sync/singleflight"
)

// Manager owns one logical session: the persisted credential pair, the refresh
// state machine, and the single-flight refresh gate. It is safe for concurrent use
// after [Builder.Build].
type Manager struct {
	config     Config
	baseURL    *url.URL
	client     *http.Client
	store      credstore.Store
	closeStore func() error
	logger     *slog.Logger
	audit      *internalaudit.Dispatcher
	metrics    *Metrics
	now        func() time.Time

	// refreshes coalesces concurrent refreshes keyed by the rejected access token.
	refreshes singleflight.Group

	// pairMu orders multi-key read and write sequences on the credential pair.
	pairMu sync.RWMutex
	state  atomic.Int32

	emailMu sync.RWMutex
	email   string

	closeOnce sync.Once
	closeErr  error
}

// Close flushes pending audit events and releases the credential store. The
// stored credentials are left untouched.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.closeOnce.Do(func() {
		if m.audit != nil {
			m.audit.Close()
		}
		if m.closeStore != nil {
			m.closeErr = m.closeStore()
		}
	})
	return m.closeErr
}

// Config returns a copy of the configuration the Manager was built with.
func (m *Manager) Config() Config {
	return cloneConfig(m.config)
}

// AuditDropped reports how many audit events were dropped under backpressure.
func (m *Manager) AuditDropped() uint64 {
	if m == nil || m.audit == nil {
		return 0
	}
	return m.audit.Dropped()
}

// MetricsSnapshot copies the current counters and histograms. It is empty when
// metrics are disabled.
func (m *Manager) MetricsSnapshot() MetricsSnapshot {
	if m == nil || m.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return m.metrics.Snapshot()
}

func (m *Manager) metricInc(id MetricID) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.Inc(id)
}

func (m *Manager) metricObserve(id MetricID, d time.Duration) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.Observe(id, d)
}

// observePage and observePaginationFailure let FetchAllPages count pages when it
// is driven by a Manager.
func (m *Manager) observePage() { m.metricInc(MetricPagesFetched) }

func (m *Manager) observePaginationFailure() { m.metricInc(MetricPaginationFailure) }

// pagePath maps a next cursor for resolve. A cursor on the base URL's own
// origin drops the base path prefix, since resolve puts it back.
func (m *Manager) pagePath(next string) string {
	path := NextPath(next)
	u, err := url.Parse(next)
	if err != nil || !u.IsAbs() ||
		!strings.EqualFold(u.Scheme, m.baseURL.Scheme) || !strings.EqualFold(u.Host, m.baseURL.Host) {
		return path
	}
	prefix := strings.TrimRight(m.baseURL.EscapedPath(), "/")
	rest, ok := strings.CutPrefix(path, prefix)
	if prefix == "" || !ok {
		return path
	}
	switch {
	case rest == "" || rest[0] == '?':
		return "/" + rest
	case rest[0] == '/':
		return rest
	default:
		// "/apiv1/..." under base "/api" is not below the prefix.
		return path
	}
}

// resolve joins an endpoint path onto the base URL. A leading slash is optional and
// the base URL's own path is kept as a prefix. Absolute URLs are used as given.
func (m *Manager) resolve(path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}

	escaped := ref.EscapedPath()
	if !strings.HasPrefix(escaped, "/") {
		escaped = "/" + escaped
	}
	out := strings.TrimRight(m.baseURL.String(), "/") + escaped
	if ref.RawQuery != "" {
		out += "?" + ref.RawQuery
	}
	return out, nil
}

package metrics

import (
	"sort"
	"sync/atomic"
	"time"
)

// MetricID identifies a counter, and for latency IDs also a histogram.
type MetricID uint16

const (
	MetricFetchTotal MetricID = iota
	MetricFetchUnauthorized
	MetricFetchRetry
	MetricFetchTransportFailure
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshShared
	MetricRefreshSkipped
	MetricRefreshRotated
	MetricLoginSuccess
	MetricLoginFailure
	MetricRegisterSuccess
	MetricRegisterFailure
	MetricTokensSaved
	MetricSessionEnded
	MetricSignOut
	MetricPagesFetched
	MetricPaginationFailure
	MetricFetchLatency
	MetricRefreshLatency
	MetricIDCount
)

// HistBucketCount is the number of buckets in a latency histogram.
const HistBucketCount = len(bucketBounds) + 1

// bucketBounds are inclusive upper bounds; anything slower lands in +Inf.
var bucketBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

// latencyIDs are the only IDs that own a histogram, in slot order.
var latencyIDs = [...]MetricID{MetricFetchLatency, MetricRefreshLatency}

func latencySlot(id MetricID) int {
	for i, l := range latencyIDs {
		if l == id {
			return i
		}
	}
	return -1
}

// IsLatency reports whether id carries a histogram.
func IsLatency(id MetricID) bool { return latencySlot(id) >= 0 }

// BucketIndex maps d onto the bucket layout 5ms, 10ms, 25ms, 50ms, 100ms,
// 250ms, 500ms, +Inf. Durations are truncated to whole milliseconds first.
func BucketIndex(d time.Duration) int {
	d = d.Truncate(time.Millisecond)
	return sort.Search(len(bucketBounds), func(i int) bool { return d <= bucketBounds[i] })
}

// Config controls which metric families are recorded.
type Config struct {
	Enabled       bool
	EnableLatency bool
}

// slot keeps each counter on its own cache line.
type slot struct {
	n atomic.Uint64
	_ [56]byte
}

// Metrics holds atomic counters and optional latency histograms. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	on      bool
	latency bool
	counts  [MetricIDCount]slot
	hists   [len(latencyIDs)][HistBucketCount]atomic.Uint64
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func New(cfg Config) *Metrics {
	return &Metrics{on: cfg.Enabled, latency: cfg.Enabled && cfg.EnableLatency}
}

func (m *Metrics) Enabled() bool        { return m != nil && m.on }
func (m *Metrics) LatencyEnabled() bool { return m != nil && m.latency }

func (m *Metrics) Inc(id MetricID) { m.Add(id, 1) }

func (m *Metrics) Add(id MetricID, n uint64) {
	if !m.Enabled() || id >= MetricIDCount || n == 0 {
		return
	}
	m.counts[id].n.Add(n)
}

// Observe records d into the histogram for id. Non-latency IDs are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() {
		return
	}
	if i := latencySlot(id); i >= 0 {
		m.hists[i][BucketIndex(d)].Add(1)
	}
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricIDCount {
		return 0
	}
	return m.counts[id].n.Load()
}

// Snapshot copies every counter, plus the histograms when latency is on. A
// disabled or nil Metrics yields empty maps.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{Counters: map[MetricID]uint64{}, Histograms: map[MetricID][]uint64{}}
	if !m.Enabled() {
		return s
	}
	for id := range MetricIDCount {
		if !IsLatency(id) {
			s.Counters[id] = m.counts[id].n.Load()
		}
	}
	if !m.latency {
		return s
	}
	for i, id := range latencyIDs {
		out := make([]uint64, HistBucketCount)
		for b := range out {
			out[b] = m.hists[i][b].Load()
		}
		s.Histograms[id] = out
	}
	return s
}

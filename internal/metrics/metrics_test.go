package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestDisabledNoIncrement(t *testing.T) {
	m := New(Config{Enabled: false})
	m.Inc(MetricLoginSuccess)

	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestNilMetricsIsNoOp(t *testing.T) {
	var m *Metrics
	m.Inc(MetricFetchTotal)
	m.Observe(MetricFetchLatency, time.Millisecond)
	if m.Value(MetricFetchTotal) != 0 || m.Enabled() {
		t.Fatal("nil metrics must record nothing")
	}
	if len(m.Snapshot().Counters) != 0 {
		t.Fatal("nil metrics snapshot must be empty")
	}
}

func TestConcurrentIncrementSafe(t *testing.T) {
	m := New(Config{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricRefreshShared)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricRefreshShared); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestHistogramBucketCorrectness(t *testing.T) {
	m := New(Config{Enabled: true, EnableLatency: true})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	}
	for _, d := range observations {
		m.Observe(MetricFetchLatency, d)
	}
	m.Observe(MetricFetchTotal, time.Millisecond)

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricFetchLatency]
	if len(buckets) != HistBucketCount {
		t.Fatalf("expected %d buckets, got %d", HistBucketCount, len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
	if _, ok := snap.Histograms[MetricFetchTotal]; ok {
		t.Fatal("counter id must not carry a histogram")
	}
}

func TestSnapshotConsistency(t *testing.T) {
	m := New(Config{Enabled: true})
	m.Inc(MetricLoginSuccess)
	m.Add(MetricPagesFetched, 3)
	m.Observe(MetricRefreshLatency, time.Millisecond)

	snap := m.Snapshot()
	if snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("expected login success 1, got %d", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricPagesFetched] != 3 {
		t.Fatalf("expected pages 3, got %d", snap.Counters[MetricPagesFetched])
	}
	if len(snap.Histograms) != 0 {
		t.Fatal("latency disabled must not report histograms")
	}
}

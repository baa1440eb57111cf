package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/ecochallenge/ecoauth"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot ecoauth.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() ecoauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := ecoauth.MetricsSnapshot{
		Counters:   make(map[ecoauth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[ecoauth.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if len(data.DataPoints) > 0 {
					out[m.Name] = data.DataPoints[0].Value
				}
			case metricdata.Gauge[int64]:
				if len(data.DataPoints) > 0 {
					out[m.Name] = data.DataPoints[0].Value
				}
			}
		}
	}
	return out
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("ecoauth-test")

	src := &fakeSource{
		snapshot: ecoauth.MetricsSnapshot{
			Counters: map[ecoauth.MetricID]uint64{
				ecoauth.MetricRefreshSuccess: 3,
				ecoauth.MetricRefreshShared:  5,
			},
			Histograms: map[ecoauth.MetricID][]uint64{
				ecoauth.MetricRefreshLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	got := collect(t, reader)
	checks := map[string]int64{
		"ecoauth_refresh_success_total":                   3,
		"ecoauth_refresh_shared_total":                    5,
		"ecoauth_refresh_latency_seconds_bucket_le_0_005": 1,
		"ecoauth_refresh_latency_seconds_bucket_le_inf":   8,
		"ecoauth_refresh_latency_seconds_count":           8,
		"ecoauth_audit_dropped_total":                     1,
	}
	for name, want := range checks {
		if got[name] != want {
			t.Fatalf("%s = %d, want %d (all: %v)", name, got[name], want, got)
		}
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("ecoauth-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewOTelExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
	if _, err := NewOTelExporter(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource for nil manager, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("ecoauth-test")

	src := &fakeSource{
		snapshot: ecoauth.MetricsSnapshot{
			Counters: map[ecoauth.MetricID]uint64{
				ecoauth.MetricFetchTotal: 1,
			},
			Histograms: map[ecoauth.MetricID][]uint64{
				ecoauth.MetricFetchLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[ecoauth.MetricFetchTotal] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}

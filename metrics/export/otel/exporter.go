package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/ecochallenge/ecoauth"
	"github.com/ecochallenge/ecoauth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// instruments holds what was registered for one family. Counters use only
// total; histograms use buckets and count.
type instruments struct {
	total   metric.Int64ObservableCounter
	buckets [ecoauth.HistBucketCount]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// OTelExporter publishes ecoauth metrics as OpenTelemetry observable instruments.
// Values are read from the source on every collection.
type OTelExporter struct {
	source       internaldefs.Source
	byName       map[string]*instruments
	registration metric.Registration
}

// NewOTelExporter registers instruments on meter that read from m.
func NewOTelExporter(meter metric.Meter, m *ecoauth.Manager) (*OTelExporter, error) {
	if m == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, m)
}

// NewOTelExporterFromSource registers instruments that read from source.
func NewOTelExporterFromSource(meter metric.Meter, source internaldefs.Source) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source, byName: map[string]*instruments{}}
	var observables []metric.Observable

	defs := append(append([]internaldefs.Def(nil), internaldefs.Defs...), internaldefs.AuditDropped)
	for _, d := range defs {
		ins := &instruments{}
		var err error
		switch d.Kind {
		case internaldefs.Counter:
			ins.total, err = meter.Int64ObservableCounter(d.Name, metric.WithDescription(d.Help))
			observables = append(observables, ins.total)
		case internaldefs.Histogram:
			for i, le := range internaldefs.Bounds {
				name := d.Name + "_bucket_le_" + internaldefs.BoundSuffix(le)
				if ins.buckets[i], err = meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count.")); err != nil {
					break
				}
				observables = append(observables, ins.buckets[i])
			}
			if err == nil {
				ins.count, err = meter.Int64ObservableGauge(d.Name+"_count", metric.WithDescription("Histogram total sample count."))
				observables = append(observables, ins.count)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("register instruments for %s: %w", d.Name, err)
		}
		e.byName[d.Name] = ins
	}

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	samples, _ := internaldefs.Gather(e.source)
	for _, s := range samples {
		ins := e.byName[s.Def.Name]
		if ins == nil {
			continue
		}
		if s.Def.Kind == internaldefs.Counter {
			o.ObserveInt64(ins.total, int64(s.Value))
			continue
		}
		for i, v := range s.Buckets {
			o.ObserveInt64(ins.buckets[i], int64(v))
		}
		o.ObserveInt64(ins.count, int64(s.Count()))
	}
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}

package prometheus

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ecochallenge/ecoauth"
	"github.com/ecochallenge/ecoauth/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)

// PrometheusExporter renders ecoauth metrics in Prometheus text exposition format.
type PrometheusExporter struct {
	source internaldefs.Source
}

// NewPrometheusExporter reads from the given [ecoauth.Manager].
func NewPrometheusExporter(m *ecoauth.Manager) *PrometheusExporter {
	return &PrometheusExporter{source: m}
}

// NewPrometheusExporterFromSource reads from any snapshot source.
func NewPrometheusExporterFromSource(source internaldefs.Source) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler serves the current rendering.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_ = p.write(w)
	})
}

// Render returns "" when metrics are disabled on the source.
func (p *PrometheusExporter) Render() string {
	var sb strings.Builder
	sb.Grow(4096)
	_ = p.write(&sb)
	return sb.String()
}

func (p *PrometheusExporter) write(w io.Writer) error {
	if p == nil || p.source == nil {
		return nil
	}
	samples, ok := internaldefs.Gather(p.source)
	if !ok {
		return nil
	}
	for _, s := range samples {
		if err := writeSample(w, s); err != nil {
			return err
		}
	}
	return nil
}

func writeSample(w io.Writer, s internaldefs.Sample) error {
	name := s.Def.Name
	typ := "counter"
	if s.Def.Kind == internaldefs.Histogram {
		typ = "histogram"
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", name, helpEscaper.Replace(s.Def.Help), name, typ); err != nil {
		return err
	}

	if s.Def.Kind == internaldefs.Counter {
		_, err := fmt.Fprintf(w, "%s %d\n", name, s.Value)
		return err
	}
	for i, le := range internaldefs.Bounds {
		if _, err := fmt.Fprintf(w, "%s_bucket{le=%q} %d\n", name, le, s.Buckets[i]); err != nil {
			return err
		}
	}
	// Snapshots keep bucket counts only, so the sum is not tracked.
	_, err := fmt.Fprintf(w, "%s_count %d\n%s_sum 0\n", name, s.Count(), name)
	return err
}

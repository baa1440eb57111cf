// Package internaldefs names the exported metric families and reads a
// snapshot into [Sample] values, so the Prometheus and OTel renderings agree.
// It performs no I/O and imports no exporter package.
package internaldefs

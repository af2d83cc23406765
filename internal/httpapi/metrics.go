package httpapi

import (
	"encoding/base64"
	"html/template"
	"mime"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for the query surface.
type Metrics struct {
	registry      *prometheus.Registry
	queriesTotal  *prometheus.CounterVec
	queryDuration prometheus.Histogram
}

// NewMetrics creates and registers the query metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	queriesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clipsearch",
		Name:      "queries_total",
		Help:      "Total search queries by outcome.",
	}, []string{"outcome"})

	queryDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "clipsearch",
		Name:      "query_duration_seconds",
		Help:      "End-to-end query latency (embed + search + resolve).",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	registry.MustRegister(queriesTotal, queryDuration)

	return &Metrics{
		registry:      registry,
		queriesTotal:  queriesTotal,
		queryDuration: queryDuration,
	}
}

// Registry returns the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordQuery records one query.
func (m *Metrics) RecordQuery(duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.queriesTotal.WithLabelValues(outcome).Inc()
	m.queryDuration.Observe(duration.Seconds())
}

// dataURL encodes image content as a data: URL for inline display. The MIME
// type comes from the source path's extension.
func dataURL(path string, data []byte) template.URL {
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return template.URL("data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data))
}

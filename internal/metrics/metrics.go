// Package metrics defines the Prometheus collectors used across the service
// and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	IngestJobsTotal     *prometheus.CounterVec
	IngestJobDuration   *prometheus.HistogramVec
	ChunksEmbeddedTotal prometheus.Counter
	ChunksFailedTotal   prometheus.Counter
	VectorsUpsertsTotal prometheus.Counter
	ChatRequestsTotal   *prometheus.CounterVec
	ChatLatency         prometheus.Histogram
	RetrievalMatches    prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		IngestJobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_jobs_total",
				Help: "Total ingestion jobs by source kind and outcome (ready, error).",
			},
			[]string{"kind", "outcome"},
		),
		IngestJobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_job_duration_seconds",
				Help:    "End-to-end ingestion job duration in seconds.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"kind"},
		),
		ChunksEmbeddedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chunks_embedded_total",
				Help: "Total chunks successfully embedded.",
			},
		),
		ChunksFailedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chunks_failed_total",
				Help: "Total chunks that failed at the embedding stage.",
			},
		),
		VectorsUpsertsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vectors_upserted_total",
				Help: "Total vectors uploaded to the vector store.",
			},
		),
		ChatRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_requests_total",
				Help: "Total chat requests by outcome (ok, error).",
			},
			[]string{"outcome"},
		),
		ChatLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chat_request_duration_seconds",
				Help:    "Chat request latency in seconds.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		RetrievalMatches: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "retrieval_matches",
				Help:    "Number of vector matches returned per retrieval.",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 40},
			},
		),
	}

	prometheus.MustRegister(
		m.IngestJobsTotal,
		m.IngestJobDuration,
		m.ChunksEmbeddedTotal,
		m.ChunksFailedTotal,
		m.VectorsUpsertsTotal,
		m.ChatRequestsTotal,
		m.ChatLatency,
		m.RetrievalMatches,
	)
	return m
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

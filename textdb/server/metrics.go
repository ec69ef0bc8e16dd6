// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the server.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	DocsAdded       prometheus.Counter
	DocsDeleted     prometheus.Counter
	SearchesTotal   *prometheus.CounterVec
	SearchHits      prometheus.Histogram
	Commits         prometheus.Counter
	IndexDocs       prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewMetrics creates the collectors and registers them in reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textindex_http_requests_total",
				Help: "Total number of HTTP requests by route and status.",
			},
			[]string{"route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "textindex_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"route"},
		),
		DocsAdded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "textindex_docs_added_total",
				Help: "Total documents added or updated.",
			},
		),
		DocsDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "textindex_deletes_total",
				Help: "Total delete requests.",
			},
		),
		SearchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textindex_searches_total",
				Help: "Total searches by result (hit, miss, error).",
			},
			[]string{"result"},
		),
		SearchHits: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "textindex_search_hits",
				Help:    "Number of matching documents per search.",
				Buckets: []float64{0, 1, 5, 10, 50, 100, 1000, 10000},
			},
		),
		Commits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "textindex_commits_total",
				Help: "Total commits made by the server.",
			},
		),
		IndexDocs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "textindex_docs",
				Help: "Number of live documents in the last commit.",
			},
		),
		gatherer: reg,
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.DocsAdded,
		m.DocsDeleted,
		m.SearchesTotal,
		m.SearchHits,
		m.Commits,
		m.IndexDocs,
	)

	return m
}

// Handler returns the scrape handler of the registry the metrics were registered in.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument counts requests to a route and measures their duration.
func (m *Metrics) instrument(route string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(rec, r)
		m.RequestDuration.WithLabelValues(route).Observe(time.Since(started).Seconds())
		m.RequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}

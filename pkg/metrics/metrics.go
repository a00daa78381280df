// Package metrics provides Prometheus metrics for the dirsync server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes.
const (
	FetchSent     = "sent"
	FetchNotFound = "not_found"
	FetchError    = "error"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirsync_requests_total",
			Help: "Total number of requests served, by command",
		},
		[]string{"command"},
	)

	bytesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dirsync_file_bytes_sent_total",
			Help: "Total bytes of file contents streamed to clients",
		},
	)

	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirsync_fetches_total",
			Help: "Total number of file fetches, by outcome",
		},
		[]string{"outcome"},
	)

	listedFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dirsync_listed_files",
			Help: "Number of files in the most recent listing",
		},
	)

	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dirsync_active_connections",
			Help: "Number of connected clients",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records a request for the given command.
func RecordRequest(command string) {
	requestsTotal.WithLabelValues(command).Inc()
}

// RecordBytesSent records streamed file contents.
func RecordBytesSent(n int) {
	bytesSent.Add(float64(n))
}

// RecordFetch records the outcome of a file fetch.
func RecordFetch(outcome string) {
	fetchesTotal.WithLabelValues(outcome).Inc()
}

// SetListedFiles sets the size of the most recent listing.
func SetListedFiles(n int) {
	listedFiles.Set(float64(n))
}

// ConnectionOpened increments the connected clients gauge.
func ConnectionOpened() {
	activeConnections.Inc()
}

// ConnectionClosed decrements the connected clients gauge.
func ConnectionClosed() {
	activeConnections.Dec()
}

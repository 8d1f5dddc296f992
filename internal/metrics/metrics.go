// Package metrics provides Prometheus instrumentation for the bet processor.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Enqueue outcomes.
const (
	EnqueueAccepted = "accepted"
	EnqueueClosed   = "closed"
	EnqueueTimeout  = "timeout"
)

var (
	// EnqueueTotal counts submission attempts by outcome.
	EnqueueTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "betproc_enqueue_total",
		Help: "Bet submissions by outcome",
	}, []string{"outcome"})

	// ProcessedTotal counts processed bets by incoming status and result
	// ("accepted" or "review").
	ProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "betproc_processed_total",
		Help: "Bets processed by status and result",
	}, []string{"status", "result"})

	// ProcessingLatency tracks time spent in the processor per bet,
	// including the simulated delay.
	ProcessingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "betproc_processing_latency_seconds",
		Help:    "Per-bet processing latency in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	})

	// WorkerFaults counts processing faults contained by the worker loop.
	WorkerFaults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "betproc_worker_faults_total",
		Help: "Processing faults contained at the worker boundary",
	})

	// InFlight tracks bets currently inside the processor.
	InFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "betproc_in_flight",
		Help: "Bets currently being processed",
	})

	// QueueDepth tracks buffered bets awaiting a worker.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "betproc_queue_depth",
		Help: "Bets buffered in the queue",
	})

	// ArchiveDropped counts notifications the archiver could not buffer.
	ArchiveDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "betproc_archive_dropped_total",
		Help: "Archive writes dropped because the buffer was full",
	})

	// ArchiveErrors counts failed archive writes.
	ArchiveErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "betproc_archive_errors_total",
		Help: "Archive store write failures",
	}, []string{"op"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "betproc_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "betproc_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "betproc_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Prefer the route pattern to keep label cardinality bounded.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}

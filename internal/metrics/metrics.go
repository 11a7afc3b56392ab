// Package metrics provides Prometheus instrumentation for the auction engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BidsAccepted counts accepted bids, partitioned by whether the bid
	// advanced the auction price or lost the commit race.
	BidsAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artbid_bids_accepted_total",
		Help: "Total accepted bids",
	}, []string{"leading"})

	// BidsRejected counts rejected bids by rejection reason.
	BidsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artbid_bids_rejected_total",
		Help: "Total rejected bids",
	}, []string{"reason"})

	// BidLatency tracks the bid submission path end to end.
	BidLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "artbid_bid_latency_seconds",
		Help:    "Bid submission latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "artbid_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// EventsDelivered counts fan-out deliveries that reached a socket,
	// by event type.
	EventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artbid_events_delivered_total",
		Help: "Events delivered to live subscribers",
	}, []string{"type"})

	// BroadcastDuration tracks how long one broadcast fan-out takes.
	BroadcastDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "artbid_broadcast_duration_seconds",
		Help:    "Broadcast fan-out duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"type"})

	// AuctionsFinalized counts expiry-sweep finalizations by outcome.
	AuctionsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artbid_auctions_finalized_total",
		Help: "Auctions finalized by the expiry sweep",
	}, []string{"status"})

	// SyncedBids counts offline-queue batch outcomes.
	SyncedBids = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artbid_synced_bids_total",
		Help: "Offline bids processed by the batch sync endpoint",
	}, []string{"outcome"})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artbid_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "artbid_http_request_duration_seconds",
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

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
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

// Hijack passes through to the underlying writer so the WebSocket upgrade
// works behind this middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// Package metrics provides Prometheus metrics for the gateway.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/aussiebroadwan/gateway/internal/gateway/broker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Broker bridge metrics
	rpcCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_rpc_calls_total",
			Help: "Total number of worker calls by queue and outcome",
		},
		[]string{"queue", "outcome"}, // "reply", "timeout", "canceled", "unavailable", "collision"
	)

	rpcDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_rpc_duration_seconds",
			Help:    "Time from publish to reply or give-up",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"queue"},
	)

	rpcPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_rpc_pending",
			Help: "Outstanding correlation entries",
		},
	)

	repliesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_rpc_replies_dropped_total",
			Help: "Replies that resolved no call",
		},
		[]string{"reason"},
	)

	brokerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_broker_state",
			Help: "Broker connection state: 0 disconnected, 1 connecting, 2 ready",
		},
	)

	// Auth metrics
	signInsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_sign_ins_total",
			Help: "Sign-in attempts by method and result",
		},
		[]string{"method", "result"}, // method: "password", "federation", "step_up"
	)

	refreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_claim_refreshes_total",
			Help: "Claim rotations from a refresh token",
		},
		[]string{"result"},
	)

	// Push metrics
	pushSockets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_push_sockets",
			Help: "Live push notification sockets",
		},
	)

	pushDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_push_notifications_total",
			Help: "Worker notifications by whether any socket received them",
		},
		[]string{"delivered"},
	)
)

// BridgeObserver feeds broker bridge events into the metrics above.
type BridgeObserver struct{}

var _ broker.Observer = BridgeObserver{}

func (BridgeObserver) StateChanged(s broker.State) { brokerState.Set(float64(s)) }

func (BridgeObserver) CallFinished(q broker.Queue, outcome string, elapsed time.Duration) {
	rpcCallsTotal.WithLabelValues(string(q), outcome).Inc()
	if outcome != "unavailable" && outcome != "collision" {
		rpcDuration.WithLabelValues(string(q)).Observe(elapsed.Seconds())
	}
}

func (BridgeObserver) PendingChanged(n int) { rpcPending.Set(float64(n)) }

func (BridgeObserver) ReplyDropped(reason string) { repliesDroppedTotal.WithLabelValues(reason).Inc() }

// RecordSignIn records a sign-in attempt.
func RecordSignIn(method, result string) {
	signInsTotal.WithLabelValues(method, result).Inc()
}

// RecordRefresh records a claim rotation.
func RecordRefresh(result string) {
	refreshesTotal.WithLabelValues(result).Inc()
}

// SetPushSockets sets the number of live push sockets.
func SetPushSockets(n int) {
	pushSockets.Set(float64(n))
}

// RecordPushDelivery records a worker notification fan-out.
func RecordPushDelivery(sockets int) {
	pushDeliveriesTotal.WithLabelValues(strconv.FormatBool(sockets > 0)).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics labelled by the matched route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		// ServeMux fills in Pattern on the way down.
		route := r.Pattern
		if route == "" {
			route = "other"
		}
		status := strconv.Itoa(wrapped.statusCode)
		if wrapped.hijacked {
			status = "101"
		}

		httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	hijacked   bool
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: underlying ResponseWriter is not a Hijacker")
	}
	rw.hijacked = true
	return hj.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

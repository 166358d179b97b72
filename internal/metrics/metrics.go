// Package metrics defines the Prometheus instrumentation for the engine.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tradearena"

var (
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_total",
		Help:      "Orders placed, by type and final status.",
	}, []string{"order_type", "status"})

	OrderLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "order_latency_seconds",
		Help:      "Time from order receipt to terminal or resting state.",
		Buckets:   prometheus.DefBuckets,
	})

	TicksProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ticks_processed_total",
		Help:      "Price ticks consumed from the feed.",
	})

	CandlesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "candles_completed_total",
		Help:      "Candles closed by the aggregator.",
	})

	RankRecomputes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rank_recomputes_total",
		Help:      "Leaderboard recomputation passes.",
	})

	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_clients",
		Help:      "Connected WebSocket clients.",
	})

	WSDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_dropped_messages_total",
		Help:      "Messages dropped because a client's send buffer was full.",
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, path and status.",
	}, []string{"method", "path", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by path.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"path"})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency per route.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		httpRequests.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes through so WebSocket upgrades work behind the middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

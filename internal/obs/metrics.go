package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"method", "path", "status"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the service is ready to accept traffic.",
	})

	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	tokenRotationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_token_rotations_total",
		Help: "Successful refresh-token rotations.",
	})

	rejectedTokensTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_rejected_tokens_total",
		Help: "Requests rejected for a missing or invalid access token.",
	})
)

// Init registers metrics in the default registry.
func Init() {
	prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration,
		ready, loginsTotal, tokenRotationsTotal, rejectedTokensTotal)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady flips the readiness gauge reported on /readyz.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
	} else {
		ready.Set(0)
	}
}

// CountLogin records a login attempt. Outcome is "ok", "not_found" or "denied".
func CountLogin(outcome string) { loginsTotal.WithLabelValues(outcome).Inc() }

// CountTokenRotation records a successful refresh rotation.
func CountTokenRotation() { tokenRotationsTotal.Inc() }

// CountRejectedToken records an access-token verification failure.
func CountRejectedToken() { rejectedTokensTotal.Inc() }

// Instrument measures RPS, latency and in-flight count for a handler.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses identifier path segments so metric label
// cardinality stays bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	seg := strings.Split(strings.Trim(p, "/"), "/")
	if len(seg) < 3 || seg[0] != "api" || seg[1] != "v1" {
		return p
	}
	rest := seg[2:]
	switch rest[0] {
	case "videos":
		// /api/v1/videos/:id[/comments|/like]
		if len(rest) >= 2 {
			rest[1] = ":id"
		}
	case "comments", "playlists":
		// /api/v1/comments/:id[/like], /api/v1/playlists/:id[/videos/:videoId]
		if len(rest) >= 2 {
			rest[1] = ":id"
		}
		if rest[0] == "playlists" && len(rest) == 4 && rest[2] == "videos" {
			rest[3] = ":videoId"
		}
	case "users":
		// /api/v1/users/c/:username
		if len(rest) == 3 && rest[1] == "c" {
			rest[2] = ":username"
		}
	}
	return "/api/v1/" + strings.Join(rest, "/")
}

// statusWriter captures the response code for labelling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

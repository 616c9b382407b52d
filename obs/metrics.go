/*
Package obs holds the service's logging and Prometheus metrics.

METRICS:
  http_in_flight_requests            gauge
  http_requests_total                counter {method, path, status}
  http_request_duration_seconds      histogram {method, path, status}
  ledger_courses_created_total       counter
  ledger_purchases_total             counter {result}
  ledger_resource_reads_total        counter {result}
  ledger_active_courses              gauge (sampled)
  ledger_event_subscribers           gauge (sampled)

  path is the chi route pattern (/api/courses/{id}), never the raw URL,
  so course ids and accounts do not explode label cardinality.

  Every Metrics value owns its registry, so tests can build as many as
  they like without duplicate-registration panics.
*/
package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Registry *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	CoursesCreated prometheus.Counter
	Purchases      *prometheus.CounterVec
	ResourceReads  *prometheus.CounterVec

	ActiveCourses    prometheus.Gauge
	EventSubscribers prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		CoursesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_courses_created_total",
			Help: "Courses created.",
		}),
		Purchases: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_purchases_total",
				Help: "Purchase attempts by result.",
			},
			[]string{"result"},
		),
		ResourceReads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_resource_reads_total",
				Help: "Protected resource reads by result.",
			},
			[]string{"result"},
		),
		ActiveCourses: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_active_courses",
			Help: "Active courses at the last sample.",
		}),
		EventSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_event_subscribers",
			Help: "Live event stream subscribers at the last sample.",
		}),
	}
	m.Registry.MustRegister(
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
		m.CoursesCreated, m.Purchases, m.ResourceReads,
		m.ActiveCourses, m.EventSubscribers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Instrument records RPS, latency and in-flight requests.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := routePattern(r)
		status := strconv.Itoa(sw.code)
		m.httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// statusWriter remembers the response code.
type statusWriter struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.code = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps Server-Sent Events working through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from proxy headers (TrustProxy only)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Logger:     One structured zap line per request
  5. Metrics:    Prometheus RPS, latency, in-flight
  6. CORS:       Cross-origin requests for frontends
  7. Identity:   Caller resolution (header or bearer token)

  Mutating routes additionally pass through the per-caller rate limiter.

ROUTE GROUPS:
  /api/courses/*        Course registry, purchases, access
  /api/accounts/*       Per-account listings and wallets
  /api/events           CourseCreated stream
  /api/scenarios/*      Demo scenarios (when enabled)
  /healthz              Liveness
  /metrics              Prometheus exposition

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warp/course-ledger/auth"
	"go.uber.org/zap"
)

// RouterConfig carries the router options that come from configuration.
type RouterConfig struct {
	CORSOrigins []string
	Resolver    *auth.Resolver
	Limiter     *RateLimiter
	Scenarios   bool

	// TrustProxy mounts middleware.RealIP. Leave it off unless a proxy in
	// front overwrites X-Forwarded-For, or clients can pick their own
	// rate-limit bucket.
	TrustProxy bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	if cfg.Resolver == nil {
		cfg.Resolver = auth.NewResolver("", "")
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.Logger))
	r.Use(h.Metrics.Instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", auth.HeaderAccountID},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	r.Use(cfg.Resolver.Middleware)

	limited := func(r chi.Router) chi.Router {
		if cfg.Limiter == nil {
			return r
		}
		return r.With(cfg.Limiter.Middleware)
	}

	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Course routes
		r.Route("/courses", func(r chi.Router) {
			r.Get("/", h.ListCourses)
			limited(r).Post("/", h.CreateCourse)
			r.Get("/{id}", h.GetCourse)
			limited(r).Post("/{id}/deactivate", h.DeactivateCourse)
			limited(r).Post("/{id}/purchase", h.PurchaseCourse)
			r.Get("/{id}/resource", h.GetResource)
			r.Get("/{id}/enrollments/{account}", h.GetEnrollment)
			r.Get("/{id}/roster", h.GetRoster)
		})

		// Account routes
		r.Route("/accounts/{account}", func(r chi.Router) {
			r.Get("/courses", h.GetStudentCourses)
			r.Get("/teaching", h.GetInstructorCourses)
			r.Get("/balance", h.GetBalance)
			limited(r).Post("/deposits", h.Deposit)
		})

		r.Get("/events", h.Events)

		// Scenario routes
		if cfg.Scenarios {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				limited(r).Post("/load", h.LoadScenario)
			})
		}
	})

	return r
}

// requestLogger writes one line per request with zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote", r.RemoteAddr),
			)
		})
	}
}

package obs

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrument_UsesRoutePattern(t *testing.T) {
	m := NewMetrics()
	r := chi.NewRouter()
	r.Use(m.Instrument)
	r.Get("/api/courses/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"1", "2", "3"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/courses/"+id, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `http_requests_total{method="GET",path="/api/courses/{id}",status="404"} 3`)
	assert.Contains(t, body, "http_in_flight_requests 0")
}

func TestHandler_ExposesLedgerCounters(t *testing.T) {
	m := NewMetrics()
	m.CoursesCreated.Inc()
	m.Purchases.WithLabelValues("ok").Inc()
	m.ResourceReads.WithLabelValues("denied").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, body, "ledger_courses_created_total 1")
	assert.Contains(t, body, `ledger_purchases_total{result="ok"} 1`)
	assert.Contains(t, body, `ledger_resource_reads_total{result="denied"} 1`)
}

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics()
		NewMetrics()
	})
}

func TestStatusWriter_Flushes(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, code: http.StatusOK}

	sw.WriteHeader(http.StatusAccepted)
	sw.Flush()

	assert.Equal(t, http.StatusAccepted, sw.code)
	assert.True(t, rec.Flushed)
}

func TestNewLogger(t *testing.T) {
	for _, mode := range []string{"prod", "dev", ""} {
		logger, err := NewLogger(mode)
		require.NoError(t, err, mode)
		logger.Info("hello")
	}
}

func TestRedactAccount(t *testing.T) {
	assert.Equal(t, "bob", RedactAccount("bob"))
	got := RedactAccount("0x1234567890abcdef1234")
	assert.True(t, strings.HasPrefix(got, "0x1234"))
	assert.True(t, strings.HasSuffix(got, "1234"))
}

package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/course-ledger/auth"
	"github.com/warp/course-ledger/ledger"
	"github.com/warp/course-ledger/ledger/store"
)

func TestRateLimiter_Burst(t *testing.T) {
	l := NewRateLimiter(1, 2)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "buckets are per key")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("a"))
}

func TestRateLimiter_PrunesIdleBuckets(t *testing.T) {
	l := NewRateLimiter(1, 1)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("a")
	l.Allow("b")
	require.Equal(t, 2, l.Len())

	now = now.Add(10 * time.Minute)
	l.Allow("c")

	assert.Equal(t, 1, l.Len())
}

func TestRateLimiter_Middleware(t *testing.T) {
	h := NewHandler(Deps{Ledger: ledger.New(store.NewMemory())})
	router := NewRouter(h, RouterConfig{Limiter: NewRateLimiter(0.001, 1)})

	post := func(caller string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/accounts/"+caller+"/deposits", jsonBody(t, map[string]string{"amount": "1"}))
		req.Header.Set(auth.HeaderAccountID, caller)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, post("0xB0B"))
	assert.Equal(t, http.StatusTooManyRequests, post("0xB0B"))
	assert.Equal(t, http.StatusOK, post("0xCA401"), "other identities keep their budget")

	// Reads are never limited
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/courses", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestLimitKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	assert.Equal(t, "ip:10.0.0.7", limitKey(req))

	// Forwarding headers are client-controlled and ignored here
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	req.Header.Set("X-Real-IP", "203.0.113.10")
	assert.Equal(t, "ip:10.0.0.7", limitKey(req))

	req = req.WithContext(auth.ContextWithIdentity(req.Context(), "0xB0B"))
	assert.Equal(t, "id:0xB0B", limitKey(req))
}

func TestRateLimiter_RotatingForwardedForShareOneBucket(t *testing.T) {
	h := NewHandler(Deps{Ledger: ledger.New(store.NewMemory())})
	router := NewRouter(h, RouterConfig{Limiter: NewRateLimiter(0.001, 1)})

	post := func(forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/courses", jsonBody(t, map[string]string{"title": "x"}))
		req.RemoteAddr = "198.51.100.4:40000"
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	// GIVEN: An anonymous client with a burst of one
	assert.Equal(t, http.StatusUnauthorized, post("203.0.113.1"))

	// WHEN/THEN: A fresh X-Forwarded-For does not buy a fresh bucket
	for i := 2; i < 6; i++ {
		assert.Equal(t, http.StatusTooManyRequests, post(fmt.Sprintf("203.0.113.%d", i)))
	}
}

func TestRateLimiter_TrustProxyKeysOnForwardedFor(t *testing.T) {
	h := NewHandler(Deps{Ledger: ledger.New(store.NewMemory())})
	router := NewRouter(h, RouterConfig{Limiter: NewRateLimiter(0.001, 1), TrustProxy: true})

	post := func(forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/courses", jsonBody(t, map[string]string{"title": "x"}))
		req.RemoteAddr = "10.0.0.2:40000"
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	// Behind a trusted proxy each forwarded client has its own bucket
	assert.Equal(t, http.StatusUnauthorized, post("203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, post("203.0.113.1"))
	assert.Equal(t, http.StatusUnauthorized, post("203.0.113.2"))
}

package api

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metricsBody(t *testing.T, e *testEnv) string {
	t.Helper()
	rec := e.do("GET", "/metrics", "", nil)
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}

func TestCatalogSampler_RunNow(t *testing.T) {
	e := newTestEnv(t)
	e.createCourse(alice, "1")
	e.createCourse(bob, "2")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.handler.Broker.Subscribe(ctx)

	NewCatalogSampler(e.handler).RunNow(context.Background())

	body := metricsBody(t, e)
	assert.Contains(t, body, "ledger_active_courses 2")
	assert.Contains(t, body, "ledger_event_subscribers 1")
}

func TestCatalogSampler_StartStop(t *testing.T) {
	e := newTestEnv(t)
	e.createCourse(alice, "1")

	s := NewCatalogSampler(e.handler)
	s.Interval = 10 * time.Millisecond
	s.Start()
	s.Start()

	require.Eventually(t, func() bool {
		return strings.Contains(e.do("GET", "/metrics", "", nil).Body.String(), "ledger_active_courses 1")
	}, time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop()

	// Restartable after stop
	s.Start()
	s.Stop()
}

package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/course-ledger/api"
	"github.com/warp/course-ledger/events"
	"github.com/warp/course-ledger/ledger"
	"github.com/warp/course-ledger/ledger/store"
)

func serve(t *testing.T, server *http.Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() { _ = server.Close() })
	return "http://" + ln.Addr().String()
}

func TestServer_ShutdownLetsInFlightRequestsFinish(t *testing.T) {
	// GIVEN: A request blocked inside its handler
	started := make(chan context.Context, 1)
	release := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- r.Context()
		select {
		case <-release:
			w.WriteHeader(http.StatusOK)
		case <-r.Context().Done():
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})

	hooked := make(chan struct{})
	server := newServer("127.0.0.1:0", handler, func() { close(hooked) })
	url := serve(t, server)

	status := make(chan int, 1)
	go func() {
		resp, err := http.Get(url + "/slow")
		if err != nil {
			status <- 0
			return
		}
		resp.Body.Close()
		status <- resp.StatusCode
	}()
	reqCtx := <-started

	// WHEN: Shutdown starts, as it does on SIGTERM
	shutdownErr := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownErr <- server.Shutdown(ctx)
	}()

	// THEN: Hooks run but the request context stays live until it completes
	select {
	case <-hooked:
	case <-time.After(time.Second):
		t.Fatal("shutdown hook not called")
	}
	assert.Never(t, func() bool { return reqCtx.Err() != nil }, 100*time.Millisecond, 10*time.Millisecond)

	close(release)
	assert.Equal(t, http.StatusOK, <-status)
	assert.NoError(t, <-shutdownErr)
}

func TestServer_ShutdownEndsEventStreams(t *testing.T) {
	// GIVEN: A client subscribed to /api/events
	broker := events.NewBroker()
	h := api.NewHandler(api.Deps{
		Ledger: ledger.New(store.NewMemory(), ledger.WithEventSink(broker)),
		Broker: broker,
	})
	server := newServer("127.0.0.1:0", api.NewRouter(h, api.RouterConfig{}), broker.Close)
	url := serve(t, server)

	resp, err := http.Get(url + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Eventually(t, func() bool { return broker.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	// WHEN: The server shuts down
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, server.Shutdown(ctx))

	// THEN: The stream ended well before the timeout and the body drains to EOF
	assert.Less(t, time.Since(start), 2*time.Second)
	_, err = io.Copy(io.Discard, resp.Body)
	assert.NoError(t, err)
	assert.Equal(t, 0, broker.Subscribers())
}

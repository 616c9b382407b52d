package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/course-ledger/ledger"
	"github.com/warp/course-ledger/ledger/store"
)

func TestEvents_StreamsCourseCreated(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return e.handler.Broker.Subscribers() == 1 },
		time.Second, 10*time.Millisecond)

	id, err := e.handler.Ledger.CreateCourse(context.Background(), alice, ledger.CourseInput{
		Title: "Streams", Description: "SSE", Price: ledger.NewAmount(3), ProtectedResource: "secret-link",
	})
	require.NoError(t, err)

	scanner := bufio.NewScanner(resp.Body)
	var event, data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
		if data != "" {
			break
		}
	}

	assert.Equal(t, "course_created", event)
	assert.NotContains(t, data, "secret-link")
	var got ledger.CourseCreated
	require.NoError(t, json.Unmarshal([]byte(data), &got))
	assert.Equal(t, id, got.CourseID)
	assert.Equal(t, ledger.Identity(alice), got.Instructor)
	assert.Equal(t, "3", got.Price.String())
}

func TestEvents_Disabled(t *testing.T) {
	h := NewHandler(Deps{Ledger: ledger.New(store.NewMemory())})
	rec := httptest.NewRecorder()

	h.Events(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

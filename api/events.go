package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Events streams CourseCreated notifications as Server-Sent Events.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	if h.Broker == nil {
		writeError(w, http.StatusServiceUnavailable, "streaming disabled", nil)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := h.Broker.Subscribe(ctx)

	// Send an initial comment to establish the stream
	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for event := range ch {
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "id: %s\nevent: course_created\ndata: %s\n\n", event.EventID, payload); err != nil {
			return
		}
		flusher.Flush()
	}
}

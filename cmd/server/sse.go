package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"plan-agent/pkg/events"
)

// heartbeatInterval keeps idle SSE connections from being reaped by proxies.
const heartbeatInterval = 15 * time.Second

// handleStreamEvents serves an execution's event log over SSE. The full log
// is replayed first, then live events follow in order; a heartbeat event is
// injected during idle stretches. The stream closes after the terminal event.
func (api *API) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	rec, ok := api.lookup(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		api.writeError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer does not support streaming", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := rec.Subscribe()
	defer sub.Close()

	api.logger.Debugf("SSE subscriber attached to execution %s", rec.ID())

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := writeSSE(w, events.NewHeartbeat()); err != nil {
				return
			}
			flusher.Flush()
		case ev, open := <-sub.Events:
			if !open {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
	return err
}

package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/gridstore/logger"
)

// EventConnected is the first event on every stream.
const EventConnected = "connected"

// ConnectedEvent is the payload of EventConnected.
type ConnectedEvent struct {
	ClientID string   `json:"client_id"`
	Events   []string `json:"events"`
}

// ServeHTTP streams events to one client until it disconnects or the hub
// stops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.log.Warn("Could not clear write deadline", logger.ErrorFields("sse", err))
	}

	client := NewClient(uuid.NewString(), h.buffer, parsePatterns(r.URL.Query().Get("events"))...)
	if !h.Register(client) {
		http.Error(w, "event stream closed", http.StatusServiceUnavailable)
		return
	}
	defer h.Unregister(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	hello, _ := json.Marshal(ConnectedEvent{ClientID: client.id, Events: client.patterns})
	writeEvent(w, Message{Event: EventConnected, Data: hello})
	flusher.Flush()

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-client.events:
			if !ok {
				return
			}
			writeEvent(w, msg)
			flusher.Flush()
		case t := <-keepAlive.C:
			_, _ = fmt.Fprintf(w, ": keepalive %d\n\n", t.Unix())
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, msg Message) {
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, msg.Data)
}

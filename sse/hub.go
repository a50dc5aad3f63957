package sse

import (
	"encoding/json"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/kbukum/gridstore/logger"
)

// Message is one named event.
type Message struct {
	Event string
	Data  []byte
}

// Client is one connected subscriber.
type Client struct {
	id       string
	patterns []string
	events   chan Message
}

// NewClient creates a client receiving events whose names match any of
// patterns (path.Match syntax). No patterns means all events.
func NewClient(id string, buffer int, patterns ...string) *Client {
	if len(patterns) == 0 {
		patterns = []string{"*"}
	}
	return &Client{id: id, patterns: patterns, events: make(chan Message, buffer)}
}

func (c *Client) ID() string { return c.id }

// Events is closed when the client is unregistered or the hub stops.
func (c *Client) Events() <-chan Message { return c.events }

// Wants reports whether event matches one of the client's patterns.
func (c *Client) Wants(event string) bool {
	for _, p := range c.patterns {
		if ok, _ := path.Match(p, event); ok {
			return true
		}
	}
	return false
}

// Hub tracks clients and broadcasts messages to them.
type Hub struct {
	log       *logger.Logger
	keepAlive time.Duration
	buffer    int

	mu      sync.RWMutex
	clients map[string]*Client
	stopped bool
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithLogger sets the hub's logger.
func WithLogger(l *logger.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// WithKeepAlive sets the interval between keep-alive comments. Default 30s.
func WithKeepAlive(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.keepAlive = d
		}
	}
}

// WithClientBuffer sets how many messages a slow client may lag behind.
// Default 64.
func WithClientBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// NewHub creates a running hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		log:       logger.WithComponent("sse"),
		keepAlive: 30 * time.Second,
		buffer:    64,
		clients:   make(map[string]*Client),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Stop closes every client. Later registrations fail and broadcasts are
// discarded. Safe to call more than once.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	for id, c := range h.clients {
		close(c.events)
		delete(h.clients, id)
	}
}

// Register adds c. It returns false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	h.clients[c.id] = c
	h.log.Debug("Client registered", logger.Fields("client_id", c.id, "clients", len(h.clients)))
	return true
}

// Unregister removes c and closes its channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	close(c.events)
	h.log.Debug("Client unregistered", logger.Fields("client_id", c.id, "clients", len(h.clients)))
}

// Broadcast hands data to the clients subscribed to event without
// blocking; a client whose buffer is full misses it.
func (h *Hub) Broadcast(event string, data []byte) {
	msg := Message{Event: event, Data: data}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !c.Wants(event) {
			continue
		}
		select {
		case c.events <- msg:
		default:
			h.log.Warn("Client too slow, dropping event", logger.Fields("client_id", c.id, "event", event))
		}
	}
}

// BroadcastJSON encodes v and broadcasts it.
func (h *Hub) BroadcastJSON(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(event, data)
	return nil
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func parsePatterns(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package admin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kbukum/backendkit/events"
	"github.com/kbukum/backendkit/logger"
)

const clientBuffer = 256

// streamClient is one connected event stream.
type streamClient struct {
	id      string
	pattern string
	types   []events.Type
	frames  chan events.Event
}

func (c *streamClient) wants(ev events.Event) bool {
	if len(c.types) > 0 && !slices.Contains(c.types, ev.Type) {
		return false
	}
	if c.pattern == "" {
		return true
	}
	ok, err := filepath.Match(c.pattern, ev.ProviderID)
	return err == nil && ok
}

// send queues ev without blocking; a full buffer drops it.
func (c *streamClient) send(ev events.Event) bool {
	select {
	case c.frames <- ev:
		return true
	default:
		return false
	}
}

// Hub fans registry events out to stream clients.
type Hub struct {
	register   chan *streamClient
	unregister chan *streamClient
	publish    chan events.Event
	done       chan struct{}
	log        *logger.Logger

	mu      sync.RWMutex
	clients map[string]*streamClient
	stopped bool
	dropped int64
}

// NewHub creates a Hub. Call Run before serving streams.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		publish:    make(chan events.Event, clientBuffer),
		done:       make(chan struct{}),
		log:        log,
		clients:    make(map[string]*streamClient),
	}
}

// Run delivers published events until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.closeAll()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			h.mu.Unlock()
			h.log.Debug("stream client registered", logger.Fields("client_id", c.id, "pattern", c.pattern))
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.frames)
			}
			h.mu.Unlock()
		case ev := <-h.publish:
			h.fanOut(ev)
		}
	}
}

func (h *Hub) fanOut(ev events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		if c.wants(ev) && !c.send(ev) {
			h.dropped++
			h.log.Warn("stream client too slow, dropping event", logger.Fields(
				"client_id", c.id,
				logger.FieldEvent, string(ev.Type),
			))
		}
	}
}

// Publish queues ev for delivery. It never blocks the caller, which is
// usually a registry lifecycle operation.
func (h *Hub) Publish(ev events.Event) {
	select {
	case h.publish <- ev:
	case <-h.done:
	default:
		h.mu.Lock()
		h.dropped++
		h.mu.Unlock()
	}
}

// Stop closes every stream and makes Run return. Safe to call twice.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.stopped {
		h.stopped = true
		close(h.done)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.frames)
		delete(h.clients, id)
	}
}

// ClientCount returns the number of connected streams.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many events were dropped for slow clients.
func (h *Hub) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

func (h *Hub) join(c *streamClient) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *streamClient) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func parseTypes(raw string) []events.Type {
	if raw == "" {
		return nil
	}
	var out []events.Type
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, events.Type(t))
		}
	}
	return out
}

// serveStream streams events as Server-Sent Events until the client goes
// away or the hub stops.
func (s *Server) serveStream(c *gin.Context) {
	client := &streamClient{
		id:      uuid.NewString(),
		pattern: c.Query("provider"),
		types:   parseTypes(c.Query("type")),
		frames:  make(chan events.Event, clientBuffer),
	}
	if _, err := filepath.Match(client.pattern, ""); err != nil {
		badRequest(c, "provider", err)
		return
	}
	if !s.hub.join(client) {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}
	defer s.hub.leave(client)

	w := c.Writer
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.log.Debug("could not clear write deadline", logger.Fields("client_id", client.id, logger.FieldError, err.Error()))
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	_, _ = fmt.Fprintf(w, "event: connected\ndata: {\"client_id\":%q}\n\n", client.id)
	w.Flush()

	keepAlive := time.NewTicker(s.cfg.KeepAlive)
	defer keepAlive.Stop()
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-client.frames:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data)
			w.Flush()
		case <-keepAlive.C:
			_, _ = fmt.Fprintf(w, ": keepalive %d\n\n", time.Now().Unix())
			w.Flush()
		}
	}
}

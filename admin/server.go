package admin

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kbukum/backendkit/enhanced"
	"github.com/kbukum/backendkit/events"
	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/registry"
)

// Server is the admin HTTP API.
type Server struct {
	cfg     Config
	bridge  *enhanced.Bridge
	reg     *registry.Registry
	engine  *gin.Engine
	handler http.Handler
	hub     *Hub
	limiter *clientLimiter
	log     *logger.Logger

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
	sub      events.Subscription
	attached bool
	started  bool
}

// New creates the admin server for bridge. Routes are registered
// immediately; nothing listens until Start.
func New(cfg Config, bridge *enhanced.Bridge, log *logger.Logger) *Server {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.Get("admin")
	}
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:    cfg,
		bridge: bridge,
		reg:    bridge.Registry(),
		engine: gin.New(),
		log:    log.WithComponent("admin"),
	}
	s.hub = NewHub(s.log)
	s.limiter = newClientLimiter(cfg.RateLimit, s.log)

	s.engine.Use(recovery(s.log), requestID(), cors(cfg.CORS), bodyLimit(cfg.MaxBodySize), requestLogger(s.log))
	s.routes()

	s.handler = h2c.NewHandler(s.engine, &http2.Server{
		MaxConcurrentStreams: 250,
		IdleTimeout:          cfg.IdleTimeout,
	})
	return s
}

// Handler returns the root handler, for tests and for mounting elsewhere.
func (s *Server) Handler() http.Handler { return s.handler }

// Hub returns the event stream hub.
func (s *Server) Hub() *Hub { return s.hub }

// Attach starts forwarding registry events to stream clients. Start calls
// it; tests that drive Handler directly call it themselves.
func (s *Server) Attach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attached {
		return
	}
	s.attached = true
	go s.hub.Run()
	s.sub = s.reg.SubscribeToAllEvents(s.hub.Publish)
}

// Start binds the port and serves in a goroutine. It returns once the
// listener is bound.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("admin server failed to bind %s: %w", addr, err)
	}
	s.listener = ln
	s.http = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	s.started = true
	srv := s.http
	s.mu.Unlock()

	s.Attach()
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("admin server error", logger.Fields(logger.FieldError, err.Error()))
		}
	}()
	s.log.Info("admin server started", logger.Fields("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes event streams and shuts the server down with a 5 second
// deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, sub, attached := s.http, s.sub, s.attached
	s.started = false
	s.attached = false
	s.sub = events.Subscription{}
	s.mu.Unlock()

	if attached {
		s.reg.Unsubscribe(sub)
	}
	s.hub.Stop()
	if srv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error("admin server shutdown error", logger.Fields(logger.FieldError, err.Error()))
		return fmt.Errorf("admin server shutdown: %w", err)
	}
	s.log.Info("admin server stopped")
	return nil
}

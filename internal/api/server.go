package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Server is the HTTP API server with WebSocket support.
// It combines the HTTP router with the WebSocket hub for live snapshots.
type Server struct {
	host        HostInterface
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
}

// NewServer creates a new API server.
//
// Background workers do NOT start until Start (or StartWorkers) is called,
// so tests can construct the server and use Router() without goroutines
// running.
func NewServer(cfg RouterConfig) *Server {
	rlCfg := DefaultRateLimitConfig
	if cfg.RateLimitConfig != nil {
		rlCfg = *cfg.RateLimitConfig
	}
	if cfg.RateLimiter == nil {
		cfg.RateLimiter = NewIPRateLimiter(rlCfg)
	}

	s := &Server{
		host:        cfg.Host,
		wsHub:       NewWebSocketHub(NewOriginPolicy(cfg.CORSOrigins), rlCfg.TrustProxy),
		rateLimiter: cfg.RateLimiter,
	}
	s.router = NewRouter(cfg)

	// The WebSocket route needs the hub instance, so it lives outside NewRouter
	s.router.Get("/ws", s.wsHub.HandleWebSocket)

	return s
}

// StartWorkers starts the hub and the snapshot broadcast loop
func (s *Server) StartWorkers() {
	go s.wsHub.Run()
	s.wsHub.StartBroadcastLoop(s.host)
}

// Start starts background workers and serves HTTP until Shutdown
func (s *Server) Start(addr string) error {
	s.StartWorkers()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("🌐 API server starting on %s", addr)
	log.Printf("🔭 Snapshot: http://localhost%s/api/snapshot", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router returns the HTTP handler for use with httptest
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the WebSocket hub
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Shutdown stops accepting requests and stops background workers
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.Stop()
	return err
}

// Stop stops background workers
func (s *Server) Stop() {
	s.wsHub.Stop()
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
}

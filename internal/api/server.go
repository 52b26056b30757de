package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"collision-batcher/internal/journal"
	"collision-batcher/internal/sim"
)

// ServerOptions holds the dependencies of a Server
type ServerOptions struct {
	Engine         EngineInterface
	Renderer       FrameRenderer
	Journal        *journal.Journal
	AllowedOrigins []string
	AdminToken     string
}

// Server is the HTTP API server with WebSocket support.
// It combines the HTTP router with the WebSocket hub for the live tick feed.
type Server struct {
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
}

// NewServer creates a new API server with default production configuration.
//
// IMPORTANT: Background workers do NOT start until Start() is called.
// For testing HTTP endpoints without WebSocket support, use NewRouter() directly.
func NewServer(opts ServerOptions) *Server {
	s := &Server{
		wsHub:       NewWebSocketHub(NewOriginPolicy(opts.AllowedOrigins)),
		rateLimiter: NewIPRateLimiter(DefaultRateLimitConfig),
	}

	s.router = NewRouter(RouterConfig{
		Engine:      opts.Engine,
		Renderer:    opts.Renderer,
		Journal:     opts.Journal,
		RateLimiter: s.rateLimiter,
		CORSOrigins: opts.AllowedOrigins,
		AdminGuard:  NewAdminGuard(opts.AdminToken),
	})

	// WebSocket route needs the hub instance, so it lives outside NewRouter
	s.router.Get("/ws", s.wsHub.HandleWebSocket)

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// PublishTick forwards a snapshot to WebSocket clients. Safe to pass as
// the engine's OnTick hook.
func (s *Server) PublishTick(snap *sim.TickSnapshot) {
	s.wsHub.PublishTick(snap)
}

// Start runs the hub and serves HTTP until Shutdown.
// It returns http.ErrServerClosed after a graceful shutdown.
func (s *Server) Start(addr string) error {
	go s.wsHub.Run()

	s.httpServer.Addr = addr

	log.Printf("🌐 API server starting on %s", addr)
	log.Printf("🖼️  Debug frame: http://localhost%s/api/frame.png", addr)

	return s.httpServer.ListenAndServe()
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Shutdown stops accepting requests, closes WebSocket clients and stops
// background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.wsHub.Stop()
	s.rateLimiter.Stop()
	return s.httpServer.Shutdown(ctx)
}

package api

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"collision-batcher/internal/journal"
	"collision-batcher/internal/sim"
)

// EngineInterface defines the detection engine methods used by the API.
// Tests substitute a fake so no tick loop has to run.
type EngineInterface interface {
	// Snapshot returns the latest published tick, nil before the first one
	Snapshot() *sim.TickSnapshot
	// Stats returns the running summary across ticks
	Stats() sim.Stats
	// SetScale changes the detectable-collision scale
	SetScale(scale float32) error
	// Scale returns the current scale, 0 for detectors without one
	Scale() float32
	DetectorName() string
	PopulationSize() int
}

// FrameRenderer draws a snapshot as a PNG
type FrameRenderer interface {
	WritePNG(w io.Writer, snap *sim.TickSnapshot) error
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Engine: fakeEngine,
//	    RateLimitConfig: &api.RateLimitConfig{}, // Zero budgets disable limiting
//	}
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Engine is the detection engine (required)
	Engine EngineInterface

	// Renderer serves /api/frame.png. Nil disables the route.
	Renderer FrameRenderer

	// Journal adds event counters to /api/stats. Optional.
	Journal *journal.Journal

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is only used if RateLimiter is nil.
	// If both are nil, uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is the list of allowed CORS origins.
	// If nil, only localhost origins are allowed.
	CORSOrigins []string

	// AdminGuard protects POST routes. Nil leaves them open.
	AdminGuard *AdminGuard

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// NewRouter starts no goroutines other than the rate limiter cleanup,
// so it is safe to use in tests with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	limits := cfg.RateLimiter
	if limits == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		limits = NewIPRateLimiter(rateLimitCfg)
	}

	h := &routerHandlers{
		engine:   cfg.Engine,
		journal:  cfg.Journal,
		limits:   limits,
		renderer: cfg.Renderer,
	}

	r.With(limits.Limit(RouteJSON)).Get("/health", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(limits.Limit(RouteJSON))
			r.Get("/stats", h.handleGetStats)
			r.Get("/pairs", h.handleGetPairs)
			r.Get("/config", h.handleGetConfig)
		})

		r.With(limits.Limit(RouteFrame)).Get("/frame.png", h.handleGetFrame)

		r.Group(func(r chi.Router) {
			r.Use(limits.Limit(RouteAdmin), cfg.AdminGuard.Middleware)
			r.Post("/scale", h.handleSetScale)
		})
	})

	return r
}

// requestMetrics records latency and status per route pattern.
// Raw paths are never used as labels.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				endpoint = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordRequest(r.Method, endpoint, status, time.Since(start))
	})
}

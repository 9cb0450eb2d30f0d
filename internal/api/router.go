package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"dark-forest/internal/history"
	"dark-forest/internal/host"
	"dark-forest/internal/sim"
)

// HostInterface defines the host methods used by the API.
// *host.Host satisfies it; tests may substitute a fake.
type HostInterface interface {
	Snapshot() sim.Snapshot
	Params() sim.Params
	Seed() uint32
	Controls() sim.Controls
	SetControls(c sim.Controls)
	StepsPerSecond() float64

	Advance(n int) sim.Snapshot
	Reset() sim.Snapshot
	// SpawnCivWith calls fn with the new slot under the host lock
	SpawnCivWith(fn func(e *sim.Engine, idx int)) int
	SpawnStars(n int) int
	ApplyParams(p sim.Params, seed uint32) error

	// View runs fn under the host lock
	View(fn func(e *sim.Engine))
	// Frame reads the latest published frame without taking the host lock
	Frame(fn func(f *host.Frame))

	GetEventLogStats() map[string]interface{}
}

// HistoryReader is the read side of the run archive
type HistoryReader interface {
	Runs(ctx context.Context, limit int) ([]history.Run, error)
	Samples(ctx context.Context, runID uuid.UUID, limit int) ([]history.Sample, error)
}

// RequestLimits caps the work one request may ask for
type RequestLimits struct {
	MaxStepsPerRequest int
	MaxSpawnPerRequest int
	MaxMapPoints       int
	MinimapSize        int

	// Capacities POST /api/params may ask for. Engine buffers are sized
	// from them up front.
	MaxParamsStars int
	MaxParamsCivs  int
}

// DefaultRequestLimits returns conservative per-request caps
func DefaultRequestLimits() RequestLimits {
	return RequestLimits{
		MaxStepsPerRequest: 1000,
		MaxSpawnPerRequest: 10_000,
		MaxMapPoints:       800,
		MinimapSize:        256,
		MaxParamsStars:     1_000_000,
		MaxParamsCivs:      100_000,
	}
}

// withDefaults fills zero fields from DefaultRequestLimits
func (l RequestLimits) withDefaults() RequestLimits {
	d := DefaultRequestLimits()
	if l.MaxStepsPerRequest <= 0 {
		l.MaxStepsPerRequest = d.MaxStepsPerRequest
	}
	if l.MaxSpawnPerRequest <= 0 {
		l.MaxSpawnPerRequest = d.MaxSpawnPerRequest
	}
	if l.MaxMapPoints <= 0 {
		l.MaxMapPoints = d.MaxMapPoints
	}
	if l.MinimapSize <= 0 {
		l.MinimapSize = d.MinimapSize
	}
	if l.MaxParamsStars <= 0 {
		l.MaxParamsStars = d.MaxParamsStars
	}
	if l.MaxParamsCivs <= 0 {
		l.MaxParamsCivs = d.MaxParamsCivs
	}
	return l
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	h, _ := host.New(hostCfg)
//	router := api.NewRouter(api.RouterConfig{
//	    Host: h,
//	    RateLimitConfig: &api.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
//	})
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Host is the simulation host (required)
	Host HostInterface

	// History is the optional run archive. Nil makes /api/history return 503.
	History HistoryReader

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one is created from RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is used only when RateLimiter is nil.
	// If both are nil, DefaultRateLimitConfig applies.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	// If nil, only localhost origins are allowed.
	CORSOrigins []string

	// Limits caps per-request work. Zero fields take DefaultRequestLimits.
	Limits RequestLimits

	// AdminToken guards every POST route when non-empty
	AdminToken string

	// DisableLogging disables the request logger middleware (useful for benchmarks)
	DisableLogging bool
}

// routerHandlers holds the dependencies of the route handlers
type routerHandlers struct {
	host    HostInterface
	history HistoryReader
	limits  RequestLimits
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// NewRouter is pure apart from the rate limiter's cleanup goroutine: no
// listeners are opened and the host is not started, so it is safe to use
// with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	// Rate limiting before CORS to reject early
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

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
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", AdminTokenHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	limits := cfg.Limits.withDefaults()

	h := &routerHandlers{
		host:    cfg.Host,
		history: cfg.History,
		limits:  limits,
	}

	r.Route("/api", func(r chi.Router) {
		// Read-only views
		r.Get("/snapshot", h.handleGetSnapshot)
		r.Get("/stats", h.handleGetStats)
		r.Get("/params", h.handleGetParams)
		r.Get("/civs", h.handleListCivs)
		r.Get("/civs/{id}", h.handleGetCiv)
		r.Get("/stars", h.handleListStars)
		r.Get("/poi/{kind}", h.handleGetPOI)
		r.Get("/minimap.png", h.handleMinimap)
		r.Get("/history", h.handleHistory)

		// Commands
		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(cfg.AdminToken))
			r.Use(middleware.AllowContentType("application/json"))

			r.Post("/step", h.handleStep)
			r.Post("/reset", h.handleReset)
			r.Post("/spawn/civ", h.handleSpawnCiv)
			r.Post("/spawn/stars", h.handleSpawnStars)
			r.Post("/controls", h.handleSetControls)
			r.Post("/params", h.handleApplyParams)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	return r
}

// metricsMiddleware records latency per route pattern, keeping label
// cardinality bounded
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			pattern = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordRequest(r.Method, pattern, status, time.Since(start))
	})
}

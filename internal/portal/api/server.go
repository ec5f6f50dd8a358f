// Package api exposes the portal over HTTP.
//
// All routes answer JSON. Route handlers use the envelope
// {success, data?, error?, count?} with a string error; failures raised by
// the server shell itself (unknown route, recovered panic, rate limit,
// oversized body) carry an error object {message, status, timestamp, stack?}.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/moussadar/moussadar/internal/clock"
	"github.com/moussadar/moussadar/internal/config"
	"github.com/moussadar/moussadar/internal/portal/chat"
	"github.com/moussadar/moussadar/internal/portal/db"
	"github.com/moussadar/moussadar/internal/portal/sync"
)

const (
	apiLimitMessage = "Too many requests from this IP, please try again later."
	aiLimitMessage  = "Too many AI requests, please try again later."
)

// Config holds server options.
type Config struct {
	// Environment name, "production" hides stack traces
	Environment string

	// CORSOrigins allowed to call the API with credentials
	CORSOrigins []string

	// Per-IP budgets per Window; zero disables a limiter
	APIPerWindow int
	AIPerWindow  int
	Window       time.Duration

	// ShutdownTimeout bounds graceful shutdown (default: 10s)
	ShutdownTimeout time.Duration

	Clock  clock.Clock
	Logger *log.Logger
}

// DefaultConfig returns development defaults.
func DefaultConfig() *Config {
	return &Config{
		Environment:     "development",
		CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
		APIPerWindow:    100,
		AIPerWindow:     20,
		Window:          15 * time.Minute,
		ShutdownTimeout: 10 * time.Second,
		Clock:           clock.NewRealClock(),
		Logger:          log.New(os.Stderr, "[api] ", log.LstdFlags),
	}
}

// ConfigFrom maps the application config onto server options.
func ConfigFrom(cfg *config.Config, logger *log.Logger) *Config {
	c := DefaultConfig()
	c.Environment = cfg.Environment
	c.CORSOrigins = cfg.CORS.Origins
	c.APIPerWindow = cfg.RateLimit.APIPerWindow
	c.AIPerWindow = cfg.RateLimit.AIPerWindow
	c.Window = cfg.RateLimit.Window
	if logger != nil {
		c.Logger = logger
	}
	return c
}

// Deps are the components the routes call into.
type Deps struct {
	DB   *db.DB
	Sync sync.Service
	Chat *chat.Responder

	// Feed serves the live sync feed at /ws (optional)
	Feed http.Handler
}

// Server routes HTTP requests to the portal components.
type Server struct {
	cfg     *Config
	deps    Deps
	logger  *log.Logger
	clock   clock.Clock
	started time.Time
	router  chi.Router
}

// New builds the router. A nil cfg uses DefaultConfig().
func New(deps Deps, cfg *Config) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	defaults := DefaultConfig()
	if cfg.Logger == nil {
		cfg.Logger = defaults.Logger
	}
	if cfg.Clock == nil {
		cfg.Clock = defaults.Clock
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		logger:  cfg.Logger,
		clock:   cfg.Clock,
		started: cfg.Clock.Now(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) production() bool {
	return s.cfg.Environment == "production"
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	// Shell handlers first so mounted subrouters inherit them
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeFault(w, http.StatusNotFound, "Route not found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeFault(w, http.StatusNotFound, "Route not found", "")
	})

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  s.logger,
		NoColor: s.production(),
	}))
	r.Use(recoverer(s.logger, s.production()))
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(bodyLimit(MaxBodyBytes))

	if s.deps.Feed != nil {
		r.Handle("/ws", s.deps.Feed)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))

		r.Get("/health", s.handleHealth)

		r.Route("/api", func(r chi.Router) {
			r.Use(newIPLimiter(s.cfg.APIPerWindow, s.cfg.Window, apiLimitMessage).Handler)

			r.Route("/services", func(r chi.Router) {
				r.Get("/", s.listServices)
				r.Get("/categories/list", s.serviceCategories)
				r.Get("/{id}", s.getService)
			})

			r.Route("/documents", func(r chi.Router) {
				r.Get("/", s.listDocuments)
				r.Post("/request", s.requestDocument)
				r.Get("/track/{requestId}", s.trackDocument)
				r.Get("/{id}", s.getDocument)
			})

			r.Route("/procedures", func(r chi.Router) {
				r.Get("/", s.listProcedures)
				r.Get("/categories/list", s.procedureCategories)
				r.Post("/start", s.startProcedure)
				r.Put("/progress/{sessionId}", s.updateProgress)
				r.Get("/{id}", s.getProcedure)
			})

			r.Route("/ai", func(r chi.Router) {
				r.Use(newIPLimiter(s.cfg.AIPerWindow, s.cfg.Window, aiLimitMessage).Handler)
				r.Post("/chat", s.chat)
				r.Get("/suggestions", s.suggestions)
				r.Post("/feedback", s.feedback)
			})

			r.Route("/sync", func(r chi.Router) {
				r.Post("/offline", s.submitBatch)
				r.Get("/pending/{userId}", s.listPending)
				r.Put("/synced", s.markSynced)
				r.Get("/stats/{userId}", s.syncStats)
			})
		})
	})

	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("Moussadar backend listening on %s (environment: %s)", addr, s.cfg.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Println("Shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"timestamp":   s.clock.Now().Format(time.RFC3339Nano),
		"uptime":      s.clock.Now().Sub(s.started).Seconds(),
		"environment": s.cfg.Environment,
	})
}

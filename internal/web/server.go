package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/selfie-finder/internal/config"
	"github.com/kozaktomas/selfie-finder/internal/engine"
	"github.com/kozaktomas/selfie-finder/internal/logging"
	"github.com/kozaktomas/selfie-finder/internal/pipeline"
	"github.com/kozaktomas/selfie-finder/internal/web/handlers"
	"github.com/kozaktomas/selfie-finder/internal/web/middleware"
)

// Options wires the server to the engine.
type Options struct {
	Config *config.WebConfig
	Engine *engine.Engine
	Pool   *pipeline.Pool
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

// Server represents the web server
type Server struct {
	opts        Options
	log         *slog.Logger
	router      *chi.Mux
	httpServer  *http.Server
	jobManager  *handlers.JobManager
	rateLimiter *middleware.RateLimiter
}

// NewServer creates a new web server
func NewServer(opts Options) *Server {
	r := chi.NewRouter()
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Defaults().Web
		opts.Config = cfg
	}

	s := &Server{
		opts:        opts,
		log:         logging.OrNoop(opts.Logger),
		router:      r,
		jobManager:  handlers.NewJobManager(),
		rateLimiter: middleware.NewRateLimiter(cfg.SearchRate, cfg.SearchBurst),
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(5 * time.Minute))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      r,
		ReadTimeout:  60 * time.Second, // 50 MB uploads over slow links
		WriteTimeout: 5 * time.Minute,  // Long timeout for SSE and uploads
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info("starting web server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down web server")

	for _, job := range s.jobManager.ListJobs() {
		job.Cancel()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Package server wires the HTTP facade around the registry, event hub,
// and pipeline runner, and owns their lifecycles.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/vision-ocr/vppe/internal/api"
	"github.com/vision-ocr/vppe/internal/config"
	"github.com/vision-ocr/vppe/internal/events"
	"github.com/vision-ocr/vppe/internal/home"
	"github.com/vision-ocr/vppe/internal/jobs"
	"github.com/vision-ocr/vppe/internal/ocr"
	"github.com/vision-ocr/vppe/internal/pipeline"
	"github.com/vision-ocr/vppe/internal/render"
	"github.com/vision-ocr/vppe/internal/server/endpoints"
	"github.com/vision-ocr/vppe/internal/svcctx"
)

// Server is the main vppe HTTP server.
type Server struct {
	httpServer *http.Server
	registry   *jobs.Registry
	hub        *events.Hub
	runner     *pipeline.Runner
	janitor    *jobs.Janitor
	configMgr  *config.Manager
	logger     *slog.Logger

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu          sync.RWMutex
	running     bool
	initialized bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080)
	Port string
	// Home is the vppe home directory
	Home *home.Dir
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}

	c := cfg.ConfigManager.Get()

	dataDir := c.DataDir
	if dataDir == "" && cfg.Home != nil {
		dataDir = cfg.Home.DataPath()
	}

	registry := jobs.NewRegistry(dataDir, cfg.Logger)
	hub := events.NewHub(c.SSERingBufferSize)

	ocrClient := ocr.NewClient(ocr.Config{
		BaseURL:    c.OllamaBaseURL,
		Model:      c.OllamaModel,
		Timeout:    c.OCRRequestTimeout(),
		MaxRetries: c.OCRRetries,
	})

	open := func(path string) (pipeline.Renderer, error) {
		return render.Open(path, render.Options{DPI: c.RenderDPI, Quality: c.JPEGQuality})
	}

	runner := pipeline.NewRunner(registry, hub, ocrClient, open, pipeline.Config{
		Workers:         c.OCRWorkers,
		QueueSize:       c.RenderQueueSize,
		PagesPerChapter: c.PagesPerChapter,
	}, cfg.Logger)

	janitor := jobs.NewJanitor(registry, hub, jobs.DefaultCleanupInterval, c.JobTTL(), c.PDFTTL(), cfg.Logger)

	s := &Server{
		registry:  registry,
		hub:       hub,
		runner:    runner,
		janitor:   janitor,
		configMgr: cfg.ConfigManager,
		logger:    cfg.Logger,
	}

	s.services = &svcctx.Services{
		Registry: registry,
		Hub:      hub,
		Runner:   runner,
		Config:   cfg.ConfigManager,
		Logger:   cfg.Logger,
		Home:     cfg.Home,
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server. Write timeout is unset because SSE streams
	// stay open for the life of a job.
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:        net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:     s.withServices(mux),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	return s, nil
}

// Start starts the server. It blocks until the context is cancelled or
// an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	// Recover jobs from a previous run. Jobs found mid-flight are
	// marked failed so clients see a terminal state.
	if err := s.registry.LoadFromDisk(); err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to load jobs from disk: %w", err)
	}
	s.logger.Info("job registry loaded", "jobs", len(s.registry.All()))

	janitorCtx, janitorCancel := context.WithCancel(ctx)
	defer janitorCancel()
	go s.janitor.Run(janitorCtx)

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			s.setNotRunning()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown performs graceful shutdown of the HTTP server and running
// pipelines.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := s.runner.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("pipeline shutdown error", "error", err)
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.initialized = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Registry returns the job registry.
func (s *Server) Registry() *jobs.Registry {
	return s.registry
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable until the registry is loaded.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		ready := s.initialized
		s.mu.RUnlock()
		if !ready {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}

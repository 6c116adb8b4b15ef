package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/amaumene/stremarr/internal/api/handlers"
	"github.com/amaumene/stremarr/internal/api/middleware"
	"github.com/amaumene/stremarr/internal/config"
	"github.com/amaumene/stremarr/internal/models"
	"github.com/amaumene/stremarr/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// writeSlack is the time left after a bounded sync check to write the response
const writeSlack = 15 * time.Second

// Server represents the HTTP server
type Server struct {
	server     *http.Server
	handler    http.Handler
	db         *models.Database
	checker    handlers.AvailabilityChecker
	background handlers.BackgroundChecker
	sessions   *session.Store
	logger     *logrus.Logger
}

// NewServer creates a new HTTP server
func NewServer(
	cfg *config.Config,
	db *models.Database,
	checker handlers.AvailabilityChecker,
	background handlers.BackgroundChecker,
	sessions *session.Store,
	registry *prometheus.Registry,
	logger *logrus.Logger,
) *Server {
	s := &Server{
		db:         db,
		checker:    checker,
		background: background,
		sessions:   sessions,
		logger:     logger,
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux, cfg, registry)
	s.handler = middleware.Logging(mux, logger)

	s.server = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.SyncCheckTimeout + writeSlack,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(mux *http.ServeMux, cfg *config.Config, registry *prometheus.Registry) {
	// Health check
	healthHandler := handlers.NewHealthHandler(s.logger)
	mux.HandleFunc("GET /health", healthHandler.ServeHTTP)

	// Status endpoint
	statusHandler := handlers.NewStatusHandler(s.db, s.logger)
	mux.HandleFunc("GET /status", statusHandler.ServeHTTP)

	// Prometheus scrape endpoint
	if registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	}

	// Sessions
	sessionHandler := handlers.NewSessionHandler(s.db, s.sessions, cfg.SessionTTL, s.logger)
	mux.HandleFunc("POST /api/sessions", sessionHandler.Create)
	mux.Handle("DELETE /api/sessions", s.authenticated(sessionHandler.Delete))

	// Media items
	items := handlers.NewItemsHandler(s.db, s.checker, s.background, cfg.SyncCheckTimeout, s.logger)
	mux.Handle("POST /api/items", s.authenticated(items.Register))
	mux.Handle("GET /api/items/recent", s.authenticated(items.Recent))
	mux.Handle("GET /api/items/{id}", s.authenticated(items.Get))
	mux.Handle("DELETE /api/items/{id}", s.authenticated(items.Delete))
	mux.Handle("POST /api/items/{id}/recheck", s.authenticated(items.Recheck))
	mux.Handle("POST /api/items/{id}/watched", s.authenticated(items.MarkWatched))
	mux.Handle("POST /api/items/{id}/episodes", s.authenticated(items.AddEpisode))
	mux.Handle("POST /api/episodes/{id}/watched", s.authenticated(items.MarkEpisodeWatched))
}

func (s *Server) authenticated(fn http.HandlerFunc) http.Handler {
	return middleware.RequireSession(fn, s.sessions, s.logger)
}

// Handler returns the root handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("port", s.server.Addr).Info("Starting HTTP server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

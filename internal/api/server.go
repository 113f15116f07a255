// Package api exposes the dispatch coordinator over a small local HTTP API
// so that other processes on the host can raise, watch and cancel alerts.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/beacon/internal/dispatch"
	"github.com/mattjoyce/beacon/internal/events"
	"github.com/mattjoyce/beacon/internal/transport"
)

// AlertCoordinator is the part of dispatch.Coordinator the API drives.
type AlertCoordinator interface {
	Trigger(ctx context.Context) (*dispatch.Attempt, error)
	Cancel() error
	Snapshot() dispatch.Snapshot
}

// ContactPoster registers emergency contacts with the alert service.
type ContactPoster interface {
	PostContact(ctx context.Context, ct transport.Contact) (bool, string)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is the bearer token. Empty disables authentication.
	APIKey string
	// DefaultUserID fills POST /contacts bodies that omit user_id.
	DefaultUserID int
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	coord     AlertCoordinator
	contacts  ContactPoster
	events    *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance
func New(config Config, coord AlertCoordinator, contacts ContactPoster, hub *events.Hub, logger *slog.Logger) *Server {
	if hub == nil {
		hub = events.NewHub(256)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:    config,
		coord:     coord,
		contacts:  contacts,
		events:    hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler returns the routed handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.setupRoutes(),
		ReadTimeout: 10 * time.Second,
		// Long enough for ?wait=true. SSE clients reconnect with Last-Event-ID.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen, "auth", s.config.APIKey != "")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		if s.config.APIKey != "" {
			r.Use(s.requireKey)
		}
		r.Post("/alerts", s.handleTriggerAlert)
		r.Get("/alerts/current", s.handleCurrentAlert)
		r.Delete("/alerts/current", s.handleCancelAlert)
		r.Post("/contacts", s.handlePostContact)
		r.Get("/events", s.handleEvents)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

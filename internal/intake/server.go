package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/beacon/internal/signing"
	"github.com/mattjoyce/beacon/internal/transport"
)

// Server receives alerts and contacts.
type Server struct {
	config Config
	logger *slog.Logger
	server *http.Server

	mu       sync.Mutex
	alerts   []RecordedAlert
	contacts []transport.Contact
}

// New creates a new intake server instance.
func New(config Config, logger *slog.Logger) *Server {
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{config: config, logger: logger}
}

// Handler returns the routed handler, for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the intake HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.setupRoutes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("intake server starting", "listen", s.config.Listen, "signed", s.config.Secret != "")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("intake server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("intake server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("intake server error: %w", err)
	}
}

// Alerts returns a copy of every accepted alert, oldest first.
func (s *Server) Alerts() []RecordedAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedAlert(nil), s.alerts...)
}

// Contacts returns a copy of every accepted contact, oldest first.
func (s *Server) Contacts() []transport.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transport.Contact(nil), s.contacts...)
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Post("/emergency_alert/{recipientID}", s.handleAlert)
	r.Post("/contacts", s.handleContact)

	return r
}

// loggingMiddleware logs HTTP requests (excludes payloads).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("intake request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// readVerified enforces the size limit and signature, then parses the form.
// It writes the error response itself and returns ok=false on failure.
func (s *Server) readVerified(w http.ResponseWriter, r *http.Request) (map[string]formPart, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodySize+1))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read request body")
		return nil, false
	}
	if int64(len(body)) > s.config.MaxBodySize {
		s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return nil, false
	}

	if s.config.Secret != "" {
		sig := r.Header.Get(signing.Header)
		if err := signing.Verify(body, sig, s.config.Secret); err != nil {
			s.logger.Warn("intake signature verification failed", "path", r.URL.Path, "present", sig != "")
			s.respondError(w, http.StatusForbidden, "forbidden")
			return nil, false
		}
	}

	parts, err := readForm(r.Header.Get("Content-Type"), body)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return parts, true
}

func (s *Server) handleAlert(w http.ResponseWriter, r *http.Request) {
	parts, ok := s.readVerified(w, r)
	if !ok {
		return
	}
	fix, photo, err := parseAlert(parts)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec := RecordedAlert{
		RecipientID: chi.URLParam(r, "recipientID"),
		Fix:         fix,
		Photo:       photo,
		PhotoBytes:  len(photo),
		ReceivedAt:  time.Now().UTC(),
	}
	s.mu.Lock()
	s.alerts = append(s.alerts, rec)
	s.mu.Unlock()

	s.logger.Info("emergency alert received",
		"recipient_id", rec.RecipientID,
		"has_location", fix != nil,
		"photo_bytes", rec.PhotoBytes,
	)
	if s.config.OnAlert != nil {
		s.config.OnAlert(rec)
	}
	s.respondJSON(w, http.StatusOK, MessageResponse{Message: AlertReceivedMessage})
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	parts, ok := s.readVerified(w, r)
	if !ok {
		return
	}
	ct, err := parseContact(parts)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	s.contacts = append(s.contacts, ct)
	s.mu.Unlock()

	s.logger.Info("contact registered", "user_id", ct.UserID)
	if s.config.OnContact != nil {
		s.config.OnContact(ct)
	}
	s.respondJSON(w, http.StatusOK, MessageResponse{Message: ContactAddedMessage})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}

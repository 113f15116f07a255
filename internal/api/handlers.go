package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mattjoyce/beacon/internal/dispatch"
	"github.com/mattjoyce/beacon/internal/transport"
)

const maxContactBody = 64 << 10

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		State:         s.coord.Snapshot().State,
	})
}

// handleTriggerAlert handles POST /alerts.
func (s *Server) handleTriggerAlert(w http.ResponseWriter, r *http.Request) {
	attempt, err := s.coord.Trigger(r.Context())
	if errors.Is(err, dispatch.ErrBusy) {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("failed to start alert", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("alert triggered via API", "attempt_id", attempt.ID)

	if r.URL.Query().Get("wait") != "true" {
		respondJSON(w, http.StatusAccepted, AlertResponse{
			AttemptID: attempt.ID,
			State:     dispatch.AcquiringContext,
		})
		return
	}

	out, err := attempt.Wait(r.Context())
	if err != nil {
		// Client went away or the server is shutting down; the attempt
		// continues regardless.
		respondJSON(w, http.StatusAccepted, AlertResponse{
			AttemptID: attempt.ID,
			State:     s.coord.Snapshot().State,
		})
		return
	}

	state := dispatch.Succeeded
	if !out.Succeeded {
		state = dispatch.Failed
	}
	respondJSON(w, http.StatusOK, AlertResponse{AttemptID: attempt.ID, State: state, Outcome: &out})
}

// handleCurrentAlert handles GET /alerts/current.
func (s *Server) handleCurrentAlert(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.coord.Snapshot())
}

// handleCancelAlert handles DELETE /alerts/current.
func (s *Server) handleCancelAlert(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.Cancel(); err != nil {
		if errors.Is(err, dispatch.ErrNoAttempt) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.coord.Snapshot())
}

// handlePostContact handles POST /contacts.
func (s *Server) handlePostContact(w http.ResponseWriter, r *http.Request) {
	if s.contacts == nil {
		s.writeError(w, http.StatusServiceUnavailable, "contact registration not configured")
		return
	}

	var req ContactRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxContactBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ct := transport.Contact{
		UserID:       req.UserID,
		Name:         req.Name,
		Phone:        req.Phone,
		Relationship: req.Relationship,
		Address:      req.Address,
	}
	if ct.UserID == 0 {
		ct.UserID = s.config.DefaultUserID
	}
	if err := ct.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ok, msg := s.contacts.PostContact(r.Context(), ct)
	status := http.StatusOK
	if !ok {
		status = http.StatusBadGateway
		s.logger.Warn("contact registration failed", "user_id", ct.UserID, "message", msg)
	}
	respondJSON(w, status, ContactResponse{OK: ok, Message: msg})
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

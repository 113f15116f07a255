package api

import (
	"github.com/mattjoyce/beacon/internal/alert"
	"github.com/mattjoyce/beacon/internal/dispatch"
)

// AlertResponse is returned by POST /alerts. Outcome is set only when the
// caller asked to wait and the attempt finished in time.
type AlertResponse struct {
	AttemptID string         `json:"attempt_id"`
	State     dispatch.State `json:"state"`
	Outcome   *alert.Outcome `json:"outcome,omitempty"`
}

// ContactRequest is the JSON body for POST /contacts.
type ContactRequest struct {
	UserID       int    `json:"user_id,omitempty"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship,omitempty"`
	Address      string `json:"address,omitempty"`
}

// ContactResponse reports what the alert service said about a contact.
type ContactResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string         `json:"status"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	State         dispatch.State `json:"state"`
}

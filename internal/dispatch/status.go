package dispatch

import (
	"log/slog"
	"time"

	"github.com/mattjoyce/beacon/internal/alert"
)

// State is a dispatch state machine state.
type State string

const (
	Idle             State = "idle"
	AcquiringContext State = "acquiring_context"
	Sending          State = "sending"
	Succeeded        State = "succeeded"
	Failed           State = "failed"
)

// Terminal reports whether s ends an attempt.
func (s State) Terminal() bool { return s == Succeeded || s == Failed }

// InFlight reports whether an attempt is currently running.
func (s State) InFlight() bool { return s == AcquiringContext || s == Sending }

// EventType names a status event.
type EventType string

const (
	EventAcquiring EventType = "acquiring"
	EventDegraded  EventType = "context_degraded"
	EventSending   EventType = "sending"
	EventSucceeded EventType = "succeeded"
	EventFailed    EventType = "failed"
)

// StatusEvent is one report to the presentation layer. Outcome is set on
// terminal events only.
type StatusEvent struct {
	AttemptID string               `json:"attempt_id"`
	Type      EventType            `json:"type"`
	State     State                `json:"state"`
	At        time.Time            `json:"at"`
	Message   string               `json:"message"`
	Reason    *alert.FailureReason `json:"reason,omitempty"`
	Outcome   *alert.Outcome       `json:"outcome,omitempty"`
}

// Terminal reports whether the event ends its attempt.
func (e StatusEvent) Terminal() bool {
	return e.Type == EventSucceeded || e.Type == EventFailed
}

// StatusSink receives events in transition order, at most one terminal
// event per attempt. Report may be called from any goroutine but never
// concurrently.
type StatusSink interface {
	Report(StatusEvent)
}

// SinkFunc adapts a function to StatusSink.
type SinkFunc func(StatusEvent)

func (f SinkFunc) Report(ev StatusEvent) { f(ev) }

// Tee fans one event out to several sinks in order.
type Tee []StatusSink

func (t Tee) Report(ev StatusEvent) {
	for _, s := range t {
		if s != nil {
			s.Report(ev)
		}
	}
}

// LogSink writes every event to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Report(ev StatusEvent) {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	attrs := []any{"attempt_id", ev.AttemptID, "event", ev.Type, "state", ev.State}
	if ev.Reason != nil {
		attrs = append(attrs, "kind", ev.Reason.Kind)
		if ev.Reason.Capability != "" {
			attrs = append(attrs, "capability", ev.Reason.Capability)
		}
		if ev.Reason.StatusCode != 0 {
			attrs = append(attrs, "status", ev.Reason.StatusCode)
		}
	}
	switch ev.Type {
	case EventFailed:
		l.Error(ev.Message, attrs...)
	case EventDegraded:
		l.Warn(ev.Message, attrs...)
	default:
		l.Info(ev.Message, attrs...)
	}
}

// Package capability adapts platform permission checks for camera and
// location into a per-attempt authorization session.
package capability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mattjoyce/beacon/internal/alert"
	"github.com/mattjoyce/beacon/internal/log"
)

// Decision is the answer for one capability.
type Decision string

const (
	Denied  Decision = "denied"
	Granted Decision = "granted"
)

// ParseDecision accepts "granted" or "denied".
func ParseDecision(s string) (Decision, bool) {
	switch Decision(s) {
	case Granted, Denied:
		return Decision(s), true
	}
	return "", false
}

// Gate is the platform permission surface. Check must not block; Request
// may suspend until the user answers or ctx ends.
type Gate interface {
	Check(c alert.Capability) Decision
	Request(ctx context.Context, c alert.Capability) (Decision, error)
}

// Session authorizes capabilities for a single dispatch attempt. A
// capability declined once stays declined for the rest of the session.
type Session struct {
	gate    Gate
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	declined map[alert.Capability]bool
}

// NewSession binds a gate to one attempt. A zero timeout leaves Request
// bounded only by ctx.
func NewSession(gate Gate, timeout time.Duration, logger *slog.Logger) *Session {
	if logger == nil {
		logger = log.WithComponent("capability")
	}
	return &Session{
		gate:     gate,
		timeout:  timeout,
		logger:   logger,
		declined: make(map[alert.Capability]bool),
	}
}

// Authorize checks first and only requests when the check says Denied.
// Request errors and timeouts count as Denied.
func (s *Session) Authorize(ctx context.Context, c alert.Capability) Decision {
	s.mu.Lock()
	if s.declined[c] {
		s.mu.Unlock()
		return Denied
	}
	s.mu.Unlock()

	if s.gate == nil {
		s.decline(c)
		return Denied
	}
	if s.gate.Check(c) == Granted {
		return Granted
	}

	d := s.request(ctx, c)
	if d != Granted {
		s.decline(c)
	}
	return d
}

func (s *Session) request(ctx context.Context, c alert.Capability) Decision {
	rctx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	type answer struct {
		d   Decision
		err error
	}
	ch := make(chan answer, 1)
	go func() {
		d, err := s.gate.Request(rctx, c)
		ch <- answer{d, err}
	}()

	select {
	case a := <-ch:
		if a.err != nil {
			s.logger.Warn("capability request failed", "capability", c, "error", a.err)
			return Denied
		}
		return a.d
	case <-rctx.Done():
		s.logger.Warn("capability request abandoned", "capability", c, "error", rctx.Err())
		return Denied
	}
}

func (s *Session) decline(c alert.Capability) {
	s.mu.Lock()
	s.declined[c] = true
	s.mu.Unlock()
}

// Static is a fixed in-memory gate. Capabilities missing from Decisions
// check as Denied; Prompt, when set, answers requests.
type Static struct {
	mu        sync.Mutex
	Decisions map[alert.Capability]Decision
	Prompt    Prompter
}

func (g *Static) Check(c alert.Capability) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Decisions[c] == Granted {
		return Granted
	}
	return Denied
}

func (g *Static) Request(ctx context.Context, c alert.Capability) (Decision, error) {
	if g.Prompt == nil {
		return Denied, nil
	}
	ok, err := g.Prompt.Ask(ctx, c)
	if err != nil {
		return Denied, err
	}
	d := Denied
	if ok {
		d = Granted
	}
	g.mu.Lock()
	if g.Decisions == nil {
		g.Decisions = make(map[alert.Capability]Decision)
	}
	g.Decisions[c] = d
	g.mu.Unlock()
	return d, nil
}

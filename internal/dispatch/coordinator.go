package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/beacon/internal/acquire"
	"github.com/mattjoyce/beacon/internal/alert"
	"github.com/mattjoyce/beacon/internal/log"
	"github.com/mattjoyce/beacon/internal/transport"
)

//go:generate mockgen -destination=mocks/mock_dispatch.go -package=mocks github.com/mattjoyce/beacon/internal/dispatch AlertSender,ContextAcquirer

var (
	// ErrBusy is returned while an attempt is acquiring context or sending.
	ErrBusy = errors.New("an alert is already in progress")
	// ErrNotIdle is returned by Start after a terminal outcome until Reset.
	ErrNotIdle = errors.New("previous alert finished; reset before starting another")
	// ErrNoAttempt is returned by Cancel when nothing is in flight.
	ErrNoAttempt = errors.New("no alert in progress")
)

// ContextAcquirer gathers photo and location for one attempt.
type ContextAcquirer interface {
	Acquire(ctx context.Context) acquire.Result
}

// AlertSender delivers a payload. A non-2xx response is not an error.
type AlertSender interface {
	SendAlert(ctx context.Context, p alert.Payload) (transport.Response, error)
}

// Options tune a Coordinator. Zero values take defaults.
type Options struct {
	SendTimeout time.Duration
	NewID       func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

const defaultSendTimeout = 30 * time.Second

// Coordinator runs the alert state machine:
//
//	idle -> acquiring_context -> sending -> succeeded | failed
//
// At most one attempt is in flight. Every transition is applied under mu
// and checked against the attempt that requested it, so completions from an
// abandoned attempt are dropped. Events are queued under mu and handed to
// the sink by a single delivery goroutine, so the sink sees them in
// transition order and no lock is held while it runs. A sink may call back
// into the coordinator (Cancel, Snapshot) without deadlocking.
type Coordinator struct {
	acquirer    ContextAcquirer
	sender      AlertSender
	sink        StatusSink
	sendTimeout time.Duration
	newID       func() string
	now         func() time.Time
	logger      *slog.Logger

	mu         sync.Mutex
	state      State
	current    *Attempt
	last       *alert.Outcome
	outbox     []queuedEvent
	delivering bool
}

// queuedEvent is an event waiting for the sink. done, when set, is closed
// once the event has been reported.
type queuedEvent struct {
	ev   StatusEvent
	done chan struct{}
}

func NewCoordinator(acquirer ContextAcquirer, sender AlertSender, sink StatusSink, opts Options) *Coordinator {
	if sink == nil {
		sink = SinkFunc(func(StatusEvent) {})
	}
	c := &Coordinator{
		acquirer:    acquirer,
		sender:      sender,
		sink:        sink,
		sendTimeout: opts.SendTimeout,
		newID:       opts.NewID,
		now:         opts.Now,
		logger:      opts.Logger,
		state:       Idle,
	}
	if c.sendTimeout <= 0 {
		c.sendTimeout = defaultSendTimeout
	}
	if c.newID == nil {
		c.newID = func() string { return uuid.New().String() }
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = log.WithComponent("dispatch")
	}
	return c
}

// Attempt is a handle on one run of the state machine.
type Attempt struct {
	ID        string
	StartedAt time.Time

	cancel  context.CancelFunc
	done    chan struct{}
	outcome alert.Outcome
}

// Done is closed after the terminal event has been reported.
func (a *Attempt) Done() <-chan struct{} { return a.done }

// Outcome returns the terminal outcome once Done is closed.
func (a *Attempt) Outcome() (alert.Outcome, bool) {
	select {
	case <-a.done:
		return a.outcome, true
	default:
		return alert.Outcome{}, false
	}
}

// Wait blocks until the attempt ends or ctx does.
func (a *Attempt) Wait(ctx context.Context) (alert.Outcome, error) {
	select {
	case <-a.done:
		return a.outcome, nil
	case <-ctx.Done():
		return alert.Outcome{}, ctx.Err()
	}
}

// Start begins an attempt from Idle and returns without waiting for it.
// The attempt outlives ctx's cancellation; use Cancel to abandon it.
func (c *Coordinator) Start(ctx context.Context) (*Attempt, error) {
	c.mu.Lock()
	return c.startLocked(ctx)
}

// Trigger is Start preceded by an implicit Reset of a finished attempt.
func (c *Coordinator) Trigger(ctx context.Context) (*Attempt, error) {
	c.mu.Lock()
	if c.state.Terminal() {
		c.state = Idle
		c.current = nil
	}
	return c.startLocked(ctx)
}

// startLocked is entered with mu held and releases it.
func (c *Coordinator) startLocked(ctx context.Context) (*Attempt, error) {
	switch {
	case c.state.InFlight():
		c.mu.Unlock()
		return nil, ErrBusy
	case c.state != Idle:
		c.mu.Unlock()
		return nil, ErrNotIdle
	}

	actx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a := &Attempt{
		ID:        c.newID(),
		StartedAt: c.now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	c.current = a
	c.state = AcquiringContext

	ev := c.event(a, EventAcquiring, "Sending emergency alert...")
	ev.State = AcquiringContext
	c.enqueueLocked(ev, nil)
	c.mu.Unlock()

	c.attemptLogger(a).Info("alert attempt started")
	go c.run(actx, a)
	return a, nil
}

// Reset returns a finished coordinator to Idle.
func (c *Coordinator) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.InFlight() {
		return ErrBusy
	}
	c.state = Idle
	c.current = nil
	return nil
}

// Cancel abandons the in-flight attempt. It ends as Failed(cancelled) and
// anything the abandoned work reports later is ignored.
func (c *Coordinator) Cancel() error {
	c.mu.Lock()
	a := c.current
	if a == nil || !c.state.InFlight() {
		c.mu.Unlock()
		return ErrNoAttempt
	}
	c.finishLocked(a, alert.Failure(a.ID, alert.CancelledFailure()))
	return nil
}

// Snapshot is a point-in-time view for status queries.
type Snapshot struct {
	State     State          `json:"state"`
	AttemptID string         `json:"attempt_id,omitempty"`
	StartedAt *time.Time     `json:"started_at,omitempty"`
	Last      *alert.Outcome `json:"last_outcome,omitempty"`
}

func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{State: c.state}
	if c.current != nil {
		s.AttemptID = c.current.ID
		started := c.current.StartedAt
		s.StartedAt = &started
	}
	if c.last != nil {
		last := *c.last
		s.Last = &last
	}
	return s
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) attemptLogger(a *Attempt) *slog.Logger {
	return c.logger.With("attempt_id", a.ID)
}

func (c *Coordinator) run(ctx context.Context, a *Attempt) {
	logger := c.attemptLogger(a)

	res := c.acquirer.Acquire(ctx)
	for _, soft := range res.SoftFailures {
		r := soft
		ev := c.event(a, EventDegraded, r.Error())
		ev.Reason = &r
		if !c.emit(a, AcquiringContext, ev) {
			return
		}
	}
	if res.Failed() {
		for _, extra := range res.HardFailures[1:] {
			logger.Warn("additional acquisition failure", "kind", extra.Kind, "capability", extra.Capability, "detail", extra.Detail)
		}
		c.finish(a, alert.Failure(a.ID, res.HardFailures[0]))
		return
	}

	payload := alert.Build(res.Photo, res.Fix)
	ev := c.event(a, EventSending, "Sending emergency alert...")
	if !c.advance(a, AcquiringContext, Sending, ev) {
		return
	}
	logger.Debug("payload built", "fields", payload.Fields())

	c.send(ctx, a, payload)
}

type sendResult struct {
	resp transport.Response
	err  error
}

func (c *Coordinator) send(ctx context.Context, a *Attempt, p alert.Payload) {
	sctx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()

	start := c.now()
	ch := make(chan sendResult, 1)
	go func() {
		resp, err := c.sender.SendAlert(sctx, p)
		ch <- sendResult{resp, err}
	}()

	var r sendResult
	select {
	case r = <-ch:
	case <-sctx.Done():
		r.err = sctx.Err()
	}
	if ctx.Err() != nil {
		// Cancelled: Cancel already reported the terminal event.
		return
	}

	logger := c.attemptLogger(a)
	switch {
	case r.err != nil:
		detail := r.err.Error()
		if errors.Is(r.err, context.DeadlineExceeded) {
			detail = alert.DetailTimeout
		}
		logger.Warn("alert delivery failed", "error", r.err, "duration_ms", c.now().Sub(start).Milliseconds())
		c.finish(a, alert.Failure(a.ID, alert.TransportFailure(detail)))
	case !r.resp.OK():
		logger.Warn("alert rejected", "status", r.resp.StatusCode)
		c.finish(a, alert.Failure(a.ID, alert.RejectedFailure(r.resp.StatusCode, r.resp.Body)))
	default:
		logger.Info("alert delivered", "status", r.resp.StatusCode, "duration_ms", c.now().Sub(start).Milliseconds())
		c.finish(a, alert.Success(a.ID, alert.SuccessMessage))
	}
}

func (c *Coordinator) event(a *Attempt, t EventType, msg string) StatusEvent {
	return StatusEvent{AttemptID: a.ID, Type: t, At: c.now().UTC(), Message: msg}
}

// emit reports a non-transition event if a is still current and in state.
func (c *Coordinator) emit(a *Attempt, state State, ev StatusEvent) bool {
	c.mu.Lock()
	if c.current != a || c.state != state {
		c.mu.Unlock()
		return false
	}
	ev.State = state
	c.enqueueLocked(ev, nil)
	c.mu.Unlock()
	return true
}

// advance moves a from one non-terminal state to another.
func (c *Coordinator) advance(a *Attempt, from, to State, ev StatusEvent) bool {
	c.mu.Lock()
	if c.current != a || c.state != from {
		c.mu.Unlock()
		return false
	}
	c.state = to
	ev.State = to
	c.enqueueLocked(ev, nil)
	c.mu.Unlock()
	return true
}

func (c *Coordinator) finish(a *Attempt, out alert.Outcome) bool {
	c.mu.Lock()
	if c.current != a || !c.state.InFlight() {
		c.mu.Unlock()
		return false
	}
	c.finishLocked(a, out)
	return true
}

// finishLocked is entered with mu held and releases it.
func (c *Coordinator) finishLocked(a *Attempt, out alert.Outcome) {
	ev := c.event(a, EventSucceeded, out.Message)
	c.state = Succeeded
	if !out.Succeeded {
		ev.Type = EventFailed
		c.state = Failed
		ev.Reason = out.Reason
	}
	state := c.state
	ev.State = state
	ev.Outcome = &out
	a.outcome = out
	last := out
	c.last = &last
	a.cancel()
	c.enqueueLocked(ev, a.done)
	c.mu.Unlock()

	c.attemptLogger(a).Info("alert attempt finished", "state", state, "message", out.Message)
}

// enqueueLocked appends ev to the outbox and makes sure a delivery
// goroutine is running. mu must be held.
func (c *Coordinator) enqueueLocked(ev StatusEvent, done chan struct{}) {
	c.outbox = append(c.outbox, queuedEvent{ev: ev, done: done})
	if !c.delivering {
		c.delivering = true
		go c.deliver()
	}
}

// deliver drains the outbox in order until it is empty.
func (c *Coordinator) deliver() {
	for {
		c.mu.Lock()
		if len(c.outbox) == 0 {
			c.delivering = false
			c.mu.Unlock()
			return
		}
		q := c.outbox[0]
		c.outbox[0] = queuedEvent{}
		c.outbox = c.outbox[1:]
		c.mu.Unlock()

		c.sink.Report(q.ev)
		if q.done != nil {
			close(q.done)
		}
	}
}

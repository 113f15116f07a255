// Package acquire gathers the photo and location context for one alert.
//
// Authorization runs first, one capability at a time, so that permission
// prompts never overlap. The authorized devices are then queried
// concurrently, each under its own timeout. Whatever fails is classified as
// a soft failure (the field is left out of the alert) or, for required
// capabilities, a hard failure that stops the attempt.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mattjoyce/beacon/internal/alert"
	"github.com/mattjoyce/beacon/internal/capability"
	"github.com/mattjoyce/beacon/internal/log"
)

var (
	// ErrDeclined means the user chose not to take a photo.
	ErrDeclined = errors.New("capture declined")
	// ErrNoFix means the provider has no last-known position.
	ErrNoFix = errors.New("no location fix")
)

// CaptureDevice produces a JPEG photo.
type CaptureDevice interface {
	Capture(ctx context.Context) ([]byte, error)
}

// LocationProvider returns the last-known position.
type LocationProvider interface {
	LastKnown(ctx context.Context) (*alert.GeoFix, error)
}

// Requirement says how much an alert depends on a capability.
type Requirement string

const (
	Skip     Requirement = "skip"
	Optional Requirement = "optional"
	Required Requirement = "required"
)

func (r Requirement) Valid() bool {
	switch r {
	case Skip, Optional, Required:
		return true
	}
	return false
}

// Policy configures the stage. Zero timeouts mean "bounded by ctx only".
type Policy struct {
	Photo             Requirement
	Location          Requirement
	PhotoTimeout      time.Duration
	LocationTimeout   time.Duration
	PermissionTimeout time.Duration
}

// DefaultPolicy mirrors the mobile client: both capabilities optional.
func DefaultPolicy() Policy {
	return Policy{
		Photo:             Optional,
		Location:          Optional,
		PhotoTimeout:      30 * time.Second,
		LocationTimeout:   10 * time.Second,
		PermissionTimeout: 60 * time.Second,
	}
}

func (p Policy) requirement(c alert.Capability) Requirement {
	var r Requirement
	switch c {
	case alert.Camera:
		r = p.Photo
	case alert.Location:
		r = p.Location
	}
	if r == "" {
		return Optional
	}
	return r
}

func (p Policy) timeout(c alert.Capability) time.Duration {
	if c == alert.Camera {
		return p.PhotoTimeout
	}
	return p.LocationTimeout
}

// Result is what the stage managed to gather. HardFailures non-empty means
// the attempt must not be sent.
type Result struct {
	Photo        *alert.PhotoAsset
	Fix          *alert.GeoFix
	HardFailures []alert.FailureReason
	SoftFailures []alert.FailureReason
}

// Failed reports whether any hard failure occurred.
func (r Result) Failed() bool { return len(r.HardFailures) > 0 }

// Stage acquires context for one attempt at a time. It is safe to reuse.
type Stage struct {
	gate    capability.Gate
	camera  CaptureDevice
	locator LocationProvider
	policy  Policy
	logger  *slog.Logger
}

func NewStage(gate capability.Gate, camera CaptureDevice, locator LocationProvider, policy Policy) *Stage {
	return &Stage{
		gate:    gate,
		camera:  camera,
		locator: locator,
		policy:  policy,
		logger:  log.WithComponent("acquire"),
	}
}

// Policy returns the stage policy.
func (s *Stage) Policy() Policy { return s.policy }

// Acquire never returns early on a stuck device: each query is abandoned at
// its own deadline and a late answer is discarded.
func (s *Stage) Acquire(ctx context.Context) Result {
	var res Result
	session := capability.NewSession(s.gate, s.policy.PermissionTimeout, s.logger)

	var authorized []alert.Capability
	for _, c := range alert.Capabilities() {
		req := s.policy.requirement(c)
		if req == Skip {
			continue
		}
		if ctx.Err() != nil {
			res.HardFailures = append(res.HardFailures, alert.AcquisitionFailure(c, "cancelled"))
			return res
		}
		if session.Authorize(ctx, c) != capability.Granted {
			res.record(req, alert.DeniedFailure(c))
			s.logger.Info("capability denied", "capability", c, "requirement", req)
			if res.Failed() {
				return res
			}
			continue
		}
		authorized = append(authorized, c)
	}

	outcomes := make([]subResult, len(authorized))
	var wg sync.WaitGroup
	for i, c := range authorized {
		wg.Add(1)
		go func(i int, c alert.Capability) {
			defer wg.Done()
			outcomes[i] = s.acquireOne(ctx, c)
		}(i, c)
	}
	wg.Wait()

	for i, c := range authorized {
		out := outcomes[i]
		if out.reason != nil {
			res.record(s.policy.requirement(c), *out.reason)
			continue
		}
		res.Photo = orPhoto(res.Photo, out.photo)
		res.Fix = orFix(res.Fix, out.fix)
	}
	return res
}

func (r *Result) record(req Requirement, reason alert.FailureReason) {
	if req == Required {
		r.HardFailures = append(r.HardFailures, reason)
		return
	}
	r.SoftFailures = append(r.SoftFailures, reason)
}

type subResult struct {
	photo  *alert.PhotoAsset
	fix    *alert.GeoFix
	reason *alert.FailureReason
}

func (s *Stage) acquireOne(ctx context.Context, c alert.Capability) subResult {
	sctx := ctx
	if d := s.policy.timeout(c); d > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	start := time.Now()
	ch := make(chan subResult, 1)
	go func() {
		ch <- s.query(sctx, c)
	}()

	var out subResult
	select {
	case out = <-ch:
	case <-sctx.Done():
		out = fail(c, classify(sctx.Err()))
	}

	logger := log.WithCapability(s.logger, string(c))
	if out.reason != nil {
		logger.Warn("acquisition failed", "detail", out.reason.Detail, "duration_ms", time.Since(start).Milliseconds())
	} else {
		logger.Debug("acquisition complete", "duration_ms", time.Since(start).Milliseconds())
	}
	return out
}

func (s *Stage) query(ctx context.Context, c alert.Capability) subResult {
	switch c {
	case alert.Camera:
		if s.camera == nil {
			return fail(c, "no capture device")
		}
		data, err := s.camera.Capture(ctx)
		if err != nil {
			return fail(c, classify(err))
		}
		photo := alert.NewPhotoAsset(data)
		if photo == nil {
			return fail(c, alert.DetailDeclined)
		}
		return subResult{photo: photo}
	case alert.Location:
		if s.locator == nil {
			return fail(c, "no location provider")
		}
		fix, err := s.locator.LastKnown(ctx)
		if err != nil {
			return fail(c, classify(err))
		}
		if fix == nil {
			return fail(c, alert.DetailNoFix)
		}
		if err := fix.Validate(); err != nil {
			return fail(c, alert.DetailBadFix)
		}
		return subResult{fix: fix}
	}
	return fail(c, fmt.Sprintf("unsupported capability %q", c))
}

func fail(c alert.Capability, detail string) subResult {
	r := alert.AcquisitionFailure(c, detail)
	return subResult{reason: &r}
}

func classify(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return alert.DetailTimeout
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrDeclined):
		return alert.DetailDeclined
	case errors.Is(err, ErrNoFix):
		return alert.DetailNoFix
	default:
		return err.Error()
	}
}

func orPhoto(a, b *alert.PhotoAsset) *alert.PhotoAsset {
	if b != nil {
		return b
	}
	return a
}

func orFix(a, b *alert.GeoFix) *alert.GeoFix {
	if b != nil {
		return b
	}
	return a
}

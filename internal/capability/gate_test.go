package capability

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mattjoyce/beacon/internal/alert"
	"github.com/mattjoyce/beacon/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json")
	os.Exit(m.Run())
}

// countingGate records how often each method is hit.
type countingGate struct {
	check    Decision
	answer   Decision
	err      error
	block    bool
	checks   atomic.Int32
	requests atomic.Int32
}

func (g *countingGate) Check(alert.Capability) Decision {
	g.checks.Add(1)
	return g.check
}

func (g *countingGate) Request(ctx context.Context, _ alert.Capability) (Decision, error) {
	g.requests.Add(1)
	if g.block {
		<-make(chan struct{})
	}
	return g.answer, g.err
}

func TestSessionGrantedByCheckSkipsRequest(t *testing.T) {
	g := &countingGate{check: Granted}
	s := NewSession(g, time.Second, nil)

	assert.Equal(t, Granted, s.Authorize(context.Background(), alert.Camera))
	assert.EqualValues(t, 1, g.checks.Load())
	assert.EqualValues(t, 0, g.requests.Load())
}

func TestSessionRequestsWhenCheckDenied(t *testing.T) {
	g := &countingGate{check: Denied, answer: Granted}
	s := NewSession(g, time.Second, nil)

	assert.Equal(t, Granted, s.Authorize(context.Background(), alert.Location))
	assert.EqualValues(t, 1, g.requests.Load())
}

func TestSessionNeverRepromptsAfterDecline(t *testing.T) {
	g := &countingGate{check: Denied, answer: Denied}
	s := NewSession(g, time.Second, nil)

	assert.Equal(t, Denied, s.Authorize(context.Background(), alert.Location))
	assert.Equal(t, Denied, s.Authorize(context.Background(), alert.Location))
	assert.EqualValues(t, 1, g.requests.Load())
	assert.EqualValues(t, 1, g.checks.Load())

	// A fresh session asks again.
	s2 := NewSession(g, time.Second, nil)
	s2.Authorize(context.Background(), alert.Location)
	assert.EqualValues(t, 2, g.requests.Load())
}

func TestSessionRequestErrorIsDenied(t *testing.T) {
	g := &countingGate{check: Denied, answer: Granted, err: errors.New("dialog crashed")}
	s := NewSession(g, time.Second, nil)

	assert.Equal(t, Denied, s.Authorize(context.Background(), alert.Camera))
}

func TestSessionRequestTimeoutIsDenied(t *testing.T) {
	g := &countingGate{check: Denied, block: true}
	s := NewSession(g, 20*time.Millisecond, nil)

	start := time.Now()
	assert.Equal(t, Denied, s.Authorize(context.Background(), alert.Camera))
	assert.Less(t, time.Since(start), time.Second)
}

func TestSessionNilGate(t *testing.T) {
	s := NewSession(nil, 0, nil)
	assert.Equal(t, Denied, s.Authorize(context.Background(), alert.Camera))
}

func TestStaticGate(t *testing.T) {
	g := &Static{
		Decisions: map[alert.Capability]Decision{alert.Camera: Granted},
		Prompt: PrompterFunc(func(context.Context, alert.Capability) (bool, error) {
			return true, nil
		}),
	}
	assert.Equal(t, Granted, g.Check(alert.Camera))
	assert.Equal(t, Denied, g.Check(alert.Location))

	d, err := g.Request(context.Background(), alert.Location)
	assert.NoError(t, err)
	assert.Equal(t, Granted, d)
	assert.Equal(t, Granted, g.Check(alert.Location))

	var empty Static
	d, err = empty.Request(context.Background(), alert.Camera)
	assert.NoError(t, err)
	assert.Equal(t, Denied, d)
}

func TestParseDecision(t *testing.T) {
	d, ok := ParseDecision("granted")
	assert.True(t, ok)
	assert.Equal(t, Granted, d)

	_, ok = ParseDecision("maybe")
	assert.False(t, ok)
}

package acquire

import (
	"context"
	"errors"
	"math"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/beacon/internal/alert"
	"github.com/mattjoyce/beacon/internal/capability"
	"github.com/mattjoyce/beacon/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json")
	os.Exit(m.Run())
}

type cameraFunc func(ctx context.Context) ([]byte, error)

func (f cameraFunc) Capture(ctx context.Context) ([]byte, error) { return f(ctx) }

type locatorFunc func(ctx context.Context) (*alert.GeoFix, error)

func (f locatorFunc) LastKnown(ctx context.Context) (*alert.GeoFix, error) { return f(ctx) }

var jpeg = []byte{0xff, 0xd8, 0xff, 0xd9}

func photo(context.Context) ([]byte, error) { return jpeg, nil }

func here(context.Context) (*alert.GeoFix, error) {
	return &alert.GeoFix{Latitude: 10, Longitude: 20}, nil
}

func grants(cs ...alert.Capability) *capability.Static {
	d := make(map[alert.Capability]capability.Decision)
	for _, c := range cs {
		d[c] = capability.Granted
	}
	return &capability.Static{Decisions: d}
}

func policy(photo, loc Requirement) Policy {
	p := DefaultPolicy()
	p.Photo = photo
	p.Location = loc
	p.PhotoTimeout = 200 * time.Millisecond
	p.LocationTimeout = 200 * time.Millisecond
	p.PermissionTimeout = 200 * time.Millisecond
	return p
}

func TestAcquireBothPresent(t *testing.T) {
	s := NewStage(grants(alert.Camera, alert.Location), cameraFunc(photo), locatorFunc(here), policy(Optional, Optional))
	res := s.Acquire(context.Background())

	require.NotNil(t, res.Photo)
	require.NotNil(t, res.Fix)
	assert.Equal(t, jpeg, res.Photo.Data)
	assert.Equal(t, 10.0, res.Fix.Latitude)
	assert.Empty(t, res.HardFailures)
	assert.Empty(t, res.SoftFailures)
}

func TestAcquireOptionalDeniedIsSoft(t *testing.T) {
	var captured atomic.Bool
	cam := cameraFunc(func(ctx context.Context) ([]byte, error) {
		captured.Store(true)
		return jpeg, nil
	})
	s := NewStage(grants(alert.Location), cam, locatorFunc(here), policy(Optional, Optional))
	res := s.Acquire(context.Background())

	assert.False(t, res.Failed())
	assert.Nil(t, res.Photo)
	assert.NotNil(t, res.Fix)
	assert.False(t, captured.Load(), "denied device must not be queried")
	assert.Equal(t, []alert.FailureReason{alert.DeniedFailure(alert.Camera)}, res.SoftFailures)
}

func TestAcquireRequiredDeniedIsHard(t *testing.T) {
	var located atomic.Bool
	loc := locatorFunc(func(ctx context.Context) (*alert.GeoFix, error) {
		located.Store(true)
		return here(ctx)
	})
	s := NewStage(grants(alert.Camera), cameraFunc(photo), loc, policy(Optional, Required))
	res := s.Acquire(context.Background())

	require.True(t, res.Failed())
	assert.Equal(t, alert.DeniedFailure(alert.Location), res.HardFailures[0])
	assert.False(t, located.Load())
	assert.Nil(t, res.Photo, "no acquisition after a hard denial")
}

func TestAcquireRequiredCameraDeniedStopsBeforeLocationPrompt(t *testing.T) {
	var prompts atomic.Int32
	gate := &capability.Static{Prompt: capability.PrompterFunc(func(context.Context, alert.Capability) (bool, error) {
		prompts.Add(1)
		return false, nil
	})}
	s := NewStage(gate, cameraFunc(photo), locatorFunc(here), policy(Required, Optional))
	res := s.Acquire(context.Background())

	require.True(t, res.Failed())
	assert.EqualValues(t, 1, prompts.Load())
}

func TestAcquireDeclinedPhotoIsSoft(t *testing.T) {
	cam := cameraFunc(func(context.Context) ([]byte, error) { return nil, ErrDeclined })
	s := NewStage(grants(alert.Camera, alert.Location), cam, locatorFunc(here), policy(Optional, Optional))
	res := s.Acquire(context.Background())

	assert.False(t, res.Failed())
	assert.Nil(t, res.Photo)
	assert.NotNil(t, res.Fix)
	require.Len(t, res.SoftFailures, 1)
	assert.Equal(t, alert.AcquisitionFailure(alert.Camera, alert.DetailDeclined), res.SoftFailures[0])
	assert.Equal(t, "No photo attached", res.SoftFailures[0].Error())
}

func TestAcquireRequiredNoFixIsHard(t *testing.T) {
	loc := locatorFunc(func(context.Context) (*alert.GeoFix, error) { return nil, nil })
	s := NewStage(grants(alert.Camera, alert.Location), cameraFunc(photo), loc, policy(Optional, Required))
	res := s.Acquire(context.Background())

	require.True(t, res.Failed())
	assert.Equal(t, alert.AcquisitionFailure(alert.Location, alert.DetailNoFix), res.HardFailures[0])
}

func TestAcquireRejectsUnusableFix(t *testing.T) {
	for name, bad := range map[string]alert.GeoFix{
		"nan latitude":  {Latitude: math.NaN(), Longitude: 10},
		"inf longitude": {Latitude: 10, Longitude: math.Inf(1)},
		"out of range":  {Latitude: 95, Longitude: 10},
	} {
		t.Run(name, func(t *testing.T) {
			loc := locatorFunc(func(context.Context) (*alert.GeoFix, error) {
				f := bad
				return &f, nil
			})

			soft := NewStage(grants(alert.Camera, alert.Location), cameraFunc(photo), loc, policy(Optional, Optional)).
				Acquire(context.Background())
			assert.Nil(t, soft.Fix)
			assert.NotNil(t, soft.Photo)
			assert.Equal(t, []alert.FailureReason{alert.AcquisitionFailure(alert.Location, alert.DetailBadFix)}, soft.SoftFailures)

			hard := NewStage(grants(alert.Camera, alert.Location), cameraFunc(photo), loc, policy(Optional, Required)).
				Acquire(context.Background())
			require.True(t, hard.Failed())
			assert.Equal(t, alert.AcquisitionFailure(alert.Location, alert.DetailBadFix), hard.HardFailures[0])
			assert.Equal(t, "Location error: invalid coordinates", hard.HardFailures[0].Error())
		})
	}
}

func TestAcquireTimeoutsAreIndependent(t *testing.T) {
	stuck := cameraFunc(func(ctx context.Context) ([]byte, error) {
		<-make(chan struct{}) // ignores ctx entirely
		return nil, nil
	})
	p := policy(Optional, Optional)
	p.PhotoTimeout = 30 * time.Millisecond

	s := NewStage(grants(alert.Camera, alert.Location), stuck, locatorFunc(here), p)
	start := time.Now()
	res := s.Acquire(context.Background())

	assert.Less(t, time.Since(start), time.Second)
	assert.NotNil(t, res.Fix)
	assert.Nil(t, res.Photo)
	assert.Equal(t, []alert.FailureReason{alert.AcquisitionFailure(alert.Camera, alert.DetailTimeout)}, res.SoftFailures)
}

func TestAcquireRunsDevicesConcurrently(t *testing.T) {
	slowCam := cameraFunc(func(ctx context.Context) ([]byte, error) {
		time.Sleep(80 * time.Millisecond)
		return jpeg, nil
	})
	slowLoc := locatorFunc(func(ctx context.Context) (*alert.GeoFix, error) {
		time.Sleep(80 * time.Millisecond)
		return here(ctx)
	})
	s := NewStage(grants(alert.Camera, alert.Location), slowCam, slowLoc, policy(Optional, Optional))

	start := time.Now()
	res := s.Acquire(context.Background())
	elapsed := time.Since(start)

	assert.NotNil(t, res.Photo)
	assert.NotNil(t, res.Fix)
	assert.Less(t, elapsed, 150*time.Millisecond)
}

func TestAcquireSkipLeavesFieldAbsent(t *testing.T) {
	s := NewStage(grants(alert.Camera, alert.Location), cameraFunc(photo), locatorFunc(here), policy(Skip, Optional))
	res := s.Acquire(context.Background())

	assert.Nil(t, res.Photo)
	assert.NotNil(t, res.Fix)
	assert.Empty(t, res.SoftFailures)
}

func TestAcquireDeviceErrorDetail(t *testing.T) {
	loc := locatorFunc(func(context.Context) (*alert.GeoFix, error) { return nil, errors.New("gps offline") })
	s := NewStage(grants(alert.Location), nil, loc, policy(Skip, Optional))
	res := s.Acquire(context.Background())

	require.Len(t, res.SoftFailures, 1)
	assert.Equal(t, "Location error: gps offline", res.SoftFailures[0].Error())
}

func TestAcquireMissingDevice(t *testing.T) {
	s := NewStage(grants(alert.Camera), nil, nil, policy(Required, Skip))
	res := s.Acquire(context.Background())

	require.True(t, res.Failed())
	assert.Equal(t, "no capture device", res.HardFailures[0].Detail)
}

func TestAcquireCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewStage(grants(alert.Camera, alert.Location), cameraFunc(photo), locatorFunc(here), policy(Optional, Optional))
	res := s.Acquire(ctx)
	assert.True(t, res.Failed())
}

func TestRequirementValid(t *testing.T) {
	assert.True(t, Required.Valid())
	assert.False(t, Requirement("sometimes").Valid())
}

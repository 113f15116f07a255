package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/mattjoyce/beacon/internal/acquire"
	"github.com/mattjoyce/beacon/internal/alert"
)

// StaticLocator reports a fixed position, or no fix when Fix is nil.
type StaticLocator struct {
	Fix *alert.GeoFix
}

func (l StaticLocator) LastKnown(context.Context) (*alert.GeoFix, error) {
	if l.Fix == nil {
		return nil, acquire.ErrNoFix
	}
	f := *l.Fix
	return &f, nil
}

// ExifLocator reads the GPS position embedded in a photo.
type ExifLocator struct {
	Path string
}

func (l ExifLocator) LastKnown(ctx context.Context) (*alert.GeoFix, error) {
	if l.Path == "" {
		return nil, acquire.ErrNoFix
	}
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("read photo: %w", err)
	}
	return FixFromExif(data)
}

// FixFromExif extracts GPS latitude/longitude from JPEG EXIF data.
func FixFromExif(data []byte) (*alert.GeoFix, error) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: no exif data", acquire.ErrNoFix)
	}
	lat, lon, err := x.LatLong()
	if err != nil {
		return nil, fmt.Errorf("%w: no gps tags", acquire.ErrNoFix)
	}
	return alert.NewGeoFix(lat, lon)
}

// FirstFix asks each provider in order and returns the first fix.
type FirstFix []acquire.LocationProvider

func (f FirstFix) LastKnown(ctx context.Context) (*alert.GeoFix, error) {
	var errs []error
	for _, p := range f {
		fix, err := p.LastKnown(ctx)
		if err == nil && fix != nil {
			return fix, nil
		}
		if err != nil {
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	if len(errs) == 0 {
		return nil, acquire.ErrNoFix
	}
	for _, err := range errs {
		if !errors.Is(err, acquire.ErrNoFix) {
			return nil, err
		}
	}
	return nil, acquire.ErrNoFix
}

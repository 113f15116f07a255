// Package alert holds the values that make up one emergency alert: the
// optional photo and location context, the multipart payload built from
// them, and the terminal outcome of a dispatch attempt.
package alert

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"

	"github.com/golang/geo/s2"
	"github.com/shopspring/decimal"
)

const (
	FieldLatitude  = "latitude"
	FieldLongitude = "longitude"
	FieldPhoto     = "photo"

	PhotoFilename = "photo.jpg"
	MIMETypeJPEG  = "image/jpeg"
)

// Capability is a platform-gated permission the alert may need.
type Capability string

const (
	Camera   Capability = "camera"
	Location Capability = "location"
)

// Capabilities lists every known capability in acquisition order.
func Capabilities() []Capability {
	return []Capability{Camera, Location}
}

// ParseCapability accepts "camera" or "location".
func ParseCapability(s string) (Capability, error) {
	switch Capability(s) {
	case Camera, Location:
		return Capability(s), nil
	default:
		return "", fmt.Errorf("unknown capability %q (want camera or location)", s)
	}
}

// GeoFix is a last-known position in decimal degrees.
type GeoFix struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NewGeoFix validates the coordinates before returning a fix.
func NewGeoFix(lat, lon float64) (*GeoFix, error) {
	g := GeoFix{Latitude: lat, Longitude: lon}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// Validate rejects out-of-range, NaN and infinite coordinates.
func (g GeoFix) Validate() error {
	if !s2.LatLngFromDegrees(g.Latitude, g.Longitude).IsValid() {
		return fmt.Errorf("coordinates out of range: lat=%v lon=%v", g.Latitude, g.Longitude)
	}
	return nil
}

// LatitudeString renders the latitude in its shortest exact decimal form.
func (g GeoFix) LatitudeString() string {
	return decimal.NewFromFloat(g.Latitude).String()
}

// LongitudeString renders the longitude in its shortest exact decimal form.
func (g GeoFix) LongitudeString() string {
	return decimal.NewFromFloat(g.Longitude).String()
}

func (g GeoFix) String() string {
	return g.LatitudeString() + "," + g.LongitudeString()
}

// PhotoAsset is an encoded JPEG.
type PhotoAsset struct {
	Data     []byte
	MIMEType string
}

// NewPhotoAsset wraps JPEG bytes. Empty data yields nil (no photo).
func NewPhotoAsset(data []byte) *PhotoAsset {
	if len(data) == 0 {
		return nil
	}
	return &PhotoAsset{Data: data, MIMEType: MIMETypeJPEG}
}

// Payload is the immutable body of one alert. Either field may be nil.
type Payload struct {
	Fix   *GeoFix
	Photo *PhotoAsset
}

// Build never fails: whatever context was gathered is what gets sent.
func Build(photo *PhotoAsset, fix *GeoFix) Payload {
	p := Payload{}
	if fix != nil {
		f := *fix
		p.Fix = &f
	}
	if photo != nil && len(photo.Data) > 0 {
		data := make([]byte, len(photo.Data))
		copy(data, photo.Data)
		p.Photo = &PhotoAsset{Data: data, MIMEType: MIMETypeJPEG}
	}
	return p
}

// Fields lists the multipart part names in the order Encode writes them.
func (p Payload) Fields() []string {
	var fields []string
	if p.Fix != nil {
		fields = append(fields, FieldLatitude, FieldLongitude)
	}
	if p.Photo != nil {
		fields = append(fields, FieldPhoto)
	}
	return fields
}

// Empty reports whether the payload carries no context at all.
func (p Payload) Empty() bool {
	return p.Fix == nil && p.Photo == nil
}

// Encode renders the payload as a multipart/form-data body.
func (p Payload) Encode() (contentType string, body []byte, err error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if p.Fix != nil {
		if err := p.Fix.Validate(); err != nil {
			return "", nil, err
		}
		if err := mw.WriteField(FieldLatitude, p.Fix.LatitudeString()); err != nil {
			return "", nil, fmt.Errorf("write latitude: %w", err)
		}
		if err := mw.WriteField(FieldLongitude, p.Fix.LongitudeString()); err != nil {
			return "", nil, fmt.Errorf("write longitude: %w", err)
		}
	}

	if p.Photo != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name=%q; filename=%q`, FieldPhoto, PhotoFilename))
		h.Set("Content-Type", MIMETypeJPEG)
		part, err := mw.CreatePart(h)
		if err != nil {
			return "", nil, fmt.Errorf("create photo part: %w", err)
		}
		if _, err := part.Write(p.Photo.Data); err != nil {
			return "", nil, fmt.Errorf("write photo: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return "", nil, fmt.Errorf("close multipart: %w", err)
	}
	return mw.FormDataContentType(), buf.Bytes(), nil
}

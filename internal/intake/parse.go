package intake

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/mattjoyce/beacon/internal/alert"
	"github.com/mattjoyce/beacon/internal/transport"
)

var errMalformed = errors.New("malformed request")

type formPart struct {
	contentType string
	data        []byte
}

// readForm reads every part of a multipart/form-data body into memory.
// The body has already been size-limited by the caller.
func readForm(contentType string, body []byte) (map[string]formPart, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "multipart/form-data" || params["boundary"] == "" {
		return nil, fmt.Errorf("%w: expected multipart/form-data", errMalformed)
	}

	parts := make(map[string]formPart)
	mr := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errMalformed, err)
		}
		data, err := io.ReadAll(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errMalformed, err)
		}
		name := p.FormName()
		if name == "" {
			continue
		}
		if _, dup := parts[name]; dup {
			return nil, fmt.Errorf("%w: duplicate part %q", errMalformed, name)
		}
		parts[name] = formPart{contentType: p.Header.Get("Content-Type"), data: data}
	}
	return parts, nil
}

// parseAlert validates an alert body: coordinates travel as a pair and
// the photo, if any, is a JPEG.
func parseAlert(parts map[string]formPart) (*alert.GeoFix, []byte, error) {
	lat, hasLat := parts[alert.FieldLatitude]
	lon, hasLon := parts[alert.FieldLongitude]
	if hasLat != hasLon {
		return nil, nil, fmt.Errorf("%w: latitude and longitude must be sent together", errMalformed)
	}

	var fix *alert.GeoFix
	if hasLat {
		la, err := strconv.ParseFloat(strings.TrimSpace(string(lat.data)), 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: latitude: %v", errMalformed, err)
		}
		lo, err := strconv.ParseFloat(strings.TrimSpace(string(lon.data)), 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: longitude: %v", errMalformed, err)
		}
		fix, err = alert.NewGeoFix(la, lo)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", errMalformed, err)
		}
	}

	var photo []byte
	if p, ok := parts[alert.FieldPhoto]; ok {
		mediaType, _, _ := mime.ParseMediaType(p.contentType)
		if mediaType != alert.MIMETypeJPEG {
			return nil, nil, fmt.Errorf("%w: photo must be %s, got %q", errMalformed, alert.MIMETypeJPEG, p.contentType)
		}
		if len(p.data) == 0 {
			return nil, nil, fmt.Errorf("%w: photo is empty", errMalformed)
		}
		photo = p.data
	}
	return fix, photo, nil
}

func parseContact(parts map[string]formPart) (transport.Contact, error) {
	field := func(name string) string {
		return strings.TrimSpace(string(parts[name].data))
	}
	ct := transport.Contact{
		Name:         field("name"),
		Phone:        field("phone"),
		Relationship: field("relationship"),
		Address:      field("address"),
	}
	if raw := field("user_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return ct, fmt.Errorf("%w: user_id: %v", errMalformed, err)
		}
		ct.UserID = id
	}
	if err := ct.Validate(); err != nil {
		return ct, fmt.Errorf("%w: %v", errMalformed, err)
	}
	return ct, nil
}

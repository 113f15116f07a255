// Package doctor checks a beacon configuration for problems that would
// only surface at the moment an alert is sent.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/mattjoyce/beacon/internal/acquire"
	"github.com/mattjoyce/beacon/internal/config"
	"github.com/mattjoyce/beacon/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

type Doctor struct {
	cfg *config.Config

	// checkFS is swapped in tests.
	checkFS func(path string) error
}

func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, checkFS: storage.CheckLocalFilesystem}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateEndpoint(r)
	d.validateAcquisition(r)
	d.validateAPI(r)
	d.validateState(r)
	d.warnUnlocked(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateEndpoint(r *Result) {
	e := d.cfg.Endpoint
	u, err := url.Parse(e.BaseURL)
	switch {
	case e.BaseURL == "":
		d.addError(r, "endpoint", "endpoint.base_url", "base_url is required")
	case err != nil || u.Host == "":
		d.addError(r, "endpoint", "endpoint.base_url", fmt.Sprintf("base_url %q is not an absolute URL", e.BaseURL))
	case u.Scheme == "http" && !isLoopback(u.Hostname()):
		d.addWarning(r, "endpoint", "endpoint.base_url",
			"alerts carry location and photos; use https for non-local endpoints")
	}
	if strings.TrimSpace(e.RecipientID) == "" {
		d.addError(r, "endpoint", "endpoint.recipient_id", "recipient_id is required")
	}
	if e.SigningSecret == "" {
		d.addWarning(r, "endpoint", "endpoint.signing_secret", "requests will be sent unsigned")
	}
	if e.SendTimeout > 2*time.Minute {
		d.addWarning(r, "endpoint", "endpoint.send_timeout",
			fmt.Sprintf("send_timeout %s leaves the user waiting a long time for a failure", e.SendTimeout))
	}
}

func (d *Doctor) validateAcquisition(r *Result) {
	a := d.cfg.Acquisition
	dev := d.cfg.Device

	if a.Location == acquire.Required && dev.Fix() == nil && !dev.ExifLocation {
		d.addError(r, "acquisition", "acquisition.location",
			"location is required but no source is configured (set device.latitude/longitude or device.exif_location)")
	}
	if a.Location == acquire.Required && a.Photo == acquire.Skip && dev.Fix() == nil && dev.ExifLocation {
		d.addError(r, "acquisition", "acquisition.location",
			"location comes only from photo EXIF but acquisition.photo is skip")
	}
	if a.Photo == acquire.Required && dev.PhotoPath == "" {
		d.addWarning(r, "acquisition", "device.photo_path",
			"photo is required; every send must pass --photo")
	}
	if a.Photo == acquire.Skip && a.Location == acquire.Skip {
		d.addWarning(r, "acquisition", "acquisition",
			"photo and location are both skipped; alerts carry no context")
	}
}

func (d *Doctor) validateAPI(r *Result) {
	api := d.cfg.API
	if !api.Enabled {
		return
	}
	if api.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when API is enabled")
		return
	}
	if api.Auth.APIKey == "" {
		host, _, err := net.SplitHostPort(api.Listen)
		if err == nil && !isLoopback(host) {
			d.addError(r, "api", "api.auth.api_key", "API listens beyond loopback without an api_key")
		} else {
			d.addWarning(r, "api", "api.auth.api_key", "API enabled but no authentication configured")
		}
	}
}

func (d *Doctor) validateState(r *Result) {
	path := d.cfg.Service.StatePath
	if path == "" {
		d.addError(r, "service", "service.state_path", "state_path is required")
		return
	}
	if path == ":memory:" {
		d.addWarning(r, "service", "service.state_path", "in-memory state forgets permission grants on exit")
		return
	}
	if d.checkFS != nil {
		if err := d.checkFS(path); err != nil {
			d.addError(r, "service", "service.state_path", err.Error())
		}
	}
}

func (d *Doctor) warnUnlocked(r *Result) {
	if d.cfg.SourcePath == "" || config.IsLocked(d.cfg.SourcePath) {
		return
	}
	d.addWarning(r, "integrity", "", "config is not locked; run 'beacon config lock' to detect tampering")
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	switch {
	case r.Valid && len(r.Warnings) == 0:
		b.WriteString("Configuration valid.\n")
		return b.String()
	case r.Valid:
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	default:
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		writeIssue(&b, "ERROR", e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, "WARN ", w)
	}
	return b.String()
}

func writeIssue(b *strings.Builder, level string, is Issue) {
	if is.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", level, is.Category, is.Field, is.Message)
		return
	}
	fmt.Fprintf(b, "  %s [%s] %s\n", level, is.Category, is.Message)
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

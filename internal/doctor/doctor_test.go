package doctor

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/beacon/internal/acquire"
	"github.com/mattjoyce/beacon/internal/config"
)

func validConfig() *config.Config {
	lat, lon := -27.47, 153.02
	cfg := config.Defaults()
	cfg.Service.StatePath = "/tmp/beacon-test.db"
	cfg.Endpoint = config.EndpointConfig{
		BaseURL:       "https://alerts.example.org",
		RecipientID:   "7",
		SigningSecret: "s",
		SendTimeout:   30 * time.Second,
	}
	cfg.Device.Latitude = &lat
	cfg.Device.Longitude = &lon
	return cfg
}

func newDoctor(cfg *config.Config) *Doctor {
	d := New(cfg)
	d.checkFS = func(string) error { return nil }
	return d
}

func hasIssue(issues []Issue, field string) bool {
	for _, is := range issues {
		if is.Field == field {
			return true
		}
	}
	return false
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	r := newDoctor(validConfig()).Validate()
	assert.True(t, r.Valid, "errors: %v", r.Errors)
	assert.Empty(t, r.Warnings)
	assert.Equal(t, "Configuration valid.\n", FormatHuman(r))
}

func TestValidate_PlainHTTPRemoteWarns(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Endpoint.BaseURL = "http://alerts.example.org"
	r := newDoctor(cfg).Validate()
	assert.True(t, r.Valid)
	assert.True(t, hasIssue(r.Warnings, "endpoint.base_url"))

	cfg.Endpoint.BaseURL = "http://127.0.0.1:8788"
	r = newDoctor(cfg).Validate()
	assert.Empty(t, r.Warnings)
}

func TestValidate_UnsignedWarns(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Endpoint.SigningSecret = ""
	r := newDoctor(cfg).Validate()
	assert.True(t, hasIssue(r.Warnings, "endpoint.signing_secret"))
}

func TestValidate_RequiredLocationWithoutSource(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Acquisition.Location = acquire.Required
	cfg.Device.Latitude, cfg.Device.Longitude = nil, nil

	r := newDoctor(cfg).Validate()
	assert.False(t, r.Valid)
	assert.True(t, hasIssue(r.Errors, "acquisition.location"))

	cfg.Device.ExifLocation = true
	r = newDoctor(cfg).Validate()
	assert.True(t, r.Valid)

	cfg.Acquisition.Photo = acquire.Skip
	r = newDoctor(cfg).Validate()
	assert.False(t, r.Valid)
}

func TestValidate_APIWithoutKey(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.API.Enabled = true
	cfg.API.Listen = "127.0.0.1:8787"
	r := newDoctor(cfg).Validate()
	assert.True(t, r.Valid)
	assert.True(t, hasIssue(r.Warnings, "api.auth.api_key"))

	cfg.API.Listen = "0.0.0.0:8787"
	r = newDoctor(cfg).Validate()
	assert.False(t, r.Valid)
	assert.True(t, hasIssue(r.Errors, "api.auth.api_key"))
}

func TestValidate_NetworkStatePath(t *testing.T) {
	t.Parallel()
	d := New(validConfig())
	d.checkFS = func(string) error { return errors.New(`state path is on network filesystem "nfs"`) }
	r := d.Validate()
	assert.False(t, r.Valid)
	assert.True(t, hasIssue(r.Errors, "service.state_path"))
}

func TestValidate_NothingToSendWarns(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Acquisition.Photo = acquire.Skip
	cfg.Acquisition.Location = acquire.Skip
	r := newDoctor(cfg).Validate()
	assert.True(t, hasIssue(r.Warnings, "acquisition"))
}

func TestFormatHumanAndJSON(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Endpoint.RecipientID = ""
	cfg.Endpoint.SigningSecret = ""
	r := newDoctor(cfg).Validate()

	out := FormatHuman(r)
	assert.True(t, strings.HasPrefix(out, "Configuration invalid (1 error(s), 1 warning(s))"))
	assert.Contains(t, out, "ERROR [endpoint] endpoint.recipient_id: recipient_id is required")
	assert.Contains(t, out, "WARN  [endpoint] endpoint.signing_secret")

	js, err := FormatJSON(r)
	require.NoError(t, err)
	var decoded Result
	require.NoError(t, json.Unmarshal([]byte(js), &decoded))
	assert.False(t, decoded.Valid)
	assert.Len(t, decoded.Errors, 1)
}

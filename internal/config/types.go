package config

import (
	"time"

	"github.com/mattjoyce/beacon/internal/acquire"
)

// Config represents the complete beacon configuration.
type Config struct {
	Service     ServiceConfig     `yaml:"service"`
	Endpoint    EndpointConfig    `yaml:"endpoint"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Device      DeviceConfig      `yaml:"device"`
	API         APIConfig         `yaml:"api,omitempty"`
	Intake      IntakeConfig      `yaml:"intake,omitempty"`
	Contacts    ContactsConfig    `yaml:"contacts,omitempty"`

	// SourcePath is the absolute path the config was loaded from.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	StatePath string `yaml:"state_path"`
}

// EndpointConfig locates the alert-receiving service.
type EndpointConfig struct {
	BaseURL       string        `yaml:"base_url"`
	RecipientID   string        `yaml:"recipient_id"`
	SigningSecret string        `yaml:"signing_secret,omitempty"`
	SendTimeout   time.Duration `yaml:"send_timeout"`
}

// AcquisitionConfig says which context an alert needs and how long to wait
// for each piece.
type AcquisitionConfig struct {
	Photo             acquire.Requirement `yaml:"photo"`
	Location          acquire.Requirement `yaml:"location"`
	PhotoTimeout      time.Duration       `yaml:"photo_timeout"`
	LocationTimeout   time.Duration       `yaml:"location_timeout"`
	PermissionTimeout time.Duration       `yaml:"permission_timeout"`
}

// Policy converts the section into an acquisition policy.
func (a AcquisitionConfig) Policy() acquire.Policy {
	return acquire.Policy{
		Photo:             a.Photo,
		Location:          a.Location,
		PhotoTimeout:      a.PhotoTimeout,
		LocationTimeout:   a.LocationTimeout,
		PermissionTimeout: a.PermissionTimeout,
	}
}

// DeviceConfig wires the host's stand-ins for camera and GPS.
type DeviceConfig struct {
	PhotoPath    string   `yaml:"photo_path,omitempty"`
	Latitude     *float64 `yaml:"latitude,omitempty"`
	Longitude    *float64 `yaml:"longitude,omitempty"`
	ExifLocation bool     `yaml:"exif_location"`
	MaxDimension int      `yaml:"max_dimension"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// IntakeConfig configures the development alert receiver.
type IntakeConfig struct {
	Listen      string `yaml:"listen"`
	Secret      string `yaml:"secret,omitempty"`
	MaxBodySize string `yaml:"max_body_size"`
}

// ContactsConfig holds defaults for contact registration.
type ContactsConfig struct {
	UserID int `yaml:"user_id,omitempty"`
}

// Defaults returns a Config with every optional field set.
func Defaults() *Config {
	policy := acquire.DefaultPolicy()
	return &Config{
		Service: ServiceConfig{
			Name:      "beacon",
			LogLevel:  "info",
			LogFormat: "json",
			StatePath: "./data/beacon.db",
		},
		Endpoint: EndpointConfig{
			SendTimeout: 30 * time.Second,
		},
		Acquisition: AcquisitionConfig{
			Photo:             policy.Photo,
			Location:          policy.Location,
			PhotoTimeout:      policy.PhotoTimeout,
			LocationTimeout:   policy.LocationTimeout,
			PermissionTimeout: policy.PermissionTimeout,
		},
		Device: DeviceConfig{
			MaxDimension: 1600,
		},
		API: APIConfig{
			Listen: "127.0.0.1:8787",
		},
		Intake: IntakeConfig{
			Listen:      "127.0.0.1:8788",
			MaxBodySize: "10MB",
		},
	}
}

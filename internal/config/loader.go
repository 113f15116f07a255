package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/beacon/internal/alert"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ConfigFileName is looked up when Load is given a directory.
const ConfigFileName = "config.yaml"

// Load reads, interpolates, defaults, verifies and validates a config file.
// configPath may name the file or the directory holding config.yaml.
func Load(configPath string) (*Config, error) {
	absPath, err := ResolvePath(configPath)
	if err != nil {
		return nil, err
	}

	cfg, err := parseFile(absPath)
	if err != nil {
		return nil, err
	}
	applyConfigDefaults(cfg)

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ResolvePath turns a file or directory argument into the config file path.
func ResolvePath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, ConfigFileName)
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but %s not found: %s", ConfigFileName, absPath)
		}
	}
	return absPath, nil
}

func parseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	cfg.SourcePath = path
	return cfg, nil
}

// applyConfigDefaults fills every zero-valued field from Defaults.
func applyConfigDefaults(cfg *Config) {
	d := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = d.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = d.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = d.Service.LogFormat
	}
	if cfg.Service.StatePath == "" {
		cfg.Service.StatePath = d.Service.StatePath
	}
	if cfg.Service.StatePath != ":memory:" && !filepath.IsAbs(cfg.Service.StatePath) && cfg.SourcePath != "" {
		cfg.Service.StatePath = filepath.Join(filepath.Dir(cfg.SourcePath), cfg.Service.StatePath)
	}

	if cfg.Endpoint.SendTimeout == 0 {
		cfg.Endpoint.SendTimeout = d.Endpoint.SendTimeout
	}

	a := &cfg.Acquisition
	if a.Photo == "" {
		a.Photo = d.Acquisition.Photo
	}
	if a.Location == "" {
		a.Location = d.Acquisition.Location
	}
	if a.PhotoTimeout == 0 {
		a.PhotoTimeout = d.Acquisition.PhotoTimeout
	}
	if a.LocationTimeout == 0 {
		a.LocationTimeout = d.Acquisition.LocationTimeout
	}
	if a.PermissionTimeout == 0 {
		a.PermissionTimeout = d.Acquisition.PermissionTimeout
	}

	if cfg.Device.MaxDimension == 0 {
		cfg.Device.MaxDimension = d.Device.MaxDimension
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = d.API.Listen
	}
	if cfg.Intake.Listen == "" {
		cfg.Intake.Listen = d.Intake.Listen
	}
	if cfg.Intake.MaxBodySize == "" {
		cfg.Intake.MaxBodySize = d.Intake.MaxBodySize
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is and rejected by validate where it
// matters.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}

func unresolved(field, value string) error {
	m := envVarPattern.FindStringSubmatch(value)
	if m == nil {
		return nil
	}
	return fmt.Errorf("%s: environment variable ${%s} is not set", field, m[1])
}

func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	switch strings.ToLower(cfg.Service.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("service.log_format must be one of: json, text (got %q)", cfg.Service.LogFormat)
	}
	if cfg.Service.StatePath == "" {
		return fmt.Errorf("service.state_path is required")
	}

	if err := validateEndpoint(cfg.Endpoint); err != nil {
		return err
	}

	a := cfg.Acquisition
	if !a.Photo.Valid() {
		return fmt.Errorf("acquisition.photo must be one of: skip, optional, required (got %q)", a.Photo)
	}
	if !a.Location.Valid() {
		return fmt.Errorf("acquisition.location must be one of: skip, optional, required (got %q)", a.Location)
	}
	for name, d := range map[string]int64{
		"acquisition.photo_timeout":      int64(a.PhotoTimeout),
		"acquisition.location_timeout":   int64(a.LocationTimeout),
		"acquisition.permission_timeout": int64(a.PermissionTimeout),
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}

	if (cfg.Device.Latitude == nil) != (cfg.Device.Longitude == nil) {
		return fmt.Errorf("device.latitude and device.longitude must be set together")
	}
	if cfg.Device.Latitude != nil {
		if _, err := alert.NewGeoFix(*cfg.Device.Latitude, *cfg.Device.Longitude); err != nil {
			return fmt.Errorf("device: %w", err)
		}
	}
	if cfg.Device.MaxDimension < 0 {
		return fmt.Errorf("device.max_dimension must not be negative")
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when api.enabled is true")
		}
		if err := unresolved("api.auth.api_key", cfg.API.Auth.APIKey); err != nil {
			return err
		}
	}

	if err := unresolved("intake.secret", cfg.Intake.Secret); err != nil {
		return err
	}
	if _, err := ParseSize(cfg.Intake.MaxBodySize); err != nil {
		return fmt.Errorf("intake.max_body_size: %w", err)
	}
	if cfg.Contacts.UserID < 0 {
		return fmt.Errorf("contacts.user_id must not be negative")
	}
	return nil
}

func validateEndpoint(e EndpointConfig) error {
	if err := unresolved("endpoint.base_url", e.BaseURL); err != nil {
		return err
	}
	if e.BaseURL == "" {
		return fmt.Errorf("endpoint.base_url is required")
	}
	u, err := url.Parse(e.BaseURL)
	if err != nil {
		return fmt.Errorf("endpoint.base_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("endpoint.base_url must be an absolute http(s) URL (got %q)", e.BaseURL)
	}
	if strings.TrimSpace(e.RecipientID) == "" {
		return fmt.Errorf("endpoint.recipient_id is required")
	}
	if err := unresolved("endpoint.signing_secret", e.SigningSecret); err != nil {
		return err
	}
	if e.SendTimeout <= 0 {
		return fmt.Errorf("endpoint.send_timeout must be positive")
	}
	return nil
}

// ParseSize parses "512", "64KB", "10MB" or "1GB" into bytes.
func ParseSize(size string) (int64, error) {
	s := strings.ToUpper(strings.TrimSpace(size))
	if s == "" {
		return 0, errors.New("size is empty")
	}
	multiplier := int64(1)
	for suffix, m := range map[string]int64{"KB": 1 << 10, "MB": 1 << 20, "GB": 1 << 30} {
		if strings.HasSuffix(s, suffix) {
			multiplier = m
			s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
			break
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", size)
	}
	if v <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}
	if v > (1<<62)/multiplier {
		return 0, fmt.Errorf("size too large")
	}
	return v * multiplier, nil
}

// Fix returns the configured static position, or nil.
func (d DeviceConfig) Fix() *alert.GeoFix {
	if d.Latitude == nil || d.Longitude == nil {
		return nil
	}
	fix, err := alert.NewGeoFix(*d.Latitude, *d.Longitude)
	if err != nil {
		return nil
	}
	return fix
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DiscoverConfigDir finds the config by checking, in order:
// $BEACON_CONFIG_DIR, ~/.config/beacon, /etc/beacon, ./config.yaml.
func DiscoverConfigDir() (string, error) {
	var candidates []string
	if dir := os.Getenv("BEACON_CONFIG_DIR"); dir != "" {
		candidates = append(candidates, dir)
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "beacon"))
	}
	candidates = append(candidates, "/etc/beacon", "./"+ConfigFileName)

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("no config found (checked: $BEACON_CONFIG_DIR, ~/.config/beacon, /etc/beacon, ./config.yaml)")
}

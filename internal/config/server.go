package config

import (
	"fmt"
	"time"
)

type ServerConfig struct {
	Port           string `mapstructure:"port"`
	ReloadInterval string `mapstructure:"reload_interval"` // "0s" disables periodic reload
	WSEnabled      bool   `mapstructure:"ws_enabled"`
}

// ReloadEvery parses ReloadInterval. Empty means disabled.
func (s ServerConfig) ReloadEvery() (time.Duration, error) {
	if s.ReloadInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.ReloadInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid server.reload_interval %q: %w", s.ReloadInterval, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("server.reload_interval must not be negative, got %s", d)
	}
	return d, nil
}

package main

import (
	"os"
	"strconv"
)

// DaemonConfig holds daemon-specific configuration
type DaemonConfig struct {
	ConfigPath     string // Path to rollpressure config YAML
	ScheduleHour   int    // Hour in timezone (default: 20 for 8 PM)
	ScheduleMinute int    // Minute (default: 0)
	Timezone       string // Timezone (default: America/New_York)
	StateFile      string // File tracking the last successful run date; empty uses paths.state_file
	RunOnStartup   bool   // Catch up on startup when today's run was missed
	MetricsAddr    string // Serve /metrics on this address when set, e.g. ":9090"
}

// LoadDaemonConfig loads configuration from environment variables
func LoadDaemonConfig() *DaemonConfig {
	return &DaemonConfig{
		ConfigPath:     os.Getenv("DAEMON_CONFIG_PATH"),
		ScheduleHour:   getEnvIntOrDefault("DAEMON_SCHEDULE_HOUR", 20),
		ScheduleMinute: getEnvIntOrDefault("DAEMON_SCHEDULE_MINUTE", 0),
		Timezone:       getEnvOrDefault("DAEMON_TIMEZONE", "America/New_York"),
		StateFile:      os.Getenv("DAEMON_STATE_FILE"),
		RunOnStartup:   getEnvBoolOrDefault("DAEMON_RUN_ON_STARTUP", true),
		MetricsAddr:    os.Getenv("DAEMON_METRICS_ADDR"),
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

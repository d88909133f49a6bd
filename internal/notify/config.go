package notify

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// Config holds ntfy notification configuration.
type Config struct {
	Enabled       bool   // Whether notifications are enabled
	Server        string // ntfy server URL (default: https://ntfy.sh)
	Topic         string // Topic name (required if enabled)
	Priority      string // Priority for run summaries: min, low, default, high, urgent
	AlertPriority string // Priority for roll pressure alerts
	Tags          string // Comma-separated emoji tags
	Token         string // Optional access token for private topics
	NotifySuccess bool   // Also send a summary after every successful run
}

var validPriorities = map[string]bool{
	"min": true, "low": true, "default": true, "high": true, "urgent": true,
}

// LoadConfig loads notification config from environment variables.
func LoadConfig() *Config {
	return &Config{
		Enabled:       getEnvBoolOrDefault("NTFY_ENABLED", false),
		Server:        getEnvOrDefault("NTFY_SERVER", "https://ntfy.sh"),
		Topic:         os.Getenv("NTFY_TOPIC"),
		Priority:      getEnvOrDefault("NTFY_PRIORITY", "default"),
		AlertPriority: getEnvOrDefault("NTFY_ALERT_PRIORITY", "high"),
		Tags:          getEnvOrDefault("NTFY_TAGS", "oil_drum"),
		Token:         os.Getenv("NTFY_TOKEN"),
		NotifySuccess: getEnvBoolOrDefault("NTFY_NOTIFY_SUCCESS", false),
	}
}

// Validate checks configuration is valid when enabled.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Topic == "" {
		return errors.New("NTFY_TOPIC is required when NTFY_ENABLED=true")
	}

	if !validPriorities[c.Priority] {
		return fmt.Errorf("invalid NTFY_PRIORITY: %s (valid: min, low, default, high, urgent)", c.Priority)
	}
	if !validPriorities[c.AlertPriority] {
		return fmt.Errorf("invalid NTFY_ALERT_PRIORITY: %s (valid: min, low, default, high, urgent)", c.AlertPriority)
	}

	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
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

// internal/workers/loan/process-application/config.go
package processapplication

import "time"

// Timeout covers the OCR round-trip plus the conditional status update.
type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}

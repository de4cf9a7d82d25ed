// internal/workers/loan/approve-application/config.go
package approveapplication

import "time"

// Timeout must outlast both rendering calls; a rendering timeout fails the
// job with the application still in its pre-approval status.
type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 60 * time.Second,
	}
}

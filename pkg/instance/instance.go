// Package instance names the running process for lock ownership and logs.
package instance

import (
	"os"
	"strings"
)

// ID returns MARKETSETTLE_INSTANCE_ID, then the platform dyno name, then the
// hostname, falling back to "local".
func ID() string {
	for _, key := range []string{"MARKETSETTLE_INSTANCE_ID", "DYNO"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}

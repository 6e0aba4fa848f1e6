//go:build !linux && !darwin && !windows

package uptime

import "time"

func sampleSystem() (time.Duration, error) {
	return 0, &UnavailableError{Reason: "unsupported platform"}
}

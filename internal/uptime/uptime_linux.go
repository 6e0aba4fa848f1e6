//go:build linux

package uptime

import (
	"time"

	"golang.org/x/sys/unix"
)

func sampleSystem() (time.Duration, error) {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return 0, &UnavailableError{Reason: err.Error()}
	}
	if si.Uptime < 0 {
		return 0, &UnavailableError{Reason: "negative sysinfo uptime"}
	}
	return time.Duration(si.Uptime) * time.Second, nil
}

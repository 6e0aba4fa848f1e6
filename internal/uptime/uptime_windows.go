//go:build windows

package uptime

import (
	"time"

	"golang.org/x/sys/windows"
)

func sampleSystem() (time.Duration, error) {
	// Milliseconds since boot; unaffected by wall-clock changes.
	ms := windows.GetTickCount64()
	return time.Duration(ms) * time.Millisecond, nil
}

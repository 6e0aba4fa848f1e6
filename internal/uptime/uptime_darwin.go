//go:build darwin

package uptime

import (
	"time"

	"golang.org/x/sys/unix"
)

func sampleSystem() (time.Duration, error) {
	tv, err := unix.SysctlTimeval("kern.boottime")
	if err != nil {
		return 0, &UnavailableError{Reason: err.Error()}
	}
	boot := time.Unix(tv.Sec, int64(tv.Usec)*1000)
	up := time.Since(boot)
	if up < 0 {
		return 0, &UnavailableError{Reason: "boot time in the future"}
	}
	return up, nil
}

// Package uptime reads the host's continuous uptime.
package uptime

import "time"

// ErrUnavailable means this host does not expose an uptime reading. Callers
// must treat it as "skip this tick and retry", never as fatal.
type UnavailableError struct {
	Reason string
}

func (e *UnavailableError) Error() string {
	if e.Reason == "" {
		return "uptime unavailable"
	}
	return "uptime unavailable: " + e.Reason
}

// Source samples the host's continuous uptime. Sampling has no side effects.
type Source interface {
	Sample() (time.Duration, error)
}

// SourceFunc adapts a plain function to a Source.
type SourceFunc func() (time.Duration, error)

func (f SourceFunc) Sample() (time.Duration, error) { return f() }

// System returns the platform uptime source for this OS.
func System() Source {
	return SourceFunc(sampleSystem)
}

// Package policy computes which snooze choices a user may still pick.
//
// The catalog is fixed and the ceiling is hard: once someone has deferred a
// reboot for close to 48 hours total, the only remaining choice is 10 more
// minutes. The presentation layer relies on the longest-first ordering.
package policy

import "time"

// Ceiling is the maximum cumulative deferred time per uptime epoch.
const Ceiling = 48 * time.Hour

// Option is one legal snooze choice.
type Option struct {
	Label string        `json:"label"`
	Delay time.Duration `json:"-"`
}

// Seconds returns the delay in whole seconds (wire/persistence unit).
func (o Option) Seconds() int64 { return int64(o.Delay / time.Second) }

// catalog is ordered longest-first; that ordering is part of the contract.
var catalog = []Option{
	{Label: "24 hours", Delay: 24 * time.Hour},
	{Label: "10 hours", Delay: 10 * time.Hour},
	{Label: "5 hours", Delay: 5 * time.Hour},
	{Label: "3 hours", Delay: 3 * time.Hour},
	{Label: "1 hour", Delay: time.Hour},
	{Label: "10 minutes", Delay: 10 * time.Minute},
}

// fallback is the choice of last resort; it is always offered so the user is
// never left without an option.
var fallback = catalog[len(catalog)-1]

// Catalog returns the full option catalog, longest first.
func Catalog() []Option {
	return append([]Option(nil), catalog...)
}

// Fallback returns the shortest (always available) option.
func Fallback() Option { return fallback }

// LegalChoices returns the options still available after totalDeferred time
// has already been spent snoozing in the current uptime epoch.
//
// An option is excluded when picking it would push the cumulative deferred
// time strictly past the ceiling. When every catalog entry is excluded, the
// 10-minute fallback is returned alone.
func LegalChoices(totalDeferred time.Duration) []Option {
	if totalDeferred < 0 {
		totalDeferred = 0
	}
	out := make([]Option, 0, len(catalog))
	for _, o := range catalog {
		if totalDeferred+o.Delay > Ceiling {
			continue
		}
		out = append(out, o)
	}
	if len(out) == 0 {
		out = append(out, fallback)
	}
	return out
}

// IsLegal reports whether opt is among LegalChoices(totalDeferred).
//
// Matching is by delay length; labels are display-only.
func IsLegal(totalDeferred time.Duration, opt Option) bool {
	for _, o := range LegalChoices(totalDeferred) {
		if o.Delay == opt.Delay {
			return true
		}
	}
	return false
}

// ByDelay looks up the catalog entry with the given delay.
func ByDelay(d time.Duration) (Option, bool) {
	for _, o := range catalog {
		if o.Delay == d {
			return o, true
		}
	}
	return Option{}, false
}

package state

import "time"

// SchemaVersion is bumped when Record's persisted shape changes.
const SchemaVersion = 1

// Record is the single durable state of the watcher. Exactly one exists per
// installation; only the state machine mutates it.
//
// FirstThresholdCrossedAt, TotalDeferredSeconds and NextReminderAt together
// form the deferral "epoch". The epoch is destroyed whenever a reboot is
// detected; the record itself lives for the lifetime of the installation.
type Record struct {
	SchemaVersion             int        `json:"schemaVersion"`
	FirstThresholdCrossedAt   *time.Time `json:"firstThresholdCrossedAt"`
	TotalDeferredSeconds      int64      `json:"totalDeferredSeconds"`
	NextReminderAt            *time.Time `json:"nextReminderAt"`
	LastObservedUptimeSeconds float64    `json:"lastObservedUptimeSeconds"`
}

// Defaults returns the first-run record.
func Defaults() Record {
	return Record{SchemaVersion: SchemaVersion}
}

// TotalDeferred returns the cumulative deferred time as a duration.
func (r *Record) TotalDeferred() time.Duration {
	if r.TotalDeferredSeconds <= 0 {
		return 0
	}
	return time.Duration(r.TotalDeferredSeconds) * time.Second
}

// ResetEpoch clears the deferral accounting. Called exactly when a reboot is
// detected.
func (r *Record) ResetEpoch() {
	r.FirstThresholdCrossedAt = nil
	r.TotalDeferredSeconds = 0
	r.NextReminderAt = nil
}

// ApplyDelay accounts one granted snooze: the chosen amount is added to the
// cumulative total and the next reminder moves past now by the same amount.
func (r *Record) ApplyDelay(delay time.Duration, now time.Time) {
	r.TotalDeferredSeconds += int64(delay / time.Second)
	next := now.Add(delay)
	r.NextReminderAt = &next
}

// MarkThresholdCrossed records the first moment the uptime threshold was
// exceeded in this epoch. A later call within the same epoch is a no-op.
func (r *Record) MarkThresholdCrossed(now time.Time) {
	if r.FirstThresholdCrossedAt == nil {
		t := now
		r.FirstThresholdCrossedAt = &t
	}
}

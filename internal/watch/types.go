package watch

import (
	"errors"
	"time"

	"github.com/journalehsan/UptimeWatcher/internal/policy"
)

// State is the machine's position in the reminder cycle.
type State int

const (
	// StateIdle: uptime below threshold, or a granted delay still running.
	StateIdle State = iota
	// StatePendingReminder: a reminder is due but not yet announced.
	StatePendingReminder
	// StateAwaitingChoice: announced; waiting on a human decision.
	StateAwaitingChoice
	// StateRebooting: confirmed; the executor has been handed the host.
	StateRebooting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePendingReminder:
		return "pending_reminder"
	case StateAwaitingChoice:
		return "awaiting_choice"
	case StateRebooting:
		return "rebooting"
	default:
		return "unknown"
	}
}

var (
	// ErrInvalidChoice rejects a delay that is not currently legal. Defends
	// against stale or tampered UI state; the record is left untouched.
	ErrInvalidChoice = errors.New("delay choice is not among the current legal options")

	// ErrNoReminderPending rejects a decision when nothing was asked.
	ErrNoReminderPending = errors.New("no reminder is awaiting a decision")
)

// DecisionKind discriminates Decision.
type DecisionKind int

const (
	DecisionRebootNow DecisionKind = iota + 1
	DecisionDelay
)

// Decision is the user's answer to a reminder.
type Decision struct {
	Kind   DecisionKind
	Option policy.Option // set for DecisionDelay
}

// RebootNow builds the confirm decision.
func RebootNow() Decision { return Decision{Kind: DecisionRebootNow} }

// Delay builds a snooze decision.
func Delay(opt policy.Option) Decision { return Decision{Kind: DecisionDelay, Option: opt} }

// ReminderDue is the payload of eventbus.TypeReminderDue / TypeReminderAgain.
type ReminderDue struct {
	Uptime        time.Duration   `json:"uptime"`
	UptimeHuman   string          `json:"uptime_human"`
	TotalDeferred time.Duration   `json:"total_deferred"`
	Choices       []policy.Option `json:"choices"`
}

// DelayApplied is the payload of eventbus.TypeDelayApplied.
type DelayApplied struct {
	Option        policy.Option `json:"option"`
	TotalDeferred time.Duration `json:"total_deferred"`
	NextReminder  time.Time     `json:"next_reminder"`
}

// RebootDetected is the payload of eventbus.TypeRebootDetected.
type RebootDetected struct {
	PreviousUptime time.Duration `json:"previous_uptime"`
	NewUptime      time.Duration `json:"new_uptime"`
}

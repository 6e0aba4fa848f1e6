// Package watch implements the reminder state machine: it samples uptime on
// a timer, decides when a reboot reminder is due, validates the user's
// answer, and keeps the durable record in sync after every transition.
package watch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/journalehsan/UptimeWatcher/internal/eventbus"
	"github.com/journalehsan/UptimeWatcher/internal/policy"
	"github.com/journalehsan/UptimeWatcher/internal/reboot"
	"github.com/journalehsan/UptimeWatcher/internal/state"
	"github.com/journalehsan/UptimeWatcher/internal/uptime"
	logx "github.com/journalehsan/UptimeWatcher/pkg/logx"
)

// Config holds the machine's tunables. Apply() may swap it at runtime.
type Config struct {
	// Threshold is the continuous uptime that first makes a reminder due.
	Threshold time.Duration
	// DecisionTimeout re-announces an unanswered reminder after this long.
	// Zero disables re-announcing.
	DecisionTimeout time.Duration
}

// Machine owns the reminder record and is its only writer. Ticks and
// decisions arrive from different goroutines; everything state-bearing runs
// under one mutex and persists before a transition is considered committed.
type Machine struct {
	log   logx.Logger
	src   uptime.Source
	store state.Store
	exec  reboot.Executor
	bus   eventbus.Bus

	// now is swappable for tests.
	now func() time.Time

	mu      sync.Mutex
	cfg     Config
	rec     state.Record
	st      State
	askedAt time.Time
}

func New(cfg Config, src uptime.Source, store state.Store, exec reboot.Executor, bus eventbus.Bus, log logx.Logger) *Machine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Machine{
		log:   log,
		src:   src,
		store: store,
		exec:  exec,
		bus:   bus,
		now:   time.Now,
		cfg:   cfg,
		rec:   state.Defaults(),
		st:    StateIdle,
	}
}

// Restore loads the persisted record. A missing or corrupt record comes back
// as first-run defaults from the store, so this only fails on a dead backend.
func (m *Machine) Restore(ctx context.Context) error {
	rec, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore state: %w", err)
	}
	m.mu.Lock()
	m.rec = rec
	m.st = StateIdle
	m.mu.Unlock()

	m.log.Info("state restored",
		logx.Int64("total_deferred_s", rec.TotalDeferredSeconds),
		logx.Float64("last_uptime_s", rec.LastObservedUptimeSeconds),
		logx.Bool("threshold_crossed", rec.FirstThresholdCrossedAt != nil),
	)
	return nil
}

// Apply swaps the tunables (config hot reload).
func (m *Machine) Apply(cfg Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

// Tick runs one poll cycle. It never returns an error: uptime and storage
// failures are logged and retried on the next natural tick, because nothing
// in this loop is allowed to kill the watcher.
func (m *Machine) Tick(ctx context.Context) {
	up, err := m.src.Sample()
	if err != nil {
		m.log.Warn("uptime sample failed; skipping tick", logx.Any("err", err))
		return
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	upSec := up.Seconds()

	// A sample smaller than the previous one means the host restarted while
	// we weren't looking. The deferral epoch dies with the old uptime, and
	// the reset is persisted before the threshold is ever evaluated.
	if upSec < m.rec.LastObservedUptimeSeconds {
		prev := time.Duration(m.rec.LastObservedUptimeSeconds * float64(time.Second))
		m.log.Info("reboot detected; deferral epoch reset",
			logx.Duration("prev_uptime", prev), logx.Duration("uptime", up))
		m.rec.ResetEpoch()
		m.rec.LastObservedUptimeSeconds = upSec
		m.st = StateIdle
		m.persistLocked(ctx)
		m.publish(eventbus.TypeRebootDetected, RebootDetected{PreviousUptime: prev, NewUptime: up})
		m.publish(eventbus.TypeStateReset, nil)
		return
	}

	m.rec.LastObservedUptimeSeconds = upSec
	if m.st == StateIdle && up >= m.cfg.Threshold {
		m.rec.MarkThresholdCrossed(now)
	}
	m.persistLocked(ctx)

	switch m.st {
	case StateIdle:
		if up < m.cfg.Threshold {
			return
		}
		if m.rec.NextReminderAt != nil && m.rec.NextReminderAt.After(now) {
			return
		}
		m.announceLocked(now, false)

	case StatePendingReminder:
		// A failed reboot parked us here; offer the reminder again.
		m.announceLocked(now, true)

	case StateAwaitingChoice:
		// Nobody answered. Never assume a default choice; ask the same
		// question again after the timeout.
		if m.cfg.DecisionTimeout > 0 && now.Sub(m.askedAt) >= m.cfg.DecisionTimeout {
			m.announceLocked(now, true)
		}

	case StateRebooting:
		// The executor owns the host now; keep observing, nothing more.
	}
}

// announceLocked emits a ReminderDue and moves to AwaitingChoice. The machine
// blocks no I/O here: the bus is non-blocking and the answer arrives later
// through SubmitDecision.
func (m *Machine) announceLocked(now time.Time, again bool) {
	m.st = StatePendingReminder

	upSec := int64(m.rec.LastObservedUptimeSeconds)
	due := ReminderDue{
		Uptime:        time.Duration(upSec) * time.Second,
		UptimeHuman:   FormatUptime(upSec),
		TotalDeferred: m.rec.TotalDeferred(),
		Choices:       policy.LegalChoices(m.rec.TotalDeferred()),
	}

	typ := eventbus.TypeReminderDue
	if again {
		typ = eventbus.TypeReminderAgain
	} else {
		m.log.Info("reboot reminder due",
			logx.String("uptime", due.UptimeHuman),
			logx.Duration("total_deferred", due.TotalDeferred),
			logx.Int("choices", len(due.Choices)))
	}
	m.publish(typ, due)

	m.st = StateAwaitingChoice
	m.askedAt = now
}

// SubmitDecision applies the user's answer to the currently pending reminder.
//
// Returns ErrNoReminderPending when nothing was asked, ErrInvalidChoice for a
// delay outside the current legal set (the record stays untouched), and a
// reboot.FailedError when the confirmed restart could not be issued; in that
// case the reminder stays pending and is re-offered on the next tick, never
// retried silently.
func (m *Machine) SubmitDecision(ctx context.Context, d Decision) error {
	switch d.Kind {
	case DecisionRebootNow:
		return m.rebootNow(ctx)
	case DecisionDelay:
		return m.delay(ctx, d.Option)
	default:
		return fmt.Errorf("unknown decision kind %d", d.Kind)
	}
}

func (m *Machine) rebootNow(ctx context.Context) error {
	m.mu.Lock()
	if m.st != StateAwaitingChoice {
		m.mu.Unlock()
		return ErrNoReminderPending
	}
	// Rebooting gates re-entry: the executor runs at most once per
	// confirmation, and a racing second decision bounces off.
	m.st = StateRebooting
	m.mu.Unlock()

	m.log.Info("user confirmed reboot")
	m.publish(eventbus.TypeRebootRequest, nil)

	if err := m.exec.Reboot(ctx); err != nil {
		m.log.Error("reboot failed; reminder stays pending", logx.Any("err", err))
		m.publish(eventbus.TypeRebootFailed, err.Error())
		m.mu.Lock()
		m.st = StatePendingReminder
		m.mu.Unlock()
		return err
	}
	// On success the process won't live much longer.
	return nil
}

func (m *Machine) delay(ctx context.Context, opt policy.Option) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.st != StateAwaitingChoice {
		return ErrNoReminderPending
	}
	if !policy.IsLegal(m.rec.TotalDeferred(), opt) {
		m.log.Warn("rejected illegal delay choice",
			logx.String("choice", opt.Label),
			logx.Duration("total_deferred", m.rec.TotalDeferred()))
		return ErrInvalidChoice
	}

	now := m.now()
	m.rec.ApplyDelay(opt.Delay, now)
	m.persistLocked(ctx)
	m.st = StateIdle

	m.log.Info("reminder delayed",
		logx.String("choice", opt.Label),
		logx.Duration("total_deferred", m.rec.TotalDeferred()),
		logx.Time("next_reminder", *m.rec.NextReminderAt))
	m.publish(eventbus.TypeDelayApplied, DelayApplied{
		Option:        opt,
		TotalDeferred: m.rec.TotalDeferred(),
		NextReminder:  *m.rec.NextReminderAt,
	})
	return nil
}

// persistLocked writes the record through the store. A failed write is logged
// and the machine carries on with its in-memory copy; the next mutation will
// try again.
func (m *Machine) persistLocked(ctx context.Context) {
	if err := m.store.Save(ctx, m.rec); err != nil {
		m.log.Warn("state save failed; continuing in memory", logx.Any("err", err))
	}
}

func (m *Machine) publish(typ string, data any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

// ---- Read-only accessors (display surfaces) ----

// Current returns the machine's state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st
}

// CurrentUptime returns the most recently observed uptime.
func (m *Machine) CurrentUptime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Duration(m.rec.LastObservedUptimeSeconds * float64(time.Second))
}

// LegalChoices returns the delay options currently on offer.
func (m *Machine) LegalChoices() []policy.Option {
	m.mu.Lock()
	defer m.mu.Unlock()
	return policy.LegalChoices(m.rec.TotalDeferred())
}

// RecordSnapshot returns a copy of the durable record.
func (m *Machine) RecordSnapshot() state.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec
}

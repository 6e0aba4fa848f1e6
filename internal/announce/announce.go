// Package announce turns watcher events into user-facing messages.
//
// The core machine publishes on the event bus and never blocks on
// presentation. This package is the other side of that contract: a small
// service that drains the bus, rate-limits chatty periods, and hands the
// rendered text to sinks (the log, an optional hook command, and the
// optional Telegram surface in the telegram subpackage).
package announce

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/journalehsan/UptimeWatcher/internal/eventbus"
	"github.com/journalehsan/UptimeWatcher/internal/watch"
	logx "github.com/journalehsan/UptimeWatcher/pkg/logx"
)

// Config controls the announcer.
type Config struct {
	// RatePerMin caps announcements per minute. <=0 means a default of 6.
	RatePerMin int
	Hook       HookConfig
}

// HookConfig describes an external command invoked per announcement
// (desktop notifiers, wall, custom scripts).
type HookConfig struct {
	Enabled bool
	Command []string
	Timeout time.Duration
}

// Service drains watcher events and fans them out to sinks.
//
// Run is meant to live under the supervisor; it exits cleanly on context
// cancellation and returns an error otherwise so the supervisor restarts it.
type Service struct {
	log  logx.Logger
	bus  eventbus.Bus
	cfg  Config
	lim  *rate.Limiter
	hook hookRunner
}

func New(cfg Config, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	per := cfg.RatePerMin
	if per <= 0 {
		per = 6
	}
	return &Service{
		log:  log,
		bus:  bus,
		cfg:  cfg,
		lim:  rate.NewLimiter(rate.Limit(per)/60, per),
		hook: execHook{},
	}
}

func (s *Service) Run(ctx context.Context) error {
	ch, unsub := s.bus.Subscribe(64)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			s.handle(ctx, ev)
		}
	}
}

func (s *Service) handle(ctx context.Context, ev eventbus.Event) {
	text, ok := Render(ev)
	if !ok {
		return
	}
	if err := s.lim.Wait(ctx); err != nil {
		return
	}

	s.log.Info("announce", logx.String("event", ev.Type), logx.String("text", text))

	if s.cfg.Hook.Enabled && len(s.cfg.Hook.Command) > 0 {
		timeout := s.cfg.Hook.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		if err := s.hook.Run(ctx, s.cfg.Hook.Command, timeout, HookEnv(ev, text)); err != nil {
			s.log.Warn("announce hook failed", logx.Any("err", err))
		}
	}
}

// Render builds the human-readable message for an event. The second return
// is false for event types that are not announced.
func Render(ev eventbus.Event) (string, bool) {
	switch ev.Type {
	case eventbus.TypeReminderDue, eventbus.TypeReminderAgain:
		due, ok := ev.Data.(watch.ReminderDue)
		if !ok {
			return "", false
		}
		var b strings.Builder
		fmt.Fprintf(&b, "This machine has been up for %s. A reboot keeps it healthy.", due.UptimeHuman)
		if due.TotalDeferred > 0 {
			fmt.Fprintf(&b, " Already postponed by %s.", watch.FormatUptime(int64(due.TotalDeferred.Seconds())))
		}
		if len(due.Choices) > 0 {
			labels := make([]string, 0, len(due.Choices))
			for _, c := range due.Choices {
				labels = append(labels, c.Label)
			}
			fmt.Fprintf(&b, " Delay options: %s.", strings.Join(labels, ", "))
		}
		return b.String(), true

	case eventbus.TypeDelayApplied:
		d, ok := ev.Data.(watch.DelayApplied)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("Reboot postponed by %s. Next reminder at %s.",
			d.Option.Label, d.NextReminder.Format("15:04")), true

	case eventbus.TypeRebootDetected:
		r, ok := ev.Data.(watch.RebootDetected)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("Reboot detected (uptime fell from %s to %s). Reminder slate wiped.",
			watch.FormatUptime(int64(r.PreviousUptime.Seconds())),
			watch.FormatUptime(int64(r.NewUptime.Seconds()))), true

	case eventbus.TypeRebootFailed:
		msg := "Reboot could not be started."
		if s, ok := ev.Data.(string); ok && s != "" {
			msg += " " + s
		}
		return msg, true

	case eventbus.TypeRebootRequest:
		return "Rebooting now.", true
	}
	return "", false
}

// HookEnv builds the KEY=VALUE pairs passed to the hook command on top of
// the daemon's own environment.
func HookEnv(ev eventbus.Event, text string) []string {
	env := []string{
		"UPTIMEWATCHER_EVENT=" + ev.Type,
		"UPTIMEWATCHER_TEXT=" + text,
	}
	if due, ok := ev.Data.(watch.ReminderDue); ok {
		env = append(env,
			"UPTIMEWATCHER_UPTIME="+due.UptimeHuman,
			fmt.Sprintf("UPTIMEWATCHER_UPTIME_SECONDS=%d", int64(due.Uptime.Seconds())),
			fmt.Sprintf("UPTIMEWATCHER_DEFERRED_SECONDS=%d", int64(due.TotalDeferred.Seconds())),
		)
	}
	return env
}

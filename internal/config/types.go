package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the daemon configuration.
//
// All durations are Go duration strings (e.g. "5m", "24h").
type Config struct {
	Watcher  WatcherConfig  `json:"watcher"`
	Reboot   RebootConfig   `json:"reboot,omitempty"`
	State    StateConfig    `json:"state,omitempty"`
	Logging  LoggingConfig  `json:"logging"`
	Announce AnnounceConfig `json:"announce,omitempty"`
	Debug    DebugConfig    `json:"debug,omitempty"`
}

// DebugConfig gates the optional local pprof listener.
type DebugConfig struct {
	Pprof PprofConfig `json:"pprof,omitempty"`
}

type PprofConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty"`
}

// WatcherConfig controls the reminder loop.
//
// Defaults (when fields are omitted/zero):
//   - threshold: "24h"
//   - poll_interval: "5m"
//   - decision_timeout: "15m" (re-announce when nobody answers)
type WatcherConfig struct {
	Threshold       string `json:"threshold,omitempty"`
	PollInterval    string `json:"poll_interval,omitempty"`
	DecisionTimeout string `json:"decision_timeout,omitempty"`
}

// RebootConfig controls how the host is restarted once the user confirms.
//
// On Linux the default path is logind over D-Bus; set "command" to force a
// specific command instead (e.g. ["systemctl", "reboot"]). On other platforms
// the platform default command is used unless overridden.
type RebootConfig struct {
	Command []string `json:"command,omitempty"`
}

// StateConfig controls where the reminder state record lives.
//
// Driver values:
//   - "file" (default): JSON record, written atomically
//   - "sqlite": single-row SQLite database
type StateConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// AnnounceConfig controls how reminders reach a human.
//
// The hook announcer runs an external command per reminder (a notify-send
// wrapper, a wall script, ...). The telegram announcer posts the reminder
// with inline reboot/delay buttons and feeds the answer back as a decision.
type AnnounceConfig struct {
	RatePerMin int                     `json:"rate_per_min,omitempty"`
	Hook       HookAnnounceConfig      `json:"hook,omitempty"`
	Telegram   *TelegramAnnounceConfig `json:"telegram,omitempty"`
}

type HookAnnounceConfig struct {
	Enabled bool     `json:"enabled"`
	Command []string `json:"command,omitempty"`
	// Timeout is a Go duration string; default "10s".
	Timeout string `json:"timeout,omitempty"`
}

type TelegramAnnounceConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  int64  `json:"chat_id"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

const (
	DefaultThreshold       = 24 * time.Hour
	DefaultPollInterval    = 5 * time.Minute
	DefaultDecisionTimeout = 15 * time.Minute
)

// Threshold returns the parsed continuous-uptime threshold.
func (w WatcherConfig) ThresholdDuration() (time.Duration, error) {
	return ParseDurationOrDefault("watcher.threshold", w.Threshold, DefaultThreshold)
}

// PollIntervalDuration returns the parsed poll interval.
func (w WatcherConfig) PollIntervalDuration() (time.Duration, error) {
	return ParseDurationOrDefault("watcher.poll_interval", w.PollInterval, DefaultPollInterval)
}

// DecisionTimeoutDuration returns how long to wait for an answer before the
// same reminder is announced again.
func (w WatcherConfig) DecisionTimeoutDuration() (time.Duration, error) {
	return ParseDurationOrDefault("watcher.decision_timeout", w.DecisionTimeout, DefaultDecisionTimeout)
}

// DefaultStatePath returns the per-user location of the state record,
// e.g. ~/.config/UptimeWatcher/state.json.
func DefaultStatePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "UptimeWatcher", "state.json"), nil
}

// Validate checks cross-field constraints that the strict decoder can't.
func (c *Config) Validate() error {
	if _, err := c.Watcher.ThresholdDuration(); err != nil {
		return err
	}
	if _, err := c.Watcher.PollIntervalDuration(); err != nil {
		return err
	}
	if _, err := c.Watcher.DecisionTimeoutDuration(); err != nil {
		return err
	}
	if _, err := ParseDurationField("state.busy_timeout", c.State.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("announce.hook.timeout", c.Announce.Hook.Timeout); err != nil {
		return err
	}
	switch d := strings.ToLower(strings.TrimSpace(c.State.Driver)); d {
	case "", "file", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("state.driver: unknown driver %q", c.State.Driver)
	}
	if c.Announce.Hook.Enabled && len(c.Announce.Hook.Command) == 0 {
		return fmt.Errorf("announce.hook.command is required when the hook announcer is enabled")
	}
	if tg := c.Announce.Telegram; tg != nil && tg.Enabled {
		if strings.TrimSpace(tg.Token) == "" {
			return fmt.Errorf("announce.telegram.token is required when the telegram announcer is enabled")
		}
		if tg.ChatID == 0 {
			return fmt.Errorf("announce.telegram.chat_id is required when the telegram announcer is enabled")
		}
		if _, err := ParseDurationField("announce.telegram.poll_timeout", tg.PollTimeout); err != nil {
			return err
		}
	}
	return nil
}

package announce

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/journalehsan/UptimeWatcher/internal/eventbus"
	"github.com/journalehsan/UptimeWatcher/internal/policy"
	"github.com/journalehsan/UptimeWatcher/internal/watch"
	logx "github.com/journalehsan/UptimeWatcher/pkg/logx"
)

func dueEvent(deferred time.Duration) eventbus.Event {
	return eventbus.Event{
		Type: eventbus.TypeReminderDue,
		Data: watch.ReminderDue{
			Uptime:        26 * time.Hour,
			UptimeHuman:   "1d 2h 0m",
			TotalDeferred: deferred,
			Choices:       policy.LegalChoices(deferred),
		},
	}
}

func TestRenderReminder(t *testing.T) {
	text, ok := Render(dueEvent(0))
	if !ok {
		t.Fatal("reminder not rendered")
	}
	if !strings.Contains(text, "1d 2h 0m") {
		t.Errorf("uptime missing from %q", text)
	}
	if !strings.Contains(text, "24 hours") || !strings.Contains(text, "10 minutes") {
		t.Errorf("delay options missing from %q", text)
	}
	if strings.Contains(text, "postponed") {
		t.Errorf("fresh reminder mentions postponement: %q", text)
	}

	text, _ = Render(dueEvent(13 * time.Hour))
	if !strings.Contains(text, "postponed by 13h 0m") {
		t.Errorf("deferred total missing from %q", text)
	}
}

func TestRenderDelayAndReset(t *testing.T) {
	opt, _ := policy.ByDelay(3 * time.Hour)
	next := time.Date(2026, 5, 2, 18, 30, 0, 0, time.UTC)
	text, ok := Render(eventbus.Event{
		Type: eventbus.TypeDelayApplied,
		Data: watch.DelayApplied{Option: opt, TotalDeferred: 3 * time.Hour, NextReminder: next},
	})
	if !ok || !strings.Contains(text, "3 hours") || !strings.Contains(text, "18:30") {
		t.Errorf("delay render = %q", text)
	}

	text, ok = Render(eventbus.Event{
		Type: eventbus.TypeRebootDetected,
		Data: watch.RebootDetected{PreviousUptime: 25 * time.Hour, NewUptime: 2 * time.Minute},
	})
	if !ok || !strings.Contains(text, "1d 1h 0m") || !strings.Contains(text, "2m") {
		t.Errorf("reset render = %q", text)
	}
}

func TestRenderSkipsUnknownEvents(t *testing.T) {
	if _, ok := Render(eventbus.Event{Type: "state.reset"}); ok {
		t.Error("state.reset should not be announced")
	}
	if _, ok := Render(eventbus.Event{Type: eventbus.TypeReminderDue, Data: "garbage"}); ok {
		t.Error("malformed payload should not be announced")
	}
}

func TestHookEnv(t *testing.T) {
	env := HookEnv(dueEvent(time.Hour), "hello")
	want := map[string]bool{
		"UPTIMEWATCHER_EVENT=reminder.due":        false,
		"UPTIMEWATCHER_TEXT=hello":                false,
		"UPTIMEWATCHER_UPTIME=1d 2h 0m":           false,
		"UPTIMEWATCHER_UPTIME_SECONDS=93600":      false,
		"UPTIMEWATCHER_DEFERRED_SECONDS=3600":     false,
	}
	for _, kv := range env {
		if _, ok := want[kv]; ok {
			want[kv] = true
		}
	}
	for kv, seen := range want {
		if !seen {
			t.Errorf("missing %q in %v", kv, env)
		}
	}
}

type captureHook struct {
	mu   sync.Mutex
	runs [][]string
}

func (h *captureHook) Run(ctx context.Context, command []string, timeout time.Duration, env []string) error {
	h.mu.Lock()
	h.runs = append(h.runs, env)
	h.mu.Unlock()
	return nil
}

func TestServiceInvokesHook(t *testing.T) {
	bus := eventbus.New()
	svc := New(Config{
		RatePerMin: 600,
		Hook:       HookConfig{Enabled: true, Command: []string{"notify-send"}},
	}, bus, logx.Nop())
	hook := &captureHook{}
	svc.hook = hook

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = svc.Run(ctx)
		close(done)
	}()

	bus.Publish(dueEvent(0))
	bus.Publish(eventbus.Event{Type: "state.reset"}) // not announced

	deadline := time.After(2 * time.Second)
	for {
		hook.mu.Lock()
		n := len(hook.runs)
		hook.mu.Unlock()
		if n >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("hook never invoked")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done

	hook.mu.Lock()
	defer hook.mu.Unlock()
	if len(hook.runs) != 1 {
		t.Fatalf("hook runs = %d, want 1", len(hook.runs))
	}
}

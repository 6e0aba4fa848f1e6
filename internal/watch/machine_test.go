package watch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/journalehsan/UptimeWatcher/internal/eventbus"
	"github.com/journalehsan/UptimeWatcher/internal/policy"
	"github.com/journalehsan/UptimeWatcher/internal/state"
	"github.com/journalehsan/UptimeWatcher/internal/uptime"
	logx "github.com/journalehsan/UptimeWatcher/pkg/logx"
)

type memStore struct {
	mu       sync.Mutex
	rec      state.Record
	saves    int
	failSave bool
}

func (s *memStore) Load(ctx context.Context) (state.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec, nil
}

func (s *memStore) Save(ctx context.Context, r state.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave {
		return errors.New("disk full")
	}
	s.rec = r
	s.saves++
	return nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) saved() state.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec
}

type fakeExec struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *fakeExec) Reboot(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return e.err
}

func (e *fakeExec) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type harness struct {
	m      *Machine
	store  *memStore
	exec   *fakeExec
	events <-chan eventbus.Event

	mu     sync.Mutex
	sample time.Duration
	srcErr error
	now    time.Time
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		store: &memStore{rec: state.Defaults()},
		exec:  &fakeExec{},
		now:   time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC),
	}
	src := uptime.SourceFunc(func() (time.Duration, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.sample, h.srcErr
	})
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(32)
	t.Cleanup(unsub)
	h.events = ch

	h.m = New(cfg, src, h.store, h.exec, bus, logx.Nop())
	h.m.now = func() time.Time {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.now
	}
	if err := h.m.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	return h
}

func (h *harness) setSample(d time.Duration) {
	h.mu.Lock()
	h.sample = d
	h.mu.Unlock()
}

func (h *harness) setSrcErr(err error) {
	h.mu.Lock()
	h.srcErr = err
	h.mu.Unlock()
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	h.now = h.now.Add(d)
	h.mu.Unlock()
}

// drain returns all events currently buffered.
func (h *harness) drain() []eventbus.Event {
	var out []eventbus.Event
	for {
		select {
		case e := <-h.events:
			out = append(out, e)
		default:
			return out
		}
	}
}

func hasEvent(evs []eventbus.Event, typ string) bool {
	for _, e := range evs {
		if e.Type == typ {
			return true
		}
	}
	return false
}

var testCfg = Config{Threshold: 24 * time.Hour, DecisionTimeout: 15 * time.Minute}

func TestFreshInstallCrossesThreshold(t *testing.T) {
	h := newHarness(t, testCfg)
	ctx := context.Background()

	h.setSample(time.Hour)
	h.m.Tick(ctx)
	if h.m.Current() != StateIdle {
		t.Fatalf("state below threshold = %v, want idle", h.m.Current())
	}
	if evs := h.drain(); len(evs) != 0 {
		t.Fatalf("unexpected events below threshold: %v", evs)
	}

	h.setSample(86400 * time.Second)
	h.m.Tick(ctx)
	if h.m.Current() != StateAwaitingChoice {
		t.Fatalf("state at threshold = %v, want awaiting_choice", h.m.Current())
	}
	evs := h.drain()
	if !hasEvent(evs, eventbus.TypeReminderDue) {
		t.Fatalf("no reminder.due event, got %v", evs)
	}
	for _, e := range evs {
		if e.Type != eventbus.TypeReminderDue {
			continue
		}
		due, ok := e.Data.(ReminderDue)
		if !ok {
			t.Fatalf("reminder.due payload type %T", e.Data)
		}
		if len(due.Choices) != 6 {
			t.Fatalf("fresh reminder offers %d choices, want 6", len(due.Choices))
		}
		if due.UptimeHuman != "1d 0h 0m" {
			t.Fatalf("uptime human = %q", due.UptimeHuman)
		}
	}
	if h.store.saved().FirstThresholdCrossedAt == nil {
		t.Fatalf("firstThresholdCrossedAt not persisted")
	}
}

func TestNoDoubleFireWhileAwaiting(t *testing.T) {
	h := newHarness(t, testCfg)
	ctx := context.Background()

	h.setSample(25 * time.Hour)
	h.m.Tick(ctx)
	h.drain()

	// Next tick arrives before the decision timeout: no second announcement,
	// but the observed uptime must still advance (reboot detection keeps
	// working while a dialog sits unanswered).
	h.advance(5 * time.Minute)
	h.setSample(25*time.Hour + 5*time.Minute)
	h.m.Tick(ctx)
	if evs := h.drain(); len(evs) != 0 {
		t.Fatalf("double-fired while awaiting: %v", evs)
	}
	if got := h.store.saved().LastObservedUptimeSeconds; got != (25*3600 + 300) {
		t.Fatalf("lastObservedUptimeSeconds = %v", got)
	}
}

func TestDecisionTimeoutReannounces(t *testing.T) {
	h := newHarness(t, testCfg)
	ctx := context.Background()

	h.setSample(25 * time.Hour)
	h.m.Tick(ctx)
	h.drain()

	h.advance(16 * time.Minute)
	h.setSample(25*time.Hour + 16*time.Minute)
	h.m.Tick(ctx)
	evs := h.drain()
	if !hasEvent(evs, eventbus.TypeReminderAgain) {
		t.Fatalf("expected reminder.again after decision timeout, got %v", evs)
	}
	if h.m.Current() != StateAwaitingChoice {
		t.Fatalf("state = %v, want awaiting_choice", h.m.Current())
	}
}

func TestDelayAccounting(t *testing.T) {
	h := newHarness(t, testCfg)
	ctx := context.Background()

	h.setSample(25 * time.Hour)
	h.m.Tick(ctx)
	h.drain()

	opt, _ := policy.ByDelay(3 * time.Hour)
	if err := h.m.SubmitDecision(ctx, Delay(opt)); err != nil {
		t.Fatalf("delay: %v", err)
	}
	if h.m.Current() != StateIdle {
		t.Fatalf("state after delay = %v, want idle", h.m.Current())
	}

	rec := h.store.saved()
	if rec.TotalDeferredSeconds != 10800 {
		t.Fatalf("totalDeferredSeconds = %d, want 10800", rec.TotalDeferredSeconds)
	}
	wantNext := h.now.Add(3 * time.Hour)
	if rec.NextReminderAt == nil || !rec.NextReminderAt.Equal(wantNext) {
		t.Fatalf("nextReminderAt = %v, want %v", rec.NextReminderAt, wantNext)
	}
	if evs := h.drain(); !hasEvent(evs, eventbus.TypeDelayApplied) {
		t.Fatalf("no delay event: %v", evs)
	}

	// Still inside the granted delay: quiet.
	h.advance(time.Hour)
	h.setSample(26 * time.Hour)
	h.m.Tick(ctx)
	if evs := h.drain(); len(evs) != 0 {
		t.Fatalf("reminder fired inside granted delay: %v", evs)
	}

	// Delay expired: the reminder comes back with a smaller catalog.
	h.advance(2*time.Hour + time.Minute)
	h.setSample(28 * time.Hour)
	h.m.Tick(ctx)
	evs := h.drain()
	if !hasEvent(evs, eventbus.TypeReminderDue) {
		t.Fatalf("reminder did not return after delay expiry: %v", evs)
	}
}

func TestRebootDetectionResetsEpoch(t *testing.T) {
	h := newHarness(t, testCfg)
	ctx := context.Background()

	// Build up a deferral epoch.
	h.setSample(25 * time.Hour)
	h.m.Tick(ctx)
	h.drain()
	opt, _ := policy.ByDelay(10 * time.Hour)
	if err := h.m.SubmitDecision(ctx, Delay(opt)); err != nil {
		t.Fatalf("delay: %v", err)
	}
	h.drain()

	// Host restarts: sample shrinks from 90000s to 120s.
	h.setSample(120 * time.Second)
	h.m.Tick(ctx)

	rec := h.store.saved()
	if rec.FirstThresholdCrossedAt != nil || rec.NextReminderAt != nil || rec.TotalDeferredSeconds != 0 {
		t.Fatalf("epoch not reset and persisted: %+v", rec)
	}
	if rec.LastObservedUptimeSeconds != 120 {
		t.Fatalf("lastObservedUptimeSeconds = %v, want 120", rec.LastObservedUptimeSeconds)
	}
	if h.m.Current() != StateIdle {
		t.Fatalf("state = %v, want idle", h.m.Current())
	}
	evs := h.drain()
	if !hasEvent(evs, eventbus.TypeRebootDetected) || !hasEvent(evs, eventbus.TypeStateReset) {
		t.Fatalf("missing reset events: %v", evs)
	}
	if hasEvent(evs, eventbus.TypeReminderDue) {
		t.Fatalf("reminder fired during reset tick: %v", evs)
	}
}

func TestInvalidChoiceLeavesRecordUntouched(t *testing.T) {
	h := newHarness(t, testCfg)
	ctx := context.Background()

	// 172300s (~47h55m) already deferred: only the 10-minute option is legal.
	h.store.rec.TotalDeferredSeconds = 172300
	if err := h.m.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	h.setSample(60 * time.Hour)
	h.m.Tick(ctx)
	h.drain()
	if h.m.Current() != StateAwaitingChoice {
		t.Fatalf("state = %v, want awaiting_choice", h.m.Current())
	}

	before := h.store.saved()
	opt, _ := policy.ByDelay(24 * time.Hour)
	err := h.m.SubmitDecision(ctx, Delay(opt))
	if !errors.Is(err, ErrInvalidChoice) {
		t.Fatalf("err = %v, want ErrInvalidChoice", err)
	}
	after := h.store.saved()
	if before != after {
		t.Fatalf("record mutated by rejected decision:\nbefore %+v\nafter  %+v", before, after)
	}
	if h.m.Current() != StateAwaitingChoice {
		t.Fatalf("state changed by rejected decision: %v", h.m.Current())
	}

	// The fallback is still accepted.
	if err := h.m.SubmitDecision(ctx, Delay(policy.Fallback())); err != nil {
		t.Fatalf("fallback delay rejected: %v", err)
	}
}

func TestRebootNowInvokesExecutorOnce(t *testing.T) {
	h := newHarness(t, testCfg)
	ctx := context.Background()

	h.setSample(25 * time.Hour)
	h.m.Tick(ctx)
	h.drain()

	if err := h.m.SubmitDecision(ctx, RebootNow()); err != nil {
		t.Fatalf("reboot now: %v", err)
	}
	if h.exec.callCount() != 1 {
		t.Fatalf("executor calls = %d, want 1", h.exec.callCount())
	}
	if h.m.Current() != StateRebooting {
		t.Fatalf("state = %v, want rebooting", h.m.Current())
	}

	// A second decision bounces: the confirmation was already consumed.
	err := h.m.SubmitDecision(ctx, RebootNow())
	if !errors.Is(err, ErrNoReminderPending) {
		t.Fatalf("second confirm err = %v, want ErrNoReminderPending", err)
	}
	if h.exec.callCount() != 1 {
		t.Fatalf("executor invoked again: %d calls", h.exec.callCount())
	}

	// While rebooting, ticks keep observing but never re-announce.
	h.setSample(25*time.Hour + 5*time.Minute)
	h.m.Tick(ctx)
	if evs := h.drain(); hasEvent(evs, eventbus.TypeReminderDue) || hasEvent(evs, eventbus.TypeReminderAgain) {
		t.Fatalf("announced during reboot: %v", evs)
	}
}

func TestRebootFailureReturnsToPending(t *testing.T) {
	h := newHarness(t, testCfg)
	ctx := context.Background()
	h.exec.err = errors.New("polkit denied")

	h.setSample(25 * time.Hour)
	h.m.Tick(ctx)
	h.drain()

	err := h.m.SubmitDecision(ctx, RebootNow())
	if err == nil {
		t.Fatalf("expected reboot failure to surface")
	}
	if h.m.Current() != StatePendingReminder {
		t.Fatalf("state = %v, want pending_reminder", h.m.Current())
	}
	if evs := h.drain(); !hasEvent(evs, eventbus.TypeRebootFailed) {
		t.Fatalf("no reboot.failed event: %v", evs)
	}
	// No automatic retry.
	if h.exec.callCount() != 1 {
		t.Fatalf("executor retried: %d calls", h.exec.callCount())
	}

	// The next tick re-offers the reminder.
	h.advance(5 * time.Minute)
	h.setSample(25*time.Hour + 5*time.Minute)
	h.m.Tick(ctx)
	if evs := h.drain(); !hasEvent(evs, eventbus.TypeReminderAgain) {
		t.Fatalf("reminder not re-offered after failed reboot: %v", evs)
	}
	if h.exec.callCount() != 1 {
		t.Fatalf("executor retried by tick: %d calls", h.exec.callCount())
	}
}

func TestSampleFailureSkipsTick(t *testing.T) {
	h := newHarness(t, testCfg)
	ctx := context.Background()

	h.setSample(90000 * time.Second)
	h.m.Tick(ctx)
	h.drain()
	saves := h.store.saves

	h.setSrcErr(&uptime.UnavailableError{Reason: "test"})
	h.setSample(0)
	h.m.Tick(ctx)
	if h.store.saves != saves {
		t.Fatalf("tick persisted despite failed sample")
	}
	// Crucially, the zero sample from the failed read must not be mistaken
	// for a reboot.
	if got := h.store.saved().LastObservedUptimeSeconds; got != 90000 {
		t.Fatalf("lastObservedUptimeSeconds = %v, want 90000", got)
	}
}

func TestSaveFailureDoesNotStallMachine(t *testing.T) {
	h := newHarness(t, testCfg)
	ctx := context.Background()
	h.store.failSave = true

	h.setSample(25 * time.Hour)
	h.m.Tick(ctx)
	if h.m.Current() != StateAwaitingChoice {
		t.Fatalf("machine stalled on save failure: %v", h.m.Current())
	}
	if evs := h.drain(); !hasEvent(evs, eventbus.TypeReminderDue) {
		t.Fatalf("no reminder despite save failure: %v", evs)
	}
}

func TestDecisionWithoutReminder(t *testing.T) {
	h := newHarness(t, testCfg)
	err := h.m.SubmitDecision(context.Background(), Delay(policy.Fallback()))
	if !errors.Is(err, ErrNoReminderPending) {
		t.Fatalf("err = %v, want ErrNoReminderPending", err)
	}
}

func TestAccessors(t *testing.T) {
	h := newHarness(t, testCfg)
	ctx := context.Background()

	h.setSample(90000 * time.Second)
	h.m.Tick(ctx)
	if got := h.m.CurrentUptime(); got != 90000*time.Second {
		t.Fatalf("CurrentUptime = %v", got)
	}
	if got := h.m.LegalChoices(); len(got) != 6 {
		t.Fatalf("LegalChoices = %d options, want 6", len(got))
	}
}

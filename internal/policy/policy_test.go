package policy

import (
	"testing"
	"time"
)

func TestLegalChoicesFresh(t *testing.T) {
	got := LegalChoices(0)
	if len(got) != 6 {
		t.Fatalf("expected full catalog (6 options), got %d", len(got))
	}
	if got[0].Delay != 24*time.Hour || got[len(got)-1].Delay != 10*time.Minute {
		t.Fatalf("unexpected bounds: first=%v last=%v", got[0].Delay, got[len(got)-1].Delay)
	}
}

func TestLegalChoicesOrderedAndNonEmpty(t *testing.T) {
	deferred := []time.Duration{
		0,
		time.Minute,
		10 * time.Hour,
		25 * time.Hour,
		47 * time.Hour,
		Ceiling - 10*time.Minute,
		Ceiling - time.Second,
		Ceiling,
		Ceiling + 100*time.Hour,
	}
	for _, d := range deferred {
		got := LegalChoices(d)
		if len(got) == 0 {
			t.Fatalf("LegalChoices(%v) is empty", d)
		}
		for i := 1; i < len(got); i++ {
			if got[i].Delay >= got[i-1].Delay {
				t.Fatalf("LegalChoices(%v) not strictly longest-first: %v then %v", d, got[i-1].Delay, got[i].Delay)
			}
		}
	}
}

func TestLegalChoicesModerateDeferral(t *testing.T) {
	// 25h deferred: 24h would overshoot the 48h ceiling; everything else fits.
	got := LegalChoices(25 * time.Hour)
	want := []time.Duration{10 * time.Hour, 5 * time.Hour, 3 * time.Hour, time.Hour, 10 * time.Minute}
	if len(got) != len(want) {
		t.Fatalf("expected %d options, got %d: %v", len(want), len(got), got)
	}
	for i, o := range got {
		if o.Delay != want[i] {
			t.Fatalf("option %d: got %v, want %v", i, o.Delay, want[i])
		}
	}
}

func TestLegalChoicesCeilingCollapse(t *testing.T) {
	// ~47h55m deferred: only the fallback remains.
	for _, d := range []time.Duration{
		172300 * time.Second,
		Ceiling - 10*time.Minute + time.Second,
		Ceiling,
		Ceiling + time.Hour,
	} {
		got := LegalChoices(d)
		if len(got) != 1 || got[0].Delay != 10*time.Minute {
			t.Fatalf("LegalChoices(%v) = %v, want only the 10-minute fallback", d, got)
		}
	}
}

func TestLegalChoicesExactBoundary(t *testing.T) {
	// Exactly ceiling-10m: the fallback still fits without exceeding, so it is
	// offered through the normal path, not the last-resort path.
	got := LegalChoices(Ceiling - 10*time.Minute)
	if len(got) != 1 || got[0].Delay != 10*time.Minute {
		t.Fatalf("got %v, want exactly the 10-minute option", got)
	}
}

func TestIsLegal(t *testing.T) {
	if !IsLegal(0, Option{Delay: 24 * time.Hour}) {
		t.Fatalf("24h should be legal with nothing deferred")
	}
	if IsLegal(172300*time.Second, Option{Delay: 24 * time.Hour}) {
		t.Fatalf("24h must be illegal past the ceiling")
	}
	if !IsLegal(Ceiling*2, Fallback()) {
		t.Fatalf("fallback must always be legal")
	}
}

func TestByDelay(t *testing.T) {
	o, ok := ByDelay(3 * time.Hour)
	if !ok || o.Label != "3 hours" {
		t.Fatalf("ByDelay(3h) = %+v ok=%v", o, ok)
	}
	if _, ok := ByDelay(2 * time.Hour); ok {
		t.Fatalf("2h is not in the catalog")
	}
}

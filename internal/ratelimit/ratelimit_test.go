package ratelimit

import (
	"testing"
	"time"
)

func TestAllowExhaustsBudget(t *testing.T) {
	l := New()
	for i := 0; i < 3; i++ {
		if !l.Allow("op", 3, time.Minute) {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	if l.Allow("op", 3, time.Minute) {
		t.Fatalf("attempt over budget was allowed")
	}
	// Refusals must not consume budget either.
	if got := l.Remaining("op", 3, time.Minute); got != 0 {
		t.Fatalf("Remaining = %d, want 0", got)
	}
}

func TestAllowRecoversAfterWindow(t *testing.T) {
	base := time.Now()
	now := base
	l := New()
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if !l.Allow("op", 2, time.Minute) {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	if l.Allow("op", 2, time.Minute) {
		t.Fatalf("third attempt within window was allowed")
	}

	now = base.Add(61 * time.Second)
	if !l.Allow("op", 2, time.Minute) {
		t.Fatalf("attempt after window expiry was refused")
	}
}

func TestAllowIsPerOperation(t *testing.T) {
	l := New()
	if !l.Allow("a", 1, time.Minute) {
		t.Fatalf("first attempt on a refused")
	}
	if l.Allow("a", 1, time.Minute) {
		t.Fatalf("second attempt on a allowed")
	}
	if !l.Allow("b", 1, time.Minute) {
		t.Fatalf("attempt on unrelated op b refused")
	}
}

func TestResetClearsHistory(t *testing.T) {
	l := New()
	if !l.Allow("op", 1, time.Minute) {
		t.Fatalf("first attempt refused")
	}
	l.Reset("op")
	if !l.Allow("op", 1, time.Minute) {
		t.Fatalf("attempt after Reset refused")
	}
}

func TestZeroBudgetRefuses(t *testing.T) {
	l := New()
	if l.Allow("op", 0, time.Minute) {
		t.Fatalf("zero max was allowed")
	}
	if l.Allow("op", 1, 0) {
		t.Fatalf("zero window was allowed")
	}
}

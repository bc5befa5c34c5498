package circuitbreaker

import (
	"sync"
	"testing"
	"time"
)

func TestBreaker_AllowWhenClosed(t *testing.T) {
	b := New(3, 100*time.Millisecond)
	if !b.Allow("xgboost") {
		t.Fatal("expected closed circuit to allow")
	}
}

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b := New(3, 100*time.Millisecond)

	// 2 failures = still closed
	b.RecordFailure("xgboost")
	b.RecordFailure("xgboost")
	if !b.Allow("xgboost") {
		t.Fatal("should still allow before threshold")
	}

	// 3rd failure = open
	b.RecordFailure("xgboost")
	if b.Allow("xgboost") {
		t.Fatal("should be open after 3 failures")
	}
	if b.State("xgboost") != StateOpen {
		t.Fatalf("expected StateOpen, got %v", b.State("xgboost"))
	}
}

func TestBreaker_OpenToHalfOpenAfterDuration(t *testing.T) {
	b := New(2, 50*time.Millisecond)

	b.RecordFailure("xgboost")
	b.RecordFailure("xgboost")
	if b.Allow("xgboost") {
		t.Fatal("should be open")
	}

	time.Sleep(60 * time.Millisecond)

	// Should transition to half-open and allow one probe.
	if !b.Allow("xgboost") {
		t.Fatal("should allow probe in half-open")
	}
	if b.State("xgboost") != StateHalfOpen {
		t.Fatalf("expected StateHalfOpen, got %v", b.State("xgboost"))
	}

	// Second call while half-open should be rejected.
	if b.Allow("xgboost") {
		t.Fatal("should reject second call in half-open")
	}
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b := New(2, 50*time.Millisecond)

	b.RecordFailure("xgboost")
	b.RecordFailure("xgboost")
	time.Sleep(60 * time.Millisecond)
	b.Allow("xgboost") // Transitions to half-open

	b.RecordSuccess("xgboost")
	if b.State("xgboost") != StateClosed {
		t.Fatalf("expected StateClosed after success, got %v", b.State("xgboost"))
	}
	if !b.Allow("xgboost") {
		t.Fatal("should allow after recovery")
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New(2, 50*time.Millisecond)

	b.RecordFailure("xgboost")
	b.RecordFailure("xgboost")
	time.Sleep(60 * time.Millisecond)
	b.Allow("xgboost") // Transitions to half-open

	b.RecordFailure("xgboost")
	if b.State("xgboost") != StateOpen {
		t.Fatalf("expected StateOpen after half-open failure, got %v", b.State("xgboost"))
	}
}

func TestBreaker_SuccessResets(t *testing.T) {
	b := New(3, 100*time.Millisecond)

	b.RecordFailure("xgboost")
	b.RecordFailure("xgboost")
	b.RecordSuccess("xgboost")

	// Should not trip with only 1 more failure (counter was reset).
	b.RecordFailure("xgboost")
	if !b.Allow("xgboost") {
		t.Fatal("should still be closed after reset")
	}
}

func TestBreaker_IndependentModels(t *testing.T) {
	b := New(2, 100*time.Millisecond)

	b.RecordFailure("xgboost")
	b.RecordFailure("xgboost")

	// xgboost is open, lightgbm should be unaffected.
	if b.Allow("xgboost") {
		t.Fatal("xgboost should be open")
	}
	if !b.Allow("lightgbm") {
		t.Fatal("lightgbm should be closed")
	}
}

func TestBreaker_UnknownModelIsClosed(t *testing.T) {
	b := New(2, 100*time.Millisecond)
	if b.State("unknown") != StateClosed {
		t.Fatalf("expected StateClosed for unknown model, got %v", b.State("unknown"))
	}
}

func TestBreaker_OnTransitionCallback(t *testing.T) {
	b := New(2, 50*time.Millisecond)

	var mu sync.Mutex
	var transitions []struct{ from, to State }
	b.OnTransition(func(model string, from, to State) {
		mu.Lock()
		transitions = append(transitions, struct{ from, to State }{from, to})
		mu.Unlock()
	})

	b.RecordFailure("xgboost")
	b.RecordFailure("xgboost") // Should trigger closed→open.

	// Give goroutine time to run.
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	if len(transitions) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(transitions))
	}
	if transitions[0].from != StateClosed || transitions[0].to != StateOpen {
		t.Fatalf("expected closed→open, got %v→%v", transitions[0].from, transitions[0].to)
	}
	mu.Unlock()
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

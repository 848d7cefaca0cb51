package backoff_test

import (
	"testing"
	"time"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/backoff"
)

func TestDeterministicStrategies(t *testing.T) {
	tests := []struct {
		name     string
		strategy backoff.Strategy
		attempt  int
		want     time.Duration
	}{
		{"constant attempt 1", backoff.NewConstant(5 * time.Second), 1, 5 * time.Second},
		{"constant attempt 9", backoff.NewConstant(5 * time.Second), 9, 5 * time.Second},
		{"linear attempt 1", backoff.NewLinear(time.Second, time.Minute), 1, time.Second},
		{"linear attempt 4", backoff.NewLinear(time.Second, time.Minute), 4, 4 * time.Second},
		{"linear capped", backoff.NewLinear(time.Second, 5*time.Second), 30, 5 * time.Second},
		{"exponential attempt 1", backoff.NewExponential(time.Second, time.Hour), 1, time.Second},
		{"exponential attempt 3", backoff.NewExponential(time.Second, time.Hour), 3, 4 * time.Second},
		{"exponential attempt 6", backoff.NewExponential(time.Second, time.Hour), 6, 32 * time.Second},
		{"exponential capped", backoff.NewExponential(time.Second, 10*time.Second), 20, 10 * time.Second},
		{"exponential no cap when zero", backoff.NewExponential(time.Second, 0), 5, 16 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.strategy.Delay(tt.attempt); got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestExponentialHugeAttemptDoesNotOverflow(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Hour)
	if got := e.Delay(500); got != time.Hour {
		t.Errorf("Delay(500) = %v, want cap %v", got, time.Hour)
	}
}

func TestJitterStaysWithinCeiling(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, 10*time.Second)

	for attempt := 1; attempt <= 5; attempt++ {
		for range 100 {
			got := e.Delay(attempt)
			if got < 0 || got > 10*time.Second {
				t.Fatalf("Delay(%d) = %v, want within [0, 10s]", attempt, got)
			}
		}
	}
}

func TestJitterProducesVariance(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, time.Minute)

	seen := make(map[time.Duration]bool)
	for range 100 {
		seen[e.Delay(3)] = true
	}
	if len(seen) < 2 {
		t.Errorf("expected distinct jittered delays, got %d distinct values", len(seen))
	}
}

func TestFuncAdapter(t *testing.T) {
	var got int
	s := backoff.Func(func(attempt int) time.Duration {
		got = attempt
		return 7 * time.Millisecond
	})
	if d := s.Delay(3); d != 7*time.Millisecond {
		t.Errorf("Delay(3) = %v, want 7ms", d)
	}
	if got != 3 {
		t.Errorf("adapter passed attempt %d, want 3", got)
	}
}

func TestDefaultStrategy(t *testing.T) {
	s := backoff.DefaultStrategy()
	if s == nil {
		t.Fatal("DefaultStrategy() returned nil")
	}
	if d := s.Delay(1); d < 0 || d > time.Second {
		t.Errorf("Delay(1) = %v, want within [0, 1s]", d)
	}
}

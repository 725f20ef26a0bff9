package daemon

import (
	"testing"
	"time"
)

func TestClockJumpDetector(t *testing.T) {
	d := &clockJumpDetector{threshold: 10 * time.Second}
	start := time.Now()

	if slept, woke := d.observe(start.Round(0), start); woke || slept != 0 {
		t.Fatalf("first reading should never count as a wake, got %s", slept)
	}

	mono := start.Add(5 * time.Second)
	if _, woke := d.observe(mono.Round(0), mono); woke {
		t.Fatalf("steady clocks should not count as a wake")
	}

	// Suspended for a minute: the wall clock moved, the monotonic one barely.
	wall := mono.Round(0).Add(65 * time.Second)
	mono = mono.Add(5 * time.Second)
	slept, woke := d.observe(wall, mono)
	if !woke {
		t.Fatalf("expected a wake after a %s jump", slept)
	}
	if slept != time.Minute {
		t.Errorf("expected to have slept 1m, got %s", slept)
	}

	mono = mono.Add(5 * time.Second)
	if _, woke := d.observe(mono.Round(0).Add(time.Minute), mono); woke {
		t.Fatalf("the jump should only be reported once")
	}
}

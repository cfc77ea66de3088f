package idler

import (
	"context"
	"testing"
	"time"
)

func TestNotifier_IdleTimesOut(t *testing.T) {
	n := NewNotifier()

	start := time.Now()
	if err := n.Idle(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatalf("Idle() = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Idle returned after %v, want at least 20ms", elapsed)
	}
}

func TestNotifier_InterruptWakes(t *testing.T) {
	n := NewNotifier()

	if err := n.Interrupt(context.Background()); err != nil {
		t.Fatalf("Interrupt() = %v", err)
	}

	start := time.Now()
	if err := n.Idle(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("Idle() = %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Idle took %v, want immediate wake", elapsed)
	}
}

func TestNotifier_InterruptsCoalesce(t *testing.T) {
	n := NewNotifier()

	for i := 0; i < 3; i++ {
		if err := n.Interrupt(context.Background()); err != nil {
			t.Fatalf("Interrupt() = %v", err)
		}
	}

	// Первый Idle потребляет единственный накопленный сигнал.
	if err := n.Idle(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("first Idle() = %v", err)
	}

	start := time.Now()
	if err := n.Idle(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatalf("second Idle() = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("second Idle returned after %v, want full timeout", elapsed)
	}
}

func TestNotifier_IdleHonorsContext(t *testing.T) {
	n := NewNotifier()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := n.Idle(ctx, 5*time.Second); err != context.Canceled {
		t.Errorf("Idle(cancelled) = %v, want context.Canceled", err)
	}
}

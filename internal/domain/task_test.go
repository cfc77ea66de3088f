package domain

import (
	"testing"
	"time"
)

func TestRetryDelay_ConstantWithoutBackoff(t *testing.T) {
	task := &Task{RetryTimeoutSec: 300}

	for attempt := 1; attempt <= 3; attempt++ {
		if got := task.RetryDelay(attempt); got != 300*time.Second {
			t.Errorf("attempt %d: got %v, want 300s", attempt, got)
		}
	}
}

func TestRetryDelay_ExponentialBackoff(t *testing.T) {
	backoff := 2.0
	task := &Task{RetryTimeoutSec: 10, RetryBackoff: &backoff}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 20 * time.Second},
		{2, 40 * time.Second},
		{3, 80 * time.Second},
	}

	for _, tt := range tests {
		if got := task.RetryDelay(tt.attempt); got != tt.want {
			t.Errorf("attempt %d: got %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestSpawn(t *testing.T) {
	backoff := 1.5
	template := &Task{
		Tag:             "nightly-report",
		RetryBackoff:    &backoff,
		RetryLimit:      4,
		RetryTimeoutSec: 60,
		Action:          Action{Type: ActionTest},
	}

	occurrence := time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)
	spawned := template.Spawn(occurrence)

	if spawned.ID == template.ID {
		t.Error("spawned task must get a fresh ID")
	}
	if spawned.Tag != template.Tag {
		t.Errorf("tag: got %q, want %q", spawned.Tag, template.Tag)
	}
	if spawned.Status != TaskStatusPending {
		t.Errorf("status: got %q, want pending", spawned.Status)
	}
	if !spawned.Occurrence.Equal(occurrence) {
		t.Errorf("occurrence: got %v, want %v", spawned.Occurrence, occurrence)
	}
	if spawned.RetryLimit != 4 || spawned.RetryTimeoutSec != 60 {
		t.Error("retry policy must be copied from template")
	}
}

func TestExhausted(t *testing.T) {
	limit := 2

	tests := []struct {
		name        string
		limit       *int
		activations int
		want        bool
	}{
		{"no limit", nil, 100, false},
		{"under limit", &limit, 1, false},
		{"at limit", &limit, 2, true},
		{"over limit", &limit, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &SubscribedTask{ActivationLimit: tt.limit, Activations: tt.activations}
			if got := sub.Exhausted(); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEventDescribe(t *testing.T) {
	event := &Event{
		Topic:   "orders",
		Aspects: map[string]string{"region": "eu", "kind": "refund"},
	}

	description := event.Describe()

	if description["topic"] != "orders" {
		t.Errorf("topic: got %q", description["topic"])
	}
	if description["region"] != "eu" || description["kind"] != "refund" {
		t.Errorf("aspects must be copied: got %v", description)
	}
	if len(description) != 3 {
		t.Errorf("unexpected keys: %v", description)
	}

	// Describe не должен трогать исходные aspects
	if _, ok := event.Aspects["topic"]; ok {
		t.Error("Describe mutated event aspects")
	}
}

func TestProcessTimedOut(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	timeout := 30

	tests := []struct {
		name    string
		process Process
		now     time.Time
		want    bool
	}{
		{"no timeout configured", Process{Started: &started}, started.Add(24 * time.Hour), false},
		{"not started", Process{TimeoutMin: &timeout}, started.Add(24 * time.Hour), false},
		{"within timeout", Process{TimeoutMin: &timeout, Started: &started}, started.Add(29 * time.Minute), false},
		{"past timeout", Process{TimeoutMin: &timeout, Started: &started}, started.Add(31 * time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.process.TimedOut(tt.now); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusIsTerminal(t *testing.T) {
	terminalTasks := []TaskStatus{TaskStatusAborted, TaskStatusCompleted, TaskStatusFailed}
	for _, s := range terminalTasks {
		if !s.IsTerminal() {
			t.Errorf("task status %q must be terminal", s)
		}
	}
	liveTasks := []TaskStatus{TaskStatusPending, TaskStatusRetrying, TaskStatusExecuting}
	for _, s := range liveTasks {
		if s.IsTerminal() {
			t.Errorf("task status %q must not be terminal", s)
		}
	}

	terminalProcesses := []ProcessStatus{ProcessAborted, ProcessCompleted, ProcessFailed, ProcessTimedOut}
	for _, s := range terminalProcesses {
		if !s.IsTerminal() {
			t.Errorf("process status %q must be terminal", s)
		}
	}
	liveProcesses := []ProcessStatus{ProcessPending, ProcessExecuting, ProcessCompleting, ProcessAborting}
	for _, s := range liveProcesses {
		if s.IsTerminal() {
			t.Errorf("process status %q must not be terminal", s)
		}
	}
}

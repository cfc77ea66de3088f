package dispatch

import (
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	d := New(Config{})

	if d.pollInterval != defaultPollInterval {
		t.Errorf("pollInterval = %v, want %v", d.pollInterval, defaultPollInterval)
	}
	if d.batchSize != defaultBatchSize {
		t.Errorf("batchSize = %d, want %d", d.batchSize, defaultBatchSize)
	}
	if d.concurrency != defaultConcurrency {
		t.Errorf("concurrency = %d, want %d", d.concurrency, defaultConcurrency)
	}
	if d.timeoutScanInterval != defaultTimeoutScanInterval {
		t.Errorf("timeoutScanInterval = %v, want %v", d.timeoutScanInterval, defaultTimeoutScanInterval)
	}
	if d.idler == nil {
		t.Error("idler must default to an in-process notifier")
	}
	if d.logger == nil {
		t.Error("logger must default to slog.Default()")
	}
}

func TestNew_Overrides(t *testing.T) {
	d := New(Config{
		PollInterval: time.Second,
		BatchSize:    5,
		Concurrency:  2,
	})

	if d.pollInterval != time.Second || d.batchSize != 5 || d.concurrency != 2 {
		t.Errorf("overrides not applied: %v %d %d", d.pollInterval, d.batchSize, d.concurrency)
	}
}

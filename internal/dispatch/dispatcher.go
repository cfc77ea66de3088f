package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/conveyor/internal/broker"
	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/idler"
	"github.com/shaiso/conveyor/internal/ledger"
	"github.com/shaiso/conveyor/internal/process"
	"github.com/shaiso/conveyor/internal/repo"
	"github.com/shaiso/conveyor/internal/telemetry"
)

// Default configuration values.
const (
	defaultPollInterval        = 10 * time.Second
	defaultBatchSize           = 50
	defaultConcurrency         = 8
	defaultTimeoutScanInterval = time.Minute
)

// Dispatcher — главный цикл движка.
//
// Один проход цикла:
//   - обработать накопившиеся события (активация подписок)
//   - забрать пачку due задач (claim через SKIP LOCKED) и раздать их
//     ограниченному пулу воркеров
//   - периодически проверить executing-процессы на таймаут
//
// Между проходами диспетчер спит через Idler; API и consumer будят
// его при записи, так что новая работа подхватывается без ожидания
// полного poll-интервала. Несколько диспетчеров могут работать над
// одной базой одновременно.
type Dispatcher struct {
	ledger       *ledger.Ledger
	broker       *broker.Broker
	orchestrator *process.Orchestrator
	tasks        *repo.TaskRepo

	idler idler.Idler

	pollInterval        time.Duration
	batchSize           int
	concurrency         int
	timeoutScanInterval time.Duration

	logger *slog.Logger
}

// Config — конфигурация Dispatcher.
type Config struct {
	Ledger       *ledger.Ledger
	Broker       *broker.Broker
	Orchestrator *process.Orchestrator
	TaskRepo     *repo.TaskRepo

	// Idler — примитив ожидания (default: внутрипроцессный Notifier).
	Idler idler.Idler

	// PollInterval — максимальный сон между проходами (default: 10s).
	PollInterval time.Duration

	// BatchSize — количество задач за один claim (default: 50).
	BatchSize int

	// Concurrency — размер пула воркеров (default: 8).
	Concurrency int

	// TimeoutScanInterval — период проверки таймаутов процессов
	// (default: 1m).
	TimeoutScanInterval time.Duration

	Logger *slog.Logger
}

// New создаёт новый Dispatcher.
func New(cfg Config) *Dispatcher {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	scanInterval := cfg.TimeoutScanInterval
	if scanInterval <= 0 {
		scanInterval = defaultTimeoutScanInterval
	}
	idle := cfg.Idler
	if idle == nil {
		idle = idler.NewNotifier()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		ledger:              cfg.Ledger,
		broker:              cfg.Broker,
		orchestrator:        cfg.Orchestrator,
		tasks:               cfg.TaskRepo,
		idler:               idle,
		pollInterval:        pollInterval,
		batchSize:           batchSize,
		concurrency:         concurrency,
		timeoutScanInterval: scanInterval,
		logger:              logger,
	}
}

// Run выполняет цикл диспетчера до отмены контекста.
//
// Перед первым проходом восстанавливаются задачи, застрявшие в
// executing после аварийного рестарта.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.ledger.RecoverExecuting(ctx); err != nil {
		return err
	}

	d.logger.Info("dispatcher started",
		"poll_interval", d.pollInterval,
		"batch_size", d.batchSize,
		"concurrency", d.concurrency,
	)

	sem := make(chan struct{}, d.concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	var lastScan time.Time
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		events := d.processEvents(ctx)
		claimed := d.dispatchDue(ctx, sem, &wg)

		if time.Since(lastScan) >= d.timeoutScanInterval {
			d.scanTimeouts(ctx)
			lastScan = time.Now()
		}

		if events == 0 && claimed == 0 {
			if err := d.idler.Idle(ctx, d.pollInterval); err != nil {
				return err
			}
		}
	}
}

// processEvents активирует подписки накопившихся событий.
func (d *Dispatcher) processEvents(ctx context.Context) int {
	if d.broker == nil {
		return 0
	}
	processed, err := d.broker.ProcessPending(ctx)
	if err != nil {
		d.logger.Error("event processing failed", "error", err)
		return 0
	}
	return processed
}

// dispatchDue забирает пачку due задач и раздаёт их пулу воркеров.
// Возвращает количество забранных задач.
func (d *Dispatcher) dispatchDue(ctx context.Context, sem chan struct{}, wg *sync.WaitGroup) int {
	claimed, err := d.tasks.ClaimDue(ctx, time.Now().UTC(), d.batchSize)
	if err != nil {
		d.logger.Error("claim due tasks failed", "error", err)
		return 0
	}
	if len(claimed) == 0 {
		return 0
	}

	telemetry.TasksClaimed.Observe(float64(len(claimed)))
	d.logger.Debug("claimed due tasks", "count", len(claimed))

	for i := range claimed {
		task := &claimed[i]

		wg.Add(1)
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			// Claim уже зафиксирован; задачу нельзя бросить в executing.
			wg.Done()
			d.executeOne(ctx, task)
			continue
		}

		go func(task *domain.ScheduledTask) {
			defer wg.Done()
			defer func() { <-sem }()
			d.executeOne(ctx, task)
		}(task)
	}
	return len(claimed)
}

// executeOne выполняет одну задачу, изолируя панику воркера.
func (d *Dispatcher) executeOne(ctx context.Context, task *domain.ScheduledTask) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("worker panic",
				"task_id", task.ID, "tag", task.Tag, "panic", r)
		}
	}()

	logger := telemetry.WithTaskID(d.logger, task.ID.String())
	ctx = telemetry.WithLogger(ctx, logger)

	if err := d.ledger.Execute(ctx, task.ID); err != nil {
		logger.Error("task execution failed", "tag", task.Tag, "error", err)
	}
}

// scanTimeouts проверяет живость процессов, превысивших таймаут.
func (d *Dispatcher) scanTimeouts(ctx context.Context) {
	if d.orchestrator == nil {
		return
	}
	checked, err := d.orchestrator.ScanTimeouts(ctx, time.Now().UTC())
	if err != nil {
		d.logger.Error("timeout scan failed", "error", err)
		return
	}
	if checked > 0 {
		d.logger.Info("timeout scan completed", "checked", checked)
	}
}

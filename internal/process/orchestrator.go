package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/endpoint"
	"github.com/shaiso/conveyor/internal/repo"
	"github.com/shaiso/conveyor/internal/telemetry"
)

// Retry-профили фазовых задач.
const (
	phaseRetryTimeoutSec = 120
	phaseRetryBackoff    = 1.4

	initiateRetryLimit = 0
	reportRetryLimit   = 10
	progressRetryLimit = 3
)

// Caller выполняет callback-запрос к endpoint'у.
// Реализуется endpoint.Client; в тестах подменяется заглушкой.
type Caller interface {
	Request(ctx context.Context, ep *domain.Endpoint, payload map[string]any) (domain.Outcome, *endpoint.Response, error)
}

// Orchestrator координирует жизненный цикл внешних процессов.
//
// Каждый шаг цикла (инициация, отчёты, проверка таймаута) выполняется
// отдельной retryable-задачей с action типа "process". Все переходы
// статусов выполняются под блокировкой строки процесса.
type Orchestrator struct {
	storage   storage
	processes processStore
	executors executorStore

	caller Caller

	logger *slog.Logger
}

// Config — конфигурация Orchestrator.
type Config struct {
	Pool *pgxpool.Pool

	ProcessRepo  *repo.ProcessRepo
	TaskRepo     *repo.TaskRepo
	ExecutorRepo *repo.ExecutorRepo

	// Caller — HTTP-клиент callback'ов (default: endpoint.NewClient()).
	Caller Caller

	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	caller := cfg.Caller
	if caller == nil {
		caller = endpoint.NewClient()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		storage: &pgStorage{
			pool:      cfg.Pool,
			processes: cfg.ProcessRepo,
			tasks:     cfg.TaskRepo,
			executors: cfg.ExecutorRepo,
		},
		processes: cfg.ProcessRepo,
		executors: cfg.ExecutorRepo,
		caller:    caller,
		logger:    logger,
	}
}

// Create регистрирует новый процесс и ставит задачу инициации.
//
// Очередь должна существовать и быть активной, и хотя бы один активный
// executor должен обслуживать её subject. Endpoint выбирается случайно
// среди подходящих и закрепляется за процессом.
func (o *Orchestrator) Create(ctx context.Context, process *domain.Process) error {
	queue, err := o.executors.GetQueue(ctx, process.QueueID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrInvalidQueue, process.QueueID)
		}
		return err
	}
	if queue.Status != domain.QueueActive {
		return fmt.Errorf("%w: %s", ErrInvalidQueue, process.QueueID)
	}

	ep, err := o.executors.ActiveEndpointForSubject(ctx, queue.Subject)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNoExecutorAvailable, queue.Subject)
		}
		return err
	}

	if process.ID == uuid.Nil {
		process.ID = uuid.New()
	}
	process.ExecutorEndpointID = &ep.ID
	process.Status = domain.ProcessPending

	err = o.storage.InTx(ctx, func(st stores) error {
		if err := st.processes.Create(ctx, process); err != nil {
			return err
		}
		return o.schedulePhaseTask(ctx, st, process, domain.PhaseInitiate, initiateRetryLimit)
	})
	if err != nil {
		return err
	}

	o.logger.Info("process created",
		"process_id", process.ID, "tag", process.Tag,
		"queue_id", process.QueueID, "executor_id", ep.ExecutorID)
	return nil
}

// Update — единственная внешняя точка входа для переходов статуса.
//
// Executor сообщает через неё завершение, ошибку, подтверждение
// abort'а и прогресс; клиент — запрос abort'а.
type Update struct {
	// Status — запрошенный переход: aborting, aborted, completed,
	// failed. Пустая строка — обновление без смены статуса.
	Status domain.ProcessStatus

	// Output — результат процесса (для финальных статусов).
	Output map[string]any

	// Progress — отчёт о прогрессе.
	Progress map[string]any

	// State — непрозрачное состояние executor'а.
	State map[string]any
}

// ApplyUpdate применяет внешнее обновление процесса.
func (o *Orchestrator) ApplyUpdate(ctx context.Context, id uuid.UUID, upd Update) error {
	switch upd.Status {
	case domain.ProcessAborting:
		return o.Abort(ctx, id)

	case domain.ProcessCompleted, domain.ProcessFailed, domain.ProcessAborted:
		return o.end(ctx, id, upd.Status, upd.Output, false)

	case "":
		if upd.Progress == nil && upd.State == nil {
			return ErrInvalidUpdate
		}
		return o.reportProgressReceived(ctx, id, upd.Progress, upd.State)

	default:
		return fmt.Errorf("%w: status %q", ErrInvalidUpdate, upd.Status)
	}
}

// Abort запрашивает прерывание процесса.
//
// Процесс переходит в aborting, executor получает отчёт об abort'е и
// подтверждает прерывание через ApplyUpdate(status=aborted).
func (o *Orchestrator) Abort(ctx context.Context, id uuid.UUID) error {
	return o.storage.InTx(ctx, func(st stores) error {
		process, err := st.processes.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if process.Status != domain.ProcessPending && process.Status != domain.ProcessExecuting {
			return fmt.Errorf("%w: abort from %s", ErrInvalidTransition, process.Status)
		}

		process.Status = domain.ProcessAborting
		if err := st.processes.Update(ctx, process); err != nil {
			return err
		}
		o.logger.Info("process aborting", "process_id", process.ID, "tag", process.Tag)
		return o.schedulePhaseTask(ctx, st, process, domain.PhaseReportAbortion, reportRetryLimit)
	})
}

// end переводит процесс к финальному статусу.
//
// Для completed и failed процесс задерживается в completing, пока
// отчёт очереди не будет доставлен; aborted финален сразу. force
// обходит проверку переходов (принудительный провал инициации,
// мёртвый executor).
func (o *Orchestrator) end(ctx context.Context, id uuid.UUID, final domain.ProcessStatus, output map[string]any, force bool) error {
	return o.storage.InTx(ctx, func(st stores) error {
		process, err := st.processes.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if err := o.endLocked(ctx, st, process, final, output, force); err != nil {
			return err
		}
		return st.processes.Update(ctx, process)
	})
}

// endLocked применяет финальный переход к уже заблокированному процессу.
// Вызывающий обязан сохранить процесс после возврата.
func (o *Orchestrator) endLocked(ctx context.Context, st stores, process *domain.Process, final domain.ProcessStatus, output map[string]any, force bool) error {
	if !force {
		switch final {
		case domain.ProcessCompleted, domain.ProcessFailed:
			if process.Status != domain.ProcessPending && process.Status != domain.ProcessExecuting {
				return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, final, process.Status)
			}
		case domain.ProcessAborted:
			if process.Status != domain.ProcessAborting {
				return fmt.Errorf("%w: aborted from %s", ErrInvalidTransition, process.Status)
			}
		}
	}

	now := time.Now().UTC()
	process.Ended = &now
	if output != nil {
		process.Output = output
	}

	switch final {
	case domain.ProcessAborted:
		process.Status = domain.ProcessAborted
		telemetry.ProcessesFinished.WithLabelValues(string(domain.ProcessAborted)).Inc()
		o.logger.Info("process aborted", "process_id", process.ID, "tag", process.Tag)
		return o.schedulePhaseTask(ctx, st, process, domain.PhaseReportFailure, reportRetryLimit)

	case domain.ProcessFailed:
		if force {
			process.Status = domain.ProcessFailed
			telemetry.ProcessesFinished.WithLabelValues(string(domain.ProcessFailed)).Inc()
			o.logger.Error("process failed", "process_id", process.ID, "tag", process.Tag)
			return o.schedulePhaseTask(ctx, st, process, domain.PhaseReportFailure, reportRetryLimit)
		}
		process.Status = domain.ProcessCompleting
		return o.schedulePhaseTask(ctx, st, process, domain.PhaseReportFailure, reportRetryLimit)

	default:
		process.Status = domain.ProcessCompleting
		return o.schedulePhaseTask(ctx, st, process, domain.PhaseReportCompletion, reportRetryLimit)
	}
}

// reportProgressReceived сохраняет отчёт о прогрессе и ставит задачу
// уведомления очереди.
func (o *Orchestrator) reportProgressReceived(ctx context.Context, id uuid.UUID, progress, state map[string]any) error {
	return o.storage.InTx(ctx, func(st stores) error {
		process, err := st.processes.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if process.Status != domain.ProcessExecuting {
			return fmt.Errorf("%w: progress from %s", ErrInvalidTransition, process.Status)
		}

		now := time.Now().UTC()
		process.Communicated = &now
		if state != nil {
			process.State = state
		}
		if progress == nil {
			return st.processes.Update(ctx, process)
		}

		process.Progress = progress
		if err := st.processes.Update(ctx, process); err != nil {
			return err
		}
		return o.schedulePhaseTask(ctx, st, process, domain.PhaseReportProgress, progressRetryLimit)
	})
}

// Abandon проверяет живость executing-процесса, превысившего таймаут.
//
// Перед объявлением timedout executor опрашивается синхронно: живой
// процесс остаётся executing, завершившийся финализируется ответом,
// и только молчащий объявляется timedout с отчётами обеим сторонам.
func (o *Orchestrator) Abandon(ctx context.Context, id uuid.UUID) error {
	return o.storage.InTx(ctx, func(st stores) error {
		process, err := st.processes.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if process.Status != domain.ProcessExecuting {
			// Статус уже сменился, пока задача таймаута ждала очереди.
			return nil
		}

		ep, queue, err := o.resolveEndpoints(ctx, st, process)
		if err != nil {
			return err
		}

		payload := o.constructPayload(process, queue.Subject, string(domain.ProcessExecuting), true)
		outcome, resp, err := o.caller.Request(ctx, &ep.Endpoint, payload)
		if err != nil {
			o.logger.Error("process liveness check failed",
				"process_id", process.ID, "tag", process.Tag, "error", err)
			if err := o.endLocked(ctx, st, process, domain.ProcessFailed, nil, true); err != nil {
				return err
			}
			return st.processes.Update(ctx, process)
		}

		if outcome == domain.OutcomeCompleted {
			if data, err := resp.Unserialize(); err == nil {
				switch status, _ := data["status"].(string); status {
				case string(domain.ProcessExecuting):
					// Executor жив; таймаут будет проверен снова.
					now := time.Now().UTC()
					process.Communicated = &now
					if state, ok := data["state"].(map[string]any); ok {
						process.State = state
					}
					o.logger.Info("process still alive",
						"process_id", process.ID, "tag", process.Tag)
					return st.processes.Update(ctx, process)

				case string(domain.ProcessCompleted), string(domain.ProcessFailed):
					output, _ := data["output"].(map[string]any)
					if err := o.endLocked(ctx, st, process, domain.ProcessStatus(status), output, false); err != nil {
						return err
					}
					return st.processes.Update(ctx, process)
				}
			}
		}

		now := time.Now().UTC()
		process.Status = domain.ProcessTimedOut
		process.Ended = &now
		telemetry.ProcessesFinished.WithLabelValues(string(domain.ProcessTimedOut)).Inc()
		o.logger.Error("process timed out", "process_id", process.ID, "tag", process.Tag)

		if err := o.schedulePhaseTask(ctx, st, process, domain.PhaseReportTimeoutToExecutor, reportRetryLimit); err != nil {
			return err
		}
		if err := o.schedulePhaseTask(ctx, st, process, domain.PhaseReportTimeoutToQueue, reportRetryLimit); err != nil {
			return err
		}
		return st.processes.Update(ctx, process)
	})
}

// ScanTimeouts находит executing-процессы, превысившие таймаут,
// и проверяет их живость. Возвращает количество проверенных.
func (o *Orchestrator) ScanTimeouts(ctx context.Context, now time.Time) (int, error) {
	expired, err := o.processes.ListTimedOut(ctx, now)
	if err != nil {
		return 0, err
	}

	checked := 0
	for i := range expired {
		if err := o.Abandon(ctx, expired[i].ID); err != nil {
			o.logger.Error("abandon failed",
				"process_id", expired[i].ID, "error", err)
			continue
		}
		checked++
	}
	return checked, nil
}

// schedulePhaseTask ставит retryable-задачу одной фазы процесса.
func (o *Orchestrator) schedulePhaseTask(ctx context.Context, st stores, process *domain.Process, phase domain.ProcessPhase, retryLimit int) error {
	now := time.Now().UTC()
	backoff := phaseRetryBackoff
	task := &domain.ScheduledTask{
		Task: domain.Task{
			ID:              uuid.New(),
			Tag:             fmt.Sprintf("%s:%s", phase, process.Tag),
			RetryBackoff:    &backoff,
			RetryLimit:      retryLimit,
			RetryTimeoutSec: phaseRetryTimeoutSec,
			Action: domain.Action{
				ID:   uuid.New(),
				Type: domain.ActionProcess,
				Process: &domain.ProcessAction{
					ProcessID: process.ID,
					Phase:     phase,
				},
			},
			Created: now,
		},
		Status:     domain.TaskStatusPending,
		Occurrence: now,
	}

	if err := st.tasks.CreateScheduled(ctx, task); err != nil {
		return err
	}
	return st.processes.LinkTask(ctx, &domain.ProcessTask{
		ID:        uuid.New(),
		ProcessID: process.ID,
		TaskID:    task.ID,
		Phase:     phase,
	})
}

// resolveEndpoints возвращает закреплённый executor endpoint и очередь
// процесса.
func (o *Orchestrator) resolveEndpoints(ctx context.Context, st stores, process *domain.Process) (*domain.ExecutorEndpoint, *domain.Queue, error) {
	queue, err := st.executors.GetQueue(ctx, process.QueueID)
	if err != nil {
		return nil, nil, fmt.Errorf("queue %s: %w", process.QueueID, err)
	}
	if process.ExecutorEndpointID == nil {
		return nil, queue, fmt.Errorf("%w: process %s has no endpoint", ErrNoExecutorAvailable, process.ID)
	}
	ep, err := st.executors.GetEndpoint(ctx, *process.ExecutorEndpointID)
	if err != nil {
		return nil, nil, fmt.Errorf("endpoint %s: %w", process.ExecutorEndpointID, err)
	}
	return ep, queue, nil
}

// constructPayload собирает базовый payload callback'а.
// Состояние executor'а включается только в адресованные ему запросы.
func (o *Orchestrator) constructPayload(process *domain.Process, subject, status string, forExecutor bool) map[string]any {
	payload := map[string]any{
		"id":      process.ID.String(),
		"tag":     process.Tag,
		"subject": subject,
		"status":  status,
	}
	if forExecutor && process.State != nil {
		payload["state"] = process.State
	}
	return payload
}

package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/telemetry"
)

// Execute выполняет одну попытку задачи и фиксирует исход.
//
// Родительская recurring task блокируется до выполнения action, чтобы
// параллельный reschedule не породил второго ребёнка. Результат
// каждой попытки записывается в append-only журнал executions.
func (l *Ledger) Execute(ctx context.Context, taskID uuid.UUID) error {
	var finished *domain.ScheduledTask

	err := l.storage.InTx(ctx, func(st stores) error {
		task, err := st.tasks.LockScheduled(ctx, taskID)
		if err != nil {
			return err
		}
		if task.Status != domain.TaskStatusExecuting {
			// Задача уже обработана другим диспетчером.
			return nil
		}

		var parent *domain.RecurringTask
		if task.ParentID != nil {
			parent, err = st.tasks.LockRecurring(ctx, *task.ParentID)
			if err != nil {
				return err
			}
		}

		prior, err := st.tasks.CountAttempts(ctx, task.ID)
		if err != nil {
			return err
		}

		started := time.Now().UTC()
		execution := &domain.TaskExecution{
			ID:      uuid.New(),
			TaskID:  task.ID,
			Attempt: prior + 1,
			Started: &started,
		}

		outcome, resultText := l.runAction(ctx, task)

		completed := time.Now().UTC()
		execution.Completed = &completed
		execution.Result = resultText
		telemetry.TasksExecuted.WithLabelValues(string(outcome)).Inc()

		task.Status = classify(outcome, execution.Attempt, task.RetryLimit)
		switch task.Status {
		case domain.TaskStatusCompleted:
			execution.Status = domain.ExecutionCompleted
			l.logger.Info("task completed",
				"task_id", task.ID, "tag", task.Tag, "attempt", execution.Attempt)
			if task.CompletedAction != nil {
				if err := l.spawnFollowUp(ctx, st, task, "completed", task.CompletedAction); err != nil {
					return err
				}
			}

		case domain.TaskStatusFailed:
			execution.Status = domain.ExecutionFailed
			l.logger.Error("task failed, aborting",
				"task_id", task.ID, "tag", task.Tag, "attempt", execution.Attempt)
			if task.FailedAction != nil {
				if err := l.spawnFollowUp(ctx, st, task, "failed", task.FailedAction); err != nil {
					return err
				}
			}

		default:
			execution.Status = domain.ExecutionFailed
			task.Occurrence = time.Now().UTC().Add(task.RetryDelay(execution.Attempt))
			if outcome == domain.OutcomeRetry {
				l.logger.Info("task not yet complete, retrying",
					"task_id", task.ID, "tag", task.Tag,
					"attempt", execution.Attempt, "occurrence", task.Occurrence)
			} else {
				l.logger.Warn("task failed, retrying",
					"task_id", task.ID, "tag", task.Tag,
					"attempt", execution.Attempt, "occurrence", task.Occurrence)
			}
		}

		if err := st.tasks.CreateExecution(ctx, execution); err != nil {
			return err
		}
		if err := st.tasks.UpdateScheduled(ctx, task); err != nil {
			return err
		}

		if parent != nil {
			if err := l.rescheduleLocked(ctx, st, parent, task.Occurrence); err != nil {
				return err
			}
		}

		if task.Status.IsTerminal() {
			finished = task
		}
		return nil
	})
	if err != nil {
		return err
	}

	if finished != nil && l.publisher != nil {
		// Уведомление best-effort: потеря не влияет на учёт.
		if err := l.publisher.PublishTaskCompleted(ctx, finished); err != nil {
			l.logger.Warn("task completion notification failed",
				"task_id", finished.ID, "error", err)
		}
	}
	return nil
}

// runAction выполняет action задачи; паника или ошибка executor'а
// превращаются в исход failed с диагностикой.
func (l *Ledger) runAction(ctx context.Context, task *domain.ScheduledTask) (outcome domain.Outcome, resultText string) {
	defer func() {
		if r := recover(); r != nil {
			outcome = domain.OutcomeFailed
			resultText = "action panicked: " + panicText(r)
			l.logger.Error("action panicked", "task_id", task.ID, "panic", r)
		}
	}()

	result, err := l.registry.Execute(ctx, task, &task.Action)
	if err != nil {
		return domain.OutcomeFailed, err.Error()
	}
	return result.Outcome, result.Result
}

// spawnFollowUp порождает немедленную задачу с completed/failed action.
func (l *Ledger) spawnFollowUp(ctx context.Context, st stores, task *domain.ScheduledTask, suffix string, act *domain.Action) error {
	followUp := &domain.ScheduledTask{
		Task: domain.Task{
			ID:              uuid.New(),
			Tag:             task.Tag + "-" + suffix,
			RetryLimit:      domain.DefaultRetryLimit,
			RetryTimeoutSec: domain.DefaultRetryTimeoutSec,
			Action:          *act,
			Created:         time.Now().UTC(),
		},
		Status:     domain.TaskStatusPending,
		Occurrence: time.Now().UTC(),
		Parameters: task.Parameters,
	}
	return st.tasks.CreateScheduled(ctx, followUp)
}

func panicText(r any) string {
	return fmt.Sprint(r)
}

// classify определяет следующий статус задачи по исходу попытки.
func classify(outcome domain.Outcome, attempt, retryLimit int) domain.TaskStatus {
	switch {
	case outcome == domain.OutcomeCompleted:
		return domain.TaskStatusCompleted
	case attempt >= retryLimit+1:
		return domain.TaskStatusFailed
	default:
		return domain.TaskStatusRetrying
	}
}

// RecoverExecuting обрабатывает задачи, застрявшие в executing после
// аварийного рестарта. По умолчанию попытка считается потраченной;
// задачи с RerunOnRecovery возвращаются в pending и перевыполняются.
func (l *Ledger) RecoverExecuting(ctx context.Context) error {
	return l.storage.InTx(ctx, func(st stores) error {
		stuck, err := st.tasks.ListExecuting(ctx)
		if err != nil {
			return err
		}

		for i := range stuck {
			task := &stuck[i]
			l.logger.Info("recovering task", "task_id", task.ID, "tag", task.Tag)

			if task.RerunOnRecovery {
				task.Status = domain.TaskStatusPending
				if err := st.tasks.UpdateScheduled(ctx, task); err != nil {
					return err
				}
				continue
			}

			attempts, err := st.tasks.CountAttempts(ctx, task.ID)
			if err != nil {
				return err
			}
			if attempts < task.RetryLimit {
				task.Status = domain.TaskStatusRetrying
				task.Occurrence = time.Now().UTC().Add(task.RetryDelay(0))
			} else {
				task.Status = domain.TaskStatusFailed
				l.logger.Error("task marked as failed on recovery",
					"task_id", task.ID, "tag", task.Tag)
			}
			if err := st.tasks.UpdateScheduled(ctx, task); err != nil {
				return err
			}

			if task.Status == domain.TaskStatusFailed && task.ParentID != nil {
				parent, err := st.tasks.LockRecurring(ctx, *task.ParentID)
				if err != nil {
					return err
				}
				if err := l.rescheduleLocked(ctx, st, parent, time.Now().UTC()); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

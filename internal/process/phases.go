package process

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/telemetry"
)

// RunPhase выполняет одну фазу жизненного цикла процесса.
//
// Вызывается из executor'а action типа "process"; исход failed
// приводит к retry фазовой задачи по её retry-профилю.
func (o *Orchestrator) RunPhase(ctx context.Context, processID uuid.UUID, phase domain.ProcessPhase) (domain.Outcome, string, error) {
	switch phase {
	case domain.PhaseInitiate:
		return o.initiate(ctx, processID)
	case domain.PhaseReportCompletion:
		return o.reportFinal(ctx, processID, domain.ProcessCompleted)
	case domain.PhaseReportFailure:
		return o.reportFinal(ctx, processID, domain.ProcessFailed)
	case domain.PhaseReportProgress:
		return o.reportProgress(ctx, processID)
	case domain.PhaseReportAbortion:
		return o.reportToExecutor(ctx, processID, domain.ProcessAborting)
	case domain.PhaseReportTimeoutToExecutor:
		return o.reportToExecutor(ctx, processID, domain.ProcessTimedOut)
	case domain.PhaseReportTimeoutToQueue:
		return o.reportTimeoutToQueue(ctx, processID)
	default:
		return "", "", fmt.Errorf("%w: %s", ErrUnknownPhase, phase)
	}
}

// initiate передаёт процесс executor'у.
//
// Ответ определяет дальнейший путь: executing оставляет процесс
// работать, completed/failed финализируют его сразу, а недоступный
// или невнятный executor приводит к принудительному failed.
func (o *Orchestrator) initiate(ctx context.Context, processID uuid.UUID) (domain.Outcome, string, error) {
	outcome := domain.OutcomeCompleted
	result := ""

	err := o.storage.InTx(ctx, func(st stores) error {
		process, err := st.processes.LockByID(ctx, processID)
		if err != nil {
			return err
		}
		if process.Status != domain.ProcessPending {
			result = fmt.Sprintf("process is %s, initiation skipped", process.Status)
			return nil
		}

		ep, queue, err := o.resolveEndpoints(ctx, st, process)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		process.Started = &now

		payload := o.constructPayload(process, queue.Subject, "initiating", false)
		if process.Input != nil {
			payload["input"] = process.Input
		}

		callOutcome, resp, err := o.caller.Request(ctx, &ep.Endpoint, payload)
		if err != nil {
			outcome = domain.OutcomeFailed
			result = err.Error()
			if err := o.endLocked(ctx, st, process, domain.ProcessFailed, nil, true); err != nil {
				return err
			}
			return st.processes.Update(ctx, process)
		}
		if callOutcome != domain.OutcomeCompleted {
			outcome = domain.OutcomeFailed
			result = resp.Dump()
			if err := o.endLocked(ctx, st, process, domain.ProcessFailed, nil, true); err != nil {
				return err
			}
			return st.processes.Update(ctx, process)
		}

		data, err := resp.Unserialize()
		status, _ := data["status"].(string)
		switch {
		case err == nil && status == string(domain.ProcessExecuting):
			process.Status = domain.ProcessExecuting
			process.Communicated = &now
			if state, ok := data["state"].(map[string]any); ok {
				process.State = state
			}
			result = "process initiated"
			o.logger.Info("process initiated",
				"process_id", process.ID, "tag", process.Tag)

		case err == nil && (status == string(domain.ProcessCompleted) || status == string(domain.ProcessFailed)):
			output, _ := data["output"].(map[string]any)
			if err := o.endLocked(ctx, st, process, domain.ProcessStatus(status), output, false); err != nil {
				return err
			}
			result = fmt.Sprintf("process %s on initiation", status)

		default:
			// Executor ответил 2xx, но не сообщил пригодный статус.
			outcome = domain.OutcomeFailed
			result = resp.Dump()
			if err := o.endLocked(ctx, st, process, domain.ProcessFailed, nil, true); err != nil {
				return err
			}
		}
		return st.processes.Update(ctx, process)
	})
	if err != nil {
		return "", "", err
	}
	return outcome, result, nil
}

// reportFinal доставляет очереди отчёт о финальном статусе.
//
// Процесс в completing переходит к target только после успешной
// доставки; уже финальный процесс (aborted, принудительный failed)
// отчитывается своим статусом без смены.
func (o *Orchestrator) reportFinal(ctx context.Context, processID uuid.UUID, target domain.ProcessStatus) (domain.Outcome, string, error) {
	outcome := domain.OutcomeCompleted
	result := ""

	err := o.storage.InTx(ctx, func(st stores) error {
		process, err := st.processes.LockByID(ctx, processID)
		if err != nil {
			return err
		}
		if process.Status != domain.ProcessCompleting && !process.Status.IsTerminal() {
			result = fmt.Sprintf("process is %s, report skipped", process.Status)
			return nil
		}

		queue, err := st.executors.GetQueue(ctx, process.QueueID)
		if err != nil {
			return err
		}

		reported := target
		if process.Status.IsTerminal() {
			reported = process.Status
		}

		if queue.Endpoint != nil {
			payload := o.constructPayload(process, queue.Subject, string(reported), false)
			if process.Output != nil {
				payload["output"] = process.Output
			}

			callOutcome, resp, err := o.caller.Request(ctx, queue.Endpoint, payload)
			if err != nil {
				outcome = domain.OutcomeFailed
				result = err.Error()
				return nil
			}
			if callOutcome != domain.OutcomeCompleted {
				outcome = domain.OutcomeFailed
				result = resp.Dump()
				return nil
			}
		} else {
			o.logger.Warn("queue has no endpoint, report skipped",
				"process_id", process.ID, "queue_id", queue.ID)
		}

		if process.Status == domain.ProcessCompleting {
			process.Status = target
			telemetry.ProcessesFinished.WithLabelValues(string(target)).Inc()
			o.logger.Info("process finished",
				"process_id", process.ID, "tag", process.Tag, "status", target)
			if err := st.processes.Update(ctx, process); err != nil {
				return err
			}
		}
		result = fmt.Sprintf("queue notified: %s", reported)
		return nil
	})
	if err != nil {
		return "", "", err
	}
	return outcome, result, nil
}

// reportProgress доставляет очереди последний отчёт о прогрессе.
func (o *Orchestrator) reportProgress(ctx context.Context, processID uuid.UUID) (domain.Outcome, string, error) {
	process, err := o.processes.GetByID(ctx, processID)
	if err != nil {
		return "", "", err
	}
	if process.Status != domain.ProcessExecuting {
		return domain.OutcomeCompleted, fmt.Sprintf("process is %s, report skipped", process.Status), nil
	}

	queue, err := o.executors.GetQueue(ctx, process.QueueID)
	if err != nil {
		return "", "", err
	}
	if queue.Endpoint == nil {
		return domain.OutcomeCompleted, "queue has no endpoint", nil
	}

	payload := o.constructPayload(process, queue.Subject, string(domain.ProcessExecuting), false)
	if process.Progress != nil {
		payload["progress"] = process.Progress
	}

	callOutcome, resp, err := o.caller.Request(ctx, queue.Endpoint, payload)
	if err != nil {
		return domain.OutcomeFailed, err.Error(), nil
	}
	if callOutcome != domain.OutcomeCompleted {
		return domain.OutcomeFailed, resp.Dump(), nil
	}
	return domain.OutcomeCompleted, "queue notified: progress", nil
}

// reportToExecutor уведомляет executor'а о прерывании или таймауте.
// Отчёт уместен, только пока процесс остаётся в ожидаемом статусе.
func (o *Orchestrator) reportToExecutor(ctx context.Context, processID uuid.UUID, expected domain.ProcessStatus) (domain.Outcome, string, error) {
	outcome := domain.OutcomeCompleted
	result := ""

	err := o.storage.InTx(ctx, func(st stores) error {
		process, err := st.processes.LockByID(ctx, processID)
		if err != nil {
			return err
		}
		if process.Status != expected {
			result = fmt.Sprintf("process is %s, report skipped", process.Status)
			return nil
		}

		ep, queue, err := o.resolveEndpoints(ctx, st, process)
		if err != nil {
			return err
		}

		payload := o.constructPayload(process, queue.Subject, string(expected), true)
		callOutcome, resp, err := o.caller.Request(ctx, &ep.Endpoint, payload)
		if err != nil {
			outcome = domain.OutcomeFailed
			result = err.Error()
			return nil
		}
		if callOutcome != domain.OutcomeCompleted {
			outcome = domain.OutcomeFailed
			result = resp.Dump()
			return nil
		}

		now := time.Now().UTC()
		process.Communicated = &now
		result = fmt.Sprintf("executor notified: %s", expected)
		return st.processes.Update(ctx, process)
	})
	if err != nil {
		return "", "", err
	}
	return outcome, result, nil
}

// reportTimeoutToQueue уведомляет очередь о таймауте процесса.
func (o *Orchestrator) reportTimeoutToQueue(ctx context.Context, processID uuid.UUID) (domain.Outcome, string, error) {
	process, err := o.processes.GetByID(ctx, processID)
	if err != nil {
		return "", "", err
	}
	if process.Status != domain.ProcessTimedOut {
		return domain.OutcomeCompleted, fmt.Sprintf("process is %s, report skipped", process.Status), nil
	}

	queue, err := o.executors.GetQueue(ctx, process.QueueID)
	if err != nil {
		return "", "", err
	}
	if queue.Endpoint == nil {
		return domain.OutcomeCompleted, "queue has no endpoint", nil
	}

	payload := o.constructPayload(process, queue.Subject, string(domain.ProcessTimedOut), false)
	if process.Output != nil {
		payload["output"] = process.Output
	}

	callOutcome, resp, err := o.caller.Request(ctx, queue.Endpoint, payload)
	if err != nil {
		return domain.OutcomeFailed, err.Error(), nil
	}
	if callOutcome != domain.OutcomeCompleted {
		return domain.OutcomeFailed, resp.Dump(), nil
	}
	return domain.OutcomeCompleted, "queue notified: timedout", nil
}

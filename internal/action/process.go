package action

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shaiso/conveyor/internal/domain"
)

// PhaseRunner выполняет одну фазу жизненного цикла процесса.
// Реализуется оркестратором процессов.
type PhaseRunner interface {
	RunPhase(ctx context.Context, processID uuid.UUID, phase domain.ProcessPhase) (domain.Outcome, string, error)
}

// ProcessExecutor — executor для action типа "process".
//
// Каждая фаза процесса выполняется отдельной retryable-задачей;
// executor лишь транслирует её в вызов оркестратора.
type ProcessExecutor struct {
	runner PhaseRunner
}

// NewProcessExecutor создаёт новый ProcessExecutor.
func NewProcessExecutor(runner PhaseRunner) *ProcessExecutor {
	return &ProcessExecutor{runner: runner}
}

// Execute выполняет фазу процесса.
func (e *ProcessExecutor) Execute(ctx context.Context, _ *domain.ScheduledTask, act *domain.Action) (*Result, error) {
	cfg := act.Process
	if cfg == nil {
		return nil, fmt.Errorf("%w: process", ErrMissingPayload)
	}

	outcome, result, err := e.runner.RunPhase(ctx, cfg.ProcessID, cfg.Phase)
	if err != nil {
		return nil, err
	}
	return &Result{Outcome: outcome, Result: result}, nil
}

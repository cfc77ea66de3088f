package action

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/conveyor/internal/domain"
)

// ErrTestAction — сконфигурированная ошибка test action.
var ErrTestAction = errors.New("test action raised an error")

// TestExecutor — executor для action типа "test".
//
// Возвращает заранее сконфигурированный исход; режим "error"
// возвращает ошибку для проверки failure-путей движка.
type TestExecutor struct{}

// Execute возвращает сконфигурированный исход.
func (e *TestExecutor) Execute(_ context.Context, _ *domain.ScheduledTask, act *domain.Action) (*Result, error) {
	cfg := act.Test
	if cfg == nil {
		return nil, fmt.Errorf("%w: test", ErrMissingPayload)
	}

	switch cfg.Outcome {
	case domain.TestComplete:
		return &Result{Outcome: domain.OutcomeCompleted, Result: cfg.Result}, nil
	case domain.TestFail:
		return &Result{Outcome: domain.OutcomeFailed, Result: cfg.Result}, nil
	case domain.TestError:
		return nil, fmt.Errorf("%w: %s", ErrTestAction, cfg.Result)
	default:
		return nil, fmt.Errorf("%w: unknown test outcome %q", ErrMissingPayload, cfg.Outcome)
	}
}

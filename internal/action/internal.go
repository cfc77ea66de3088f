package action

import (
	"context"
	"fmt"

	"github.com/shaiso/conveyor/internal/domain"
)

// Maintainer выполняет служебные операции движка.
// Реализуется ledger'ом (purge завершённых задач и событий).
type Maintainer interface {
	Purge(ctx context.Context) error
}

// InternalExecutor — executor для action типа "internal".
type InternalExecutor struct {
	maintainer Maintainer
}

// NewInternalExecutor создаёт новый InternalExecutor.
func NewInternalExecutor(maintainer Maintainer) *InternalExecutor {
	return &InternalExecutor{maintainer: maintainer}
}

// Execute выполняет служебную операцию.
func (e *InternalExecutor) Execute(ctx context.Context, _ *domain.ScheduledTask, act *domain.Action) (*Result, error) {
	cfg := act.Internal
	if cfg == nil {
		return nil, fmt.Errorf("%w: internal", ErrMissingPayload)
	}

	switch cfg.Purpose {
	case domain.PurgePurpose:
		if err := e.maintainer.Purge(ctx); err != nil {
			return nil, fmt.Errorf("purge: %w", err)
		}
		return &Result{Outcome: domain.OutcomeCompleted}, nil
	default:
		return nil, fmt.Errorf("%w: unknown internal purpose %q", ErrMissingPayload, cfg.Purpose)
	}
}

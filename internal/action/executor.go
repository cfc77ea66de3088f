package action

import (
	"context"
	"fmt"

	"github.com/shaiso/conveyor/internal/domain"
)

// Executor — интерфейс выполнения конкретного типа action.
//
// Реализации: HTTPExecutor, InternalExecutor, ProcessExecutor,
// TestExecutor.
type Executor interface {
	Execute(ctx context.Context, task *domain.ScheduledTask, act *domain.Action) (*Result, error)
}

// Result — классифицированный результат выполнения action.
type Result struct {
	// Outcome — completed, failed или retry.
	Outcome domain.Outcome

	// Result — диагностический текст: дамп HTTP-ответа, описание
	// исхода и т.п. Сохраняется в TaskExecution.
	Result string
}

// Registry — реестр executor'ов по типу action.
type Registry struct {
	executors map[domain.ActionType]Executor
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[domain.ActionType]Executor)}
}

// Register добавляет executor для типа action.
func (r *Registry) Register(actionType domain.ActionType, executor Executor) {
	r.executors[actionType] = executor
}

// Execute находит executor по типу action и выполняет его.
func (r *Registry) Execute(ctx context.Context, task *domain.ScheduledTask, act *domain.Action) (*Result, error) {
	executor, ok := r.executors[act.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownActionType, act.Type)
	}
	return executor.Execute(ctx, task, act)
}

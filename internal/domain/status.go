package domain

// TaskStatus — статус выполнения scheduled task.
//
// Жизненный цикл:
//
//	pending → executing → completed
//	                    ↘ retrying → executing (следующая попытка)
//	                    ↘ failed (после исчерпания retry)
//	pending → aborted (отмена до выполнения)
type TaskStatus string

const (
	// TaskStatusPending — task ожидает наступления occurrence.
	TaskStatusPending TaskStatus = "pending"

	// TaskStatusExecuting — task захвачен диспетчером и выполняется.
	TaskStatusExecuting TaskStatus = "executing"

	// TaskStatusRetrying — попытка не удалась, назначена следующая.
	TaskStatusRetrying TaskStatus = "retrying"

	// TaskStatusAborted — task отменён до выполнения.
	TaskStatusAborted TaskStatus = "aborted"

	// TaskStatusCompleted — task успешно завершён.
	TaskStatusCompleted TaskStatus = "completed"

	// TaskStatusFailed — task завершился с ошибкой (после всех retry).
	TaskStatusFailed TaskStatus = "failed"
)

// IsTerminal возвращает true, если статус финальный.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusAborted, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// RecurringStatus — статус recurring task.
type RecurringStatus string

const (
	// RecurringActive — recurring task порождает scheduled tasks.
	RecurringActive RecurringStatus = "active"

	// RecurringInactive — порождение новых tasks приостановлено.
	RecurringInactive RecurringStatus = "inactive"
)

// ExecutionStatus — исход одной попытки выполнения.
type ExecutionStatus string

const (
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// EventStatus — статус события.
type EventStatus string

const (
	// EventPending — событие ещё не сопоставлено с подписками.
	EventPending EventStatus = "pending"

	// EventCompleted — все подходящие подписки активированы.
	EventCompleted EventStatus = "completed"
)

// ProcessStatus — статус внешнего процесса.
//
// Жизненный цикл:
//
//	pending → executing → completing → completed
//	                    ↘ aborting  → aborted
//	                    ↘ timedout
//	любой нефинальный   → failed
type ProcessStatus string

const (
	ProcessPending    ProcessStatus = "pending"
	ProcessExecuting  ProcessStatus = "executing"
	ProcessCompleting ProcessStatus = "completing"
	ProcessAborting   ProcessStatus = "aborting"
	ProcessAborted    ProcessStatus = "aborted"
	ProcessCompleted  ProcessStatus = "completed"
	ProcessFailed     ProcessStatus = "failed"
	ProcessTimedOut   ProcessStatus = "timedout"
)

// IsTerminal возвращает true, если процесс завершён.
func (s ProcessStatus) IsTerminal() bool {
	switch s {
	case ProcessAborted, ProcessCompleted, ProcessFailed, ProcessTimedOut:
		return true
	default:
		return false
	}
}

// ExecutorStatus — статус executor'а.
type ExecutorStatus string

const (
	ExecutorActive   ExecutorStatus = "active"
	ExecutorInactive ExecutorStatus = "inactive"
	ExecutorDisabled ExecutorStatus = "disabled"
)

// QueueStatus — статус очереди процессов.
type QueueStatus string

const (
	QueueActive   QueueStatus = "active"
	QueueInactive QueueStatus = "inactive"
)

// Outcome — классификация результата выполнения action.
type Outcome string

const (
	// OutcomeCompleted — action выполнен успешно.
	OutcomeCompleted Outcome = "completed"

	// OutcomeFailed — action завершился ошибкой.
	OutcomeFailed Outcome = "failed"

	// OutcomeRetry — action не завершён и требует повторной попытки
	// (например, HTTP 206 от callback-эндпоинта).
	OutcomeRetry Outcome = "retry"
)

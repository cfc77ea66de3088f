package ledger

import "errors"

// Ошибки ledger'а.
var (
	// ErrPreconditionFailed — задача не в том статусе, который
	// требуется для операции.
	ErrPreconditionFailed = errors.New("task status precondition failed")

	// ErrNotRecurring — reschedule запрошен для неактивной либо
	// отсутствующей recurring task.
	ErrNotRecurring = errors.New("not an active recurring task")
)

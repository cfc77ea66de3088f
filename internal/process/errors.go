package process

import "errors"

var (
	// ErrInvalidQueue — очередь не существует или неактивна.
	ErrInvalidQueue = errors.New("queue is unknown or inactive")

	// ErrNoExecutorAvailable — ни один активный executor не обслуживает
	// subject очереди.
	ErrNoExecutorAvailable = errors.New("no active executor endpoint for subject")

	// ErrInvalidTransition — текущий статус процесса не допускает
	// запрошенный переход.
	ErrInvalidTransition = errors.New("process status does not allow transition")

	// ErrInvalidUpdate — update не содержит ни статуса, ни прогресса.
	ErrInvalidUpdate = errors.New("update carries no status and no progress")

	// ErrUnknownPhase — фаза не входит в жизненный цикл процесса.
	ErrUnknownPhase = errors.New("unknown process phase")
)

package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shaiso/conveyor/internal/domain"
)

// ProcessRepo — репозиторий для работы с processes и их фазовыми задачами.
type ProcessRepo struct {
	db DB
}

// NewProcessRepo создаёт новый ProcessRepo.
func NewProcessRepo(db DB) *ProcessRepo {
	return &ProcessRepo{db: db}
}

// WithTx возвращает копию репозитория, привязанную к транзакции.
func (r *ProcessRepo) WithTx(tx pgx.Tx) *ProcessRepo {
	return &ProcessRepo{db: tx}
}

const processColumns = `
	id, queue_id, executor_endpoint_id, tag, timeout_min, status,
	input, output, progress, state, started_at, ended_at, communicated_at
`

// Create создаёт новый process.
func (r *ProcessRepo) Create(ctx context.Context, process *domain.Process) error {
	input, output, progress, state, err := marshalProcessMaps(process)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO processes (id, queue_id, executor_endpoint_id, tag, timeout_min,
		                       status, input, output, progress, state, started_at,
		                       ended_at, communicated_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
	`
	_, err = r.db.Exec(ctx, query,
		process.ID,
		process.QueueID,
		process.ExecutorEndpointID,
		process.Tag,
		process.TimeoutMin,
		process.Status,
		input,
		output,
		progress,
		state,
		process.Started,
		process.Ended,
		process.Communicated,
	)
	if err != nil {
		return fmt.Errorf("insert process: %w", err)
	}
	return nil
}

// GetByID возвращает process по ID.
func (r *ProcessRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Process, error) {
	query := `
		SELECT ` + processColumns + `
		FROM processes
		WHERE id = $1
	`
	return scanProcess(r.db.QueryRow(ctx, query, id))
}

// LockByID возвращает process по ID под блокировкой строки.
// Вызывается только на репозитории, привязанном к tx.
func (r *ProcessRepo) LockByID(ctx context.Context, id uuid.UUID) (*domain.Process, error) {
	query := `
		SELECT ` + processColumns + `
		FROM processes
		WHERE id = $1
		FOR UPDATE
	`
	return scanProcess(r.db.QueryRow(ctx, query, id))
}

// List возвращает processes с фильтрацией.
func (r *ProcessRepo) List(ctx context.Context, filter ProcessFilter) ([]domain.Process, error) {
	query := `
		SELECT ` + processColumns + `
		FROM processes
		WHERE ($1::text IS NULL OR queue_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query,
		nullString(filter.QueueID),
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	defer rows.Close()

	var processes []domain.Process
	for rows.Next() {
		process, err := scanProcess(rows)
		if err != nil {
			return nil, err
		}
		processes = append(processes, *process)
	}
	return processes, rows.Err()
}

// ListTimedOut возвращает запущенные processes, чей таймаут истёк к now.
func (r *ProcessRepo) ListTimedOut(ctx context.Context, now time.Time) ([]domain.Process, error) {
	query := `
		SELECT ` + processColumns + `
		FROM processes
		WHERE status = 'executing'
		  AND timeout_min IS NOT NULL
		  AND started_at IS NOT NULL
		  AND started_at + make_interval(mins => timeout_min) < $1
		ORDER BY started_at ASC
	`
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list timed out processes: %w", err)
	}
	defer rows.Close()

	var processes []domain.Process
	for rows.Next() {
		process, err := scanProcess(rows)
		if err != nil {
			return nil, err
		}
		processes = append(processes, *process)
	}
	return processes, rows.Err()
}

// Update сохраняет изменяемые поля process.
func (r *ProcessRepo) Update(ctx context.Context, process *domain.Process) error {
	input, output, progress, state, err := marshalProcessMaps(process)
	if err != nil {
		return err
	}

	query := `
		UPDATE processes
		SET executor_endpoint_id = $2, status = $3, input = $4, output = $5,
		    progress = $6, state = $7, started_at = $8, ended_at = $9,
		    communicated_at = $10
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query,
		process.ID,
		process.ExecutorEndpointID,
		process.Status,
		input,
		output,
		progress,
		state,
		process.Started,
		process.Ended,
		process.Communicated,
	)
	if err != nil {
		return fmt.Errorf("update process: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Phase tasks ---

// LinkTask связывает фазовую задачу с process.
func (r *ProcessRepo) LinkTask(ctx context.Context, link *domain.ProcessTask) error {
	query := `
		INSERT INTO process_tasks (id, process_id, task_id, phase)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.Exec(ctx, query, link.ID, link.ProcessID, link.TaskID, link.Phase)
	if err != nil {
		return fmt.Errorf("insert process task: %w", err)
	}
	return nil
}

// GetLinkByTaskID возвращает связь по задаче.
func (r *ProcessRepo) GetLinkByTaskID(ctx context.Context, taskID uuid.UUID) (*domain.ProcessTask, error) {
	query := `
		SELECT id, process_id, task_id, phase
		FROM process_tasks
		WHERE task_id = $1
	`
	var link domain.ProcessTask
	err := r.db.QueryRow(ctx, query, taskID).Scan(&link.ID, &link.ProcessID, &link.TaskID, &link.Phase)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan process task: %w", err)
	}
	return &link, nil
}

// ListLinks возвращает фазовые задачи process в порядке создания.
func (r *ProcessRepo) ListLinks(ctx context.Context, processID uuid.UUID) ([]domain.ProcessTask, error) {
	query := `
		SELECT pt.id, pt.process_id, pt.task_id, pt.phase
		FROM process_tasks pt
		JOIN tasks t ON t.id = pt.task_id
		WHERE pt.process_id = $1
		ORDER BY t.created_at ASC
	`
	rows, err := r.db.Query(ctx, query, processID)
	if err != nil {
		return nil, fmt.Errorf("list process tasks: %w", err)
	}
	defer rows.Close()

	var links []domain.ProcessTask
	for rows.Next() {
		var link domain.ProcessTask
		if err := rows.Scan(&link.ID, &link.ProcessID, &link.TaskID, &link.Phase); err != nil {
			return nil, fmt.Errorf("scan process task: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// --- Helpers ---

// ProcessFilter — параметры фильтрации processes.
type ProcessFilter struct {
	QueueID string
	Status  domain.ProcessStatus
	Limit   int
	Offset  int
}

func marshalProcessMaps(process *domain.Process) (input, output, progress, state []byte, err error) {
	if input, err = marshalMap(process.Input); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal input: %w", err)
	}
	if output, err = marshalMap(process.Output); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal output: %w", err)
	}
	if progress, err = marshalMap(process.Progress); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal progress: %w", err)
	}
	if state, err = marshalMap(process.State); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal state: %w", err)
	}
	return input, output, progress, state, nil
}

// scanProcess сканирует одну строку в Process.
func scanProcess(row pgx.Row) (*domain.Process, error) {
	var process domain.Process
	var input, output, progress, state []byte

	err := row.Scan(
		&process.ID,
		&process.QueueID,
		&process.ExecutorEndpointID,
		&process.Tag,
		&process.TimeoutMin,
		&process.Status,
		&input,
		&output,
		&progress,
		&state,
		&process.Started,
		&process.Ended,
		&process.Communicated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan process: %w", err)
	}

	for _, pair := range []struct {
		raw    []byte
		target *map[string]any
	}{
		{input, &process.Input},
		{output, &process.Output},
		{progress, &process.Progress},
		{state, &process.State},
	} {
		if pair.raw == nil {
			continue
		}
		if err := json.Unmarshal(pair.raw, pair.target); err != nil {
			return nil, fmt.Errorf("unmarshal process payload: %w", err)
		}
	}
	return &process, nil
}

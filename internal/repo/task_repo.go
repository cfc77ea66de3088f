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

// TaskRepo — репозиторий для работы с tasks и их executions.
//
// Все виды задач лежат в одной таблице tasks с дискриминатором kind;
// колонки, не относящиеся к виду, равны NULL.
type TaskRepo struct {
	db DB
}

// NewTaskRepo создаёт новый TaskRepo.
func NewTaskRepo(db DB) *TaskRepo {
	return &TaskRepo{db: db}
}

// WithTx возвращает копию репозитория, привязанную к транзакции.
func (r *TaskRepo) WithTx(tx pgx.Tx) *TaskRepo {
	return &TaskRepo{db: tx}
}

const scheduledColumns = `
	id, tag, description, retry_backoff, retry_limit, retry_timeout_sec,
	rerun_on_recovery, action, failed_action, completed_action, created_at,
	status, occurrence, parent_id, parameters
`

const recurringColumns = `
	id, tag, description, retry_backoff, retry_limit, retry_timeout_sec,
	rerun_on_recovery, action, failed_action, completed_action, created_at,
	status, schedule_id
`

// CreateScheduled создаёт новый ScheduledTask.
func (r *TaskRepo) CreateScheduled(ctx context.Context, task *domain.ScheduledTask) error {
	action, failed, completed, err := marshalActions(&task.Task)
	if err != nil {
		return err
	}
	parameters, err := marshalMap(task.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}

	query := `
		INSERT INTO tasks (id, kind, tag, description, retry_backoff, retry_limit,
		                   retry_timeout_sec, rerun_on_recovery, action, failed_action,
		                   completed_action, created_at, status, occurrence, parent_id,
		                   parameters)
		VALUES ($1, 'scheduled', $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = r.db.Exec(ctx, query,
		task.ID,
		task.Tag,
		nullString(task.Description),
		task.RetryBackoff,
		task.RetryLimit,
		task.RetryTimeoutSec,
		task.RerunOnRecovery,
		action,
		failed,
		completed,
		task.Created,
		task.Status,
		task.Occurrence,
		task.ParentID,
		parameters,
	)
	if err != nil {
		return fmt.Errorf("insert scheduled task: %w", err)
	}
	return nil
}

// CreateRecurring создаёт новый RecurringTask.
func (r *TaskRepo) CreateRecurring(ctx context.Context, task *domain.RecurringTask) error {
	action, failed, completed, err := marshalActions(&task.Task)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (id, kind, tag, description, retry_backoff, retry_limit,
		                   retry_timeout_sec, rerun_on_recovery, action, failed_action,
		                   completed_action, created_at, status, schedule_id)
		VALUES ($1, 'recurring', $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = r.db.Exec(ctx, query,
		task.ID,
		task.Tag,
		nullString(task.Description),
		task.RetryBackoff,
		task.RetryLimit,
		task.RetryTimeoutSec,
		task.RerunOnRecovery,
		action,
		failed,
		completed,
		task.Created,
		task.Status,
		task.ScheduleID,
	)
	if err != nil {
		return fmt.Errorf("insert recurring task: %w", err)
	}
	return nil
}

// GetScheduled возвращает ScheduledTask по ID.
func (r *TaskRepo) GetScheduled(ctx context.Context, id uuid.UUID) (*domain.ScheduledTask, error) {
	query := `
		SELECT ` + scheduledColumns + `
		FROM tasks
		WHERE id = $1 AND kind = 'scheduled'
	`
	return scanScheduled(r.db.QueryRow(ctx, query, id))
}

// LockScheduled возвращает ScheduledTask по ID, блокируя строку до
// конца транзакции.
func (r *TaskRepo) LockScheduled(ctx context.Context, id uuid.UUID) (*domain.ScheduledTask, error) {
	query := `
		SELECT ` + scheduledColumns + `
		FROM tasks
		WHERE id = $1 AND kind = 'scheduled'
		FOR UPDATE
	`
	return scanScheduled(r.db.QueryRow(ctx, query, id))
}

// GetRecurring возвращает RecurringTask по ID.
func (r *TaskRepo) GetRecurring(ctx context.Context, id uuid.UUID) (*domain.RecurringTask, error) {
	query := `
		SELECT ` + recurringColumns + `
		FROM tasks
		WHERE id = $1 AND kind = 'recurring'
	`
	return scanRecurring(r.db.QueryRow(ctx, query, id))
}

// LockRecurring возвращает RecurringTask по ID под блокировкой строки.
func (r *TaskRepo) LockRecurring(ctx context.Context, id uuid.UUID) (*domain.RecurringTask, error) {
	query := `
		SELECT ` + recurringColumns + `
		FROM tasks
		WHERE id = $1 AND kind = 'recurring'
		FOR UPDATE
	`
	return scanRecurring(r.db.QueryRow(ctx, query, id))
}

// ListScheduled возвращает ScheduledTask с фильтрацией по статусу.
func (r *TaskRepo) ListScheduled(ctx context.Context, filter TaskFilter) ([]domain.ScheduledTask, error) {
	query := `
		SELECT ` + scheduledColumns + `
		FROM tasks
		WHERE kind = 'scheduled'
		  AND ($1::text IS NULL OR status = $1)
		  AND ($2::uuid IS NULL OR parent_id = $2)
		ORDER BY occurrence ASC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query,
		nullString(string(filter.Status)),
		filter.ParentID,
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list scheduled tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.ScheduledTask
	for rows.Next() {
		task, err := scanScheduled(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// ListRecurring возвращает все RecurringTask.
func (r *TaskRepo) ListRecurring(ctx context.Context, limit, offset int) ([]domain.RecurringTask, error) {
	query := `
		SELECT ` + recurringColumns + `
		FROM tasks
		WHERE kind = 'recurring'
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list recurring tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.RecurringTask
	for rows.Next() {
		task, err := scanRecurring(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// FindRecurringByTag возвращает recurring task с данной меткой,
// если она существует. Используется при bootstrap служебных задач.
func (r *TaskRepo) FindRecurringByTag(ctx context.Context, tag string) (*domain.RecurringTask, error) {
	query := `
		SELECT ` + recurringColumns + `
		FROM tasks
		WHERE kind = 'recurring' AND tag = $1
		ORDER BY created_at ASC
		LIMIT 1
	`
	return scanRecurring(r.db.QueryRow(ctx, query, tag))
}

// ClaimDue переводит due-задачи (pending или retrying с наступившим
// occurrence) в executing и возвращает их. Вызывается внутри
// транзакции; SKIP LOCKED позволяет нескольким диспетчерам работать
// без взаимной блокировки.
func (r *TaskRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledTask, error) {
	query := `
		UPDATE tasks
		SET status = 'executing'
		WHERE id IN (
			SELECT id
			FROM tasks
			WHERE kind = 'scheduled'
			  AND status IN ('pending', 'retrying')
			  AND occurrence <= $1
			ORDER BY occurrence ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + scheduledColumns + `
	`
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.ScheduledTask
	for rows.Next() {
		task, err := scanScheduled(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// ListExecuting возвращает задачи, оставшиеся в executing
// (кандидаты на восстановление после аварийного рестарта).
func (r *TaskRepo) ListExecuting(ctx context.Context) ([]domain.ScheduledTask, error) {
	query := `
		SELECT ` + scheduledColumns + `
		FROM tasks
		WHERE kind = 'scheduled' AND status = 'executing'
		ORDER BY occurrence ASC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list executing tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.ScheduledTask
	for rows.Next() {
		task, err := scanScheduled(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// UpdateScheduled сохраняет статус, occurrence и parameters задачи.
func (r *TaskRepo) UpdateScheduled(ctx context.Context, task *domain.ScheduledTask) error {
	parameters, err := marshalMap(task.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}

	query := `
		UPDATE tasks
		SET status = $2, occurrence = $3, parameters = $4
		WHERE id = $1 AND kind = 'scheduled'
	`
	result, err := r.db.Exec(ctx, query, task.ID, task.Status, task.Occurrence, parameters)
	if err != nil {
		return fmt.Errorf("update scheduled task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateRecurringStatus сохраняет статус recurring task.
func (r *TaskRepo) UpdateRecurringStatus(ctx context.Context, id uuid.UUID, status domain.RecurringStatus) error {
	query := `
		UPDATE tasks
		SET status = $2
		WHERE id = $1 AND kind = 'recurring'
	`
	result, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("update recurring status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// HasActiveChild возвращает true, если у recurring task есть дочерний
// ScheduledTask в статусе pending или retrying.
func (r *TaskRepo) HasActiveChild(ctx context.Context, parentID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM tasks
			WHERE kind = 'scheduled'
			  AND parent_id = $1
			  AND status IN ('pending', 'retrying')
		)
	`
	var exists bool
	if err := r.db.QueryRow(ctx, query, parentID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check active child: %w", err)
	}
	return exists, nil
}

// PurgeCompleted удаляет завершённые ScheduledTask с occurrence
// раньше cutoff, вместе с их executions (каскад). Неуспешные задачи
// остаются для диагностики.
func (r *TaskRepo) PurgeCompleted(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM tasks
		WHERE kind = 'scheduled'
		  AND status = 'completed'
		  AND occurrence < $1
	`
	result, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge completed tasks: %w", err)
	}
	return result.RowsAffected(), nil
}

// --- Executions ---

// CreateExecution добавляет запись о попытке выполнения.
func (r *TaskRepo) CreateExecution(ctx context.Context, execution *domain.TaskExecution) error {
	query := `
		INSERT INTO task_executions (id, task_id, attempt, status, started_at,
		                             completed_at, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		execution.ID,
		execution.TaskID,
		execution.Attempt,
		execution.Status,
		execution.Started,
		execution.Completed,
		nullString(execution.Result),
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// CountAttempts возвращает число записанных попыток задачи.
func (r *TaskRepo) CountAttempts(ctx context.Context, taskID uuid.UUID) (int, error) {
	query := `SELECT COALESCE(MAX(attempt), 0) FROM task_executions WHERE task_id = $1`
	var attempts int
	if err := r.db.QueryRow(ctx, query, taskID).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return attempts, nil
}

// ListExecutions возвращает попытки задачи в порядке выполнения.
func (r *TaskRepo) ListExecutions(ctx context.Context, taskID uuid.UUID) ([]domain.TaskExecution, error) {
	query := `
		SELECT id, task_id, attempt, status, started_at, completed_at, result
		FROM task_executions
		WHERE task_id = $1
		ORDER BY attempt ASC
	`
	rows, err := r.db.Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var executions []domain.TaskExecution
	for rows.Next() {
		var execution domain.TaskExecution
		var result *string
		err := rows.Scan(
			&execution.ID,
			&execution.TaskID,
			&execution.Attempt,
			&execution.Status,
			&execution.Started,
			&execution.Completed,
			&result,
		)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		if result != nil {
			execution.Result = *result
		}
		executions = append(executions, execution)
	}
	return executions, rows.Err()
}

// --- Helpers ---

// TaskFilter — параметры фильтрации scheduled tasks.
type TaskFilter struct {
	Status   domain.TaskStatus
	ParentID *uuid.UUID
	Limit    int
	Offset   int
}

// marshalActions сериализует три action-поля задачи.
func marshalActions(task *domain.Task) (action, failed, completed []byte, err error) {
	action, err = json.Marshal(task.Action)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal action: %w", err)
	}
	if task.FailedAction != nil {
		failed, err = json.Marshal(task.FailedAction)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("marshal failed action: %w", err)
		}
	}
	if task.CompletedAction != nil {
		completed, err = json.Marshal(task.CompletedAction)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("marshal completed action: %w", err)
		}
	}
	return action, failed, completed, nil
}

// unmarshalActions заполняет три action-поля задачи.
func unmarshalActions(task *domain.Task, action, failed, completed []byte) error {
	if err := json.Unmarshal(action, &task.Action); err != nil {
		return fmt.Errorf("unmarshal action: %w", err)
	}
	if failed != nil {
		task.FailedAction = &domain.Action{}
		if err := json.Unmarshal(failed, task.FailedAction); err != nil {
			return fmt.Errorf("unmarshal failed action: %w", err)
		}
	}
	if completed != nil {
		task.CompletedAction = &domain.Action{}
		if err := json.Unmarshal(completed, task.CompletedAction); err != nil {
			return fmt.Errorf("unmarshal completed action: %w", err)
		}
	}
	return nil
}

func marshalMap[V any](m map[string]V) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// scanScheduled сканирует одну строку в ScheduledTask.
func scanScheduled(row pgx.Row) (*domain.ScheduledTask, error) {
	var task domain.ScheduledTask
	var description *string
	var action, failed, completed, parameters []byte

	err := row.Scan(
		&task.ID,
		&task.Tag,
		&description,
		&task.RetryBackoff,
		&task.RetryLimit,
		&task.RetryTimeoutSec,
		&task.RerunOnRecovery,
		&action,
		&failed,
		&completed,
		&task.Created,
		&task.Status,
		&task.Occurrence,
		&task.ParentID,
		&parameters,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan scheduled task: %w", err)
	}

	if description != nil {
		task.Description = *description
	}
	if err := unmarshalActions(&task.Task, action, failed, completed); err != nil {
		return nil, err
	}
	if parameters != nil {
		if err := json.Unmarshal(parameters, &task.Parameters); err != nil {
			return nil, fmt.Errorf("unmarshal parameters: %w", err)
		}
	}
	return &task, nil
}

// scanRecurring сканирует одну строку в RecurringTask.
func scanRecurring(row pgx.Row) (*domain.RecurringTask, error) {
	var task domain.RecurringTask
	var description *string
	var action, failed, completed []byte

	err := row.Scan(
		&task.ID,
		&task.Tag,
		&description,
		&task.RetryBackoff,
		&task.RetryLimit,
		&task.RetryTimeoutSec,
		&task.RerunOnRecovery,
		&action,
		&failed,
		&completed,
		&task.Created,
		&task.Status,
		&task.ScheduleID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan recurring task: %w", err)
	}

	if description != nil {
		task.Description = *description
	}
	if err := unmarshalActions(&task.Task, action, failed, completed); err != nil {
		return nil, err
	}
	return &task, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

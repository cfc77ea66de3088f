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

// SubscriptionRepo — репозиторий подписок (tasks с kind='subscribed').
type SubscriptionRepo struct {
	db DB
}

// NewSubscriptionRepo создаёт новый SubscriptionRepo.
func NewSubscriptionRepo(db DB) *SubscriptionRepo {
	return &SubscriptionRepo{db: db}
}

// WithTx возвращает копию репозитория, привязанную к транзакции.
func (r *SubscriptionRepo) WithTx(tx pgx.Tx) *SubscriptionRepo {
	return &SubscriptionRepo{db: tx}
}

const subscribedColumns = `
	id, tag, description, retry_backoff, retry_limit, retry_timeout_sec,
	rerun_on_recovery, action, failed_action, completed_action, created_at,
	topic, aspects, activation_limit, activations, activated_at, timeout_sec
`

// Create создаёт новую подписку.
func (r *SubscriptionRepo) Create(ctx context.Context, task *domain.SubscribedTask) error {
	action, failed, completed, err := marshalActions(&task.Task)
	if err != nil {
		return err
	}
	aspects, err := marshalMap(task.Aspects)
	if err != nil {
		return fmt.Errorf("marshal aspects: %w", err)
	}

	query := `
		INSERT INTO tasks (id, kind, tag, description, retry_backoff, retry_limit,
		                   retry_timeout_sec, rerun_on_recovery, action, failed_action,
		                   completed_action, created_at, topic, aspects,
		                   activation_limit, activations, activated_at, timeout_sec)
		VALUES ($1, 'subscribed', $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
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
		task.Topic,
		aspects,
		task.ActivationLimit,
		task.Activations,
		task.Activated,
		task.TimeoutSec,
	)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// GetByID возвращает подписку по ID.
func (r *SubscriptionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.SubscribedTask, error) {
	query := `
		SELECT ` + subscribedColumns + `
		FROM tasks
		WHERE id = $1 AND kind = 'subscribed'
	`
	return scanSubscribed(r.db.QueryRow(ctx, query, id))
}

// List возвращает подписки с фильтрацией по топику.
func (r *SubscriptionRepo) List(ctx context.Context, topic string, limit, offset int) ([]domain.SubscribedTask, error) {
	query := `
		SELECT ` + subscribedColumns + `
		FROM tasks
		WHERE kind = 'subscribed'
		  AND ($1::text IS NULL OR topic = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, nullString(topic), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var tasks []domain.SubscribedTask
	for rows.Next() {
		task, err := scanSubscribed(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// Match возвращает подписки, подходящие событию: тот же топик,
// неисчерпанный лимит активаций и фильтр aspects, содержащийся
// в aspects события (JSONB containment). Строки блокируются до конца
// транзакции; вызывается только на репозитории, привязанном к tx.
func (r *SubscriptionRepo) Match(ctx context.Context, topic string, aspects map[string]string) ([]domain.SubscribedTask, error) {
	eventAspects, err := json.Marshal(aspects)
	if err != nil {
		return nil, fmt.Errorf("marshal event aspects: %w", err)
	}

	query := `
		SELECT ` + subscribedColumns + `
		FROM tasks
		WHERE kind = 'subscribed'
		  AND topic = $1
		  AND (activation_limit IS NULL OR activations < activation_limit)
		  AND $2::jsonb @> COALESCE(aspects, '{}'::jsonb)
		ORDER BY created_at ASC
		FOR UPDATE
	`
	rows, err := r.db.Query(ctx, query, topic, eventAspects)
	if err != nil {
		return nil, fmt.Errorf("match subscriptions: %w", err)
	}
	defer rows.Close()

	var tasks []domain.SubscribedTask
	for rows.Next() {
		task, err := scanSubscribed(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// RecordActivation инкрементирует счётчик активаций и отмечает время.
func (r *SubscriptionRepo) RecordActivation(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE tasks
		SET activations = activations + 1, activated_at = $2
		WHERE id = $1 AND kind = 'subscribed'
	`
	result, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("record activation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет подписку.
func (r *SubscriptionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND kind = 'subscribed'`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeExpired удаляет подписки, чей срок жизни истёк, и подписки
// с лимитом активаций, не активировавшиеся с cutoff.
func (r *SubscriptionRepo) PurgeExpired(ctx context.Context, now, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM tasks
		WHERE kind = 'subscribed'
		  AND (
		    (timeout_sec IS NOT NULL
		     AND created_at + make_interval(secs => timeout_sec) < $1)
		    OR
		    (activation_limit IS NOT NULL AND activation_limit > activations
		     AND activated_at < $2)
		  )
	`
	result, err := r.db.Exec(ctx, query, now, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge subscriptions: %w", err)
	}
	return result.RowsAffected(), nil
}

// scanSubscribed сканирует одну строку в SubscribedTask.
func scanSubscribed(row pgx.Row) (*domain.SubscribedTask, error) {
	var task domain.SubscribedTask
	var description *string
	var action, failed, completed, aspects []byte

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
		&task.Topic,
		&aspects,
		&task.ActivationLimit,
		&task.Activations,
		&task.Activated,
		&task.TimeoutSec,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan subscription: %w", err)
	}

	if description != nil {
		task.Description = *description
	}
	if err := unmarshalActions(&task.Task, action, failed, completed); err != nil {
		return nil, err
	}
	if aspects != nil {
		if err := json.Unmarshal(aspects, &task.Aspects); err != nil {
			return nil, fmt.Errorf("unmarshal aspects: %w", err)
		}
	}
	return &task, nil
}

package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shaiso/conveyor/internal/domain"
)

// ExecutorRepo — репозиторий executors, их endpoints и queues.
type ExecutorRepo struct {
	db DB
}

// NewExecutorRepo создаёт новый ExecutorRepo.
func NewExecutorRepo(db DB) *ExecutorRepo {
	return &ExecutorRepo{db: db}
}

// WithTx возвращает копию репозитория, привязанную к транзакции.
func (r *ExecutorRepo) WithTx(tx pgx.Tx) *ExecutorRepo {
	return &ExecutorRepo{db: tx}
}

// --- Executors ---

// CreateExecutor создаёт executor вместе с его endpoints.
func (r *ExecutorRepo) CreateExecutor(ctx context.Context, executor *domain.Executor) error {
	query := `
		INSERT INTO executors (id, name, status, created_at)
		VALUES ($1, $2, $3, now())
	`
	_, err := r.db.Exec(ctx, query, executor.ID, nullString(executor.Name), executor.Status)
	if err != nil {
		return fmt.Errorf("insert executor: %w", err)
	}

	for i := range executor.Endpoints {
		if err := r.AddEndpoint(ctx, &executor.Endpoints[i]); err != nil {
			return err
		}
	}
	return nil
}

// GetExecutor возвращает executor с его endpoints.
func (r *ExecutorRepo) GetExecutor(ctx context.Context, id string) (*domain.Executor, error) {
	query := `
		SELECT id, name, status
		FROM executors
		WHERE id = $1
	`
	var executor domain.Executor
	var name *string
	err := r.db.QueryRow(ctx, query, id).Scan(&executor.ID, &name, &executor.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan executor: %w", err)
	}
	if name != nil {
		executor.Name = *name
	}

	endpoints, err := r.listEndpoints(ctx, id)
	if err != nil {
		return nil, err
	}
	executor.Endpoints = endpoints
	return &executor, nil
}

// ListExecutors возвращает все executors без их endpoints.
func (r *ExecutorRepo) ListExecutors(ctx context.Context) ([]domain.Executor, error) {
	query := `
		SELECT id, name, status
		FROM executors
		ORDER BY id ASC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list executors: %w", err)
	}
	defer rows.Close()

	var executors []domain.Executor
	for rows.Next() {
		var executor domain.Executor
		var name *string
		if err := rows.Scan(&executor.ID, &name, &executor.Status); err != nil {
			return nil, fmt.Errorf("scan executor: %w", err)
		}
		if name != nil {
			executor.Name = *name
		}
		executors = append(executors, executor)
	}
	return executors, rows.Err()
}

// SetExecutorStatus сохраняет статус executor'а.
func (r *ExecutorRepo) SetExecutorStatus(ctx context.Context, id string, status domain.ExecutorStatus) error {
	result, err := r.db.Exec(ctx, `UPDATE executors SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update executor status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Endpoints ---

// AddEndpoint добавляет endpoint executor'а.
func (r *ExecutorRepo) AddEndpoint(ctx context.Context, endpoint *domain.ExecutorEndpoint) error {
	payload, err := json.Marshal(endpoint.Endpoint)
	if err != nil {
		return fmt.Errorf("marshal endpoint: %w", err)
	}

	query := `
		INSERT INTO executor_endpoints (id, executor_id, subject, endpoint)
		VALUES ($1, $2, $3, $4)
	`
	_, err = r.db.Exec(ctx, query, endpoint.ID, endpoint.ExecutorID, endpoint.Subject, payload)
	if err != nil {
		return fmt.Errorf("insert executor endpoint: %w", err)
	}
	return nil
}

// GetEndpoint возвращает endpoint executor'а по ID.
func (r *ExecutorRepo) GetEndpoint(ctx context.Context, id uuid.UUID) (*domain.ExecutorEndpoint, error) {
	query := `
		SELECT id, executor_id, subject, endpoint
		FROM executor_endpoints
		WHERE id = $1
	`
	return scanExecutorEndpoint(r.db.QueryRow(ctx, query, id))
}

// ActiveEndpointForSubject возвращает endpoint активного executor'а
// для данного subject; ErrNotFound, если доступных нет.
func (r *ExecutorRepo) ActiveEndpointForSubject(ctx context.Context, subject string) (*domain.ExecutorEndpoint, error) {
	query := `
		SELECT ee.id, ee.executor_id, ee.subject, ee.endpoint
		FROM executor_endpoints ee
		JOIN executors e ON e.id = ee.executor_id
		WHERE ee.subject = $1 AND e.status = 'active'
		ORDER BY random()
		LIMIT 1
	`
	return scanExecutorEndpoint(r.db.QueryRow(ctx, query, subject))
}

func (r *ExecutorRepo) listEndpoints(ctx context.Context, executorID string) ([]domain.ExecutorEndpoint, error) {
	query := `
		SELECT id, executor_id, subject, endpoint
		FROM executor_endpoints
		WHERE executor_id = $1
		ORDER BY subject ASC
	`
	rows, err := r.db.Query(ctx, query, executorID)
	if err != nil {
		return nil, fmt.Errorf("list executor endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []domain.ExecutorEndpoint
	for rows.Next() {
		endpoint, err := scanExecutorEndpoint(rows)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, *endpoint)
	}
	return endpoints, rows.Err()
}

// --- Queues ---

// CreateQueue создаёт queue.
func (r *ExecutorRepo) CreateQueue(ctx context.Context, queue *domain.Queue) error {
	var endpoint []byte
	if queue.Endpoint != nil {
		var err error
		endpoint, err = json.Marshal(queue.Endpoint)
		if err != nil {
			return fmt.Errorf("marshal queue endpoint: %w", err)
		}
	}

	query := `
		INSERT INTO queues (id, subject, name, status, endpoint, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`
	_, err := r.db.Exec(ctx, query, queue.ID, queue.Subject, nullString(queue.Name), queue.Status, endpoint)
	if err != nil {
		return fmt.Errorf("insert queue: %w", err)
	}
	return nil
}

// GetQueue возвращает queue по ID.
func (r *ExecutorRepo) GetQueue(ctx context.Context, id string) (*domain.Queue, error) {
	query := `
		SELECT id, subject, name, status, endpoint
		FROM queues
		WHERE id = $1
	`
	return scanQueue(r.db.QueryRow(ctx, query, id))
}

// ListQueues возвращает все queues.
func (r *ExecutorRepo) ListQueues(ctx context.Context) ([]domain.Queue, error) {
	query := `
		SELECT id, subject, name, status, endpoint
		FROM queues
		ORDER BY id ASC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	defer rows.Close()

	var queues []domain.Queue
	for rows.Next() {
		queue, err := scanQueue(rows)
		if err != nil {
			return nil, err
		}
		queues = append(queues, *queue)
	}
	return queues, rows.Err()
}

// SetQueueStatus сохраняет статус queue.
func (r *ExecutorRepo) SetQueueStatus(ctx context.Context, id string, status domain.QueueStatus) error {
	result, err := r.db.Exec(ctx, `UPDATE queues SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update queue status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

func scanExecutorEndpoint(row pgx.Row) (*domain.ExecutorEndpoint, error) {
	var endpoint domain.ExecutorEndpoint
	var payload []byte

	err := row.Scan(&endpoint.ID, &endpoint.ExecutorID, &endpoint.Subject, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan executor endpoint: %w", err)
	}

	if err := json.Unmarshal(payload, &endpoint.Endpoint); err != nil {
		return nil, fmt.Errorf("unmarshal endpoint: %w", err)
	}
	return &endpoint, nil
}

func scanQueue(row pgx.Row) (*domain.Queue, error) {
	var queue domain.Queue
	var name *string
	var payload []byte

	err := row.Scan(&queue.ID, &queue.Subject, &name, &queue.Status, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan queue: %w", err)
	}

	if name != nil {
		queue.Name = *name
	}
	if payload != nil {
		queue.Endpoint = &domain.Endpoint{}
		if err := json.Unmarshal(payload, queue.Endpoint); err != nil {
			return nil, fmt.Errorf("unmarshal queue endpoint: %w", err)
		}
	}
	return &queue, nil
}

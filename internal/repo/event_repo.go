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

// EventRepo — репозиторий для работы с events.
type EventRepo struct {
	db DB
}

// NewEventRepo создаёт новый EventRepo.
func NewEventRepo(db DB) *EventRepo {
	return &EventRepo{db: db}
}

// WithTx возвращает копию репозитория, привязанную к транзакции.
func (r *EventRepo) WithTx(tx pgx.Tx) *EventRepo {
	return &EventRepo{db: tx}
}

// Create создаёт новое событие.
func (r *EventRepo) Create(ctx context.Context, event *domain.Event) error {
	aspects, err := marshalMap(event.Aspects)
	if err != nil {
		return fmt.Errorf("marshal aspects: %w", err)
	}

	query := `
		INSERT INTO events (id, topic, aspects, status, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = r.db.Exec(ctx, query, event.ID, event.Topic, aspects, event.Status, event.Occurrence)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetByID возвращает событие по ID.
func (r *EventRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	query := `
		SELECT id, topic, aspects, status, occurred_at
		FROM events
		WHERE id = $1
	`
	return scanEvent(r.db.QueryRow(ctx, query, id))
}

// ClaimPending блокирует и возвращает pending события в порядке
// возникновения. Вызывается внутри транзакции; SKIP LOCKED не даёт
// двум диспетчерам обработать одно событие дважды.
func (r *EventRepo) ClaimPending(ctx context.Context, limit int) ([]domain.Event, error) {
	query := `
		SELECT id, topic, aspects, status, occurred_at
		FROM events
		WHERE status = 'pending'
		ORDER BY occurred_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("claim pending events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

// List возвращает события с фильтрацией.
func (r *EventRepo) List(ctx context.Context, filter EventFilter) ([]domain.Event, error) {
	query := `
		SELECT id, topic, aspects, status, occurred_at
		FROM events
		WHERE ($1::text IS NULL OR topic = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY occurred_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query,
		nullString(filter.Topic),
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

// SetStatus сохраняет статус события.
func (r *EventRepo) SetStatus(ctx context.Context, id uuid.UUID, status domain.EventStatus) error {
	result, err := r.db.Exec(ctx, `UPDATE events SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update event status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Purge удаляет обработанные события старше cutoff.
func (r *EventRepo) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM events
		WHERE status = 'completed' AND occurred_at < $1
	`
	result, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge events: %w", err)
	}
	return result.RowsAffected(), nil
}

// --- Helpers ---

// EventFilter — параметры фильтрации events.
type EventFilter struct {
	Topic  string
	Status domain.EventStatus
	Limit  int
	Offset int
}

// scanEvent сканирует одну строку в Event.
func scanEvent(row pgx.Row) (*domain.Event, error) {
	var event domain.Event
	var aspects []byte

	err := row.Scan(&event.ID, &event.Topic, &aspects, &event.Status, &event.Occurrence)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}

	if aspects != nil {
		if err := json.Unmarshal(aspects, &event.Aspects); err != nil {
			return nil, fmt.Errorf("unmarshal aspects: %w", err)
		}
	}
	return &event, nil
}

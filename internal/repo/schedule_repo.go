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

// ScheduleRepo — репозиторий для работы с schedules.
//
// Payload варианта хранится как JSONB: структура зависит от type,
// и вычислениями занимается internal/recurrence, а не SQL.
type ScheduleRepo struct {
	db DB
}

// NewScheduleRepo создаёт новый ScheduleRepo.
func NewScheduleRepo(db DB) *ScheduleRepo {
	return &ScheduleRepo{db: db}
}

// WithTx возвращает копию репозитория, привязанную к транзакции.
func (r *ScheduleRepo) WithTx(tx pgx.Tx) *ScheduleRepo {
	return &ScheduleRepo{db: tx}
}

// Create создаёт новый schedule.
func (r *ScheduleRepo) Create(ctx context.Context, schedule *domain.Schedule) error {
	payload, err := marshalSchedulePayload(schedule)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO schedules (id, name, type, payload, created_at)
		VALUES ($1, $2, $3, $4, now())
	`
	_, err = r.db.Exec(ctx, query, schedule.ID, schedule.Name, schedule.Type, payload)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

// GetByID возвращает schedule по ID.
func (r *ScheduleRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Schedule, error) {
	query := `
		SELECT id, name, type, payload
		FROM schedules
		WHERE id = $1
	`
	return scanSchedule(r.db.QueryRow(ctx, query, id))
}

// LockByID возвращает schedule по ID, блокируя строку до конца
// транзакции. Вызывается только на репозитории, привязанном к tx.
func (r *ScheduleRepo) LockByID(ctx context.Context, id uuid.UUID) (*domain.Schedule, error) {
	query := `
		SELECT id, name, type, payload
		FROM schedules
		WHERE id = $1
		FOR UPDATE
	`
	return scanSchedule(r.db.QueryRow(ctx, query, id))
}

// GetByName возвращает schedule по имени.
func (r *ScheduleRepo) GetByName(ctx context.Context, name string) (*domain.Schedule, error) {
	query := `
		SELECT id, name, type, payload
		FROM schedules
		WHERE name = $1
	`
	return scanSchedule(r.db.QueryRow(ctx, query, name))
}

// List возвращает все schedules.
func (r *ScheduleRepo) List(ctx context.Context, limit, offset int) ([]domain.Schedule, error) {
	query := `
		SELECT id, name, type, payload
		FROM schedules
		ORDER BY name ASC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []domain.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *schedule)
	}
	return schedules, rows.Err()
}

// Update переписывает payload расписания (в том числе cached_next
// после пересчёта occurrence).
func (r *ScheduleRepo) Update(ctx context.Context, schedule *domain.Schedule) error {
	payload, err := marshalSchedulePayload(schedule)
	if err != nil {
		return err
	}

	query := `
		UPDATE schedules
		SET name = $2, type = $3, payload = $4
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, schedule.ID, schedule.Name, schedule.Type, payload)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет schedule.
func (r *ScheduleRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

func marshalSchedulePayload(schedule *domain.Schedule) ([]byte, error) {
	var variant any
	switch schedule.Type {
	case domain.ScheduleFixed:
		variant = schedule.Fixed
	case domain.ScheduleWeekly:
		variant = schedule.Weekly
	case domain.ScheduleMonthly:
		variant = schedule.Monthly
	case domain.ScheduleLogical:
		variant = schedule.Logical
	default:
		return nil, fmt.Errorf("%w: unknown schedule type %q", ErrInvalidState, schedule.Type)
	}

	payload, err := json.Marshal(variant)
	if err != nil {
		return nil, fmt.Errorf("marshal schedule payload: %w", err)
	}
	return payload, nil
}

// scanSchedule сканирует одну строку в Schedule.
func scanSchedule(row pgx.Row) (*domain.Schedule, error) {
	var schedule domain.Schedule
	var payload []byte

	err := row.Scan(&schedule.ID, &schedule.Name, &schedule.Type, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
	}

	var target any
	switch schedule.Type {
	case domain.ScheduleFixed:
		schedule.Fixed = &domain.FixedSchedule{}
		target = schedule.Fixed
	case domain.ScheduleWeekly:
		schedule.Weekly = &domain.WeeklySchedule{}
		target = schedule.Weekly
	case domain.ScheduleMonthly:
		schedule.Monthly = &domain.MonthlySchedule{}
		target = schedule.Monthly
	case domain.ScheduleLogical:
		schedule.Logical = &domain.LogicalSchedule{}
		target = schedule.Logical
	default:
		return nil, fmt.Errorf("%w: unknown schedule type %q", ErrInvalidState, schedule.Type)
	}

	if err := json.Unmarshal(payload, target); err != nil {
		return nil, fmt.Errorf("unmarshal schedule payload: %w", err)
	}
	return &schedule, nil
}

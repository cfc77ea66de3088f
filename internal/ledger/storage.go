package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/repo"
)

// taskStore — операции ledger над задачами. Реализуется repo.TaskRepo.
type taskStore interface {
	CreateScheduled(ctx context.Context, task *domain.ScheduledTask) error
	CreateRecurring(ctx context.Context, task *domain.RecurringTask) error
	FindRecurringByTag(ctx context.Context, tag string) (*domain.RecurringTask, error)
	LockScheduled(ctx context.Context, id uuid.UUID) (*domain.ScheduledTask, error)
	LockRecurring(ctx context.Context, id uuid.UUID) (*domain.RecurringTask, error)
	UpdateScheduled(ctx context.Context, task *domain.ScheduledTask) error
	UpdateRecurringStatus(ctx context.Context, id uuid.UUID, status domain.RecurringStatus) error
	HasActiveChild(ctx context.Context, parentID uuid.UUID) (bool, error)
	ListExecuting(ctx context.Context) ([]domain.ScheduledTask, error)
	CreateExecution(ctx context.Context, execution *domain.TaskExecution) error
	CountAttempts(ctx context.Context, taskID uuid.UUID) (int, error)
	PurgeCompleted(ctx context.Context, cutoff time.Time) (int64, error)
}

// scheduleStore — операции ledger над расписаниями. Реализуется
// repo.ScheduleRepo.
type scheduleStore interface {
	Create(ctx context.Context, schedule *domain.Schedule) error
	LockByID(ctx context.Context, id uuid.UUID) (*domain.Schedule, error)
	Update(ctx context.Context, schedule *domain.Schedule) error
}

// subscriptionStore — операции ledger над подписками. Реализуется
// repo.SubscriptionRepo.
type subscriptionStore interface {
	Create(ctx context.Context, task *domain.SubscribedTask) error
	PurgeExpired(ctx context.Context, now, cutoff time.Time) (int64, error)
}

// eventStore — retention-операции над событиями. Реализуется repo.EventRepo.
type eventStore interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// stores — store'ы, привязанные к одной открытой транзакции.
type stores struct {
	tasks     taskStore
	schedules scheduleStore
}

// storage открывает транзакцию и передаёт в fn привязанные к ней store'ы.
type storage interface {
	InTx(ctx context.Context, fn func(st stores) error) error
}

// pgStorage — storage поверх pgx-пула.
type pgStorage struct {
	pool      *pgxpool.Pool
	tasks     *repo.TaskRepo
	schedules *repo.ScheduleRepo
}

func (s *pgStorage) InTx(ctx context.Context, fn func(st stores) error) error {
	return repo.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(stores{
			tasks:     s.tasks.WithTx(tx),
			schedules: s.schedules.WithTx(tx),
		})
	})
}

package broker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/repo"
)

// eventStore — операции broker'а над событиями. Реализуется repo.EventRepo.
type eventStore interface {
	Create(ctx context.Context, event *domain.Event) error
	ClaimPending(ctx context.Context, limit int) ([]domain.Event, error)
	SetStatus(ctx context.Context, id uuid.UUID, status domain.EventStatus) error
}

// subscriptionStore — сопоставление и активация подписок. Реализуется
// repo.SubscriptionRepo.
type subscriptionStore interface {
	Match(ctx context.Context, topic string, aspects map[string]string) ([]domain.SubscribedTask, error)
	RecordActivation(ctx context.Context, id uuid.UUID, at time.Time) error
}

// taskStore — порождение задач активации. Реализуется repo.TaskRepo.
type taskStore interface {
	CreateScheduled(ctx context.Context, task *domain.ScheduledTask) error
}

// stores — store'ы, привязанные к одной открытой транзакции.
type stores struct {
	events        eventStore
	subscriptions subscriptionStore
	tasks         taskStore
}

// storage открывает транзакцию и передаёт в fn привязанные к ней store'ы.
type storage interface {
	InTx(ctx context.Context, fn func(st stores) error) error
}

// pgStorage — storage поверх pgx-пула.
type pgStorage struct {
	pool          *pgxpool.Pool
	events        *repo.EventRepo
	subscriptions *repo.SubscriptionRepo
	tasks         *repo.TaskRepo
}

func (s *pgStorage) InTx(ctx context.Context, fn func(st stores) error) error {
	return repo.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(stores{
			events:        s.events.WithTx(tx),
			subscriptions: s.subscriptions.WithTx(tx),
			tasks:         s.tasks.WithTx(tx),
		})
	})
}

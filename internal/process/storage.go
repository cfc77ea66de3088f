package process

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/repo"
)

// processStore — операции orchestrator'а над процессами. Реализуется
// repo.ProcessRepo.
type processStore interface {
	Create(ctx context.Context, process *domain.Process) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Process, error)
	LockByID(ctx context.Context, id uuid.UUID) (*domain.Process, error)
	ListTimedOut(ctx context.Context, now time.Time) ([]domain.Process, error)
	Update(ctx context.Context, process *domain.Process) error
	LinkTask(ctx context.Context, link *domain.ProcessTask) error
}

// taskStore — постановка фазовых задач. Реализуется repo.TaskRepo.
type taskStore interface {
	CreateScheduled(ctx context.Context, task *domain.ScheduledTask) error
}

// executorStore — разрешение очередей и endpoint'ов. Реализуется
// repo.ExecutorRepo.
type executorStore interface {
	GetQueue(ctx context.Context, id string) (*domain.Queue, error)
	GetEndpoint(ctx context.Context, id uuid.UUID) (*domain.ExecutorEndpoint, error)
	ActiveEndpointForSubject(ctx context.Context, subject string) (*domain.ExecutorEndpoint, error)
}

// stores — store'ы, привязанные к одной открытой транзакции.
type stores struct {
	processes processStore
	tasks     taskStore
	executors executorStore
}

// storage открывает транзакцию и передаёт в fn привязанные к ней store'ы.
type storage interface {
	InTx(ctx context.Context, fn func(st stores) error) error
}

// pgStorage — storage поверх pgx-пула.
type pgStorage struct {
	pool      *pgxpool.Pool
	processes *repo.ProcessRepo
	tasks     *repo.TaskRepo
	executors *repo.ExecutorRepo
}

func (s *pgStorage) InTx(ctx context.Context, fn func(st stores) error) error {
	return repo.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(stores{
			processes: s.processes.WithTx(tx),
			tasks:     s.tasks.WithTx(tx),
			executors: s.executors.WithTx(tx),
		})
	})
}

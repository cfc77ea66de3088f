package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/conveyor/internal/action"
	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/recurrence"
	"github.com/shaiso/conveyor/internal/repo"
)

// Значения конфигурации по умолчанию.
const (
	defaultCompletedTaskLifetime  = 30 * 24 * time.Hour
	defaultCompletedEventLifetime = 30 * 24 * time.Hour
)

// CompletionPublisher публикует уведомление о финальном статусе задачи.
// Реализуется mq.Publisher; nil отключает уведомления.
type CompletionPublisher interface {
	PublishTaskCompleted(ctx context.Context, task *domain.ScheduledTask) error
}

// Ledger — учёт задач: создание, выполнение с retry, связь
// recurring-задач с расписаниями, восстановление после рестарта
// и retention-очистка.
//
// Все переходы статусов выполняются под блокировкой строки задачи
// внутри одной транзакции.
type Ledger struct {
	storage       storage
	tasks         taskStore
	schedules     scheduleStore
	subscriptions subscriptionStore
	events        eventStore

	registry  *action.Registry
	publisher CompletionPublisher

	taskLifetime  time.Duration
	eventLifetime time.Duration

	logger *slog.Logger
}

// Config — конфигурация Ledger.
type Config struct {
	Pool *pgxpool.Pool

	TaskRepo         *repo.TaskRepo
	ScheduleRepo     *repo.ScheduleRepo
	SubscriptionRepo *repo.SubscriptionRepo
	EventRepo        *repo.EventRepo

	// Registry выполняет actions; устанавливается после создания
	// через SetRegistry, так как internal actions замыкаются на ledger.
	Registry *action.Registry

	// Publisher — уведомления о завершении задач (optional).
	Publisher CompletionPublisher

	// CompletedTaskLifetime — retention завершённых задач (default: 30 дней).
	CompletedTaskLifetime time.Duration

	// CompletedEventLifetime — retention обработанных событий (default: 30 дней).
	CompletedEventLifetime time.Duration

	Logger *slog.Logger
}

// New создаёт новый Ledger.
func New(cfg Config) *Ledger {
	taskLifetime := cfg.CompletedTaskLifetime
	if taskLifetime <= 0 {
		taskLifetime = defaultCompletedTaskLifetime
	}
	eventLifetime := cfg.CompletedEventLifetime
	if eventLifetime <= 0 {
		eventLifetime = defaultCompletedEventLifetime
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Ledger{
		storage: &pgStorage{
			pool:      cfg.Pool,
			tasks:     cfg.TaskRepo,
			schedules: cfg.ScheduleRepo,
		},
		tasks:         cfg.TaskRepo,
		schedules:     cfg.ScheduleRepo,
		subscriptions: cfg.SubscriptionRepo,
		events:        cfg.EventRepo,
		registry:      cfg.Registry,
		publisher:     cfg.Publisher,
		taskLifetime:  taskLifetime,
		eventLifetime: eventLifetime,
		logger:        logger,
	}
}

// SetRegistry устанавливает реестр action-executor'ов.
func (l *Ledger) SetRegistry(registry *action.Registry) {
	l.registry = registry
}

// CreateScheduled регистрирует новый ScheduledTask.
// Нулевой occurrence означает немедленное выполнение.
func (l *Ledger) CreateScheduled(ctx context.Context, task *domain.ScheduledTask) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Created.IsZero() {
		task.Created = time.Now().UTC()
	}
	if task.Status == "" {
		task.Status = domain.TaskStatusPending
	}
	if task.Occurrence.IsZero() {
		task.Occurrence = time.Now().UTC()
	}

	if err := l.tasks.CreateScheduled(ctx, task); err != nil {
		return err
	}
	l.logger.Info("scheduled task created",
		"task_id", task.ID, "tag", task.Tag, "occurrence", task.Occurrence)
	return nil
}

// CreateRecurring регистрирует RecurringTask и сразу порождает её
// первый дочерний ScheduledTask.
func (l *Ledger) CreateRecurring(ctx context.Context, task *domain.RecurringTask) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Created.IsZero() {
		task.Created = time.Now().UTC()
	}
	if task.Status == "" {
		task.Status = domain.RecurringActive
	}

	if err := l.tasks.CreateRecurring(ctx, task); err != nil {
		return err
	}
	l.logger.Info("recurring task created",
		"task_id", task.ID, "tag", task.Tag, "schedule_id", task.ScheduleID)

	if task.Status != domain.RecurringActive {
		return nil
	}
	return l.Reschedule(ctx, task.ID)
}

// CreateSubscribed регистрирует подписку на события.
func (l *Ledger) CreateSubscribed(ctx context.Context, task *domain.SubscribedTask) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Created.IsZero() {
		task.Created = time.Now().UTC()
	}

	if err := l.subscriptions.Create(ctx, task); err != nil {
		return err
	}
	l.logger.Info("subscription created",
		"task_id", task.ID, "tag", task.Tag, "topic", task.Topic)
	return nil
}

// Reschedule порождает следующий дочерний ScheduledTask recurring
// задачи, если она активна и не имеет незавершённого дочернего.
func (l *Ledger) Reschedule(ctx context.Context, recurringID uuid.UUID) error {
	return l.storage.InTx(ctx, func(st stores) error {
		parent, err := st.tasks.LockRecurring(ctx, recurringID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrNotRecurring, recurringID)
			}
			return err
		}
		return l.rescheduleLocked(ctx, st, parent, time.Now().UTC())
	})
}

// rescheduleLocked — reschedule под уже взятой блокировкой parent.
//
// Инвариант: у активной recurring task не более одного дочернего
// ScheduledTask в статусе pending или retrying.
func (l *Ledger) rescheduleLocked(ctx context.Context, st stores, parent *domain.RecurringTask, base time.Time) error {
	if parent.Status != domain.RecurringActive {
		return nil
	}

	active, err := st.tasks.HasActiveChild(ctx, parent.ID)
	if err != nil {
		return err
	}
	if active {
		return nil
	}

	schedule, err := st.schedules.LockByID(ctx, parent.ScheduleID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	occurrence, err := recurrence.Next(schedule, base, now)
	if err != nil {
		return fmt.Errorf("compute next occurrence: %w", err)
	}
	// Weekly и monthly варианты кэшируют вычисленный occurrence.
	if err := st.schedules.Update(ctx, schedule); err != nil {
		return err
	}

	child := parent.Spawn(occurrence)
	child.ParentID = &parent.ID
	if err := st.tasks.CreateScheduled(ctx, child); err != nil {
		return err
	}

	l.logger.Info("recurring task rescheduled",
		"task_id", parent.ID, "child_id", child.ID, "occurrence", occurrence)
	return nil
}

// UpdateOccurrence переносит occurrence задачи. Допускается только
// в статусе pending.
func (l *Ledger) UpdateOccurrence(ctx context.Context, taskID uuid.UUID, occurrence time.Time) error {
	return l.storage.InTx(ctx, func(st stores) error {
		task, err := st.tasks.LockScheduled(ctx, taskID)
		if err != nil {
			return err
		}
		if task.Status != domain.TaskStatusPending {
			return fmt.Errorf("%w: cannot move %s task %s", ErrPreconditionFailed, task.Status, taskID)
		}
		task.Occurrence = occurrence
		return st.tasks.UpdateScheduled(ctx, task)
	})
}

// Abort отменяет невыполненную задачу.
func (l *Ledger) Abort(ctx context.Context, taskID uuid.UUID) error {
	return l.storage.InTx(ctx, func(st stores) error {
		task, err := st.tasks.LockScheduled(ctx, taskID)
		if err != nil {
			return err
		}
		if task.Status != domain.TaskStatusPending && task.Status != domain.TaskStatusRetrying {
			return fmt.Errorf("%w: cannot abort %s task %s", ErrPreconditionFailed, task.Status, taskID)
		}
		task.Status = domain.TaskStatusAborted
		if err := st.tasks.UpdateScheduled(ctx, task); err != nil {
			return err
		}

		// Отмена дочерней задачи не должна останавливать расписание.
		if task.ParentID != nil {
			parent, err := st.tasks.LockRecurring(ctx, *task.ParentID)
			if err != nil {
				return err
			}
			return l.rescheduleLocked(ctx, st, parent, time.Now().UTC())
		}
		return nil
	})
}

// SetRecurringStatus активирует либо останавливает recurring task.
// При активации сразу порождается следующий дочерний ScheduledTask.
func (l *Ledger) SetRecurringStatus(ctx context.Context, recurringID uuid.UUID, status domain.RecurringStatus) error {
	return l.storage.InTx(ctx, func(st stores) error {
		parent, err := st.tasks.LockRecurring(ctx, recurringID)
		if err != nil {
			return err
		}
		if parent.Status == status {
			return nil
		}
		if err := st.tasks.UpdateRecurringStatus(ctx, recurringID, status); err != nil {
			return err
		}
		parent.Status = status
		return l.rescheduleLocked(ctx, st, parent, time.Now().UTC())
	})
}

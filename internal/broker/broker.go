package broker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/repo"
	"github.com/shaiso/conveyor/internal/telemetry"
)

const defaultBatchSize = 100

// Broker сопоставляет события с подписками.
//
// Publish регистрирует событие; ProcessPending периодически забирает
// pending события и активирует подходящие подписки, порождая по одной
// немедленной задаче на каждую.
type Broker struct {
	storage storage
	events  eventStore

	batchSize int
	logger    *slog.Logger
}

// Config — конфигурация Broker.
type Config struct {
	Pool *pgxpool.Pool

	EventRepo        *repo.EventRepo
	SubscriptionRepo *repo.SubscriptionRepo
	TaskRepo         *repo.TaskRepo

	// BatchSize — максимум событий за один проход (default: 100).
	BatchSize int

	Logger *slog.Logger
}

// New создаёт новый Broker.
func New(cfg Config) *Broker {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Broker{
		storage: &pgStorage{
			pool:          cfg.Pool,
			events:        cfg.EventRepo,
			subscriptions: cfg.SubscriptionRepo,
			tasks:         cfg.TaskRepo,
		},
		events:    cfg.EventRepo,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Publish регистрирует новое событие; оно будет сопоставлено
// с подписками ближайшим проходом ProcessPending.
func (b *Broker) Publish(ctx context.Context, topic string, aspects map[string]string) (*domain.Event, error) {
	event := &domain.Event{
		ID:         uuid.New(),
		Topic:      topic,
		Aspects:    aspects,
		Status:     domain.EventPending,
		Occurrence: time.Now().UTC(),
	}
	if err := b.events.Create(ctx, event); err != nil {
		return nil, err
	}
	b.logger.Info("event published", "event_id", event.ID, "topic", topic)
	return event, nil
}

// ProcessPending обрабатывает накопившиеся события. Возвращает число
// обработанных событий.
func (b *Broker) ProcessPending(ctx context.Context) (int, error) {
	processed := 0
	err := b.storage.InTx(ctx, func(st stores) error {
		events, err := st.events.ClaimPending(ctx, b.batchSize)
		if err != nil {
			return err
		}
		for i := range events {
			if err := b.processEvent(ctx, st, &events[i]); err != nil {
				return err
			}
			processed++
		}
		return nil
	})
	return processed, err
}

// processEvent активирует все подходящие подписки и помечает событие
// обработанным. Подписки блокируются до конца транзакции, поэтому
// лимит активаций не может быть превышен конкурентным событием.
func (b *Broker) processEvent(ctx context.Context, st stores, event *domain.Event) error {
	matched, err := st.subscriptions.Match(ctx, event.Topic, event.Aspects)
	if err != nil {
		return err
	}

	description := event.Describe()
	for i := range matched {
		if err := b.activate(ctx, st, &matched[i], description); err != nil {
			return err
		}
	}

	if err := st.events.SetStatus(ctx, event.ID, domain.EventCompleted); err != nil {
		return err
	}

	telemetry.EventsProcessed.Inc()
	b.logger.Info("event processed",
		"event_id", event.ID, "topic", event.Topic, "activations", len(matched))
	return nil
}

// activate порождает немедленную задачу из шаблона подписки
// с описанием события в parameters.
func (b *Broker) activate(ctx context.Context, st stores, subscription *domain.SubscribedTask, description map[string]string) error {
	if subscription.Exhausted() {
		return nil
	}

	task := subscription.Spawn(time.Now().UTC())
	task.Parameters = map[string]any{"event": description}
	if err := st.tasks.CreateScheduled(ctx, task); err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := st.subscriptions.RecordActivation(ctx, subscription.ID, now); err != nil {
		return err
	}

	telemetry.EventsActivated.Inc()
	b.logger.Info("subscription activated",
		"subscription_id", subscription.ID, "task_id", task.ID, "tag", task.Tag)
	return nil
}

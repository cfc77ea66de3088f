package broker

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/repo"
)

// memStore — eventStore, subscriptionStore, taskStore и storage
// в памяти. Match повторяет SQL-фильтр репозитория: совпадение topic,
// вхождение aspects подписки в aspects события и неисчерпанный лимит.
type memStore struct {
	events        map[uuid.UUID]*domain.Event
	subscriptions map[uuid.UUID]*domain.SubscribedTask
	tasks         []domain.ScheduledTask
}

func newMemStore() *memStore {
	return &memStore{
		events:        make(map[uuid.UUID]*domain.Event),
		subscriptions: make(map[uuid.UUID]*domain.SubscribedTask),
	}
}

func (s *memStore) InTx(_ context.Context, fn func(st stores) error) error {
	return fn(stores{events: s, subscriptions: s, tasks: s})
}

func (s *memStore) Create(_ context.Context, event *domain.Event) error {
	c := *event
	s.events[event.ID] = &c
	return nil
}

func (s *memStore) ClaimPending(_ context.Context, limit int) ([]domain.Event, error) {
	var out []domain.Event
	for _, event := range s.events {
		if event.Status != domain.EventPending {
			continue
		}
		out = append(out, *event)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) SetStatus(_ context.Context, id uuid.UUID, status domain.EventStatus) error {
	event, ok := s.events[id]
	if !ok {
		return repo.ErrNotFound
	}
	event.Status = status
	return nil
}

func (s *memStore) Match(_ context.Context, topic string, aspects map[string]string) ([]domain.SubscribedTask, error) {
	var out []domain.SubscribedTask
	for _, sub := range s.subscriptions {
		if sub.Topic != topic || sub.Exhausted() {
			continue
		}
		if !aspectsContain(aspects, sub.Aspects) {
			continue
		}
		out = append(out, *sub)
	}
	return out, nil
}

func (s *memStore) RecordActivation(_ context.Context, id uuid.UUID, at time.Time) error {
	sub, ok := s.subscriptions[id]
	if !ok {
		return repo.ErrNotFound
	}
	sub.Activations++
	sub.Activated = &at
	return nil
}

func (s *memStore) CreateScheduled(_ context.Context, task *domain.ScheduledTask) error {
	s.tasks = append(s.tasks, *task)
	return nil
}

func aspectsContain(event, filter map[string]string) bool {
	for k, v := range filter {
		if event[k] != v {
			return false
		}
	}
	return true
}

func (s *memStore) addSubscription(sub *domain.SubscribedTask) {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	s.subscriptions[sub.ID] = sub
}

func newTestBroker(store *memStore) *Broker {
	return &Broker{
		storage:   store,
		events:    store,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
	}
}

func TestProcessPending_ActivatesMatching(t *testing.T) {
	store := newMemStore()
	b := newTestBroker(store)
	ctx := context.Background()

	store.addSubscription(&domain.SubscribedTask{
		Task:  domain.Task{Tag: "on-upload"},
		Topic: "file.uploaded",
	})
	store.addSubscription(&domain.SubscribedTask{
		Task:  domain.Task{Tag: "on-delete"},
		Topic: "file.deleted",
	})

	event, err := b.Publish(ctx, "file.uploaded", map[string]string{"bucket": "media"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	processed, err := b.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if processed != 1 {
		t.Fatalf("processed %d events, want 1", processed)
	}

	if len(store.tasks) != 1 {
		t.Fatalf("expected 1 activation task, got %d", len(store.tasks))
	}
	task := store.tasks[0]
	if task.Tag != "on-upload" {
		t.Errorf("activated wrong subscription: %s", task.Tag)
	}
	if task.Status != domain.TaskStatusPending {
		t.Errorf("activation task status %s, want pending", task.Status)
	}
	description, ok := task.Parameters["event"].(map[string]string)
	if !ok {
		t.Fatalf("activation task carries no event description: %+v", task.Parameters)
	}
	if description["topic"] != "file.uploaded" || description["bucket"] != "media" {
		t.Errorf("unexpected event description: %v", description)
	}

	if got := store.events[event.ID]; got.Status != domain.EventCompleted {
		t.Errorf("event status %s, want completed", got.Status)
	}
}

func TestProcessPending_ActivationLimit(t *testing.T) {
	store := newMemStore()
	b := newTestBroker(store)
	ctx := context.Background()

	limit := 1
	store.addSubscription(&domain.SubscribedTask{
		Task:            domain.Task{Tag: "once-only"},
		Topic:           "order.placed",
		ActivationLimit: &limit,
	})

	for i := 0; i < 2; i++ {
		if _, err := b.Publish(ctx, "order.placed", nil); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	processed, err := b.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if processed != 2 {
		t.Fatalf("processed %d events, want 2", processed)
	}

	// Лимит 1: активируется ровно одна задача, оба события обработаны.
	if len(store.tasks) != 1 {
		t.Errorf("expected 1 activation task, got %d", len(store.tasks))
	}
	for id, event := range store.events {
		if event.Status != domain.EventCompleted {
			t.Errorf("event %s status %s, want completed", id, event.Status)
		}
	}
}

func TestProcessPending_AspectFilter(t *testing.T) {
	store := newMemStore()
	b := newTestBroker(store)
	ctx := context.Background()

	store.addSubscription(&domain.SubscribedTask{
		Task:    domain.Task{Tag: "eu-orders"},
		Topic:   "order.placed",
		Aspects: map[string]string{"region": "eu"},
	})

	// Aspects события должны быть надмножеством фильтра подписки.
	if _, err := b.Publish(ctx, "order.placed", map[string]string{"region": "eu", "tier": "gold"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := b.Publish(ctx, "order.placed", map[string]string{"region": "us"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := b.Publish(ctx, "order.placed", nil); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if _, err := b.ProcessPending(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(store.tasks) != 1 {
		t.Fatalf("expected 1 activation task, got %d", len(store.tasks))
	}
	if store.tasks[0].Tag != "eu-orders" {
		t.Errorf("activated wrong subscription: %s", store.tasks[0].Tag)
	}
}

func TestActivate_SkipsExhausted(t *testing.T) {
	store := newMemStore()
	b := newTestBroker(store)
	ctx := context.Background()

	limit := 2
	sub := &domain.SubscribedTask{
		Task:            domain.Task{Tag: "spent"},
		Topic:           "noop",
		ActivationLimit: &limit,
		Activations:     2,
	}
	store.addSubscription(sub)

	err := store.InTx(ctx, func(st stores) error {
		return b.activate(ctx, st, sub, map[string]string{"topic": "noop"})
	})
	if err != nil {
		t.Fatalf("activate: %v", err)
	}

	if len(store.tasks) != 0 {
		t.Errorf("exhausted subscription spawned %d tasks", len(store.tasks))
	}
	if sub.Activations != 2 {
		t.Errorf("activations changed to %d", sub.Activations)
	}
}

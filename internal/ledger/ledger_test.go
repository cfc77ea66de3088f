package ledger

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/conveyor/internal/action"
	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/repo"
)

// memStore — taskStore, scheduleStore и storage в памяти. Lock-методы
// отдают копии, изменения становятся видны только после Update, как
// при работе с БД.
type memStore struct {
	scheduled  map[uuid.UUID]*domain.ScheduledTask
	recurring  map[uuid.UUID]*domain.RecurringTask
	schedules  map[uuid.UUID]*domain.Schedule
	executions []domain.TaskExecution
}

func newMemStore() *memStore {
	return &memStore{
		scheduled: make(map[uuid.UUID]*domain.ScheduledTask),
		recurring: make(map[uuid.UUID]*domain.RecurringTask),
		schedules: make(map[uuid.UUID]*domain.Schedule),
	}
}

func (s *memStore) InTx(_ context.Context, fn func(st stores) error) error {
	return fn(stores{tasks: s, schedules: s})
}

func (s *memStore) CreateScheduled(_ context.Context, task *domain.ScheduledTask) error {
	c := *task
	s.scheduled[task.ID] = &c
	return nil
}

func (s *memStore) CreateRecurring(_ context.Context, task *domain.RecurringTask) error {
	c := *task
	s.recurring[task.ID] = &c
	return nil
}

func (s *memStore) FindRecurringByTag(_ context.Context, tag string) (*domain.RecurringTask, error) {
	for _, task := range s.recurring {
		if task.Tag == tag {
			c := *task
			return &c, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s *memStore) LockScheduled(_ context.Context, id uuid.UUID) (*domain.ScheduledTask, error) {
	task, ok := s.scheduled[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	c := *task
	return &c, nil
}

func (s *memStore) LockRecurring(_ context.Context, id uuid.UUID) (*domain.RecurringTask, error) {
	task, ok := s.recurring[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	c := *task
	return &c, nil
}

func (s *memStore) UpdateScheduled(_ context.Context, task *domain.ScheduledTask) error {
	if _, ok := s.scheduled[task.ID]; !ok {
		return repo.ErrNotFound
	}
	c := *task
	s.scheduled[task.ID] = &c
	return nil
}

func (s *memStore) UpdateRecurringStatus(_ context.Context, id uuid.UUID, status domain.RecurringStatus) error {
	task, ok := s.recurring[id]
	if !ok {
		return repo.ErrNotFound
	}
	task.Status = status
	return nil
}

func (s *memStore) HasActiveChild(_ context.Context, parentID uuid.UUID) (bool, error) {
	return len(s.activeChildren(parentID)) > 0, nil
}

func (s *memStore) ListExecuting(_ context.Context) ([]domain.ScheduledTask, error) {
	var out []domain.ScheduledTask
	for _, task := range s.scheduled {
		if task.Status == domain.TaskStatusExecuting {
			out = append(out, *task)
		}
	}
	return out, nil
}

func (s *memStore) CreateExecution(_ context.Context, execution *domain.TaskExecution) error {
	s.executions = append(s.executions, *execution)
	return nil
}

func (s *memStore) CountAttempts(_ context.Context, taskID uuid.UUID) (int, error) {
	count := 0
	for i := range s.executions {
		if s.executions[i].TaskID == taskID {
			count++
		}
	}
	return count, nil
}

func (s *memStore) PurgeCompleted(_ context.Context, cutoff time.Time) (int64, error) {
	var purged int64
	for id, task := range s.scheduled {
		if task.Status.IsTerminal() && task.Occurrence.Before(cutoff) {
			delete(s.scheduled, id)
			purged++
		}
	}
	return purged, nil
}

func (s *memStore) Create(_ context.Context, schedule *domain.Schedule) error {
	c := *schedule
	s.schedules[schedule.ID] = &c
	return nil
}

func (s *memStore) LockByID(_ context.Context, id uuid.UUID) (*domain.Schedule, error) {
	schedule, ok := s.schedules[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	c := *schedule
	return &c, nil
}

func (s *memStore) Update(_ context.Context, schedule *domain.Schedule) error {
	if _, ok := s.schedules[schedule.ID]; !ok {
		return repo.ErrNotFound
	}
	c := *schedule
	s.schedules[schedule.ID] = &c
	return nil
}

// claim переводит задачу в executing, как это делает диспетчер перед
// вызовом Execute.
func (s *memStore) claim(id uuid.UUID) {
	s.scheduled[id].Status = domain.TaskStatusExecuting
}

func (s *memStore) activeChildren(parentID uuid.UUID) []*domain.ScheduledTask {
	var out []*domain.ScheduledTask
	for _, task := range s.scheduled {
		if task.ParentID == nil || *task.ParentID != parentID {
			continue
		}
		if task.Status == domain.TaskStatusPending || task.Status == domain.TaskStatusRetrying {
			out = append(out, task)
		}
	}
	return out
}

func (s *memStore) findByTag(tag string) *domain.ScheduledTask {
	for _, task := range s.scheduled {
		if task.Tag == tag {
			return task
		}
	}
	return nil
}

type recordingPublisher struct {
	published []uuid.UUID
}

func (p *recordingPublisher) PublishTaskCompleted(_ context.Context, task *domain.ScheduledTask) error {
	p.published = append(p.published, task.ID)
	return nil
}

func newTestLedger(store *memStore) *Ledger {
	registry := action.NewRegistry()
	registry.Register(domain.ActionTest, &action.TestExecutor{})
	return &Ledger{
		storage:       store,
		tasks:         store,
		schedules:     store,
		registry:      registry,
		taskLifetime:  defaultCompletedTaskLifetime,
		eventLifetime: defaultCompletedEventLifetime,
		logger:        slog.Default(),
	}
}

func testAction(outcome domain.TestOutcome, result string) domain.Action {
	return domain.Action{
		ID:   uuid.New(),
		Type: domain.ActionTest,
		Test: &domain.TestAction{Outcome: outcome, Result: result},
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		outcome    domain.Outcome
		attempt    int
		retryLimit int
		want       domain.TaskStatus
	}{
		{"completed first attempt", domain.OutcomeCompleted, 1, 2, domain.TaskStatusCompleted},
		{"completed last attempt", domain.OutcomeCompleted, 3, 2, domain.TaskStatusCompleted},
		{"failed with retries left", domain.OutcomeFailed, 1, 2, domain.TaskStatusRetrying},
		{"retry outcome with retries left", domain.OutcomeRetry, 2, 2, domain.TaskStatusRetrying},
		{"failed on final attempt", domain.OutcomeFailed, 3, 2, domain.TaskStatusFailed},
		{"retry outcome on final attempt", domain.OutcomeRetry, 3, 2, domain.TaskStatusFailed},
		{"no retries allowed", domain.OutcomeFailed, 1, 0, domain.TaskStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.outcome, tt.attempt, tt.retryLimit)
			if got != tt.want {
				t.Errorf("classify(%s, %d, %d) = %s, want %s",
					tt.outcome, tt.attempt, tt.retryLimit, got, tt.want)
			}
		})
	}
}

func TestExecute_RetryExhaustion(t *testing.T) {
	store := newMemStore()
	l := newTestLedger(store)
	ctx := context.Background()

	task := &domain.ScheduledTask{
		Task: domain.Task{
			Tag:             "flaky-upload",
			RetryLimit:      2,
			RetryTimeoutSec: 60,
			Action:          testAction(domain.TestFail, "upstream rejected"),
		},
	}
	if err := l.CreateScheduled(ctx, task); err != nil {
		t.Fatalf("create: %v", err)
	}

	// RetryLimit 2: попытки 1 и 2 уходят в retrying, попытка 3 финальна.
	for attempt := 1; attempt <= 3; attempt++ {
		store.claim(task.ID)
		if err := l.Execute(ctx, task.ID); err != nil {
			t.Fatalf("attempt %d: %v", attempt, err)
		}

		got := store.scheduled[task.ID]
		if attempt <= 2 {
			if got.Status != domain.TaskStatusRetrying {
				t.Fatalf("after attempt %d: status %s, want retrying", attempt, got.Status)
			}
			if !got.Occurrence.After(time.Now().UTC().Add(30 * time.Second)) {
				t.Errorf("after attempt %d: occurrence %v is not delayed", attempt, got.Occurrence)
			}
		} else if got.Status != domain.TaskStatusFailed {
			t.Fatalf("after attempt %d: status %s, want failed", attempt, got.Status)
		}
	}

	if len(store.executions) != 3 {
		t.Fatalf("expected 3 executions, got %d", len(store.executions))
	}
	for i, execution := range store.executions {
		if execution.Attempt != i+1 {
			t.Errorf("execution %d: attempt %d", i, execution.Attempt)
		}
		if execution.Status != domain.ExecutionFailed {
			t.Errorf("execution %d: status %s, want failed", i, execution.Status)
		}
	}
}

func TestExecute_SpawnsFailedAction(t *testing.T) {
	store := newMemStore()
	l := newTestLedger(store)
	ctx := context.Background()

	failedAction := testAction(domain.TestComplete, "cleanup done")
	task := &domain.ScheduledTask{
		Task: domain.Task{
			Tag:          "doomed-import",
			Action:       testAction(domain.TestFail, "schema mismatch"),
			FailedAction: &failedAction,
		},
	}
	if err := l.CreateScheduled(ctx, task); err != nil {
		t.Fatalf("create: %v", err)
	}

	store.claim(task.ID)
	if err := l.Execute(ctx, task.ID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	followUp := store.findByTag("doomed-import-failed")
	if followUp == nil {
		t.Fatal("failed action task was not spawned")
	}
	if followUp.Status != domain.TaskStatusPending {
		t.Errorf("follow-up status %s, want pending", followUp.Status)
	}
	if followUp.Action.Test == nil || followUp.Action.Test.Result != "cleanup done" {
		t.Errorf("follow-up carries wrong action: %+v", followUp.Action)
	}
}

func TestExecute_SkipsAlreadyHandledTask(t *testing.T) {
	store := newMemStore()
	l := newTestLedger(store)
	ctx := context.Background()

	task := &domain.ScheduledTask{
		Task: domain.Task{Tag: "double-claimed", Action: testAction(domain.TestComplete, "")},
	}
	if err := l.CreateScheduled(ctx, task); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Задача осталась в pending: её исход уже зафиксировал другой
	// диспетчер. Повторный Execute ничего не делает.
	if err := l.Execute(ctx, task.ID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if len(store.executions) != 0 {
		t.Errorf("expected no executions, got %d", len(store.executions))
	}
	if got := store.scheduled[task.ID]; got.Status != domain.TaskStatusPending {
		t.Errorf("status %s, want pending untouched", got.Status)
	}
}

func TestExecute_NotifiesOnTerminalStatus(t *testing.T) {
	store := newMemStore()
	l := newTestLedger(store)
	publisher := &recordingPublisher{}
	l.publisher = publisher
	ctx := context.Background()

	completing := &domain.ScheduledTask{
		Task: domain.Task{Tag: "one-shot", Action: testAction(domain.TestComplete, "")},
	}
	retrying := &domain.ScheduledTask{
		Task: domain.Task{
			Tag:             "still-trying",
			RetryLimit:      3,
			RetryTimeoutSec: 60,
			Action:          testAction(domain.TestFail, ""),
		},
	}
	for _, task := range []*domain.ScheduledTask{completing, retrying} {
		if err := l.CreateScheduled(ctx, task); err != nil {
			t.Fatalf("create: %v", err)
		}
		store.claim(task.ID)
		if err := l.Execute(ctx, task.ID); err != nil {
			t.Fatalf("execute: %v", err)
		}
	}

	if len(publisher.published) != 1 || publisher.published[0] != completing.ID {
		t.Errorf("expected a single notification for %s, got %v", completing.ID, publisher.published)
	}
}

func TestReschedule_SingleActiveChild(t *testing.T) {
	store := newMemStore()
	l := newTestLedger(store)
	ctx := context.Background()

	schedule := &domain.Schedule{
		ID:   uuid.New(),
		Name: "every-minute",
		Type: domain.ScheduleFixed,
		Fixed: &domain.FixedSchedule{
			Anchor:      time.Now().UTC().Add(-time.Hour),
			IntervalSec: 60,
		},
	}
	if err := store.Create(ctx, schedule); err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	parent := &domain.RecurringTask{
		Task:       domain.Task{Tag: "minutely", Action: testAction(domain.TestComplete, "")},
		ScheduleID: schedule.ID,
	}
	if err := l.CreateRecurring(ctx, parent); err != nil {
		t.Fatalf("create recurring: %v", err)
	}

	children := store.activeChildren(parent.ID)
	if len(children) != 1 {
		t.Fatalf("expected 1 child after creation, got %d", len(children))
	}
	first := children[0]

	// Повторный reschedule не плодит детей, пока первый не завершён.
	for i := 0; i < 3; i++ {
		if err := l.Reschedule(ctx, parent.ID); err != nil {
			t.Fatalf("reschedule %d: %v", i, err)
		}
	}
	if n := len(store.activeChildren(parent.ID)); n != 1 {
		t.Fatalf("expected 1 active child after repeated reschedule, got %d", n)
	}

	// Выполнение ребёнка порождает ровно одного следующего.
	store.claim(first.ID)
	if err := l.Execute(ctx, first.ID); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := store.scheduled[first.ID]; got.Status != domain.TaskStatusCompleted {
		t.Fatalf("first child status %s, want completed", got.Status)
	}
	children = store.activeChildren(parent.ID)
	if len(children) != 1 {
		t.Fatalf("expected 1 active child after execution, got %d", len(children))
	}
	second := children[0]
	if second.ID == first.ID {
		t.Fatal("completed child must be replaced by a new one")
	}
	if second.Occurrence.Before(first.Occurrence) {
		t.Errorf("next occurrence %v precedes previous %v", second.Occurrence, first.Occurrence)
	}

	// Отмена дочерней задачи не останавливает расписание.
	if err := l.Abort(ctx, second.ID); err != nil {
		t.Fatalf("abort: %v", err)
	}
	children = store.activeChildren(parent.ID)
	if len(children) != 1 || children[0].ID == second.ID {
		t.Fatalf("expected a fresh child after abort, got %d", len(children))
	}

	// Остановка recurring задачи прекращает порождение детей.
	if err := l.SetRecurringStatus(ctx, parent.ID, domain.RecurringInactive); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	remaining := store.activeChildren(parent.ID)[0]
	if err := l.Abort(ctx, remaining.ID); err != nil {
		t.Fatalf("abort remaining: %v", err)
	}
	if n := len(store.activeChildren(parent.ID)); n != 0 {
		t.Errorf("inactive recurring task spawned a child, %d active", n)
	}
}

func TestRecoverExecuting(t *testing.T) {
	ctx := context.Background()

	t.Run("rerun on recovery returns task to pending", func(t *testing.T) {
		store := newMemStore()
		l := newTestLedger(store)

		task := &domain.ScheduledTask{
			Task: domain.Task{
				ID:              uuid.New(),
				Tag:             "idempotent-sync",
				RerunOnRecovery: true,
				Action:          testAction(domain.TestComplete, ""),
			},
			Status:     domain.TaskStatusExecuting,
			Occurrence: time.Now().UTC(),
		}
		store.scheduled[task.ID] = task

		if err := l.RecoverExecuting(ctx); err != nil {
			t.Fatalf("recover: %v", err)
		}
		if got := store.scheduled[task.ID]; got.Status != domain.TaskStatusPending {
			t.Errorf("status %s, want pending", got.Status)
		}
	})

	t.Run("spent attempt moves task to retrying", func(t *testing.T) {
		store := newMemStore()
		l := newTestLedger(store)

		task := &domain.ScheduledTask{
			Task: domain.Task{
				ID:              uuid.New(),
				Tag:             "stuck-report",
				RetryLimit:      2,
				RetryTimeoutSec: 300,
				Action:          testAction(domain.TestFail, ""),
			},
			Status:     domain.TaskStatusExecuting,
			Occurrence: time.Now().UTC().Add(-time.Hour),
		}
		store.scheduled[task.ID] = task
		// Одна попытка уже потрачена до рестарта.
		store.executions = append(store.executions, domain.TaskExecution{
			ID:      uuid.New(),
			TaskID:  task.ID,
			Attempt: 1,
			Status:  domain.ExecutionFailed,
		})

		if err := l.RecoverExecuting(ctx); err != nil {
			t.Fatalf("recover: %v", err)
		}
		got := store.scheduled[task.ID]
		if got.Status != domain.TaskStatusRetrying {
			t.Fatalf("status %s, want retrying", got.Status)
		}
		if !got.Occurrence.After(time.Now().UTC()) {
			t.Errorf("occurrence %v must move into the future", got.Occurrence)
		}
	})

	t.Run("exhausted task fails and parent reschedules", func(t *testing.T) {
		store := newMemStore()
		l := newTestLedger(store)

		schedule := &domain.Schedule{
			ID:   uuid.New(),
			Name: "hourly",
			Type: domain.ScheduleFixed,
			Fixed: &domain.FixedSchedule{
				Anchor:      time.Now().UTC().Add(-24 * time.Hour),
				IntervalSec: 3600,
			},
		}
		store.schedules[schedule.ID] = schedule

		parent := &domain.RecurringTask{
			Task: domain.Task{
				ID:     uuid.New(),
				Tag:    "hourly-digest",
				Action: testAction(domain.TestFail, ""),
			},
			Status:     domain.RecurringActive,
			ScheduleID: schedule.ID,
		}
		store.recurring[parent.ID] = parent

		task := &domain.ScheduledTask{
			Task: domain.Task{
				ID:         uuid.New(),
				Tag:        "hourly-digest",
				RetryLimit: 1,
				Action:     testAction(domain.TestFail, ""),
			},
			Status:     domain.TaskStatusExecuting,
			Occurrence: time.Now().UTC().Add(-time.Hour),
			ParentID:   &parent.ID,
		}
		store.scheduled[task.ID] = task
		store.executions = append(store.executions, domain.TaskExecution{
			ID:      uuid.New(),
			TaskID:  task.ID,
			Attempt: 1,
			Status:  domain.ExecutionFailed,
		})

		if err := l.RecoverExecuting(ctx); err != nil {
			t.Fatalf("recover: %v", err)
		}
		if got := store.scheduled[task.ID]; got.Status != domain.TaskStatusFailed {
			t.Fatalf("status %s, want failed", got.Status)
		}
		if n := len(store.activeChildren(parent.ID)); n != 1 {
			t.Errorf("expected the parent to spawn a replacement child, got %d", n)
		}
	})
}

func TestUpdateOccurrence_PendingOnly(t *testing.T) {
	store := newMemStore()
	l := newTestLedger(store)
	ctx := context.Background()

	task := &domain.ScheduledTask{
		Task:   domain.Task{Tag: "movable", Action: testAction(domain.TestComplete, "")},
		Status: domain.TaskStatusCompleted,
	}
	if err := l.CreateScheduled(ctx, task); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := l.UpdateOccurrence(ctx, task.ID, time.Now().UTC().Add(time.Hour))
	if !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("expected precondition failure, got %v", err)
	}
}

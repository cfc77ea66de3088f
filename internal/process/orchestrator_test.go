package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/endpoint"
	"github.com/shaiso/conveyor/internal/repo"
)

// memStore — processStore, taskStore, executorStore и storage в памяти.
// LockByID отдаёт копию, изменения становятся видны после Update.
type memStore struct {
	processes map[uuid.UUID]*domain.Process
	links     []domain.ProcessTask
	tasks     []domain.ScheduledTask
	queues    map[string]*domain.Queue
	endpoints map[uuid.UUID]*domain.ExecutorEndpoint
}

func newMemStore() *memStore {
	return &memStore{
		processes: make(map[uuid.UUID]*domain.Process),
		queues:    make(map[string]*domain.Queue),
		endpoints: make(map[uuid.UUID]*domain.ExecutorEndpoint),
	}
}

func (s *memStore) InTx(_ context.Context, fn func(st stores) error) error {
	return fn(stores{processes: s, tasks: s, executors: s})
}

func (s *memStore) Create(_ context.Context, process *domain.Process) error {
	c := *process
	s.processes[process.ID] = &c
	return nil
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Process, error) {
	process, ok := s.processes[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	c := *process
	return &c, nil
}

func (s *memStore) LockByID(ctx context.Context, id uuid.UUID) (*domain.Process, error) {
	return s.GetByID(ctx, id)
}

func (s *memStore) ListTimedOut(_ context.Context, now time.Time) ([]domain.Process, error) {
	var out []domain.Process
	for _, process := range s.processes {
		if process.Status == domain.ProcessExecuting && process.TimedOut(now) {
			out = append(out, *process)
		}
	}
	return out, nil
}

func (s *memStore) Update(_ context.Context, process *domain.Process) error {
	if _, ok := s.processes[process.ID]; !ok {
		return repo.ErrNotFound
	}
	c := *process
	s.processes[process.ID] = &c
	return nil
}

func (s *memStore) LinkTask(_ context.Context, link *domain.ProcessTask) error {
	s.links = append(s.links, *link)
	return nil
}

func (s *memStore) CreateScheduled(_ context.Context, task *domain.ScheduledTask) error {
	s.tasks = append(s.tasks, *task)
	return nil
}

func (s *memStore) GetQueue(_ context.Context, id string) (*domain.Queue, error) {
	queue, ok := s.queues[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return queue, nil
}

func (s *memStore) GetEndpoint(_ context.Context, id uuid.UUID) (*domain.ExecutorEndpoint, error) {
	ep, ok := s.endpoints[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return ep, nil
}

func (s *memStore) ActiveEndpointForSubject(_ context.Context, subject string) (*domain.ExecutorEndpoint, error) {
	for _, ep := range s.endpoints {
		if ep.Subject == subject {
			return ep, nil
		}
	}
	return nil, repo.ErrNotFound
}

// addQueue регистрирует активную очередь с callback-endpoint'ом
// и один endpoint executor'а на её subject.
func (s *memStore) addQueue(id, subject string) *domain.ExecutorEndpoint {
	s.queues[id] = &domain.Queue{
		ID:       id,
		Subject:  subject,
		Status:   domain.QueueActive,
		Endpoint: &domain.Endpoint{ID: uuid.New(), URL: "http://queue.local/hook"},
	}
	ep := &domain.ExecutorEndpoint{
		ID:         uuid.New(),
		ExecutorID: "worker-1",
		Subject:    subject,
		Endpoint:   domain.Endpoint{ID: uuid.New(), URL: "http://executor.local/hook"},
	}
	s.endpoints[ep.ID] = ep
	return ep
}

func (s *memStore) linkedPhases(processID uuid.UUID) []domain.ProcessPhase {
	var out []domain.ProcessPhase
	for _, link := range s.links {
		if link.ProcessID == processID {
			out = append(out, link.Phase)
		}
	}
	return out
}

// fakeCaller отвечает на каждый запрос телом {"status": X} и записывает
// payload'ы. Пустой status отвечает пустым телом.
type fakeCaller struct {
	status string
	err    error

	calls []map[string]any
}

func (c *fakeCaller) Request(_ context.Context, _ *domain.Endpoint, payload map[string]any) (domain.Outcome, *endpoint.Response, error) {
	c.calls = append(c.calls, payload)
	if c.err != nil {
		return "", nil, c.err
	}
	resp := &endpoint.Response{StatusCode: 200}
	if c.status != "" {
		resp.Body = []byte(fmt.Sprintf(`{"status":%q}`, c.status))
	}
	return domain.OutcomeCompleted, resp, nil
}

func newTestOrchestrator(store *memStore, caller Caller) *Orchestrator {
	if caller == nil {
		caller = &fakeCaller{}
	}
	return &Orchestrator{
		storage:   store,
		processes: store,
		executors: store,
		caller:    caller,
		logger:    slog.Default(),
	}
}

func TestConstructPayload(t *testing.T) {
	o := newTestOrchestrator(newMemStore(), nil)
	process := &domain.Process{
		ID:    uuid.New(),
		Tag:   "transcode",
		State: map[string]any{"checkpoint": "segment-4"},
	}

	payload := o.constructPayload(process, "video", "executing", false)
	if payload["id"] != process.ID.String() {
		t.Errorf("payload id = %v, want %s", payload["id"], process.ID)
	}
	if payload["tag"] != "transcode" || payload["subject"] != "video" || payload["status"] != "executing" {
		t.Errorf("unexpected payload: %v", payload)
	}
	if _, ok := payload["state"]; ok {
		t.Error("state leaked into queue payload")
	}

	payload = o.constructPayload(process, "video", "executing", true)
	state, ok := payload["state"].(map[string]any)
	if !ok || state["checkpoint"] != "segment-4" {
		t.Errorf("executor payload is missing state: %v", payload)
	}
}

func TestConstructPayload_NoStateOmitted(t *testing.T) {
	o := newTestOrchestrator(newMemStore(), nil)
	process := &domain.Process{ID: uuid.New(), Tag: "transcode"}

	payload := o.constructPayload(process, "video", "timedout", true)
	if _, ok := payload["state"]; ok {
		t.Errorf("empty state must be omitted: %v", payload)
	}
}

func TestApplyUpdate_RejectsEmptyUpdate(t *testing.T) {
	o := newTestOrchestrator(newMemStore(), nil)

	err := o.ApplyUpdate(context.Background(), uuid.New(), Update{})
	if !errors.Is(err, ErrInvalidUpdate) {
		t.Errorf("ApplyUpdate(empty) = %v, want ErrInvalidUpdate", err)
	}
}

func TestApplyUpdate_RejectsUnknownStatus(t *testing.T) {
	o := newTestOrchestrator(newMemStore(), nil)

	err := o.ApplyUpdate(context.Background(), uuid.New(), Update{Status: domain.ProcessPending})
	if !errors.Is(err, ErrInvalidUpdate) {
		t.Errorf("ApplyUpdate(pending) = %v, want ErrInvalidUpdate", err)
	}
}

func TestRunPhase_UnknownPhase(t *testing.T) {
	o := newTestOrchestrator(newMemStore(), nil)

	_, _, err := o.RunPhase(context.Background(), uuid.New(), domain.ProcessPhase("report-weather"))
	if !errors.Is(err, ErrUnknownPhase) {
		t.Errorf("RunPhase(report-weather) = %v, want ErrUnknownPhase", err)
	}
}

func TestCreate_SchedulesInitiation(t *testing.T) {
	store := newMemStore()
	o := newTestOrchestrator(store, nil)
	ctx := context.Background()

	pinned := store.addQueue("q-video", "video")

	process := &domain.Process{QueueID: "q-video", Tag: "transcode"}
	if err := o.Create(ctx, process); err != nil {
		t.Fatalf("create: %v", err)
	}

	got := store.processes[process.ID]
	if got.Status != domain.ProcessPending {
		t.Errorf("status %s, want pending", got.Status)
	}
	if got.ExecutorEndpointID == nil || *got.ExecutorEndpointID != pinned.ID {
		t.Error("executor endpoint not pinned")
	}

	if len(store.tasks) != 1 {
		t.Fatalf("expected 1 phase task, got %d", len(store.tasks))
	}
	task := store.tasks[0]
	if task.Action.Process == nil || task.Action.Process.Phase != domain.PhaseInitiate {
		t.Errorf("unexpected phase task action: %+v", task.Action)
	}
	if phases := store.linkedPhases(process.ID); len(phases) != 1 || phases[0] != domain.PhaseInitiate {
		t.Errorf("unexpected task links: %v", phases)
	}
}

func TestCreate_RejectsBadQueue(t *testing.T) {
	store := newMemStore()
	store.addQueue("q-active", "video")
	store.queues["q-inactive"] = &domain.Queue{
		ID: "q-inactive", Subject: "video", Status: domain.QueueInactive,
	}
	store.queues["q-orphan"] = &domain.Queue{
		ID: "q-orphan", Subject: "audio", Status: domain.QueueActive,
	}
	o := newTestOrchestrator(store, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		queueID string
		want    error
	}{
		{"missing queue", "q-nowhere", ErrInvalidQueue},
		{"inactive queue", "q-inactive", ErrInvalidQueue},
		{"no executor for subject", "q-orphan", ErrNoExecutorAvailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := o.Create(ctx, &domain.Process{QueueID: tt.queueID, Tag: "doomed"})
			if !errors.Is(err, tt.want) {
				t.Errorf("Create = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLifecycle_CompletedThroughQueueReport(t *testing.T) {
	store := newMemStore()
	caller := &fakeCaller{status: string(domain.ProcessExecuting)}
	o := newTestOrchestrator(store, caller)
	ctx := context.Background()

	store.addQueue("q-video", "video")
	process := &domain.Process{QueueID: "q-video", Tag: "transcode"}
	if err := o.Create(ctx, process); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Инициация: executor отвечает executing.
	outcome, _, err := o.RunPhase(ctx, process.ID, domain.PhaseInitiate)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if outcome != domain.OutcomeCompleted {
		t.Fatalf("initiate outcome %s, want completed", outcome)
	}
	if got := store.processes[process.ID]; got.Status != domain.ProcessExecuting {
		t.Fatalf("status %s, want executing", got.Status)
	}

	// Executor сообщает завершение: процесс задерживается в completing
	// до доставки отчёта очереди.
	output := map[string]any{"frames": 1200}
	if err := o.ApplyUpdate(ctx, process.ID, Update{Status: domain.ProcessCompleted, Output: output}); err != nil {
		t.Fatalf("apply completed: %v", err)
	}
	if got := store.processes[process.ID]; got.Status != domain.ProcessCompleting {
		t.Fatalf("status %s, want completing", got.Status)
	}

	// Отчёт очереди доставлен: процесс финализируется.
	outcome, _, err = o.RunPhase(ctx, process.ID, domain.PhaseReportCompletion)
	if err != nil {
		t.Fatalf("report completion: %v", err)
	}
	if outcome != domain.OutcomeCompleted {
		t.Fatalf("report outcome %s, want completed", outcome)
	}
	got := store.processes[process.ID]
	if got.Status != domain.ProcessCompleted {
		t.Fatalf("status %s, want completed", got.Status)
	}
	if got.Output["frames"] != 1200 {
		t.Errorf("output lost: %v", got.Output)
	}

	last := caller.calls[len(caller.calls)-1]
	if last["status"] != string(domain.ProcessCompleted) {
		t.Errorf("queue was notified with status %v, want completed", last["status"])
	}
}

func TestInitiate_SkippedWhenNotPending(t *testing.T) {
	store := newMemStore()
	caller := &fakeCaller{}
	o := newTestOrchestrator(store, caller)
	ctx := context.Background()

	process := &domain.Process{
		ID:      uuid.New(),
		QueueID: "q-video",
		Tag:     "transcode",
		Status:  domain.ProcessExecuting,
	}
	store.processes[process.ID] = process

	// Повторный запуск фазовой задачи не должен дёргать executor'а.
	outcome, result, err := o.RunPhase(ctx, process.ID, domain.PhaseInitiate)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if outcome != domain.OutcomeCompleted {
		t.Errorf("outcome %s, want completed", outcome)
	}
	if !strings.Contains(result, "skipped") {
		t.Errorf("result %q does not report the skip", result)
	}
	if len(caller.calls) != 0 {
		t.Errorf("executor was called %d times", len(caller.calls))
	}
	if got := store.processes[process.ID]; got.Status != domain.ProcessExecuting {
		t.Errorf("status changed to %s", got.Status)
	}
}

func TestApplyUpdate_NoDuplicateCompletion(t *testing.T) {
	store := newMemStore()
	o := newTestOrchestrator(store, nil)
	ctx := context.Background()

	process := &domain.Process{
		ID:      uuid.New(),
		QueueID: "q-video",
		Tag:     "transcode",
		Status:  domain.ProcessCompleting,
	}
	store.processes[process.ID] = process

	err := o.ApplyUpdate(ctx, process.ID, Update{Status: domain.ProcessCompleted})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("ApplyUpdate = %v, want ErrInvalidTransition", err)
	}
	if len(store.links) != 0 {
		t.Errorf("duplicate completion scheduled %d report tasks", len(store.links))
	}
}

func TestAbort_OnlyFromActive(t *testing.T) {
	tests := []struct {
		status  domain.ProcessStatus
		allowed bool
	}{
		{domain.ProcessPending, true},
		{domain.ProcessExecuting, true},
		{domain.ProcessCompleting, false},
		{domain.ProcessAborting, false},
		{domain.ProcessCompleted, false},
		{domain.ProcessFailed, false},
		{domain.ProcessAborted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			store := newMemStore()
			o := newTestOrchestrator(store, nil)

			process := &domain.Process{
				ID:      uuid.New(),
				QueueID: "q-video",
				Tag:     "transcode",
				Status:  tt.status,
			}
			store.processes[process.ID] = process

			err := o.Abort(context.Background(), process.ID)
			if tt.allowed {
				if err != nil {
					t.Fatalf("abort from %s: %v", tt.status, err)
				}
				got := store.processes[process.ID]
				if got.Status != domain.ProcessAborting {
					t.Errorf("status %s, want aborting", got.Status)
				}
				if phases := store.linkedPhases(process.ID); len(phases) != 1 || phases[0] != domain.PhaseReportAbortion {
					t.Errorf("unexpected task links: %v", phases)
				}
			} else {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("abort from %s = %v, want ErrInvalidTransition", tt.status, err)
				}
			}
		})
	}
}

func TestReportFinal_ReportsActualWhenTerminal(t *testing.T) {
	store := newMemStore()
	caller := &fakeCaller{}
	o := newTestOrchestrator(store, caller)
	ctx := context.Background()

	store.addQueue("q-video", "video")
	process := &domain.Process{
		ID:      uuid.New(),
		QueueID: "q-video",
		Tag:     "transcode",
		Status:  domain.ProcessAborted,
	}
	store.processes[process.ID] = process

	// Aborted финален сразу; очередь узнаёт фактический статус,
	// а не цель фазы report-failure.
	outcome, _, err := o.RunPhase(ctx, process.ID, domain.PhaseReportFailure)
	if err != nil {
		t.Fatalf("report failure: %v", err)
	}
	if outcome != domain.OutcomeCompleted {
		t.Fatalf("outcome %s, want completed", outcome)
	}
	if len(caller.calls) != 1 {
		t.Fatalf("queue was called %d times, want 1", len(caller.calls))
	}
	if caller.calls[0]["status"] != string(domain.ProcessAborted) {
		t.Errorf("reported status %v, want aborted", caller.calls[0]["status"])
	}
	if got := store.processes[process.ID]; got.Status != domain.ProcessAborted {
		t.Errorf("status changed to %s", got.Status)
	}
}

func TestAbandon_SkipsNonExecuting(t *testing.T) {
	store := newMemStore()
	caller := &fakeCaller{}
	o := newTestOrchestrator(store, caller)

	process := &domain.Process{
		ID:      uuid.New(),
		QueueID: "q-video",
		Tag:     "transcode",
		Status:  domain.ProcessCompleted,
	}
	store.processes[process.ID] = process

	if err := o.Abandon(context.Background(), process.ID); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if len(caller.calls) != 0 {
		t.Errorf("liveness check ran %d calls on a finished process", len(caller.calls))
	}
}

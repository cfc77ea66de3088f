package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/repo"
)

// pageParams читает limit/offset из query (limit по умолчанию defaultLimit).
func pageParams(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	if s := r.URL.Query().Get("offset"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// ListTasks возвращает список scheduled задач с фильтрацией.
// GET /api/v1/tasks?status=...&parent_id=...&limit=...&offset=...
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	filter := repo.TaskFilter{}
	filter.Limit, filter.Offset = pageParams(r, 50)

	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = domain.TaskStatus(status)
	}
	if parentStr := r.URL.Query().Get("parent_id"); parentStr != "" {
		parentID, err := uuid.Parse(parentStr)
		if err != nil {
			BadRequest(w, "invalid parent_id")
			return
		}
		filter.ParentID = &parentID
	}

	tasks, err := h.taskRepo.ListScheduled(r.Context(), filter)
	if HandleError(w, h.logger, err, "") {
		return
	}
	List(w, tasks, len(tasks))
}

// CreateTask создаёт одноразовую задачу.
// POST /api/v1/tasks
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduledTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		BadRequest(w, err.Error())
		return
	}

	task := &domain.ScheduledTask{
		Task:       req.toDomain(),
		Parameters: req.Parameters,
	}
	if req.Occurrence != nil {
		task.Occurrence = *req.Occurrence
	}

	if err := h.ledger.CreateScheduled(r.Context(), task); HandleError(w, h.logger, err, "") {
		return
	}
	h.wake(r.Context())
	Created(w, task)
}

// GetTask возвращает задачу по ID.
// GET /api/v1/tasks/{id}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid task id")
		return
	}

	task, err := h.taskRepo.GetScheduled(r.Context(), id)
	if HandleError(w, h.logger, err, "task not found") {
		return
	}
	Success(w, task)
}

// UpdateTaskOccurrence переносит pending задачу на другое время.
// PUT /api/v1/tasks/{id}/occurrence
func (h *Handler) UpdateTaskOccurrence(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid task id")
		return
	}

	var req UpdateOccurrenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Occurrence.IsZero() {
		BadRequest(w, "occurrence is required")
		return
	}

	if err := h.ledger.UpdateOccurrence(r.Context(), id, req.Occurrence); HandleError(w, h.logger, err, "task not found") {
		return
	}
	h.wake(r.Context())
	NoContent(w)
}

// AbortTask прерывает незавершённую задачу.
// POST /api/v1/tasks/{id}/abort
func (h *Handler) AbortTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid task id")
		return
	}

	if err := h.ledger.Abort(r.Context(), id); HandleError(w, h.logger, err, "task not found") {
		return
	}
	h.wake(r.Context())
	NoContent(w)
}

// ListTaskExecutions возвращает журнал попыток задачи.
// GET /api/v1/tasks/{id}/executions
func (h *Handler) ListTaskExecutions(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid task id")
		return
	}

	executions, err := h.taskRepo.ListExecutions(r.Context(), id)
	if HandleError(w, h.logger, err, "") {
		return
	}
	List(w, executions, len(executions))
}

// ListRecurringTasks возвращает список recurring задач.
// GET /api/v1/recurring-tasks
func (h *Handler) ListRecurringTasks(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r, 50)

	tasks, err := h.taskRepo.ListRecurring(r.Context(), limit, offset)
	if HandleError(w, h.logger, err, "") {
		return
	}
	List(w, tasks, len(tasks))
}

// CreateRecurringTask создаёт recurring задачу.
// POST /api/v1/recurring-tasks
func (h *Handler) CreateRecurringTask(w http.ResponseWriter, r *http.Request) {
	var req CreateRecurringTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		BadRequest(w, err.Error())
		return
	}
	if req.ScheduleID == uuid.Nil {
		BadRequest(w, "schedule_id is required")
		return
	}

	task := &domain.RecurringTask{
		Task:       req.toDomain(),
		ScheduleID: req.ScheduleID,
	}
	if req.Active != nil && !*req.Active {
		task.Status = domain.RecurringInactive
	}

	if err := h.ledger.CreateRecurring(r.Context(), task); HandleError(w, h.logger, err, "schedule not found") {
		return
	}
	h.wake(r.Context())
	Created(w, task)
}

// GetRecurringTask возвращает recurring задачу по ID.
// GET /api/v1/recurring-tasks/{id}
func (h *Handler) GetRecurringTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid task id")
		return
	}

	task, err := h.taskRepo.GetRecurring(r.Context(), id)
	if HandleError(w, h.logger, err, "recurring task not found") {
		return
	}
	Success(w, task)
}

// SetRecurringTaskStatus активирует или деактивирует recurring задачу.
// PUT /api/v1/recurring-tasks/{id}/status
func (h *Handler) SetRecurringTaskStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid task id")
		return
	}

	var req SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	status := domain.RecurringStatus(req.Status)
	if status != domain.RecurringActive && status != domain.RecurringInactive {
		BadRequest(w, "status must be active or inactive")
		return
	}

	if err := h.ledger.SetRecurringStatus(r.Context(), id, status); HandleError(w, h.logger, err, "recurring task not found") {
		return
	}
	h.wake(r.Context())
	NoContent(w)
}

// RescheduleRecurringTask порождает следующего ребёнка вручную.
// POST /api/v1/recurring-tasks/{id}/reschedule
func (h *Handler) RescheduleRecurringTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid task id")
		return
	}

	if err := h.ledger.Reschedule(r.Context(), id); HandleError(w, h.logger, err, "recurring task not found") {
		return
	}
	h.wake(r.Context())
	NoContent(w)
}

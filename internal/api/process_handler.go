package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/process"
	"github.com/shaiso/conveyor/internal/repo"
)

// ListProcesses возвращает список процессов.
// GET /api/v1/processes?queue_id=...&status=...
func (h *Handler) ListProcesses(w http.ResponseWriter, r *http.Request) {
	filter := repo.ProcessFilter{
		QueueID: r.URL.Query().Get("queue_id"),
		Status:  domain.ProcessStatus(r.URL.Query().Get("status")),
	}
	filter.Limit, filter.Offset = pageParams(r, 50)

	processes, err := h.processRepo.List(r.Context(), filter)
	if HandleError(w, h.logger, err, "") {
		return
	}
	List(w, processes, len(processes))
}

// CreateProcess запускает новый процесс.
// POST /api/v1/processes
func (h *Handler) CreateProcess(w http.ResponseWriter, r *http.Request) {
	var req CreateProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.QueueID == "" || req.Tag == "" {
		BadRequest(w, "queue_id and tag are required")
		return
	}

	proc := &domain.Process{
		QueueID:    req.QueueID,
		Tag:        req.Tag,
		TimeoutMin: req.TimeoutMin,
		Input:      req.Input,
	}

	if err := h.orchestrator.Create(r.Context(), proc); HandleError(w, h.logger, err, "") {
		return
	}
	h.wake(r.Context())
	Created(w, proc)
}

// GetProcess возвращает процесс по ID.
// GET /api/v1/processes/{id}
func (h *Handler) GetProcess(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid process id")
		return
	}

	proc, err := h.processRepo.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "process not found") {
		return
	}
	Success(w, proc)
}

// UpdateProcess — точка входа callback'ов executor'а и запросов
// клиента: завершение, ошибка, прогресс, подтверждение abort'а.
// POST /api/v1/processes/{id}/update
func (h *Handler) UpdateProcess(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid process id")
		return
	}

	var req ProcessUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	upd := process.Update{
		Status:   domain.ProcessStatus(req.Status),
		Output:   req.Output,
		Progress: req.Progress,
		State:    req.State,
	}
	if err := h.orchestrator.ApplyUpdate(r.Context(), id, upd); HandleError(w, h.logger, err, "process not found") {
		return
	}
	h.wake(r.Context())
	NoContent(w)
}

// AbortProcess запрашивает прерывание процесса.
// POST /api/v1/processes/{id}/abort
func (h *Handler) AbortProcess(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid process id")
		return
	}

	if err := h.orchestrator.Abort(r.Context(), id); HandleError(w, h.logger, err, "process not found") {
		return
	}
	h.wake(r.Context())
	NoContent(w)
}

// ListProcessTasks возвращает фазовые задачи процесса.
// GET /api/v1/processes/{id}/tasks
func (h *Handler) ListProcessTasks(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid process id")
		return
	}

	links, err := h.processRepo.ListLinks(r.Context(), id)
	if HandleError(w, h.logger, err, "") {
		return
	}
	List(w, links, len(links))
}

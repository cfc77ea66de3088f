package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shaiso/conveyor/internal/domain"
)

// ListExecutors возвращает зарегистрированных executor'ов.
// GET /api/v1/executors
func (h *Handler) ListExecutors(w http.ResponseWriter, r *http.Request) {
	executors, err := h.executorRepo.ListExecutors(r.Context())
	if HandleError(w, h.logger, err, "") {
		return
	}
	List(w, executors, len(executors))
}

// CreateExecutor регистрирует executor'а с его endpoint'ами.
// POST /api/v1/executors
func (h *Handler) CreateExecutor(w http.ResponseWriter, r *http.Request) {
	var req CreateExecutorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.ID == "" {
		BadRequest(w, "id is required")
		return
	}

	executor := &domain.Executor{
		ID:     req.ID,
		Name:   req.Name,
		Status: domain.ExecutorActive,
	}
	for _, e := range req.Endpoints {
		if e.Subject == "" || e.Endpoint.URL == "" {
			BadRequest(w, "endpoint requires subject and url")
			return
		}
		endpoint := e.Endpoint
		if endpoint.ID == uuid.Nil {
			endpoint.ID = uuid.New()
		}
		executor.Endpoints = append(executor.Endpoints, domain.ExecutorEndpoint{
			ID:         endpoint.ID,
			ExecutorID: executor.ID,
			Subject:    e.Subject,
			Endpoint:   endpoint,
		})
	}

	if err := h.executorRepo.CreateExecutor(r.Context(), executor); HandleError(w, h.logger, err, "") {
		return
	}
	Created(w, executor)
}

// GetExecutor возвращает executor'а по ID.
// GET /api/v1/executors/{id}
func (h *Handler) GetExecutor(w http.ResponseWriter, r *http.Request) {
	executor, err := h.executorRepo.GetExecutor(r.Context(), r.PathValue("id"))
	if HandleError(w, h.logger, err, "executor not found") {
		return
	}
	Success(w, executor)
}

// SetExecutorStatus меняет статус executor'а.
// PUT /api/v1/executors/{id}/status
func (h *Handler) SetExecutorStatus(w http.ResponseWriter, r *http.Request) {
	var req SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	status := domain.ExecutorStatus(req.Status)
	switch status {
	case domain.ExecutorActive, domain.ExecutorInactive, domain.ExecutorDisabled:
	default:
		BadRequest(w, "status must be active, inactive or disabled")
		return
	}

	if err := h.executorRepo.SetExecutorStatus(r.Context(), r.PathValue("id"), status); HandleError(w, h.logger, err, "executor not found") {
		return
	}
	NoContent(w)
}

// AddExecutorEndpoint добавляет executor'у endpoint для subject.
// POST /api/v1/executors/{id}/endpoints
func (h *Handler) AddExecutorEndpoint(w http.ResponseWriter, r *http.Request) {
	executorID := r.PathValue("id")

	var req ExecutorEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Subject == "" || req.Endpoint.URL == "" {
		BadRequest(w, "endpoint requires subject and url")
		return
	}

	// Executor должен существовать.
	if _, err := h.executorRepo.GetExecutor(r.Context(), executorID); HandleError(w, h.logger, err, "executor not found") {
		return
	}

	endpoint := req.Endpoint
	if endpoint.ID == uuid.Nil {
		endpoint.ID = uuid.New()
	}
	executorEndpoint := &domain.ExecutorEndpoint{
		ID:         endpoint.ID,
		ExecutorID: executorID,
		Subject:    req.Subject,
		Endpoint:   endpoint,
	}

	if err := h.executorRepo.AddEndpoint(r.Context(), executorEndpoint); HandleError(w, h.logger, err, "") {
		return
	}
	Created(w, executorEndpoint)
}

// ListQueues возвращает очереди процессов.
// GET /api/v1/queues
func (h *Handler) ListQueues(w http.ResponseWriter, r *http.Request) {
	queues, err := h.executorRepo.ListQueues(r.Context())
	if HandleError(w, h.logger, err, "") {
		return
	}
	List(w, queues, len(queues))
}

// CreateQueue регистрирует очередь процессов.
// POST /api/v1/queues
func (h *Handler) CreateQueue(w http.ResponseWriter, r *http.Request) {
	var req CreateQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.ID == "" || req.Subject == "" {
		BadRequest(w, "id and subject are required")
		return
	}
	if req.Endpoint != nil && req.Endpoint.ID == uuid.Nil {
		req.Endpoint.ID = uuid.New()
	}

	queue := &domain.Queue{
		ID:       req.ID,
		Subject:  req.Subject,
		Name:     req.Name,
		Status:   domain.QueueActive,
		Endpoint: req.Endpoint,
	}

	if err := h.executorRepo.CreateQueue(r.Context(), queue); HandleError(w, h.logger, err, "") {
		return
	}
	Created(w, queue)
}

// GetQueue возвращает очередь по ID.
// GET /api/v1/queues/{id}
func (h *Handler) GetQueue(w http.ResponseWriter, r *http.Request) {
	queue, err := h.executorRepo.GetQueue(r.Context(), r.PathValue("id"))
	if HandleError(w, h.logger, err, "queue not found") {
		return
	}
	Success(w, queue)
}

// SetQueueStatus меняет статус очереди.
// PUT /api/v1/queues/{id}/status
func (h *Handler) SetQueueStatus(w http.ResponseWriter, r *http.Request) {
	var req SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	status := domain.QueueStatus(req.Status)
	if status != domain.QueueActive && status != domain.QueueInactive {
		BadRequest(w, "status must be active or inactive")
		return
	}

	if err := h.executorRepo.SetQueueStatus(r.Context(), r.PathValue("id"), status); HandleError(w, h.logger, err, "queue not found") {
		return
	}
	NoContent(w)
}

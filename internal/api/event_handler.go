package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/repo"
)

// ListEvents возвращает список событий.
// GET /api/v1/events?topic=...&status=...
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	filter := repo.EventFilter{
		Topic:  r.URL.Query().Get("topic"),
		Status: domain.EventStatus(r.URL.Query().Get("status")),
	}
	filter.Limit, filter.Offset = pageParams(r, 50)

	events, err := h.eventRepo.List(r.Context(), filter)
	if HandleError(w, h.logger, err, "") {
		return
	}
	List(w, events, len(events))
}

// PublishEvent принимает событие для активации подписок.
// POST /api/v1/events
func (h *Handler) PublishEvent(w http.ResponseWriter, r *http.Request) {
	var req PublishEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Topic == "" {
		BadRequest(w, "topic is required")
		return
	}

	event, err := h.broker.Publish(r.Context(), req.Topic, req.Aspects)
	if HandleError(w, h.logger, err, "") {
		return
	}
	h.wake(r.Context())
	Created(w, event)
}

// GetEvent возвращает событие по ID.
// GET /api/v1/events/{id}
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid event id")
		return
	}

	event, err := h.eventRepo.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "event not found") {
		return
	}
	Success(w, event)
}

// ListSubscriptions возвращает список подписок.
// GET /api/v1/subscriptions?topic=...
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r, 50)

	subscriptions, err := h.subRepo.List(r.Context(), r.URL.Query().Get("topic"), limit, offset)
	if HandleError(w, h.logger, err, "") {
		return
	}
	List(w, subscriptions, len(subscriptions))
}

// CreateSubscription создаёт подписку на события.
// POST /api/v1/subscriptions
func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		BadRequest(w, err.Error())
		return
	}
	if req.Topic == "" {
		BadRequest(w, "topic is required")
		return
	}

	subscription := &domain.SubscribedTask{
		Task:            req.toDomain(),
		Topic:           req.Topic,
		Aspects:         req.Aspects,
		ActivationLimit: req.ActivationLimit,
		TimeoutSec:      req.TimeoutSec,
	}

	if err := h.ledger.CreateSubscribed(r.Context(), subscription); HandleError(w, h.logger, err, "") {
		return
	}
	Created(w, subscription)
}

// GetSubscription возвращает подписку по ID.
// GET /api/v1/subscriptions/{id}
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid subscription id")
		return
	}

	subscription, err := h.subRepo.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "subscription not found") {
		return
	}
	Success(w, subscription)
}

// DeleteSubscription удаляет подписку.
// DELETE /api/v1/subscriptions/{id}
func (h *Handler) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid subscription id")
		return
	}

	if err := h.subRepo.Delete(r.Context(), id); HandleError(w, h.logger, err, "subscription not found") {
		return
	}
	NoContent(w)
}

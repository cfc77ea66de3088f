package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/shaiso/conveyor/internal/domain"
)

var (
	errScheduleType   = errors.New("unknown schedule type")
	errFixedPayload   = errors.New("fixed schedule requires a positive interval_sec")
	errWeeklyPayload  = errors.New("weekly schedule requires a positive interval")
	errMonthlyPayload = errors.New("monthly schedule requires a positive interval")
	errLogicalPayload = errors.New("logical schedule requires field payload")
)

// ListSchedules возвращает список расписаний.
// GET /api/v1/schedules?limit=...&offset=...
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r, 50)

	schedules, err := h.scheduleRepo.List(r.Context(), limit, offset)
	if HandleError(w, h.logger, err, "") {
		return
	}
	List(w, schedules, len(schedules))
}

// CreateSchedule создаёт расписание.
// POST /api/v1/schedules
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var schedule domain.Schedule
	if err := json.NewDecoder(r.Body).Decode(&schedule); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if schedule.Name == "" {
		BadRequest(w, "name is required")
		return
	}
	if err := validateSchedulePayload(&schedule); err != nil {
		BadRequest(w, err.Error())
		return
	}
	if schedule.ID == uuid.Nil {
		schedule.ID = uuid.New()
	}

	if err := h.scheduleRepo.Create(r.Context(), &schedule); HandleError(w, h.logger, err, "") {
		return
	}
	Created(w, schedule)
}

// GetSchedule возвращает расписание по ID.
// GET /api/v1/schedules/{id}
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid schedule id")
		return
	}

	schedule, err := h.scheduleRepo.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "schedule not found") {
		return
	}
	Success(w, schedule)
}

// UpdateSchedule заменяет расписание.
// PUT /api/v1/schedules/{id}
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid schedule id")
		return
	}

	var schedule domain.Schedule
	if err := json.NewDecoder(r.Body).Decode(&schedule); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	schedule.ID = id
	if err := validateSchedulePayload(&schedule); err != nil {
		BadRequest(w, err.Error())
		return
	}

	if err := h.scheduleRepo.Update(r.Context(), &schedule); HandleError(w, h.logger, err, "schedule not found") {
		return
	}
	h.wake(r.Context())
	Success(w, schedule)
}

// DeleteSchedule удаляет расписание.
// DELETE /api/v1/schedules/{id}
func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid schedule id")
		return
	}

	if err := h.scheduleRepo.Delete(r.Context(), id); HandleError(w, h.logger, err, "schedule not found") {
		return
	}
	NoContent(w)
}

// validateSchedulePayload проверяет согласованность tagged union.
func validateSchedulePayload(schedule *domain.Schedule) error {
	switch schedule.Type {
	case domain.ScheduleFixed:
		if schedule.Fixed == nil || schedule.Fixed.IntervalSec <= 0 {
			return errFixedPayload
		}
	case domain.ScheduleWeekly:
		if schedule.Weekly == nil || schedule.Weekly.Interval <= 0 {
			return errWeeklyPayload
		}
	case domain.ScheduleMonthly:
		if schedule.Monthly == nil || schedule.Monthly.Interval <= 0 {
			return errMonthlyPayload
		}
	case domain.ScheduleLogical:
		if schedule.Logical == nil {
			return errLogicalPayload
		}
	default:
		return errScheduleType
	}
	return nil
}

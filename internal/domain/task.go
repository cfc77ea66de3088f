package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Retry defaults.
const (
	DefaultRetryLimit      = 2
	DefaultRetryTimeoutSec = 300
)

// Task — общая часть всех видов задач.
//
// Конкретный вид (ScheduledTask, RecurringTask, SubscribedTask) встраивает
// Task и добавляет собственное состояние.
type Task struct {
	// ID — уникальный идентификатор task.
	ID uuid.UUID `json:"id"`

	// Tag — человекочитаемая метка для логов и диагностики.
	Tag string `json:"tag"`

	// Description — произвольное описание.
	Description string `json:"description,omitempty"`

	// RetryBackoff — множитель экспоненциальной задержки.
	// Nil — постоянная задержка RetryTimeoutSec.
	RetryBackoff *float64 `json:"retry_backoff,omitempty"`

	// RetryLimit — количество повторных попыток после первой.
	RetryLimit int `json:"retry_limit"`

	// RetryTimeoutSec — базовая задержка между попытками в секундах.
	RetryTimeoutSec int `json:"retry_timeout_sec"`

	// RerunOnRecovery — повторять ли action после аварийного рестарта,
	// заставшего task в статусе executing. По умолчанию попытка
	// считается потраченной без повторного запуска.
	RerunOnRecovery bool `json:"rerun_on_recovery,omitempty"`

	// Action — основной payload.
	Action Action `json:"action"`

	// FailedAction — запускается новой задачей при исчерпании retry.
	FailedAction *Action `json:"failed_action,omitempty"`

	// CompletedAction — запускается новой задачей при успехе.
	CompletedAction *Action `json:"completed_action,omitempty"`

	// Created — время создания.
	Created time.Time `json:"created"`
}

// RetryDelay возвращает задержку перед следующей попыткой.
// attempt — номер только что завершившейся попытки (с 1).
func (t *Task) RetryDelay(attempt int) time.Duration {
	timeout := float64(t.RetryTimeoutSec)
	if t.RetryBackoff != nil {
		timeout *= math.Pow(*t.RetryBackoff, float64(attempt))
	}
	return time.Duration(timeout * float64(time.Second))
}

// ScheduledTask — задача с конкретным временем выполнения.
type ScheduledTask struct {
	Task

	// Status — текущий статус.
	Status TaskStatus `json:"status"`

	// Occurrence — время, когда task становится due.
	Occurrence time.Time `json:"occurrence"`

	// ParentID — владеющая RecurringTask, если task порождён расписанием.
	ParentID *uuid.UUID `json:"parent_id,omitempty"`

	// Parameters — непрозрачный payload, подставляемый в action
	// (например описание события для подписки).
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Spawn порождает новый ScheduledTask из шаблона task.
// Используется при rescheduling recurring task и активации подписки.
func (t *Task) Spawn(occurrence time.Time) *ScheduledTask {
	return &ScheduledTask{
		Task: Task{
			ID:              uuid.New(),
			Tag:             t.Tag,
			Description:     t.Description,
			RetryBackoff:    t.RetryBackoff,
			RetryLimit:      t.RetryLimit,
			RetryTimeoutSec: t.RetryTimeoutSec,
			RerunOnRecovery: t.RerunOnRecovery,
			Action:          t.Action,
			FailedAction:    t.FailedAction,
			CompletedAction: t.CompletedAction,
			Created:         time.Now().UTC(),
		},
		Status:     TaskStatusPending,
		Occurrence: occurrence,
	}
}

// RecurringTask — шаблон, порождающий ScheduledTask по расписанию.
//
// Инвариант: у активной recurring task в любой момент не более одного
// дочернего ScheduledTask в статусе pending или retrying.
type RecurringTask struct {
	Task

	Status RecurringStatus `json:"status"`

	// ScheduleID — привязанное расписание.
	ScheduleID uuid.UUID `json:"schedule_id"`
}

// SubscribedTask — шаблон, активируемый подходящими событиями.
type SubscribedTask struct {
	Task

	// Topic — тема событий, на которую оформлена подписка.
	Topic string `json:"topic"`

	// Aspects — фильтр: событие подходит, если его aspects являются
	// надмножеством фильтра (пустой фильтр подходит всегда).
	Aspects map[string]string `json:"aspects,omitempty"`

	// ActivationLimit — максимум активаций; nil — без ограничения.
	ActivationLimit *int `json:"activation_limit,omitempty"`

	// Activations — счётчик выполненных активаций.
	Activations int `json:"activations"`

	// Activated — время последней активации.
	Activated *time.Time `json:"activated,omitempty"`

	// TimeoutSec — срок жизни неактивированной подписки в секундах.
	TimeoutSec *int `json:"timeout_sec,omitempty"`
}

// Exhausted возвращает true, если лимит активаций исчерпан.
func (t *SubscribedTask) Exhausted() bool {
	return t.ActivationLimit != nil && t.Activations >= *t.ActivationLimit
}

// TaskExecution — append-only запись об одной попытке выполнения.
type TaskExecution struct {
	ID uuid.UUID `json:"id"`

	TaskID uuid.UUID `json:"task_id"`

	// Attempt — номер попытки, начиная с 1, уникален в пределах task.
	Attempt int `json:"attempt"`

	Status ExecutionStatus `json:"status"`

	Started   *time.Time `json:"started,omitempty"`
	Completed *time.Time `json:"completed,omitempty"`

	// Result — свободный текст: дамп HTTP-ответа, текст ошибки и т.п.
	Result string `json:"result,omitempty"`
}

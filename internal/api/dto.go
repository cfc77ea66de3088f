package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/conveyor/internal/domain"
)

// TaskSpec — общая часть запросов на создание задач.
type TaskSpec struct {
	Tag             string         `json:"tag"`
	Description     string         `json:"description,omitempty"`
	RetryBackoff    *float64       `json:"retry_backoff,omitempty"`
	RetryLimit      *int           `json:"retry_limit,omitempty"`
	RetryTimeoutSec *int           `json:"retry_timeout_sec,omitempty"`
	RerunOnRecovery bool           `json:"rerun_on_recovery,omitempty"`
	Action          *domain.Action `json:"action"`
	FailedAction    *domain.Action `json:"failed_action,omitempty"`
	CompletedAction *domain.Action `json:"completed_action,omitempty"`
}

// Validate проверяет обязательные поля спецификации задачи.
func (s *TaskSpec) Validate() error {
	if s.Tag == "" {
		return fmt.Errorf("tag is required")
	}
	if s.Action == nil || s.Action.Type == "" {
		return fmt.Errorf("action is required")
	}
	return nil
}

// toDomain собирает domain.Task, заполняя retry-политику по умолчанию.
func (s *TaskSpec) toDomain() domain.Task {
	retryLimit := domain.DefaultRetryLimit
	if s.RetryLimit != nil {
		retryLimit = *s.RetryLimit
	}
	retryTimeout := domain.DefaultRetryTimeoutSec
	if s.RetryTimeoutSec != nil {
		retryTimeout = *s.RetryTimeoutSec
	}

	act := *s.Action
	if act.ID == uuid.Nil {
		act.ID = uuid.New()
	}

	return domain.Task{
		Tag:             s.Tag,
		Description:     s.Description,
		RetryBackoff:    s.RetryBackoff,
		RetryLimit:      retryLimit,
		RetryTimeoutSec: retryTimeout,
		RerunOnRecovery: s.RerunOnRecovery,
		Action:          act,
		FailedAction:    s.FailedAction,
		CompletedAction: s.CompletedAction,
	}
}

// CreateScheduledTaskRequest — запрос на создание одноразовой задачи.
type CreateScheduledTaskRequest struct {
	TaskSpec
	Occurrence *time.Time     `json:"occurrence,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// CreateRecurringTaskRequest — запрос на создание recurring задачи.
type CreateRecurringTaskRequest struct {
	TaskSpec
	ScheduleID uuid.UUID `json:"schedule_id"`
	Active     *bool     `json:"active,omitempty"`
}

// CreateSubscriptionRequest — запрос на создание подписки.
type CreateSubscriptionRequest struct {
	TaskSpec
	Topic           string            `json:"topic"`
	Aspects         map[string]string `json:"aspects,omitempty"`
	ActivationLimit *int              `json:"activation_limit,omitempty"`
	TimeoutSec      *int              `json:"timeout_sec,omitempty"`
}

// UpdateOccurrenceRequest — перенос pending задачи.
type UpdateOccurrenceRequest struct {
	Occurrence time.Time `json:"occurrence"`
}

// SetStatusRequest — смена статуса ресурса.
type SetStatusRequest struct {
	Status string `json:"status"`
}

// PublishEventRequest — публикация события.
type PublishEventRequest struct {
	Topic   string            `json:"topic"`
	Aspects map[string]string `json:"aspects,omitempty"`
}

// CreateExecutorRequest — регистрация executor'а.
type CreateExecutorRequest struct {
	ID        string                    `json:"id"`
	Name      string                    `json:"name,omitempty"`
	Endpoints []ExecutorEndpointRequest `json:"endpoints,omitempty"`
}

// ExecutorEndpointRequest — endpoint executor'а для subject.
type ExecutorEndpointRequest struct {
	Subject  string          `json:"subject"`
	Endpoint domain.Endpoint `json:"endpoint"`
}

// CreateQueueRequest — регистрация очереди процессов.
type CreateQueueRequest struct {
	ID       string           `json:"id"`
	Subject  string           `json:"subject"`
	Name     string           `json:"name,omitempty"`
	Endpoint *domain.Endpoint `json:"endpoint,omitempty"`
}

// CreateProcessRequest — запуск процесса.
type CreateProcessRequest struct {
	QueueID    string         `json:"queue_id"`
	Tag        string         `json:"tag"`
	TimeoutMin *int           `json:"timeout_min,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
}

// ProcessUpdateRequest — callback executor'а или запрос клиента.
type ProcessUpdateRequest struct {
	Status   string         `json:"status,omitempty"`
	Output   map[string]any `json:"output,omitempty"`
	Progress map[string]any `json:"progress,omitempty"`
	State    map[string]any `json:"state,omitempty"`
}

package domain

import (
	"github.com/google/uuid"
)

// Endpoint — конфигурация callback-цели.
type Endpoint struct {
	// ID — уникальный идентификатор endpoint'а.
	ID uuid.UUID `json:"id"`

	// URL — адрес callback'а.
	URL string `json:"url"`

	// Method — HTTP-метод; по умолчанию POST.
	Method string `json:"method"`

	// Mimetype — Content-Type payload'а; по умолчанию application/json.
	Mimetype string `json:"mimetype"`

	// Headers — дополнительные заголовки.
	Headers map[string]string `json:"headers,omitempty"`

	// TimeoutSec — таймаут запроса в секундах (0 — значение по умолчанию).
	TimeoutSec int `json:"timeout_sec,omitempty"`

	// Info — непрозрачный блок, добавляемый в каждый payload.
	Info map[string]any `json:"info,omitempty"`
}

// Executor — внешний исполнитель процессов.
type Executor struct {
	// ID — токен-идентификатор executor'а.
	ID string `json:"id"`

	// Name — человекочитаемое имя.
	Name string `json:"name,omitempty"`

	// Status — active / inactive / disabled; процессы назначаются
	// только активным executor'ам.
	Status ExecutorStatus `json:"status"`

	// Endpoints — endpoint'ы executor'а по subject.
	Endpoints []ExecutorEndpoint `json:"endpoints,omitempty"`
}

// ExecutorEndpoint — endpoint executor'а для конкретного subject.
type ExecutorEndpoint struct {
	ID uuid.UUID `json:"id"`

	ExecutorID string `json:"executor_id"`

	// Subject — тема работ, которые endpoint принимает.
	Subject string `json:"subject"`

	Endpoint Endpoint `json:"endpoint"`
}

// Queue — очередь процессов.
//
// Queue выбирает для нового процесса endpoint активного executor'а,
// чей subject совпадает с subject очереди.
type Queue struct {
	// ID — токен-идентификатор очереди.
	ID string `json:"id"`

	// Subject — тема работ очереди.
	Subject string `json:"subject"`

	Name string `json:"name,omitempty"`

	Status QueueStatus `json:"status"`

	// Endpoint — callback очереди для отчётов о завершении/прогрессе.
	Endpoint *Endpoint `json:"endpoint,omitempty"`
}

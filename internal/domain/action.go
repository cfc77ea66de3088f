package domain

import (
	"github.com/google/uuid"
)

// ActionType — дискриминатор варианта action.
type ActionType string

const (
	// ActionHTTPRequest — исходящий HTTP-запрос.
	ActionHTTPRequest ActionType = "http-request"

	// ActionInternal — внутренняя служебная операция (purge).
	ActionInternal ActionType = "internal"

	// ActionProcess — вызов фазы жизненного цикла процесса.
	ActionProcess ActionType = "process"

	// ActionTest — детерминированная заглушка для тестов.
	ActionTest ActionType = "test"
)

// InternalPurpose — назначение internal action.
type InternalPurpose string

const (
	// PurgePurpose — удаление завершённых tasks/events за пределами retention.
	PurgePurpose InternalPurpose = "purge"
)

// TestOutcome — сконфигурированный исход test action.
type TestOutcome string

const (
	TestComplete TestOutcome = "complete"
	TestFail     TestOutcome = "fail"

	// TestError — режим, в котором выполнение возвращает ошибку,
	// для проверки failure-путей.
	TestError TestOutcome = "error"
)

// Action — полиморфный payload задачи.
//
// Tagged union: Type определяет, какой payload заполнен.
// Диспетчеризация выполнения — в internal/action.Registry.
type Action struct {
	// ID — уникальный идентификатор action.
	ID uuid.UUID `json:"id"`

	// Type — вариант action.
	Type ActionType `json:"type"`

	HTTPRequest *HTTPRequestAction `json:"http_request,omitempty"`
	Internal    *InternalAction    `json:"internal,omitempty"`
	Process     *ProcessAction     `json:"process,omitempty"`
	Test        *TestAction        `json:"test,omitempty"`
}

// HTTPRequestAction — конфигурация исходящего HTTP-запроса.
type HTTPRequestAction struct {
	// URL — адрес запроса.
	URL string `json:"url"`

	// Method — HTTP-метод (GET, POST, PUT, DELETE...).
	Method string `json:"method"`

	// Mimetype — Content-Type тела (для GET тело уходит в query string).
	Mimetype string `json:"mimetype,omitempty"`

	// Data — тело запроса.
	Data string `json:"data,omitempty"`

	// Headers — дополнительные заголовки.
	Headers map[string]string `json:"headers,omitempty"`

	// TimeoutSec — таймаут запроса в секундах (0 — значение по умолчанию).
	TimeoutSec int `json:"timeout_sec,omitempty"`

	// Injections — ключи из task.Parameters, подставляемые в JSON-тело
	// перед отправкой.
	Injections []string `json:"injections,omitempty"`
}

// InternalAction — служебная операция движка.
type InternalAction struct {
	Purpose InternalPurpose `json:"purpose"`
}

// ProcessAction — выполнение одной фазы жизненного цикла процесса.
type ProcessAction struct {
	ProcessID uuid.UUID `json:"process_id"`

	// Phase — имя фазы (initiate-process, report-completion...).
	Phase ProcessPhase `json:"phase"`
}

// TestAction — заглушка с заранее заданным исходом.
type TestAction struct {
	Outcome TestOutcome `json:"outcome"`
	Result  string      `json:"result,omitempty"`
}

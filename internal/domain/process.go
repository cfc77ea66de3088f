package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProcessPhase — фаза жизненного цикла процесса, выполняемая
// отдельной retryable-задачей.
type ProcessPhase string

const (
	PhaseInitiate                ProcessPhase = "initiate-process"
	PhaseReportAbortion          ProcessPhase = "report-abortion"
	PhaseReportCompletion        ProcessPhase = "report-completion"
	PhaseReportFailure           ProcessPhase = "report-failure"
	PhaseReportProgress          ProcessPhase = "report-progress"
	PhaseReportTimeoutToExecutor ProcessPhase = "report-timeout-to-executor"
	PhaseReportTimeoutToQueue    ProcessPhase = "report-timeout-to-queue"
)

// ProcessPhases — все допустимые фазы.
var ProcessPhases = []ProcessPhase{
	PhaseInitiate,
	PhaseReportAbortion,
	PhaseReportCompletion,
	PhaseReportFailure,
	PhaseReportProgress,
	PhaseReportTimeoutToExecutor,
	PhaseReportTimeoutToQueue,
}

// Process — долго выполняющаяся внешняя единица работы.
//
// Процесс координируется асинхронными callback-обменами: движок шлёт
// фазовые запросы executor'у и queue-эндпоинту, внешняя сторона
// отвечает через Process.update.
type Process struct {
	// ID — уникальный идентификатор процесса.
	ID uuid.UUID `json:"id"`

	// QueueID — очередь, которой принадлежит процесс.
	QueueID string `json:"queue_id"`

	// ExecutorEndpointID — назначенный endpoint executor'а.
	ExecutorEndpointID *uuid.UUID `json:"executor_endpoint_id,omitempty"`

	// Tag — человекочитаемая метка.
	Tag string `json:"tag"`

	// TimeoutMin — максимальная длительность выполнения в минутах;
	// nil — без таймаута.
	TimeoutMin *int `json:"timeout_min,omitempty"`

	// Status — текущий статус.
	Status ProcessStatus `json:"status"`

	// Input — входные данные, передаваемые executor'у при инициации.
	Input map[string]any `json:"input,omitempty"`

	// Output — результат, сообщённый executor'ом.
	Output map[string]any `json:"output,omitempty"`

	// Progress — последний отчёт о прогрессе.
	Progress map[string]any `json:"progress,omitempty"`

	// State — непрозрачное состояние executor'а, возвращаемое ему
	// при верификации.
	State map[string]any `json:"state,omitempty"`

	// Started — время начала инициации.
	Started *time.Time `json:"started,omitempty"`

	// Ended — время перехода в финальный статус.
	Ended *time.Time `json:"ended,omitempty"`

	// Communicated — время последнего успешного обмена с executor'ом.
	Communicated *time.Time `json:"communicated,omitempty"`
}

// TimedOut возвращает true, если выполнение превысило таймаут.
func (p *Process) TimedOut(now time.Time) bool {
	if p.TimeoutMin == nil || p.Started == nil {
		return false
	}
	return p.Started.Add(time.Duration(*p.TimeoutMin) * time.Minute).Before(now)
}

// ProcessTask — связь процесс → фазовая задача.
type ProcessTask struct {
	ID        uuid.UUID    `json:"id"`
	ProcessID uuid.UUID    `json:"process_id"`
	TaskID    uuid.UUID    `json:"task_id"`
	Phase     ProcessPhase `json:"phase"`
}

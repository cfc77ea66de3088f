package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Schedules
	mux.Handle("GET /api/v1/schedules", chain(http.HandlerFunc(h.ListSchedules)))
	mux.Handle("POST /api/v1/schedules", chain(http.HandlerFunc(h.CreateSchedule)))
	mux.Handle("GET /api/v1/schedules/{id}", chain(http.HandlerFunc(h.GetSchedule)))
	mux.Handle("PUT /api/v1/schedules/{id}", chain(http.HandlerFunc(h.UpdateSchedule)))
	mux.Handle("DELETE /api/v1/schedules/{id}", chain(http.HandlerFunc(h.DeleteSchedule)))

	// Scheduled tasks
	mux.Handle("GET /api/v1/tasks", chain(http.HandlerFunc(h.ListTasks)))
	mux.Handle("POST /api/v1/tasks", chain(http.HandlerFunc(h.CreateTask)))
	mux.Handle("GET /api/v1/tasks/{id}", chain(http.HandlerFunc(h.GetTask)))
	mux.Handle("PUT /api/v1/tasks/{id}/occurrence", chain(http.HandlerFunc(h.UpdateTaskOccurrence)))
	mux.Handle("POST /api/v1/tasks/{id}/abort", chain(http.HandlerFunc(h.AbortTask)))
	mux.Handle("GET /api/v1/tasks/{id}/executions", chain(http.HandlerFunc(h.ListTaskExecutions)))

	// Recurring tasks
	mux.Handle("GET /api/v1/recurring-tasks", chain(http.HandlerFunc(h.ListRecurringTasks)))
	mux.Handle("POST /api/v1/recurring-tasks", chain(http.HandlerFunc(h.CreateRecurringTask)))
	mux.Handle("GET /api/v1/recurring-tasks/{id}", chain(http.HandlerFunc(h.GetRecurringTask)))
	mux.Handle("PUT /api/v1/recurring-tasks/{id}/status", chain(http.HandlerFunc(h.SetRecurringTaskStatus)))
	mux.Handle("POST /api/v1/recurring-tasks/{id}/reschedule", chain(http.HandlerFunc(h.RescheduleRecurringTask)))

	// Subscriptions
	mux.Handle("GET /api/v1/subscriptions", chain(http.HandlerFunc(h.ListSubscriptions)))
	mux.Handle("POST /api/v1/subscriptions", chain(http.HandlerFunc(h.CreateSubscription)))
	mux.Handle("GET /api/v1/subscriptions/{id}", chain(http.HandlerFunc(h.GetSubscription)))
	mux.Handle("DELETE /api/v1/subscriptions/{id}", chain(http.HandlerFunc(h.DeleteSubscription)))

	// Events
	mux.Handle("GET /api/v1/events", chain(http.HandlerFunc(h.ListEvents)))
	mux.Handle("POST /api/v1/events", chain(http.HandlerFunc(h.PublishEvent)))
	mux.Handle("GET /api/v1/events/{id}", chain(http.HandlerFunc(h.GetEvent)))

	// Executors
	mux.Handle("GET /api/v1/executors", chain(http.HandlerFunc(h.ListExecutors)))
	mux.Handle("POST /api/v1/executors", chain(http.HandlerFunc(h.CreateExecutor)))
	mux.Handle("GET /api/v1/executors/{id}", chain(http.HandlerFunc(h.GetExecutor)))
	mux.Handle("PUT /api/v1/executors/{id}/status", chain(http.HandlerFunc(h.SetExecutorStatus)))
	mux.Handle("POST /api/v1/executors/{id}/endpoints", chain(http.HandlerFunc(h.AddExecutorEndpoint)))

	// Queues
	mux.Handle("GET /api/v1/queues", chain(http.HandlerFunc(h.ListQueues)))
	mux.Handle("POST /api/v1/queues", chain(http.HandlerFunc(h.CreateQueue)))
	mux.Handle("GET /api/v1/queues/{id}", chain(http.HandlerFunc(h.GetQueue)))
	mux.Handle("PUT /api/v1/queues/{id}/status", chain(http.HandlerFunc(h.SetQueueStatus)))

	// Processes
	mux.Handle("GET /api/v1/processes", chain(http.HandlerFunc(h.ListProcesses)))
	mux.Handle("POST /api/v1/processes", chain(http.HandlerFunc(h.CreateProcess)))
	mux.Handle("GET /api/v1/processes/{id}", chain(http.HandlerFunc(h.GetProcess)))
	mux.Handle("POST /api/v1/processes/{id}/update", chain(http.HandlerFunc(h.UpdateProcess)))
	mux.Handle("POST /api/v1/processes/{id}/abort", chain(http.HandlerFunc(h.AbortProcess)))
	mux.Handle("GET /api/v1/processes/{id}/tasks", chain(http.HandlerFunc(h.ListProcessTasks)))
}

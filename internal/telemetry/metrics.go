package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики движка. Регистрируются в default registry и отдаются
// через promhttp на /metrics.
var (
	// TasksExecuted — выполненные попытки задач по исходу
	// (completed / failed / retry / error).
	TasksExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_tasks_executed_total",
		Help: "Task execution attempts by outcome",
	}, []string{"outcome"})

	// TasksClaimed — размер батчей, забранных claim-проходом.
	TasksClaimed = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "conveyor_claim_batch_size",
		Help:    "Number of due tasks claimed per dispatch pass",
		Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
	})

	// EventsActivated — активации подписок событиями.
	EventsActivated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conveyor_subscription_activations_total",
		Help: "Subscription activations triggered by events",
	})

	// EventsProcessed — обработанные события.
	EventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conveyor_events_processed_total",
		Help: "Events matched against subscriptions",
	})

	// ProcessesFinished — процессы, достигшие финального статуса.
	ProcessesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_processes_finished_total",
		Help: "Processes that reached a terminal status",
	}, []string{"status"})

	// PurgedRecords — записи, удалённые служебной purge-задачей.
	PurgedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_purged_records_total",
		Help: "Records removed by the purge maintenance task",
	}, []string{"kind"})
)

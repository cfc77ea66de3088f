package api

import (
	"context"
	"log/slog"

	"github.com/shaiso/conveyor/internal/broker"
	"github.com/shaiso/conveyor/internal/idler"
	"github.com/shaiso/conveyor/internal/ledger"
	"github.com/shaiso/conveyor/internal/process"
	"github.com/shaiso/conveyor/internal/repo"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	ledger       *ledger.Ledger
	broker       *broker.Broker
	orchestrator *process.Orchestrator

	scheduleRepo *repo.ScheduleRepo
	taskRepo     *repo.TaskRepo
	subRepo      *repo.SubscriptionRepo
	eventRepo    *repo.EventRepo
	executorRepo *repo.ExecutorRepo
	processRepo  *repo.ProcessRepo

	waker  idler.Idler
	logger *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Ledger       *ledger.Ledger
	Broker       *broker.Broker
	Orchestrator *process.Orchestrator

	ScheduleRepo     *repo.ScheduleRepo
	TaskRepo         *repo.TaskRepo
	SubscriptionRepo *repo.SubscriptionRepo
	EventRepo        *repo.EventRepo
	ExecutorRepo     *repo.ExecutorRepo
	ProcessRepo      *repo.ProcessRepo

	// Waker будит диспетчер после каждой успешной записи (optional).
	Waker idler.Idler

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		ledger:       cfg.Ledger,
		broker:       cfg.Broker,
		orchestrator: cfg.Orchestrator,
		scheduleRepo: cfg.ScheduleRepo,
		taskRepo:     cfg.TaskRepo,
		subRepo:      cfg.SubscriptionRepo,
		eventRepo:    cfg.EventRepo,
		executorRepo: cfg.ExecutorRepo,
		processRepo:  cfg.ProcessRepo,
		waker:        cfg.Waker,
		logger:       logger,
	}
}

// wake будит диспетчер после записи, породившей работу.
// Ошибка не фатальна: работа будет подхвачена на следующем poll'е.
func (h *Handler) wake(ctx context.Context) {
	if h.waker == nil {
		return
	}
	if err := h.waker.Interrupt(ctx); err != nil {
		h.logger.Warn("failed to wake dispatcher", "error", err)
	}
}

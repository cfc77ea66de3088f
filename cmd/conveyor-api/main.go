package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/conveyor/internal/api"
	"github.com/shaiso/conveyor/internal/broker"
	"github.com/shaiso/conveyor/internal/idler"
	"github.com/shaiso/conveyor/internal/ledger"
	"github.com/shaiso/conveyor/internal/process"
	"github.com/shaiso/conveyor/internal/repo"
	"github.com/shaiso/conveyor/internal/telemetry"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conveyor_api_http_requests_total",
		Help: "Total HTTP requests handled by conveyor_api",
	})
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting conveyor-api")

	// Подключаемся к базе данных
	pool, err := repo.NewPool(context.Background())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	// Создаём репозитории
	taskRepo := repo.NewTaskRepo(pool)
	scheduleRepo := repo.NewScheduleRepo(pool)
	subscriptionRepo := repo.NewSubscriptionRepo(pool)
	eventRepo := repo.NewEventRepo(pool)
	executorRepo := repo.NewExecutorRepo(pool)
	processRepo := repo.NewProcessRepo(pool)

	// API выполняет только записи в БД; выполнение задач целиком
	// на стороне engine, поэтому registry и publisher не нужны.
	led := ledger.New(ledger.Config{
		Pool:             pool,
		TaskRepo:         taskRepo,
		ScheduleRepo:     scheduleRepo,
		SubscriptionRepo: subscriptionRepo,
		EventRepo:        eventRepo,
		Logger:           logger,
	})

	brk := broker.New(broker.Config{
		Pool:             pool,
		EventRepo:        eventRepo,
		SubscriptionRepo: subscriptionRepo,
		TaskRepo:         taskRepo,
		Logger:           logger,
	})

	orch := process.New(process.Config{
		Pool:         pool,
		ProcessRepo:  processRepo,
		TaskRepo:     taskRepo,
		ExecutorRepo: executorRepo,
		Logger:       logger,
	})

	// Каждая успешная запись будит engine через pg_notify
	handler := api.NewHandler(api.Config{
		Ledger:           led,
		Broker:           brk,
		Orchestrator:     orch,
		ScheduleRepo:     scheduleRepo,
		TaskRepo:         taskRepo,
		SubscriptionRepo: subscriptionRepo,
		EventRepo:        eventRepo,
		ExecutorRepo:     executorRepo,
		ProcessRepo:      processRepo,
		Waker:            idler.NewPGIdler(pool),
		Logger:           logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		addr = ":" + v
	}

	// Создаём HTTP сервер с возможностью graceful shutdown
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Запускаем сервер в горутине
	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Ожидаем сигнал завершения
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}

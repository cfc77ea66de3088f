// Conveyor Engine — исполнительное ядро системы.
//
// Engine:
//   - Забирает due задачи и выполняет их пулом воркеров
//   - Активирует подписки на pending события
//   - Ведёт жизненный цикл процессов и их фазовые задачи
//   - Спит через Postgres LISTEN/NOTIFY, пока работы нет
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/conveyor/internal/action"
	"github.com/shaiso/conveyor/internal/broker"
	"github.com/shaiso/conveyor/internal/dispatch"
	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/idler"
	"github.com/shaiso/conveyor/internal/ledger"
	"github.com/shaiso/conveyor/internal/mq"
	"github.com/shaiso/conveyor/internal/process"
	"github.com/shaiso/conveyor/internal/repo"
	"github.com/shaiso/conveyor/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting conveyor-engine")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// Создаём репозитории
	taskRepo := repo.NewTaskRepo(pool)
	scheduleRepo := repo.NewScheduleRepo(pool)
	subscriptionRepo := repo.NewSubscriptionRepo(pool)
	eventRepo := repo.NewEventRepo(pool)
	executorRepo := repo.NewExecutorRepo(pool)
	processRepo := repo.NewProcessRepo(pool)

	// RabbitMQ (optional): события могут приходить и через API
	var publisher *mq.Publisher
	var mqConn *mq.Connection
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}

	mqConn, err = mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		publisher = mq.NewPublisher(mqConn, logger)
	}

	// Ledger и его реестр actions. Internal actions замыкаются на
	// сам ledger, поэтому реестр подключается после создания.
	led := ledger.New(ledger.Config{
		Pool:             pool,
		TaskRepo:         taskRepo,
		ScheduleRepo:     scheduleRepo,
		SubscriptionRepo: subscriptionRepo,
		EventRepo:        eventRepo,
		Publisher:        publisher,
		Logger:           logger,
	})

	orch := process.New(process.Config{
		Pool:         pool,
		ProcessRepo:  processRepo,
		TaskRepo:     taskRepo,
		ExecutorRepo: executorRepo,
		Logger:       logger,
	})

	registry := action.NewRegistry()
	registry.Register(domain.ActionHTTPRequest, action.NewHTTPExecutor())
	registry.Register(domain.ActionInternal, action.NewInternalExecutor(led))
	registry.Register(domain.ActionProcess, action.NewProcessExecutor(orch))
	registry.Register(domain.ActionTest, &action.TestExecutor{})
	led.SetRegistry(registry)

	brk := broker.New(broker.Config{
		Pool:             pool,
		EventRepo:        eventRepo,
		SubscriptionRepo: subscriptionRepo,
		TaskRepo:         taskRepo,
		Logger:           logger,
	})

	// Служебная задача очистки должна существовать всегда
	if err := led.EnsurePurgeTask(ctx); err != nil {
		logger.Error("failed to ensure purge task", "error", err)
		os.Exit(1)
	}

	wake := idler.NewPGIdler(pool)

	disp := dispatch.New(dispatch.Config{
		Ledger:       led,
		Broker:       brk,
		Orchestrator: orch,
		TaskRepo:     taskRepo,
		Idler:        wake,
		Logger:       logger,
	})

	// Входящие события из RabbitMQ публикуются в broker
	if mqConn != nil {
		consumer := mq.NewConsumer(mqConn, logger, mq.ConsumerConfig{
			Queue: string(mq.QueueEventsInbound),
			Handler: func(ctx context.Context, msg *mq.Message) error {
				if msg.Type != mq.MessageTypeEventInbound {
					logger.Warn("unexpected message type, dropped",
						"message_id", msg.ID, "type", msg.Type)
					return nil
				}
				payload, err := mq.ParsePayload[mq.EventInboundPayload](msg)
				if err != nil {
					return err
				}
				if _, err := brk.Publish(ctx, payload.Topic, payload.Aspects); err != nil {
					return err
				}
				return wake.Interrupt(ctx)
			},
		})
		go func() {
			if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("consumer stopped", "error", err)
			}
		}()
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("ENGINE_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Основной цикл диспетчера блокирует до отмены контекста
	if err := disp.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("dispatcher stopped", "error", err)
		os.Exit(1)
	}

	logger.Info("conveyor-engine stopped")
}

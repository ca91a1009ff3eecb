// Conveyor API — HTTP API для pipelines, компиляции и прогонов.
//
// API:
//   - Хранит pipelines и schedules в PostgreSQL
//   - Компилирует графы в CI-конфигурации
//   - Выполняет прогоны синхронно или ставит их в очередь runs.requested
//
// Без RabbitMQ асинхронные прогоны выполняются в этом же процессе.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/Conveyor/internal/api"
	"github.com/shaiso/Conveyor/internal/compiler"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/runner"
	"github.com/shaiso/Conveyor/internal/steps"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting conveyor-api")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := repo.EnsureSchema(ctx, pool); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Создаём репозитории
	pipelineRepo := repo.NewPipelineRepo(pool)
	executionRepo := repo.NewExecutionRepo(pool)
	scheduleRepo := repo.NewScheduleRepo(pool)

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	reg := steps.DefaultRegistry()

	execCfg := executor.Config{
		Registry: reg,
		Logger:   logger,
		Metrics:  metrics,
		History:  executionRepo,
	}

	// RabbitMQ — необязателен
	var dispatcher runner.Dispatcher
	var publisher *mq.Publisher
	mqConn, err := mq.NewConnection(mq.URLFromEnv(), logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, async runs execute in-process", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		publisher = mq.NewPublisher(mqConn, logger)
		execCfg.Events = mq.NewEventPublisher(publisher, logger)
	}

	svc := runner.New(runner.Config{
		Executor:    executor.New(execCfg),
		Pipelines:   pipelineRepo,
		Idempotency: executionRepo,
		Logger:      logger,
	})

	var local *runner.LocalDispatcher
	if publisher != nil {
		dispatcher = runner.NewQueueDispatcher(publisher)
	} else {
		local = runner.NewLocalDispatcher(svc, logger)
		dispatcher = local
	}

	// Создаём API handler
	handler := api.NewHandler(api.Config{
		Pipelines: pipelineRepo,
		Schedules: scheduleRepo,
		Compiler: compiler.New(compiler.Config{
			Registry: reg,
			Logger:   logger,
			Metrics:  metrics,
		}),
		Runner:     svc,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})

	mux := http.NewServeMux()
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

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if local != nil {
		local.Wait()
	}

	logger.Info("stopped")
}

// Conveyor Runner — выполняет прогоны из очереди runs.requested.
//
// Runner:
//   - Получает run.requested из RabbitMQ
//   - Загружает pipeline и выполняет граф
//   - Сохраняет запись прогона и публикует события в conveyor.events
//
// Runners масштабируются горизонтально; повторы отсекаются по ключу идемпотентности.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

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
	logger.Info("starting conveyor-runner")

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

	executionRepo := repo.NewExecutionRepo(pool)

	// RabbitMQ — без него runner не нужен
	mqConn, err := mq.NewConnection(mq.URLFromEnv(), logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, mqConn); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}
	publisher := mq.NewPublisher(mqConn, logger)

	parallelism := 1
	if v := os.Getenv("RUNNER_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			parallelism = n
		}
	}

	svc := runner.New(runner.Config{
		Executor: executor.New(executor.Config{
			Registry:    steps.DefaultRegistry(),
			Logger:      logger,
			Metrics:     telemetry.NewMetrics(prometheus.DefaultRegisterer),
			History:     executionRepo,
			Events:      mq.NewEventPublisher(publisher, logger),
			Parallelism: parallelism,
		}),
		Pipelines:   repo.NewPipelineRepo(pool),
		Idempotency: executionRepo,
		Logger:      logger,
	})

	// Start блокируется до отмены ctx
	consumer := runner.NewConsumer(mqConn, svc, logger, parallelism)
	go func() {
		if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("consumer stopped", "error", err)
			cancel()
		}
	}()

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("RUNNER_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	consumer.Stop()
	logger.Info("conveyor-runner stopped")
}

// Conveyor Scheduler — запускает pipelines по расписанию.
//
// Несколько экземпляров могут работать одновременно: тики выполняет
// только лидер (pg_advisory_lock). Прогоны уходят в runs.requested,
// без RabbitMQ выполняются в этом же процессе.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/runner"
	"github.com/shaiso/Conveyor/internal/scheduler"
	"github.com/shaiso/Conveyor/internal/steps"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

const leaderLockName = "conveyor-scheduler"

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting conveyor-scheduler")

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

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	var dispatcher runner.Dispatcher
	mqConn, err := mq.NewConnection(mq.URLFromEnv(), logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, scheduled runs execute in-process", "error", err)

		executionRepo := repo.NewExecutionRepo(pool)
		svc := runner.New(runner.Config{
			Executor: executor.New(executor.Config{
				Registry: steps.DefaultRegistry(),
				Logger:   logger,
				Metrics:  metrics,
				History:  executionRepo,
			}),
			Pipelines:   repo.NewPipelineRepo(pool),
			Idempotency: executionRepo,
			Logger:      logger,
		})
		local := runner.NewLocalDispatcher(svc, logger)
		defer local.Wait()
		dispatcher = local
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		dispatcher = runner.NewQueueDispatcher(mq.NewPublisher(mqConn, logger))
	}

	sched := scheduler.New(scheduler.Config{
		Schedules:  repo.NewScheduleRepo(pool),
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})

	interval := time.Second
	if v := os.Getenv("SCHED_TICK"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			interval = d
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sched.Run(ctx, interval, repo.NewLeaderLock(pool, leaderLockName))
	}()

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8081"
	if v := os.Getenv("SCHED_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-done
	logger.Info("conveyor-scheduler stopped")
}

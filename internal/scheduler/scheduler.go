package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/runner"
	"github.com/shaiso/Conveyor/internal/telemetry"
	"github.com/shaiso/Conveyor/internal/trigger"
)

// ScheduleStore — хранилище расписаний (repo.ScheduleRepo).
type ScheduleStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error)
	Update(ctx context.Context, schedule *domain.Schedule) error
}

// Leader — блокировка лидера (repo.LeaderLock).
type Leader interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context)
}

// Scheduler — планировщик, обрабатывающий due schedules.
type Scheduler struct {
	schedules  ScheduleStore
	dispatcher runner.Dispatcher
	metrics    *telemetry.Metrics
	logger     *slog.Logger
	batchSize  int
	now        func() time.Time
}

// Config — конфигурация Scheduler.
type Config struct {
	Schedules  ScheduleStore
	Dispatcher runner.Dispatcher
	Metrics    *telemetry.Metrics
	Logger     *slog.Logger
	BatchSize  int // количество schedules за один тик (default: 100)

	// Now — источник времени. Nil — time.Now.
	Now func() time.Time
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Scheduler{
		schedules:  cfg.Schedules,
		dispatcher: cfg.Dispatcher,
		metrics:    cfg.Metrics,
		logger:     logger,
		batchSize:  batchSize,
		now:        now,
	}
}

// IdempotencyKey — ключ запуска: "{schedule_id}_{next_due_at_unix}".
// Для одного schedule и конкретного времени будет только один прогон.
func IdempotencyKey(sched *domain.Schedule) string {
	var due int64
	if sched.NextDueAt != nil {
		due = sched.NextDueAt.Unix()
	}
	return fmt.Sprintf("%s_%d", sched.ID, due)
}

// Tick выполняет один тик планировщика.
//
// 1. Находит due schedules (enabled=true, next_due_at <= now)
// 2. Для каждого отправляет запрос на прогон
// 3. Обновляет next_due_at
//
// Ошибки одного schedule не блокируют обработку остальных.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.now()

	schedules, err := s.schedules.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("list due schedules: %w", err)
	}

	if len(schedules) == 0 {
		return nil
	}

	s.logger.Debug("found due schedules", "count", len(schedules))

	var dispatched int
	for i := range schedules {
		sched := &schedules[i]

		if err := s.processSchedule(ctx, sched, now); err != nil {
			s.logger.Error("failed to process schedule",
				"schedule_id", sched.ID,
				"schedule_name", sched.Name,
				"error", err,
			)
			continue
		}
		dispatched++
	}

	s.logger.Info("scheduler tick completed",
		"due", len(schedules),
		"dispatched", dispatched,
	)

	return nil
}

// processSchedule запускает пайплайн одного schedule и сдвигает next_due_at.
func (s *Scheduler) processSchedule(ctx context.Context, sched *domain.Schedule, now time.Time) error {
	nextDue, err := CalculateNextDue(sched, now)
	if err != nil {
		// Некорректный schedule срабатывал бы каждый тик
		s.logger.Error("failed to calculate next due, disabling schedule",
			"schedule_id", sched.ID,
			"error", err,
		)
		sched.Enabled = false
		sched.UpdatedAt = now
		if err := s.schedules.Update(ctx, sched); err != nil {
			return fmt.Errorf("disable schedule: %w", err)
		}
		return nil
	}

	requestID, err := s.dispatcher.Dispatch(ctx, runner.RunRequest{
		RequestID:      uuid.New(),
		PipelineID:     sched.PipelineID,
		Trigger:        string(trigger.KindSchedule),
		IdempotencyKey: IdempotencyKey(sched),
	})
	if err != nil {
		// next_due_at не сдвигаем: повторим на следующем тике
		return fmt.Errorf("dispatch run: %w", err)
	}
	s.metrics.ObserveScheduled()

	s.logger.Info("dispatched run from schedule",
		"request_id", requestID,
		"schedule_id", sched.ID,
		"schedule_name", sched.Name,
		"pipeline_id", sched.PipelineID,
		"next_due_at", nextDue,
	)

	sched.RecordRun(requestID, nextDue)
	if err := s.schedules.Update(ctx, sched); err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return nil
}

// Run вызывает Tick каждые interval, пока процесс является лидером.
// Блокируется до отмены ctx. Блокировка снимается при выходе.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration, leader Leader) {
	tk := time.NewTicker(interval)
	defer tk.Stop()
	defer leader.Release(context.WithoutCancel(ctx))

	var wasLeader bool
	for {
		select {
		case <-tk.C:
			ok, err := leader.TryAcquire(ctx)
			if err != nil {
				s.logger.Warn("leader lock failed", "error", err)
				continue
			}
			if ok != wasLeader {
				s.logger.Info("leadership changed", "leader", ok)
				wasLeader = ok
			}
			if !ok {
				// не лидер — пропускаем тик
				continue
			}

			if err := s.Tick(ctx); err != nil {
				s.logger.Error("scheduler tick failed", "error", err)
			}

		case <-ctx.Done():
			return
		}
	}
}

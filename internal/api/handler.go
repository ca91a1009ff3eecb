package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/compiler"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/runner"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// PipelineStore — хранилище пайплайнов (repo.PipelineRepo).
type PipelineStore interface {
	Create(ctx context.Context, p *domain.Pipeline) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Pipeline, error)
	List(ctx context.Context, filter repo.PipelineFilter) ([]domain.Pipeline, error)
	Update(ctx context.Context, p *domain.Pipeline) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ScheduleStore — хранилище расписаний (repo.ScheduleRepo).
type ScheduleStore interface {
	Create(ctx context.Context, s *domain.Schedule) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Schedule, error)
	List(ctx context.Context, filter repo.ScheduleFilter) ([]domain.Schedule, error)
	Update(ctx context.Context, s *domain.Schedule) error
	Delete(ctx context.Context, id uuid.UUID) error
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	ReplaceForPipeline(ctx context.Context, pipelineID uuid.UUID, schedules []domain.Schedule) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	pipelines  PipelineStore
	schedules  ScheduleStore
	compiler   *compiler.Compiler
	runner     *runner.Service
	dispatcher runner.Dispatcher
	metrics    *telemetry.Metrics
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Pipelines PipelineStore
	Schedules ScheduleStore
	Compiler  *compiler.Compiler
	Runner    *runner.Service

	// Dispatcher — асинхронные прогоны (?async=true).
	// Nil — прогоны только синхронные.
	Dispatcher runner.Dispatcher

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		pipelines:  cfg.Pipelines,
		schedules:  cfg.Schedules,
		compiler:   cfg.Compiler,
		runner:     cfg.Runner,
		dispatcher: cfg.Dispatcher,
		metrics:    cfg.Metrics,
		logger:     logger,
	}
}

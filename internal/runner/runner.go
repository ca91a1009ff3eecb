package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// PipelineStore — источник сохранённых пайплайнов.
type PipelineStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Pipeline, error)
}

// IdempotencyStore находит прогон по ключу идемпотентности.
type IdempotencyStore interface {
	GetByIdempotencyKey(ctx context.Context, pipelineID uuid.UUID, key string) (*domain.ExecutionRecord, error)
}

// RunRequest — запрос на прогон сохранённого пайплайна.
type RunRequest struct {
	// RequestID станет ID записи. uuid.Nil — сгенерировать.
	RequestID      uuid.UUID
	PipelineID     uuid.UUID
	Trigger        string
	IdempotencyKey string
}

// Service загружает пайплайн, выполняет граф и сохраняет запись.
//
// Запись сохраняет сам Executor (через свой History), события
// уходят в его EventSink.
type Service struct {
	executor    *executor.Executor
	pipelines   PipelineStore
	idempotency IdempotencyStore
	logger      *slog.Logger
}

// Config — конфигурация Service.
type Config struct {
	Executor  *executor.Executor
	Pipelines PipelineStore

	// Idempotency — проверка повторных запросов. Nil — без проверки.
	Idempotency IdempotencyStore

	Logger *slog.Logger
}

// New создаёт новый Service.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		executor:    cfg.Executor,
		pipelines:   cfg.Pipelines,
		idempotency: cfg.Idempotency,
		logger:      logger,
	}
}

// RunPipeline выполняет сохранённый пайплайн.
//
// Повторный запрос с тем же IdempotencyKey возвращает существующую
// запись без нового прогона. Выключенный пайплайн не запускается.
// Сохранённый граф не меняется.
func (s *Service) RunPipeline(ctx context.Context, req RunRequest) (*domain.ExecutionRecord, error) {
	logger := telemetry.WithPipelineID(s.logger, req.PipelineID.String())

	p, err := s.pipelines.GetByID(ctx, req.PipelineID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPipelineNotFound, req.PipelineID)
	}
	if err != nil {
		return nil, fmt.Errorf("get pipeline: %w", err)
	}
	if !p.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrPipelineInactive, p.ID)
	}

	if req.IdempotencyKey != "" && s.idempotency != nil {
		existing, err := s.idempotency.GetByIdempotencyKey(ctx, p.ID, req.IdempotencyKey)
		switch {
		case err == nil:
			logger.Info("run already exists (idempotency)",
				"run_id", existing.ID,
				"idempotency_key", req.IdempotencyKey,
			)
			return existing, nil
		case !errors.Is(err, repo.ErrNotFound) && !errors.Is(err, executor.ErrRecordNotFound):
			return nil, fmt.Errorf("check idempotency: %w", err)
		}
	}

	trigger := req.Trigger
	if trigger == "" {
		trigger = "api"
	}

	id := p.ID
	rec := s.executor.Execute(ctx, executor.Request{
		Graph:          p.Graph.Clone(),
		RunID:          req.RequestID,
		PipelineID:     &id,
		Trigger:        trigger,
		IdempotencyKey: req.IdempotencyKey,
	})
	return rec, nil
}

// RunGraph выполняет граф, не сохранённый как пайплайн.
// Поля выполнения заполняются в самом графе.
func (s *Service) RunGraph(ctx context.Context, g *domain.Graph, trigger string) *domain.ExecutionRecord {
	if trigger == "" {
		trigger = "api"
	}
	return s.executor.Execute(ctx, executor.Request{Graph: g, Trigger: trigger})
}

// History возвращает журнал прогонов Executor'а.
func (s *Service) History() executor.History {
	return s.executor.History()
}

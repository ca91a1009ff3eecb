package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/Conveyor/internal/mq"
)

// HandleRunRequested выполняет запрос из очереди runs.requested.
//
// Несуществующий или выключенный пайплайн подтверждается без прогона:
// повтор не поможет. Остальные ошибки возвращаются, и consumer
// доставляет сообщение ещё раз.
func (s *Service) HandleRunRequested(ctx context.Context, req mq.RunRequestedPayload) error {
	rec, err := s.RunPipeline(ctx, RunRequest{
		RequestID:      req.RequestID,
		PipelineID:     req.PipelineID,
		Trigger:        req.Trigger,
		IdempotencyKey: req.IdempotencyKey,
	})
	if errors.Is(err, ErrPipelineNotFound) || errors.Is(err, ErrPipelineInactive) {
		s.logger.Warn("pipeline not runnable, skipping",
			"request_id", req.RequestID,
			"pipeline_id", req.PipelineID,
			"error", err,
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("run pipeline %s: %w", req.PipelineID, err)
	}

	s.logger.Debug("run request handled",
		"request_id", req.RequestID,
		"run_id", rec.ID,
		"status", rec.Status,
	)
	return nil
}

// NewConsumer создаёт consumer очереди runs.requested.
func NewConsumer(conn *mq.Connection, svc *Service, logger *slog.Logger, prefetch int) *mq.Consumer {
	return mq.NewConsumer(conn, logger, mq.ConsumerConfig{
		Queue:    mq.QueueRunsRequested,
		Handler:  svc.HandleRunRequested,
		Prefetch: prefetch,
	})
}

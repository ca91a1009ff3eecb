package runner

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/mq"
)

// Dispatcher ставит прогон в очередь и сразу возвращает его ID.
type Dispatcher interface {
	Dispatch(ctx context.Context, req RunRequest) (uuid.UUID, error)
}

// RunPublisher — то, что QueueDispatcher требует от mq.Publisher.
type RunPublisher interface {
	PublishRunRequested(ctx context.Context, payload mq.RunRequestedPayload) error
}

// QueueDispatcher отправляет запросы в runs.requested.
type QueueDispatcher struct {
	pub RunPublisher
}

// NewQueueDispatcher создаёт QueueDispatcher.
func NewQueueDispatcher(pub RunPublisher) *QueueDispatcher {
	return &QueueDispatcher{pub: pub}
}

// Dispatch публикует run.requested.
func (d *QueueDispatcher) Dispatch(ctx context.Context, req RunRequest) (uuid.UUID, error) {
	if req.RequestID == uuid.Nil {
		req.RequestID = uuid.New()
	}
	err := d.pub.PublishRunRequested(ctx, mq.RunRequestedPayload{
		RequestID:      req.RequestID,
		PipelineID:     req.PipelineID,
		Trigger:        req.Trigger,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return uuid.Nil, err
	}
	return req.RequestID, nil
}

// LocalDispatcher выполняет прогоны в фоне этого же процесса.
// Используется, когда RabbitMQ не настроен.
type LocalDispatcher struct {
	svc    *Service
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewLocalDispatcher создаёт LocalDispatcher.
func NewLocalDispatcher(svc *Service, logger *slog.Logger) *LocalDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalDispatcher{svc: svc, logger: logger}
}

// Dispatch запускает прогон в горутине.
// Прогон не отменяется вместе с ctx запроса.
func (d *LocalDispatcher) Dispatch(ctx context.Context, req RunRequest) (uuid.UUID, error) {
	if req.RequestID == uuid.Nil {
		req.RequestID = uuid.New()
	}

	runCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if _, err := d.svc.RunPipeline(runCtx, req); err != nil {
			d.logger.Error("dispatched run failed",
				"request_id", req.RequestID,
				"pipeline_id", req.PipelineID,
				"error", err,
			)
		}
	}()

	return req.RequestID, nil
}

// Wait ждёт завершения всех запущенных прогонов.
func (d *LocalDispatcher) Wait() {
	d.wg.Wait()
}

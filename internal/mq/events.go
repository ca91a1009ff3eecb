package mq

import (
	"context"
	"log/slog"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/executor"
)

// JSONPublisher — то, что EventPublisher требует от Publisher.
type JSONPublisher interface {
	PublishJSON(ctx context.Context, exchange Exchange, routingKey RoutingKey, msgType MessageType, payload any) error
}

// EventPublisher отправляет события Executor'а в conveyor.events.
//
// Реализует executor.EventSink. Ошибки публикации только логируются:
// прогон не должен падать из-за брокера.
type EventPublisher struct {
	pub    JSONPublisher
	logger *slog.Logger
}

var _ executor.EventSink = (*EventPublisher)(nil)

// NewEventPublisher создаёт EventPublisher.
func NewEventPublisher(pub JSONPublisher, logger *slog.Logger) *EventPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventPublisher{pub: pub, logger: logger}
}

// NodeStatusChanged публикует событие узла с ключом node.<status>.
func (p *EventPublisher) NodeStatusChanged(ctx context.Context, ev executor.NodeEvent) {
	key := NodeRoutingKey(string(ev.Status))
	if err := p.pub.PublishJSON(ctx, ExchangeEvents, key, MessageTypeNodeStatus, ev); err != nil {
		p.logger.Warn("failed to publish node event",
			"run_id", ev.RunID,
			"node_id", ev.NodeID,
			"status", ev.Status,
			"error", err,
		)
	}
}

// RunFinished публикует итог прогона.
func (p *EventPublisher) RunFinished(ctx context.Context, rec *domain.ExecutionRecord) {
	if err := p.pub.PublishJSON(ctx, ExchangeEvents, RoutingKeyFinished, MessageTypeRunFinished, RunFinishedFrom(rec)); err != nil {
		p.logger.Warn("failed to publish run finished",
			"run_id", rec.ID,
			"error", err,
		)
	}
}

// RunFinishedFrom строит payload из записи прогона.
func RunFinishedFrom(rec *domain.ExecutionRecord) RunFinishedPayload {
	return RunFinishedPayload{
		RunID:      rec.ID,
		PipelineID: rec.PipelineID,
		Status:     string(rec.Status),
		Error:      rec.Error,
		Executed:   rec.Executed(),
		TotalNodes: rec.TotalNodes,
		DurationMs: rec.DurationMs,
	}
}

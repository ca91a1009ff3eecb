package executor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

// NodeEvent — смена статуса узла во время прогона.
type NodeEvent struct {
	RunID      uuid.UUID              `json:"run_id"`
	PipelineID *uuid.UUID             `json:"pipeline_id,omitempty"`
	NodeID     string                 `json:"node_id"`
	Type       string                 `json:"type"`
	Status     domain.ExecutionStatus `json:"status"`
	Error      string                 `json:"error,omitempty"`
	Attempts   int                    `json:"attempts,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// EventSink получает события прогона для живого отображения статусов.
//
// Методы вызываются из цикла прогона и не должны блокироваться надолго.
type EventSink interface {
	NodeStatusChanged(ctx context.Context, ev NodeEvent)
	RunFinished(ctx context.Context, rec *domain.ExecutionRecord)
}

// Sinks рассылает события нескольким получателям.
type Sinks []EventSink

// NodeStatusChanged реализует EventSink.
func (s Sinks) NodeStatusChanged(ctx context.Context, ev NodeEvent) {
	for _, sink := range s {
		if sink != nil {
			sink.NodeStatusChanged(ctx, ev)
		}
	}
}

// RunFinished реализует EventSink.
func (s Sinks) RunFinished(ctx context.Context, rec *domain.ExecutionRecord) {
	for _, sink := range s {
		if sink != nil {
			sink.RunFinished(ctx, rec)
		}
	}
}

package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/steps"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

type memoryPipelines map[uuid.UUID]*domain.Pipeline

func (m memoryPipelines) GetByID(_ context.Context, id uuid.UUID) (*domain.Pipeline, error) {
	p, ok := m[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return p, nil
}

func newTestService(t *testing.T) (*Service, *executor.MemoryHistory, *domain.Pipeline) {
	t.Helper()

	p := &domain.Pipeline{
		ID:       uuid.New(),
		Name:     "web-app",
		IsActive: true,
		Graph: domain.Graph{
			Nodes: []*domain.Node{
				{ID: "on-push", Type: "trigger.push"},
				{ID: "build", Type: "build", Properties: map[string]any{"language": "go"}},
				{ID: "test", Type: "test", Properties: map[string]any{"language": "go"}},
			},
			Edges: []domain.Edge{
				{Source: "on-push", Target: "build"},
				{Source: "build", Target: "test"},
			},
		},
	}

	history := executor.NewMemoryHistory(0)
	exec := executor.New(executor.Config{
		Registry: steps.DefaultRegistry(),
		Logger:   telemetry.Discard(),
		History:  history,
	})

	svc := New(Config{
		Executor:    exec,
		Pipelines:   memoryPipelines{p.ID: p},
		Idempotency: history,
		Logger:      telemetry.Discard(),
	})
	return svc, history, p
}

func TestRunPipeline(t *testing.T) {
	svc, history, p := newTestService(t)

	rec, err := svc.RunPipeline(context.Background(), RunRequest{PipelineID: p.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !rec.Succeeded() || rec.Executed() != 3 {
		t.Errorf("expected 3 successful nodes, got %s %+v", rec.Status, rec.Details)
	}
	if rec.PipelineID == nil || *rec.PipelineID != p.ID || rec.Trigger != "api" {
		t.Errorf("unexpected record metadata: %+v", rec)
	}
	if history.Len() != 1 {
		t.Errorf("expected 1 stored record, got %d", history.Len())
	}

	// Сохранённый граф не меняется
	for _, n := range p.Graph.Nodes {
		if n.ExecutionStatus != "" {
			t.Errorf("stored node %s was modified: %s", n.ID, n.ExecutionStatus)
		}
	}
}

func TestRunPipeline_Idempotency(t *testing.T) {
	svc, history, p := newTestService(t)
	req := RunRequest{PipelineID: p.ID, Trigger: "schedule", IdempotencyKey: "nightly_1700000000"}

	first, err := svc.RunPipeline(context.Background(), req)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := svc.RunPipeline(context.Background(), req)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("duplicate request should return the same record: %s != %s", first.ID, second.ID)
	}
	if history.Len() != 1 {
		t.Errorf("expected 1 stored record, got %d", history.Len())
	}
}

func TestRunPipeline_NotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.RunPipeline(context.Background(), RunRequest{PipelineID: uuid.New()})
	if !errors.Is(err, ErrPipelineNotFound) {
		t.Errorf("expected ErrPipelineNotFound, got %v", err)
	}
}

func TestRunPipeline_Inactive(t *testing.T) {
	svc, history, p := newTestService(t)
	p.IsActive = false

	_, err := svc.RunPipeline(context.Background(), RunRequest{PipelineID: p.ID})
	if !errors.Is(err, ErrPipelineInactive) {
		t.Errorf("expected ErrPipelineInactive, got %v", err)
	}
	if history.Len() != 0 {
		t.Errorf("inactive pipeline should not run, got %d records", history.Len())
	}
}

func TestRunGraph(t *testing.T) {
	svc, _, _ := newTestService(t)
	g := &domain.Graph{
		Nodes: []*domain.Node{{ID: "build", Type: "build", Properties: map[string]any{"fail": "compile error"}}},
	}

	rec := svc.RunGraph(context.Background(), g, "")
	if rec.Status != domain.RecordError || rec.PipelineID != nil {
		t.Errorf("unexpected record: %+v", rec)
	}
	// Поля выполнения заполнены в самом графе
	if g.Nodes[0].ExecutionStatus != domain.StatusError {
		t.Errorf("expected node status error, got %s", g.Nodes[0].ExecutionStatus)
	}
}

func TestHandleRunRequested(t *testing.T) {
	svc, history, p := newTestService(t)
	requestID := uuid.New()

	req := mq.RunRequestedPayload{
		RequestID:  requestID,
		PipelineID: p.ID,
		Trigger:    "schedule",
	}
	if err := svc.HandleRunRequested(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, err := history.Get(context.Background(), requestID)
	if err != nil {
		t.Fatalf("record for request not stored: %v", err)
	}
	if rec.Trigger != "schedule" {
		t.Errorf("expected trigger schedule, got %s", rec.Trigger)
	}

	// Несуществующий пайплайн подтверждается без ошибки
	if err := svc.HandleRunRequested(context.Background(), mq.RunRequestedPayload{PipelineID: uuid.New()}); err != nil {
		t.Errorf("missing pipeline should be acked, got %v", err)
	}
	if history.Len() != 1 {
		t.Errorf("expected 1 stored record, got %d", history.Len())
	}

	// Выключенный пайплайн тоже подтверждается
	p.IsActive = false
	if err := svc.HandleRunRequested(context.Background(), mq.RunRequestedPayload{PipelineID: p.ID}); err != nil {
		t.Errorf("inactive pipeline should be acked, got %v", err)
	}
	if history.Len() != 1 {
		t.Errorf("expected 1 stored record, got %d", history.Len())
	}
}

func TestHandleRunRequested_StoreFailureIsRetried(t *testing.T) {
	svc, _, p := newTestService(t)
	svc.pipelines = failingPipelines{err: errors.New("connection refused")}

	err := svc.HandleRunRequested(context.Background(), mq.RunRequestedPayload{PipelineID: p.ID})
	if err == nil {
		t.Fatal("expected error for retry")
	}
	if mq.Decide(err, false) != mq.OutcomeRequeue {
		t.Errorf("first failure should be requeued, got %s", mq.Decide(err, false))
	}
	if mq.Decide(err, true) != mq.OutcomeDeadLetter {
		t.Errorf("redelivered failure should be dead-lettered, got %s", mq.Decide(err, true))
	}
}

type failingPipelines struct{ err error }

func (f failingPipelines) GetByID(context.Context, uuid.UUID) (*domain.Pipeline, error) {
	return nil, f.err
}

func TestLocalDispatcher(t *testing.T) {
	svc, history, p := newTestService(t)
	d := NewLocalDispatcher(svc, telemetry.Discard())

	id, err := d.Dispatch(context.Background(), RunRequest{PipelineID: p.ID})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	d.Wait()

	if _, err := history.Get(context.Background(), id); err != nil {
		t.Errorf("dispatched run not stored: %v", err)
	}
}

type fakeRunPublisher struct {
	got []mq.RunRequestedPayload
}

func (f *fakeRunPublisher) PublishRunRequested(_ context.Context, payload mq.RunRequestedPayload) error {
	f.got = append(f.got, payload)
	return nil
}

func TestQueueDispatcher(t *testing.T) {
	pub := &fakeRunPublisher{}
	pipelineID := uuid.New()

	id, err := NewQueueDispatcher(pub).Dispatch(context.Background(), RunRequest{PipelineID: pipelineID, Trigger: "api"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if len(pub.got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(pub.got))
	}
	if pub.got[0].RequestID != id || pub.got[0].PipelineID != pipelineID || id == uuid.Nil {
		t.Errorf("unexpected payload: %+v (id %s)", pub.got[0], id)
	}
}

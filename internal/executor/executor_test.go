package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/registry"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// newGraph строит граф из ID узлов (тип "step") и рёбер вида "a->b".
func newGraph(ids []string, edges ...string) *domain.Graph {
	g := &domain.Graph{}
	for _, id := range ids {
		g.Nodes = append(g.Nodes, &domain.Node{ID: id, Type: "step"})
	}
	for _, e := range edges {
		parts := strings.SplitN(e, "->", 2)
		g.Edges = append(g.Edges, domain.Edge{ID: e, Source: parts[0], Target: parts[1]})
	}
	return g
}

func newTestExecutor(cfg Config) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = telemetry.Discard()
	}
	return New(cfg)
}

// echo возвращает ID узла как результат.
func echo(_ context.Context, n *domain.Node, _ map[string]any) (any, error) {
	return n.ID, nil
}

// recordingSink запоминает события.
type recordingSink struct {
	mu       sync.Mutex
	events   []NodeEvent
	finished []*domain.ExecutionRecord
}

func (s *recordingSink) NodeStatusChanged(_ context.Context, ev NodeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) RunFinished(_ context.Context, rec *domain.ExecutionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = append(s.finished, rec)
}

func TestRun_Diamond(t *testing.T) {
	g := newGraph([]string{"A", "B", "C", "D"}, "A->B", "A->C", "B->D", "C->D")

	var dInputs map[string]any
	cb := func(ctx context.Context, n *domain.Node, inputs map[string]any) (any, error) {
		if n.ID == "D" {
			dInputs = inputs
		}
		return echo(ctx, n, inputs)
	}

	rec := newTestExecutor(Config{}).Run(context.Background(), g, cb)

	if rec.Status != domain.RecordSuccess {
		t.Fatalf("expected success, got %s (%s)", rec.Status, rec.Error)
	}
	if len(rec.Details) != 4 {
		t.Fatalf("expected 4 details, got %d", len(rec.Details))
	}
	for id, res := range rec.Details {
		if res.Status != domain.StatusSuccess {
			t.Errorf("node %s: expected success, got %s", id, res.Status)
		}
	}

	want := map[string]any{"B": "B", "C": "C"}
	if diff := cmp.Diff(want, dInputs); diff != "" {
		t.Errorf("D inputs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"A", "B", "C", "D"}, rec.Order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_FailureStopsRun(t *testing.T) {
	g := newGraph([]string{"A", "B"}, "A->B")

	cb := func(_ context.Context, n *domain.Node, _ map[string]any) (any, error) {
		if n.ID == "A" {
			return nil, errors.New("boom")
		}
		return "ok", nil
	}

	rec := newTestExecutor(Config{}).Run(context.Background(), g, cb)

	if rec.Status != domain.RecordError {
		t.Errorf("expected error status, got %s", rec.Status)
	}
	want := domain.NodeResult{Status: domain.StatusError, Error: "boom"}
	if diff := cmp.Diff(want, rec.Details["A"]); diff != "" {
		t.Errorf("A result mismatch (-want +got):\n%s", diff)
	}
	if _, ok := rec.Details["B"]; ok {
		t.Error("B should not be executed")
	}
	if rec.TotalNodes != 2 {
		t.Errorf("expected total 2, got %d", rec.TotalNodes)
	}
	if !strings.Contains(rec.Error, ErrExecutionFailed.Error()) || !strings.Contains(rec.Error, "boom") {
		t.Errorf("unexpected run error: %q", rec.Error)
	}

	// Узел, который не выполнялся, остаётся idle
	if g.Node("B").ExecutionStatus != domain.StatusIdle {
		t.Errorf("expected B idle, got %s", g.Node("B").ExecutionStatus)
	}
	if g.Node("A").ExecutionError != "boom" {
		t.Errorf("expected A error to be stored, got %q", g.Node("A").ExecutionError)
	}
}

func TestRun_FailureStopsSiblings(t *testing.T) {
	g := newGraph([]string{"A", "B", "C"}, "A->B", "A->C")

	calls := 0
	cb := func(_ context.Context, n *domain.Node, _ map[string]any) (any, error) {
		calls++
		if n.ID == "A" {
			return nil, errors.New("boom")
		}
		return "ok", nil
	}

	rec := newTestExecutor(Config{}).Run(context.Background(), g, cb)

	if rec.Status != domain.RecordError {
		t.Errorf("expected error status, got %s", rec.Status)
	}
	for _, id := range []string{"B", "C"} {
		if res, ok := rec.Details[id]; ok && res.Status == domain.StatusSuccess {
			t.Errorf("%s should not succeed after A failed", id)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 callback call, got %d", calls)
	}
}

func TestRun_LinearOrder(t *testing.T) {
	g := newGraph([]string{"C", "B", "A"}, "A->B", "B->C")

	rec := newTestExecutor(Config{}).Run(context.Background(), g, echo)

	if diff := cmp.Diff([]string{"A", "B", "C"}, rec.Order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_ResetsPreviousRun(t *testing.T) {
	g := newGraph([]string{"A", "B"}, "A->B")
	g.Node("B").MarkFailed("stale")

	cb := func(_ context.Context, n *domain.Node, _ map[string]any) (any, error) {
		if n.ID == "A" {
			return nil, errors.New("boom")
		}
		return "ok", nil
	}

	newTestExecutor(Config{}).Run(context.Background(), g, cb)

	b := g.Node("B")
	if b.ExecutionStatus != domain.StatusIdle || b.ExecutionError != "" {
		t.Errorf("expected B reset to idle, got %s %q", b.ExecutionStatus, b.ExecutionError)
	}
}

func TestRun_CallbackPrecedence(t *testing.T) {
	reg := registry.New()
	reg.Register(&registry.Item{
		Type: "build",
		Execute: func(_ context.Context, n *domain.Node, _ map[string]any) (any, error) {
			return "built " + n.ID, nil
		},
	})

	g := &domain.Graph{
		Nodes: []*domain.Node{
			{ID: "src", Type: "unknown"},
			{ID: "app", Type: "build"},
		},
		Edges: []domain.Edge{{Source: "src", Target: "app"}},
	}

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e := newTestExecutor(Config{Registry: reg, Now: func() time.Time { return fixed }})

	rec := e.Run(context.Background(), g, nil)
	if rec.Status != domain.RecordSuccess {
		t.Fatalf("expected success, got %s (%s)", rec.Status, rec.Error)
	}

	// Неизвестный тип получает результат по умолчанию
	wantDefault := map[string]any{
		"status":    "executed",
		"timestamp": "2026-01-02T03:04:05Z",
		"inputs":    map[string]any{},
	}
	if diff := cmp.Diff(wantDefault, rec.Details["src"].Output); diff != "" {
		t.Errorf("default output mismatch (-want +got):\n%s", diff)
	}
	if rec.Details["app"].Output != "built app" {
		t.Errorf("expected registry executor, got %v", rec.Details["app"].Output)
	}

	// Явный callback важнее реестра
	rec = e.Run(context.Background(), g, echo)
	if rec.Details["app"].Output != "app" {
		t.Errorf("expected explicit callback, got %v", rec.Details["app"].Output)
	}
}

func TestRun_InputKeys(t *testing.T) {
	g := &domain.Graph{
		Nodes: []*domain.Node{
			{ID: "cond", Type: "step"},
			{ID: "x", Type: "step"},
			{ID: "y", Type: "step"},
			{ID: "sink", Type: "step"},
		},
		Edges: []domain.Edge{
			{Source: "cond", Target: "sink", SourceHandle: "true"},
			{Source: "x", Target: "sink", TargetHandle: "artifacts"},
			{Source: "y", Target: "sink", TargetHandle: "artifacts"},
		},
	}

	var got map[string]any
	cb := func(ctx context.Context, n *domain.Node, inputs map[string]any) (any, error) {
		if n.ID == "sink" {
			got = inputs
		}
		return echo(ctx, n, inputs)
	}

	rec := newTestExecutor(Config{}).Run(context.Background(), g, cb)
	if rec.Status != domain.RecordSuccess {
		t.Fatalf("expected success, got %s (%s)", rec.Status, rec.Error)
	}

	want := map[string]any{
		"true":      "cond",
		"artifacts": []any{"x", "y"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("inputs mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_CyclicGraph(t *testing.T) {
	g := newGraph([]string{"A", "B", "C"}, "A->B", "B->C", "C->B")

	called := false
	cb := func(context.Context, *domain.Node, map[string]any) (any, error) {
		called = true
		return nil, nil
	}

	rec := newTestExecutor(Config{}).Run(context.Background(), g, cb)

	if rec.Status != domain.RecordError {
		t.Errorf("expected error status, got %s", rec.Status)
	}
	if !strings.HasPrefix(rec.Error, engine.ErrCyclicGraph.Error()) {
		t.Errorf("expected cyclic graph error, got %q", rec.Error)
	}
	if called || len(rec.Details) != 0 {
		t.Error("no node should run on a cyclic graph")
	}
	if rec.TotalNodes != 3 {
		t.Errorf("expected total 3, got %d", rec.TotalNodes)
	}
}

func TestRun_NilGraph(t *testing.T) {
	rec := newTestExecutor(Config{}).Run(context.Background(), nil, echo)

	if rec.Status != domain.RecordError || rec.Error != ErrNilGraph.Error() {
		t.Errorf("unexpected record: %s %q", rec.Status, rec.Error)
	}
}

func TestRun_EmptyGraph(t *testing.T) {
	rec := newTestExecutor(Config{}).Run(context.Background(), &domain.Graph{}, echo)

	if rec.Status != domain.RecordSuccess || rec.TotalNodes != 0 {
		t.Errorf("unexpected record: %s total=%d", rec.Status, rec.TotalNodes)
	}
}

func TestRun_Retry(t *testing.T) {
	g := newGraph([]string{"flaky"})
	g.Nodes[0].Properties = map[string]any{
		"retry": map[string]any{"max_attempts": 3, "initial_delay_ms": 1},
	}

	attempts := 0
	cb := func(context.Context, *domain.Node, map[string]any) (any, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("temporary")
		}
		return "ok", nil
	}

	rec := newTestExecutor(Config{}).Run(context.Background(), g, cb)

	if rec.Status != domain.RecordSuccess {
		t.Fatalf("expected success, got %s (%s)", rec.Status, rec.Error)
	}
	if rec.Details["flaky"].Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", rec.Details["flaky"].Attempts)
	}
}

func TestRun_RetryExhausted(t *testing.T) {
	g := newGraph([]string{"broken"})
	g.Nodes[0].Properties = map[string]any{
		"retry": map[string]any{"max_attempts": 2, "initial_delay_ms": 1},
	}

	attempts := 0
	cb := func(context.Context, *domain.Node, map[string]any) (any, error) {
		attempts++
		return nil, errors.New("permanent")
	}

	rec := newTestExecutor(Config{}).Run(context.Background(), g, cb)

	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
	want := domain.NodeResult{Status: domain.StatusError, Error: "permanent", Attempts: 2}
	if diff := cmp.Diff(want, rec.Details["broken"]); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_Panic(t *testing.T) {
	g := newGraph([]string{"A"})

	cb := func(context.Context, *domain.Node, map[string]any) (any, error) {
		panic("nil map")
	}

	rec := newTestExecutor(Config{}).Run(context.Background(), g, cb)

	if rec.Details["A"].Error != "panic: nil map" {
		t.Errorf("unexpected error: %q", rec.Details["A"].Error)
	}
}

func TestRun_Cancelled(t *testing.T) {
	g := newGraph([]string{"A", "B"}, "A->B")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cb := func(_ context.Context, n *domain.Node, _ map[string]any) (any, error) {
		if n.ID == "A" {
			cancel()
		}
		return n.ID, nil
	}

	history := NewMemoryHistory(0)
	rec := newTestExecutor(Config{History: history}).Run(ctx, g, cb)

	if rec.Status != domain.RecordError || rec.Error != context.Canceled.Error() {
		t.Errorf("unexpected record: %s %q", rec.Status, rec.Error)
	}
	if _, ok := rec.Details["B"]; ok {
		t.Error("B should not run after cancel")
	}
	// Запись сохраняется даже после отмены
	if history.Len() != 1 {
		t.Errorf("expected record in history, got %d", history.Len())
	}
}

func TestRun_Parallel(t *testing.T) {
	g := newGraph([]string{"A", "B", "C", "D"}, "A->B", "A->C", "B->D", "C->D")

	var arrived sync.WaitGroup
	arrived.Add(2)
	both := make(chan struct{})
	go func() {
		arrived.Wait()
		close(both)
	}()

	cb := func(_ context.Context, n *domain.Node, inputs map[string]any) (any, error) {
		if n.ID == "B" || n.ID == "C" {
			arrived.Done()
			select {
			case <-both:
			case <-time.After(2 * time.Second):
				return nil, errors.New("siblings did not run concurrently")
			}
		}
		return len(inputs), nil
	}

	rec := newTestExecutor(Config{Parallelism: 4}).Run(context.Background(), g, cb)

	if rec.Status != domain.RecordSuccess {
		t.Fatalf("expected success, got %s (%s)", rec.Status, rec.Error)
	}
	if diff := cmp.Diff([]string{"A", "B", "C", "D"}, rec.Order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if rec.Details["D"].Output != 2 {
		t.Errorf("expected D to see 2 inputs, got %v", rec.Details["D"].Output)
	}
}

func TestRun_ParallelFailureDiscardsLaterSiblings(t *testing.T) {
	g := newGraph([]string{"A", "B", "C", "D"}, "A->B", "A->C", "C->D")

	cb := func(_ context.Context, n *domain.Node, _ map[string]any) (any, error) {
		if n.ID == "B" {
			return nil, errors.New("boom")
		}
		return n.ID, nil
	}

	rec := newTestExecutor(Config{Parallelism: 2}).Run(context.Background(), g, cb)

	if rec.Status != domain.RecordError {
		t.Errorf("expected error status, got %s", rec.Status)
	}
	if diff := cmp.Diff([]string{"A", "B"}, rec.Order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if _, ok := rec.Details["C"]; ok {
		t.Error("C result should be discarded after B failed")
	}
	if g.Node("C").ExecutionStatus != domain.StatusIdle {
		t.Errorf("expected C idle, got %s", g.Node("C").ExecutionStatus)
	}
}

func TestRun_HistoryAndEvents(t *testing.T) {
	g := newGraph([]string{"A", "B"}, "A->B")
	history := NewMemoryHistory(0)
	sink := &recordingSink{}
	pipelineID := uuid.New()
	runID := uuid.New()

	e := newTestExecutor(Config{History: history, Events: Sinks{sink, nil}})
	rec := e.Execute(context.Background(), Request{
		Graph:      g,
		Callback:   echo,
		RunID:      runID,
		PipelineID: &pipelineID,
		Trigger:    "manual",
	})

	// Заданный RunID становится ID записи
	if rec.ID != runID {
		t.Errorf("expected record id %s, got %s", runID, rec.ID)
	}

	stored, err := history.Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("record not stored: %v", err)
	}
	if stored != rec || *stored.PipelineID != pipelineID || stored.Trigger != "manual" {
		t.Errorf("unexpected stored record: %+v", stored)
	}

	var statuses []string
	for _, ev := range sink.events {
		if ev.RunID != rec.ID {
			t.Errorf("event for another run: %s", ev.RunID)
		}
		statuses = append(statuses, ev.NodeID+":"+string(ev.Status))
	}
	want := []string{"A:executing", "A:success", "B:executing", "B:success"}
	if diff := cmp.Diff(want, statuses); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if len(sink.finished) != 1 || sink.finished[0] != rec {
		t.Errorf("expected one RunFinished with the record, got %d", len(sink.finished))
	}
}

func TestRunSequential_UnreachableDependency(t *testing.T) {
	g := newGraph([]string{"A", "B"}, "A->B")
	rec := &domain.ExecutionRecord{Details: map[string]domain.NodeResult{}}
	st := newRunState(g, rec)

	// B ждёт родителя, которого никто не поставит в очередь
	b := st.dag.Nodes["B"]
	b.Parents = append(b.Parents, &engine.Vertex{ID: "ghost"})

	e := newTestExecutor(Config{})
	err := e.runSequential(context.Background(), st, echo, telemetry.Discard())

	if !errors.Is(err, ErrUnreachableDependency) {
		t.Fatalf("expected ErrUnreachableDependency, got %v", err)
	}
	if !strings.Contains(err.Error(), "[B]") {
		t.Errorf("expected B in error, got %v", err)
	}
	if _, ok := rec.Details["A"]; !ok {
		t.Error("A should have run before starvation was detected")
	}
}

func TestRunParallel_UnreachableDependency(t *testing.T) {
	g := newGraph([]string{"A", "B"}, "A->B")
	rec := &domain.ExecutionRecord{Details: map[string]domain.NodeResult{}}
	st := newRunState(g, rec)

	b := st.dag.Nodes["B"]
	b.Parents = append(b.Parents, &engine.Vertex{ID: "ghost"})

	e := newTestExecutor(Config{Parallelism: 2})
	err := e.runParallel(context.Background(), st, echo, telemetry.Discard())

	if !errors.Is(err, ErrUnreachableDependency) {
		t.Fatalf("expected ErrUnreachableDependency, got %v", err)
	}
}

func TestCalculateBackoff(t *testing.T) {
	exp := &domain.RetryPolicy{Backoff: "exponential", InitialDelayMs: 100, MaxDelayMs: 500}
	fixed := &domain.RetryPolicy{Backoff: "fixed", InitialDelayMs: 250}

	tests := []struct {
		name    string
		attempt int
		policy  *domain.RetryPolicy
		want    time.Duration
	}{
		{"nil policy", 1, nil, time.Second},
		{"exponential first", 1, exp, 100 * time.Millisecond},
		{"exponential third", 3, exp, 400 * time.Millisecond},
		{"exponential capped", 6, exp, 500 * time.Millisecond},
		{"fixed", 4, fixed, 250 * time.Millisecond},
		{"default delay", 1, &domain.RetryPolicy{}, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := calculateBackoff(tt.attempt, tt.policy); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

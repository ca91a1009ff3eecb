package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/registry"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Callback выполняет один узел. inputs — результаты родителей.
type Callback func(ctx context.Context, node *domain.Node, inputs map[string]any) (any, error)

// Request — запрос на прогон графа.
type Request struct {
	Graph *domain.Graph

	// Callback — общий callback для всех узлов. Nil — Execute из реестра.
	Callback Callback

	// RunID — ID записи. uuid.Nil — сгенерировать новый.
	RunID uuid.UUID

	// PipelineID, Trigger, IdempotencyKey копируются в запись.
	PipelineID     *uuid.UUID
	Trigger        string
	IdempotencyKey string
}

// Executor выполняет графы пайплайнов.
//
// Один Executor можно использовать для нескольких прогонов одновременно,
// если они выполняют разные графы: прогон меняет поля Execution* узлов.
type Executor struct {
	registry    *registry.Registry
	logger      *slog.Logger
	metrics     *telemetry.Metrics
	history     History
	events      EventSink
	parallelism int
	now         func() time.Time
}

// Config — конфигурация Executor.
type Config struct {
	Registry *registry.Registry
	Logger   *slog.Logger
	Metrics  *telemetry.Metrics

	// History — журнал прогонов. Nil — записи не сохраняются.
	History History

	// Events — получатель событий. Nil — события не отправляются.
	Events EventSink

	// Parallelism — сколько готовых узлов выполнять одновременно (default: 1).
	Parallelism int

	// Now — источник времени (default: time.Now).
	Now func() time.Time
}

// New создаёт новый Executor.
func New(cfg Config) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	parallelism := cfg.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Executor{
		registry:    cfg.Registry,
		logger:      logger,
		metrics:     cfg.Metrics,
		history:     cfg.History,
		events:      cfg.Events,
		parallelism: parallelism,
		now:         now,
	}
}

// History возвращает журнал прогонов (может быть nil).
func (e *Executor) History() History {
	return e.history
}

// Run выполняет граф и возвращает отчёт. Ошибки узлов и прогона
// попадают в запись; сам Run не падает.
func (e *Executor) Run(ctx context.Context, g *domain.Graph, cb Callback) *domain.ExecutionRecord {
	return e.Execute(ctx, Request{Graph: g, Callback: cb})
}

// Execute выполняет запрос на прогон.
func (e *Executor) Execute(ctx context.Context, req Request) *domain.ExecutionRecord {
	start := e.now()
	id := req.RunID
	if id == uuid.Nil {
		id = uuid.New()
	}
	rec := &domain.ExecutionRecord{
		ID:             id,
		PipelineID:     req.PipelineID,
		Timestamp:      start,
		Status:         domain.RecordSuccess,
		Details:        make(map[string]domain.NodeResult),
		Order:          []string{},
		Trigger:        req.Trigger,
		IdempotencyKey: req.IdempotencyKey,
	}

	logger := telemetry.WithRunID(e.logger, rec.ID.String())
	if req.PipelineID != nil {
		logger = telemetry.WithPipelineID(logger, req.PipelineID.String())
	}

	err := e.run(ctx, req, rec, logger)
	e.finish(ctx, rec, err, start, logger)
	return rec
}

// run — цикл прогона. Ошибка означает, что прогон остановлен.
func (e *Executor) run(ctx context.Context, req Request, rec *domain.ExecutionRecord, logger *slog.Logger) error {
	g := req.Graph
	if g == nil {
		return ErrNilGraph
	}

	rec.TotalNodes = len(g.Nodes)
	g.ResetExecution()

	if err := engine.DetectCycle(g); err != nil {
		return err
	}

	st := newRunState(g, rec)

	logger.Info("run started",
		"nodes", len(g.Nodes),
		"edges", len(g.Edges),
		"parallelism", e.parallelism,
	)

	if e.parallelism > 1 {
		return e.runParallel(ctx, st, req.Callback, logger)
	}
	return e.runSequential(ctx, st, req.Callback, logger)
}

// runSequential выполняет узлы по одному из общей очереди.
//
// Неготовый узел возвращается в конец очереди. Если вся очередь
// прошла без прогресса, оставшиеся узлы недостижимы.
func (e *Executor) runSequential(ctx context.Context, st *runState, cb Callback, logger *slog.Logger) error {
	queue := st.roots()
	stalled := 0

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		v := queue[0]
		queue = queue[1:]

		if st.executed[v.ID] {
			stalled = 0
			continue
		}

		if !st.ready(v) {
			queue = append(queue, v)
			stalled++
			if stalled >= len(queue) {
				return unreachable(queue)
			}
			continue
		}
		stalled = 0

		fn := e.callbackFor(cb, v.Node)
		inputs := st.inputs(v.Node)
		e.start(ctx, st, v.Node)

		res := e.executeWithRetry(ctx, v.Node, fn, inputs, logger)
		if err := e.complete(ctx, st, v, res, logger); err != nil {
			return err
		}

		queue = append(queue, v.Children...)
	}

	return nil
}

// runParallel выполняет за один проход все готовые узлы очереди.
//
// Узлы прохода запускаются одновременно (не больше parallelism),
// результаты применяются в порядке очереди. Результаты, идущие после
// первой ошибки, отбрасываются, а их узлы возвращаются в idle.
func (e *Executor) runParallel(ctx context.Context, st *runState, cb Callback, logger *slog.Logger) error {
	queue := st.roots()

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		var batch, waiting []*engine.Vertex
		inBatch := make(map[string]bool)
		for _, v := range queue {
			switch {
			case st.executed[v.ID] || inBatch[v.ID]:
			case st.ready(v):
				batch = append(batch, v)
				inBatch[v.ID] = true
			default:
				waiting = append(waiting, v)
			}
		}

		if len(batch) == 0 {
			if len(waiting) == 0 {
				return nil
			}
			return unreachable(waiting)
		}

		results := e.executeBatch(ctx, st, batch, cb, logger)

		queue = waiting
		for i, v := range batch {
			if err := e.complete(ctx, st, v, results[i], logger); err != nil {
				for _, rest := range batch[i+1:] {
					rest.Node.ResetExecution()
				}
				return err
			}
			queue = append(queue, v.Children...)
		}
	}

	return nil
}

// executeBatch запускает callback'и узлов прохода параллельно.
func (e *Executor) executeBatch(ctx context.Context, st *runState, batch []*engine.Vertex, cb Callback, logger *slog.Logger) []nodeResult {
	results := make([]nodeResult, len(batch))
	fns := make([]Callback, len(batch))
	inputs := make([]map[string]any, len(batch))

	for i, v := range batch {
		fns[i] = e.callbackFor(cb, v.Node)
		inputs[i] = st.inputs(v.Node)
		e.start(ctx, st, v.Node)
	}

	var g errgroup.Group
	g.SetLimit(e.parallelism)
	for i, v := range batch {
		g.Go(func() error {
			results[i] = e.executeWithRetry(ctx, v.Node, fns[i], inputs[i], logger)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// callbackFor выбирает callback узла: явный, из реестра или по умолчанию.
func (e *Executor) callbackFor(cb Callback, n *domain.Node) Callback {
	if cb != nil {
		return cb
	}
	if e.registry != nil {
		if item, err := e.registry.Get(n.Type); err == nil && item.Execute != nil {
			return Callback(item.Execute)
		}
	}
	return e.defaultOutput
}

// defaultOutput — результат узла без callback'а.
func (e *Executor) defaultOutput(_ context.Context, _ *domain.Node, inputs map[string]any) (any, error) {
	return map[string]any{
		"status":    "executed",
		"timestamp": e.now().UTC().Format(time.RFC3339Nano),
		"inputs":    inputs,
	}, nil
}

// start переводит узел в executing.
func (e *Executor) start(ctx context.Context, st *runState, n *domain.Node) {
	n.MarkExecuting()
	e.emit(ctx, st, n, 0)
}

// complete применяет результат узла и сообщает о нём.
func (e *Executor) complete(ctx context.Context, st *runState, v *engine.Vertex, res nodeResult, logger *slog.Logger) error {
	err := st.apply(v, res)

	n := v.Node
	e.metrics.ObserveNode(n.Type, string(n.ExecutionStatus))
	e.emit(ctx, st, n, res.attempts)

	if err != nil {
		logger.Warn("node failed",
			"node_id", n.ID,
			"type", n.Type,
			"attempts", res.attempts,
			"error", n.ExecutionError,
		)
		return err
	}

	logger.Debug("node succeeded",
		"node_id", n.ID,
		"type", n.Type,
		"attempts", res.attempts,
	)
	return nil
}

// emit отправляет событие о статусе узла.
func (e *Executor) emit(ctx context.Context, st *runState, n *domain.Node, attempts int) {
	if e.events == nil {
		return
	}
	e.events.NodeStatusChanged(ctx, NodeEvent{
		RunID:      st.record.ID,
		PipelineID: st.record.PipelineID,
		NodeID:     n.ID,
		Type:       n.Type,
		Status:     n.ExecutionStatus,
		Error:      n.ExecutionError,
		Attempts:   attempts,
		Timestamp:  e.now(),
	})
}

// finish закрывает запись: статус, длительность, журнал, события, метрики.
func (e *Executor) finish(ctx context.Context, rec *domain.ExecutionRecord, runErr error, start time.Time, logger *slog.Logger) {
	if runErr != nil {
		rec.Status = domain.RecordError
		rec.Error = runErr.Error()
	}

	duration := e.now().Sub(start)
	rec.DurationMs = duration.Milliseconds()
	e.metrics.ObserveRun(string(rec.Status), duration)

	// Журнал и события не должны зависеть от отмены прогона.
	outCtx := context.WithoutCancel(ctx)

	if e.history != nil {
		if err := e.history.Append(outCtx, rec); err != nil {
			logger.Warn("failed to append execution record", "error", err)
		}
	}
	if e.events != nil {
		e.events.RunFinished(outCtx, rec)
	}

	logger.Info("run finished",
		"status", rec.Status,
		"executed", rec.Executed(),
		"total", rec.TotalNodes,
		"duration_ms", rec.DurationMs,
		"error", rec.Error,
	)
}

package compiler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/registry"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// TriggerAggregator собирает секцию запуска из всех узлов графа
// (включая триггеры, которые не попадают в задания).
// Невалидные триггеры пропускаются с предупреждением в logger.
type TriggerAggregator func(nodes []*domain.Node, logger *slog.Logger) any

// Wrapper строит итоговое значение из документа и триггеров.
type Wrapper func(document any, triggers any, nodes []*domain.Node) any

// Formatter сериализует итоговое значение в текст.
type Formatter func(value any) (string, error)

// Options — настройки одной компиляции.
type Options struct {
	// Strategy — стратегия сборки. Nil — FlatStrategy.
	Strategy Strategy

	// Triggers — агрегатор триггеров (необязателен).
	Triggers TriggerAggregator

	// Wrapper — обёртка документа (необязательна).
	Wrapper Wrapper

	// Formatter — сериализация (необязательна). Без неё строка
	// возвращается как есть, остальное — как JSON.
	Formatter Formatter

	// ExcludeTriggers — не передавать триггерные узлы в стратегию.
	ExcludeTriggers bool

	// StageMode — режим стадий. Пусто — режим компилятора.
	StageMode engine.StageMode

	// RootPredicate — предикат корней. Nil — engine.DefaultRootPredicate.
	RootPredicate engine.RootPredicate

	// JobName — имя задания для стадии. Nil — DefaultJobName.
	JobName JobNamer
}

// Result — результат компиляции.
type Result struct {
	// Backend — целевой backend.
	Backend registry.Backend `json:"backend"`

	// Plan — план стадий, по которому шла компиляция.
	Plan *engine.Plan `json:"plan"`

	// Jobs — готовые стадии (имя задания → стадия) в порядке стадий.
	Jobs *OrderedMap `json:"-"`

	// Document — результат CombineStages.
	Document any `json:"-"`

	// Triggers — результат агрегатора триггеров.
	Triggers any `json:"-"`

	// Value — итоговое значение после обёртки.
	Value any `json:"-"`

	// Text — сериализованный документ.
	Text string `json:"text"`

	// Skipped — узлы без типа или генератора для backend'а.
	Skipped []string `json:"skipped,omitempty"`
}

// Request — запрос на компиляцию зарегистрированным backend'ом.
type Request struct {
	Graph   *domain.Graph
	Backend registry.Backend

	// Title — имя документа (name: в workflow). Пусто — "pipeline".
	Title string

	// StageMode переопределяет режим стадий компилятора.
	StageMode engine.StageMode
}

// Compiler — компилятор графа в конфигурацию backend'ов.
//
// Потокобезопасен: таблица backend'ов защищена мьютексом,
// реестр типов только читается.
type Compiler struct {
	registry  *registry.Registry
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	stageMode engine.StageMode

	mu      sync.RWMutex
	targets map[registry.Backend]Target
}

// Config — конфигурация Compiler.
type Config struct {
	Registry  *registry.Registry
	Logger    *slog.Logger
	Metrics   *telemetry.Metrics
	StageMode engine.StageMode // default: engine.ModeLongestPath

	// NoBuiltinTargets — не регистрировать встроенные backend'ы.
	NoBuiltinTargets bool
}

// New создаёт новый Compiler со встроенными backend'ами.
func New(cfg Config) *Compiler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reg := cfg.Registry
	if reg == nil {
		reg = registry.New()
	}

	mode := cfg.StageMode
	if mode == "" {
		mode = engine.ModeLongestPath
	}

	c := &Compiler{
		registry:  reg,
		logger:    logger,
		metrics:   cfg.Metrics,
		stageMode: mode,
		targets:   make(map[registry.Backend]Target),
	}

	if !cfg.NoBuiltinTargets {
		for _, t := range BuiltinTargets() {
			c.RegisterTarget(t)
		}
	}

	return c
}

// Registry возвращает реестр типов компилятора.
func (c *Compiler) Registry() *registry.Registry {
	return c.registry
}

// RegisterTarget регистрирует backend. Повторная регистрация заменяет его.
func (c *Compiler) RegisterTarget(t Target) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targets[t.Name] = t
}

// Target возвращает backend по имени.
func (c *Compiler) Target(name registry.Backend) (Target, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.targets[name]
	if !ok {
		return Target{}, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
	return t, nil
}

// Targets возвращает все backend'ы по имени.
func (c *Compiler) Targets() []Target {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Target, 0, len(c.targets))
	for _, t := range c.targets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Compile компилирует граф зарегистрированным backend'ом и возвращает текст.
//
// Ошибка возможна только для неизвестного backend'а или при сбое formatter'а;
// узлы без генератора молча пропускаются.
func (c *Compiler) Compile(g *domain.Graph, backend registry.Backend) (string, error) {
	res, err := c.Build(Request{Graph: g, Backend: backend})
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// Build компилирует граф зарегистрированным backend'ом.
func (c *Compiler) Build(req Request) (*Result, error) {
	target, err := c.Target(req.Backend)
	if err != nil {
		return nil, err
	}

	opts := target.Options(req)
	if req.StageMode != "" {
		opts.StageMode = req.StageMode
	}

	return c.CompileWith(req.Graph, req.Backend, opts)
}

// CompileWith — ядро компиляции с явными настройками.
//
// Процедура:
//  1. Граф разбивается на стадии (engine.StageGraph).
//  2. Для каждой стадии зависимости переводятся в имена готовых заданий.
//  3. Узлы стадии проходят через генераторы реестра и Strategy.ProcessNode;
//     узлы без генератора пропускаются.
//  4. Strategy.FinalizeStage; отброшенная стадия передаёт свои зависимости дальше.
//  5. Strategy.CombineStages, затем триггеры, обёртка и formatter.
//
// Результат детерминирован для одинаковых входных данных.
func (c *Compiler) CompileWith(g *domain.Graph, backend registry.Backend, opts Options) (*Result, error) {
	start := time.Now()
	logger := telemetry.WithBackend(c.logger, string(backend))

	if g == nil {
		g = &domain.Graph{}
	}
	strategy := opts.Strategy
	if strategy == nil {
		strategy = FlatStrategy{}
	}
	namer := opts.JobName
	if namer == nil {
		namer = DefaultJobName
	}
	mode := opts.StageMode
	if mode == "" {
		mode = c.stageMode
	}

	plan := engine.StageGraph(g, engine.WithMode(mode), engine.WithRootPredicate(opts.RootPredicate))
	if plan.Cyclic {
		logger.Warn("graph contains a cycle, staging in breadth-first mode")
	}
	if len(plan.Unstaged) > 0 {
		logger.Debug("nodes unreachable from roots", "nodes", plan.Unstaged)
	}

	res := &Result{
		Backend: backend,
		Plan:    plan,
		Jobs:    NewOrderedMap(),
	}

	names := make(nameSet)
	// resolved — стадия → задания, которые её представляют.
	// Отброшенная стадия представлена своими зависимостями.
	resolved := make(map[string][]string, len(plan.Stages))

	for _, stage := range plan.Stages {
		nodes := stage.Nodes
		if opts.ExcludeTriggers {
			nodes = withoutTriggers(nodes)
		}

		needs := resolveNeeds(stage.Dependencies, resolved)

		acc := strategy.InitStage()
		var contributing []*domain.Node
		for _, n := range nodes {
			gen, err := c.registry.Generator(n.Type, backend)
			if err != nil {
				logger.Debug("node skipped", "node_id", n.ID, "type", n.Type, "reason", err)
				res.Skipped = append(res.Skipped, n.ID)
				continue
			}
			fragment, ok := gen(n)
			if !ok || fragment == nil {
				res.Skipped = append(res.Skipped, n.ID)
				continue
			}
			acc = strategy.ProcessNode(n, fragment, acc)
			contributing = append(contributing, n)
		}

		name := names.next(namer(stage, contributing))
		finalized, ok := strategy.FinalizeStage(acc, name, needs)
		if !ok {
			resolved[stage.Name] = needs
			continue
		}

		names.take(name)
		res.Jobs.Set(name, finalized)
		resolved[stage.Name] = []string{name}
	}

	res.Document = strategy.CombineStages(res.Jobs)

	if opts.Triggers != nil {
		res.Triggers = opts.Triggers(g.Nodes, logger)
	}

	res.Value = res.Document
	if opts.Wrapper != nil {
		res.Value = opts.Wrapper(res.Document, res.Triggers, g.Nodes)
	}

	text, err := format(res.Value, opts.Formatter)
	c.metrics.ObserveCompile(string(backend), err == nil, len(res.Skipped), time.Since(start))
	if err != nil {
		return nil, err
	}
	res.Text = text

	logger.Debug("graph compiled",
		"stages", len(plan.Stages),
		"jobs", res.Jobs.Len(),
		"skipped", len(res.Skipped),
	)

	return res, nil
}

// format сериализует итоговое значение.
func format(value any, formatter Formatter) (string, error) {
	if formatter != nil {
		text, err := formatter(value)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrFormat, err)
		}
		return text, nil
	}

	if s, ok := value.(string); ok {
		return s, nil
	}

	b, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return string(b), nil
}

// resolveNeeds переводит зависимости стадии в имена готовых заданий.
// Стадии, которые ещё не обработаны (обратные рёбра), пропускаются.
func resolveNeeds(deps []string, resolved map[string][]string) []string {
	var needs []string
	seen := make(map[string]bool)
	for _, dep := range deps {
		for _, name := range resolved[dep] {
			if !seen[name] {
				seen[name] = true
				needs = append(needs, name)
			}
		}
	}
	return needs
}

// withoutTriggers возвращает узлы без триггеров.
func withoutTriggers(nodes []*domain.Node) []*domain.Node {
	out := make([]*domain.Node, 0, len(nodes))
	for _, n := range nodes {
		if !n.IsTrigger() {
			out = append(out, n)
		}
	}
	return out
}

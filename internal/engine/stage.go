package engine

import (
	"fmt"
	"sort"

	"github.com/shaiso/Conveyor/internal/domain"
)

// StageMode — способ назначения узлов стадиям.
type StageMode string

const (
	// ModeLongestPath — стадия узла = max(стадия родителя) + 1 по топологическому порядку.
	// Режим по умолчанию.
	ModeLongestPath StageMode = "longest"

	// ModeBreadthFirst — обход в ширину от корней, первое посещение выигрывает.
	ModeBreadthFirst StageMode = "bfs"
)

// ParseStageMode парсит строку в StageMode.
func ParseStageMode(s string) (StageMode, error) {
	switch s {
	case "", string(ModeLongestPath), "longest-path", "topological":
		return ModeLongestPath, nil
	case string(ModeBreadthFirst), "breadth-first":
		return ModeBreadthFirst, nil
	default:
		return "", fmt.Errorf("unknown stage mode %q", s)
	}
}

// RootPredicate решает, является ли узел корнем обхода.
// inDegree — число уникальных входящих рёбер.
type RootPredicate func(n *domain.Node, inDegree int) bool

// DefaultRootPredicate — корни: триггеры и узлы без входящих рёбер.
func DefaultRootPredicate(n *domain.Node, inDegree int) bool {
	return n.IsTrigger() || inDegree == 0
}

// NoIncomingPredicate — корни: только узлы без входящих рёбер.
func NoIncomingPredicate(_ *domain.Node, inDegree int) bool {
	return inDegree == 0
}

// Stage — группа узлов, которые компилируются или выполняются вместе.
type Stage struct {
	// Name — "stage-<n>".
	Name string `json:"name"`

	// Index — номер стадии, начиная с 0.
	Index int `json:"index"`

	// Nodes — узлы в порядке обхода.
	Nodes []*domain.Node `json:"-"`

	// Dependencies — имена стадий, из которых есть рёбра в эту стадию,
	// по возрастанию номера.
	Dependencies []string `json:"dependencies,omitempty"`
}

// NodeIDs возвращает ID узлов стадии.
func (s *Stage) NodeIDs() []string {
	ids := make([]string, len(s.Nodes))
	for i, n := range s.Nodes {
		ids[i] = n.ID
	}
	return ids
}

// Plan — результат разбиения графа на стадии.
type Plan struct {
	// Stages — стадии по возрастанию номера.
	Stages []*Stage `json:"stages"`

	// NodeStage — nodeID → имя стадии.
	NodeStage map[string]string `json:"node_stage"`

	// Unstaged — узлы, которые не попали ни в одну стадию
	// (недостижимы из корней), в порядке объявления.
	Unstaged []string `json:"unstaged,omitempty"`

	// Mode — фактически использованный режим.
	Mode StageMode `json:"mode"`

	// Cyclic — граф содержит цикл. В режиме ModeLongestPath
	// это приводит к откату на ModeBreadthFirst.
	Cyclic bool `json:"cyclic,omitempty"`
}

// Stage возвращает стадию по имени или nil.
func (p *Plan) Stage(name string) *Stage {
	for _, s := range p.Stages {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// StageName возвращает имя стадии по номеру.
func StageName(index int) string {
	return fmt.Sprintf("stage-%d", index)
}

// stageConfig — настройки StageGraph.
type stageConfig struct {
	mode StageMode
	root RootPredicate
}

// StageOption настраивает StageGraph.
type StageOption func(*stageConfig)

// WithMode задаёт режим назначения стадий.
func WithMode(mode StageMode) StageOption {
	return func(c *stageConfig) {
		if mode != "" {
			c.mode = mode
		}
	}
}

// WithRootPredicate задаёт предикат корней.
func WithRootPredicate(pred RootPredicate) StageOption {
	return func(c *stageConfig) {
		if pred != nil {
			c.root = pred
		}
	}
}

// StageGraph разбивает граф на упорядоченные стадии.
//
// Алгоритм:
//  1. Корни выбираются предикатом (по умолчанию DefaultRootPredicate).
//  2. Узлам назначаются номера стадий: обходом в ширину (первое посещение
//     выигрывает) или по самому длинному пути от корней.
//  3. Для каждой стадии собираются зависимости: стадии источников
//     входящих рёбер, отличные от неё самой.
//
// Функция не возвращает ошибок: на графе с циклом режим ModeLongestPath
// откатывается на ModeBreadthFirst, который всегда завершается.
func StageGraph(g *domain.Graph, opts ...StageOption) *Plan {
	cfg := stageConfig{mode: ModeLongestPath, root: DefaultRootPredicate}
	for _, opt := range opts {
		opt(&cfg)
	}

	dag := BuildDAG(g)
	roots := dag.Roots(cfg.root)

	plan := &Plan{
		NodeStage: make(map[string]string, dag.Size()),
		Mode:      cfg.mode,
	}

	var (
		levels map[string]int
		order  []*Vertex
	)

	if cfg.mode == ModeLongestPath {
		var err error
		levels, order, err = longestPathLevels(dag, roots)
		if err != nil {
			plan.Cyclic = true
			plan.Mode = ModeBreadthFirst
		}
	} else if _, err := dag.TopologicalSort(); err != nil {
		plan.Cyclic = true
	}

	if plan.Mode == ModeBreadthFirst {
		levels, order = breadthFirstLevels(roots)
	}

	plan.Stages = buildStages(levels, order)
	for _, s := range plan.Stages {
		for _, n := range s.Nodes {
			plan.NodeStage[n.ID] = s.Name
		}
	}

	computeDependencies(plan, dag, levels)

	for _, v := range dag.Vertices {
		if _, ok := levels[v.ID]; !ok {
			plan.Unstaged = append(plan.Unstaged, v.ID)
		}
	}

	return plan
}

// breadthFirstLevels назначает стадии обходом в ширину.
// Узел, достижимый несколькими путями, получает стадию первого пути,
// который до него дошёл.
func breadthFirstLevels(roots []*Vertex) (map[string]int, []*Vertex) {
	type item struct {
		v     *Vertex
		stage int
	}

	levels := make(map[string]int)
	order := make([]*Vertex, 0)

	queue := make([]item, 0, len(roots))
	for _, r := range roots {
		queue = append(queue, item{v: r, stage: 0})
	}

	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]

		if _, visited := levels[it.v.ID]; visited {
			continue
		}
		levels[it.v.ID] = it.stage
		order = append(order, it.v)

		for _, child := range it.v.Children {
			queue = append(queue, item{v: child, stage: it.stage + 1})
		}
	}

	return levels, order
}

// longestPathLevels назначает стадию max(стадия родителя)+1
// по топологическому порядку. Учитываются только узлы, достижимые из корней.
func longestPathLevels(dag *DAG, roots []*Vertex) (map[string]int, []*Vertex, error) {
	topo, err := dag.TopologicalSort()
	if err != nil {
		return nil, nil, err
	}

	// Достижимость из корней
	reachable := make(map[string]bool, dag.Size())
	stack := append([]*Vertex(nil), roots...)
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reachable[v.ID] {
			continue
		}
		reachable[v.ID] = true
		stack = append(stack, v.Children...)
	}

	levels := make(map[string]int, len(reachable))
	order := make([]*Vertex, 0, len(reachable))
	for _, v := range topo {
		if !reachable[v.ID] {
			continue
		}
		level := 0
		for _, p := range v.Parents {
			if pl, ok := levels[p.ID]; ok && pl+1 > level {
				level = pl + 1
			}
		}
		levels[v.ID] = level
		order = append(order, v)
	}

	return levels, order, nil
}

// buildStages группирует узлы по номерам стадий, сохраняя порядок обхода.
func buildStages(levels map[string]int, order []*Vertex) []*Stage {
	byIndex := make(map[int]*Stage)
	for _, v := range order {
		idx := levels[v.ID]
		s, ok := byIndex[idx]
		if !ok {
			s = &Stage{Name: StageName(idx), Index: idx}
			byIndex[idx] = s
		}
		s.Nodes = append(s.Nodes, v.Node)
	}

	stages := make([]*Stage, 0, len(byIndex))
	for _, s := range byIndex {
		stages = append(stages, s)
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i].Index < stages[j].Index })

	return stages
}

// computeDependencies заполняет Stage.Dependencies.
// Рёбра внутри одной стадии зависимостей не создают.
func computeDependencies(plan *Plan, dag *DAG, levels map[string]int) {
	for _, s := range plan.Stages {
		deps := make(map[int]bool)
		for _, n := range s.Nodes {
			for _, p := range dag.Nodes[n.ID].Parents {
				pl, ok := levels[p.ID]
				if !ok || pl == s.Index {
					continue
				}
				deps[pl] = true
			}
		}

		indexes := make([]int, 0, len(deps))
		for idx := range deps {
			indexes = append(indexes, idx)
		}
		sort.Ints(indexes)

		for _, idx := range indexes {
			s.Dependencies = append(s.Dependencies, StageName(idx))
		}
	}
}

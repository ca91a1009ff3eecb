package executor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
)

// runState — состояние одного прогона в памяти.
//
// Создаётся в начале Execute и живёт до возврата записи.
// Меняется только из цикла прогона, поэтому без мьютекса.
type runState struct {
	// graph — выполняемый граф.
	graph *domain.Graph

	// dag — индекс родителей и детей.
	dag *engine.DAG

	// record — формируемый отчёт.
	record *domain.ExecutionRecord

	// incoming — входящие рёбра узла в порядке объявления.
	incoming map[string][]domain.Edge

	// executed — узлы, завершённые в этом прогоне (успешно или с ошибкой).
	executed map[string]bool
}

// nodeResult — результат callback'а узла после всех попыток.
type nodeResult struct {
	output   any
	err      error
	attempts int
}

func newRunState(g *domain.Graph, rec *domain.ExecutionRecord) *runState {
	s := &runState{
		graph:    g,
		dag:      engine.BuildDAG(g),
		record:   rec,
		incoming: make(map[string][]domain.Edge, len(g.Nodes)),
		executed: make(map[string]bool, len(g.Nodes)),
	}
	for _, e := range g.Edges {
		s.incoming[e.Target] = append(s.incoming[e.Target], e)
	}
	return s
}

// roots возвращает узлы без входящих рёбер в порядке объявления.
func (s *runState) roots() []*engine.Vertex {
	if len(s.dag.Vertices) == 0 {
		return nil
	}
	return s.dag.Roots(engine.NoIncomingPredicate)
}

// ready проверяет, что все родители узла уже выполнены.
func (s *runState) ready(v *engine.Vertex) bool {
	for _, p := range v.Parents {
		if !s.executed[p.ID] {
			return false
		}
	}
	return true
}

// inputs собирает входы узла из результатов родителей.
//
// Ключ — targetHandle, затем sourceHandle, затем ID источника.
// Если несколько рёбер дают один ключ, значения собираются в список.
func (s *runState) inputs(n *domain.Node) map[string]any {
	inputs := make(map[string]any)
	multi := make(map[string]bool)

	for _, e := range s.incoming[n.ID] {
		src, ok := s.dag.Nodes[e.Source]
		if !ok {
			continue
		}

		key := e.TargetHandle
		if key == "" {
			key = e.SourceHandle
		}
		if key == "" {
			key = e.Source
		}

		value := src.Node.ExecutionOutput
		prev, exists := inputs[key]
		switch {
		case !exists:
			inputs[key] = value
		case multi[key]:
			inputs[key] = append(prev.([]any), value)
		default:
			inputs[key] = []any{prev, value}
			multi[key] = true
		}
	}

	return inputs
}

// apply записывает результат узла в узел и отчёт.
// Для упавшего узла возвращает ошибку, останавливающую прогон.
func (s *runState) apply(v *engine.Vertex, res nodeResult) error {
	n := v.Node
	s.executed[v.ID] = true
	s.record.Order = append(s.record.Order, v.ID)

	result := domain.NodeResult{}
	if res.attempts > 1 {
		result.Attempts = res.attempts
	}

	if res.err != nil {
		msg := res.err.Error()
		n.MarkFailed(msg)
		result.Status = domain.StatusError
		result.Error = msg
		s.record.Details[v.ID] = result
		return fmt.Errorf("%w: node %s: %s", ErrExecutionFailed, v.ID, msg)
	}

	n.MarkSucceeded(res.output)
	result.Status = domain.StatusSuccess
	result.Output = res.output
	s.record.Details[v.ID] = result
	return nil
}

// unreachable описывает узлы, которые так и не стали готовыми.
func unreachable(waiting []*engine.Vertex) error {
	seen := make(map[string]bool, len(waiting))
	ids := make([]string, 0, len(waiting))
	for _, v := range waiting {
		if !seen[v.ID] {
			seen[v.ID] = true
			ids = append(ids, v.ID)
		}
	}
	sort.Strings(ids)
	return fmt.Errorf("%w: nodes [%s] wait for parents that never complete",
		ErrUnreachableDependency, strings.Join(ids, ", "))
}

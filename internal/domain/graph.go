package domain

import "strings"

// Node — шаг пайплайна в графе.
//
// Node создаётся внешним редактором. Compiler и Executor не создают
// и не удаляют узлы; Executor меняет только поля Execution*.
type Node struct {
	// ID — уникальный идентификатор узла в графе.
	ID string `json:"id"`

	// Type — тип шага, ключ в реестре ("build", "trigger.push", ...).
	Type string `json:"type"`

	// Label — человекочитаемое имя шага.
	Label string `json:"label,omitempty"`

	// Properties — настройки шага (зависят от типа).
	Properties map[string]any `json:"properties,omitempty"`

	// ExecutionStatus — статус в текущем прогоне.
	ExecutionStatus ExecutionStatus `json:"executionStatus,omitempty"`

	// ExecutionOutput — результат callback'а.
	ExecutionOutput any `json:"executionOutput,omitempty"`

	// ExecutionError — текст ошибки, если узел упал.
	ExecutionError string `json:"executionError,omitempty"`
}

// Name возвращает Label, а если он пуст — ID.
func (n *Node) Name() string {
	if n.Label != "" {
		return n.Label
	}
	return n.ID
}

// IsTrigger возвращает true, если тип узла обозначает триггер.
func (n *Node) IsTrigger() bool {
	return IsTriggerType(n.Type)
}

// ResetExecution сбрасывает поля выполнения в idle.
func (n *Node) ResetExecution() {
	n.ExecutionStatus = StatusIdle
	n.ExecutionOutput = nil
	n.ExecutionError = ""
}

// MarkExecuting переводит узел в executing.
func (n *Node) MarkExecuting() {
	n.ExecutionStatus = StatusExecuting
}

// MarkSucceeded переводит узел в success и сохраняет результат.
func (n *Node) MarkSucceeded(output any) {
	n.ExecutionStatus = StatusSuccess
	n.ExecutionOutput = output
	n.ExecutionError = ""
}

// MarkFailed переводит узел в error.
func (n *Node) MarkFailed(errMsg string) {
	n.ExecutionStatus = StatusError
	n.ExecutionError = errMsg
}

// IsTriggerType проверяет, обозначает ли тип триггер.
// Триггер — любой тип, в имени которого есть "trigger" (без учёта регистра):
// "trigger", "trigger.push", "manual-trigger", "webhookTrigger".
func IsTriggerType(t string) bool {
	return strings.Contains(strings.ToLower(t), "trigger")
}

// Edge — направленная связь source → target.
type Edge struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source"`
	Target string `json:"target"`

	// SourceHandle и TargetHandle различают выходы/входы одного узла
	// (например, ветки true/false условия).
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// Graph — снимок графа пайплайна.
type Graph struct {
	Nodes []*Node `json:"nodes"`
	Edges []Edge  `json:"edges"`
}

// Node возвращает узел по ID или nil.
func (g *Graph) Node(id string) *Node {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// Index строит индекс ID → узел.
func (g *Graph) Index() map[string]*Node {
	idx := make(map[string]*Node, len(g.Nodes))
	for _, n := range g.Nodes {
		if _, exists := idx[n.ID]; !exists {
			idx[n.ID] = n
		}
	}
	return idx
}

// Incoming возвращает входящие рёбра узла в порядке объявления.
func (g *Graph) Incoming(id string) []Edge {
	var edges []Edge
	for _, e := range g.Edges {
		if e.Target == id {
			edges = append(edges, e)
		}
	}
	return edges
}

// Outgoing возвращает исходящие рёбра узла в порядке объявления.
func (g *Graph) Outgoing(id string) []Edge {
	var edges []Edge
	for _, e := range g.Edges {
		if e.Source == id {
			edges = append(edges, e)
		}
	}
	return edges
}

// ResetExecution сбрасывает статусы всех узлов.
func (g *Graph) ResetExecution() {
	for _, n := range g.Nodes {
		n.ResetExecution()
	}
}

// Clone возвращает копию графа с новыми узлами.
// Properties разделяются с оригиналом.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		Nodes: make([]*Node, len(g.Nodes)),
		Edges: append([]Edge(nil), g.Edges...),
	}
	for i, n := range g.Nodes {
		cp := *n
		out.Nodes[i] = &cp
	}
	return out
}

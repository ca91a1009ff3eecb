package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shaiso/Conveyor/internal/domain"
)

// rawNode — узел в формате редактора.
//
// Редактор может класть тип, label и свойства как на верхний уровень,
// так и внутрь data. Значения верхнего уровня имеют приоритет.
type rawNode struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties"`
	Data       *struct {
		Type       string         `json:"type"`
		StepType   string         `json:"stepType"`
		Label      string         `json:"label"`
		Properties map[string]any `json:"properties"`
	} `json:"data"`
}

type rawGraph struct {
	Nodes []rawNode      `json:"nodes"`
	Edges []domain.Edge `json:"edges"`
}

// ParseGraph парсит граф из JSON.
//
// Поддерживается снимок редактора: {"nodes": [...], "edges": [...]}.
// Рёбра без ID получают ID вида "<source>-<target>".
func ParseGraph(data []byte) (*domain.Graph, error) {
	var raw rawGraph
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseGraph, err)
	}

	g := &domain.Graph{
		Nodes: make([]*domain.Node, 0, len(raw.Nodes)),
		Edges: make([]domain.Edge, 0, len(raw.Edges)),
	}

	for _, rn := range raw.Nodes {
		n := &domain.Node{
			ID:         rn.ID,
			Type:       rn.Type,
			Label:      rn.Label,
			Properties: normalizeNumbers(rn.Properties),
		}
		if rn.Data != nil {
			if n.Type == "" {
				n.Type = rn.Data.StepType
			}
			if n.Type == "" {
				n.Type = rn.Data.Type
			}
			if n.Label == "" {
				n.Label = rn.Data.Label
			}
			if n.Properties == nil {
				n.Properties = normalizeNumbers(rn.Data.Properties)
			}
		}
		n.ResetExecution()
		g.Nodes = append(g.Nodes, n)
	}

	for _, e := range raw.Edges {
		if e.ID == "" {
			e.ID = e.Source + "-" + e.Target
		}
		g.Edges = append(g.Edges, e)
	}

	return g, nil
}

// normalizeNumbers превращает json.Number в int64 или float64.
func normalizeNumbers(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		return normalizeNumbers(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}

// LoadGraphFile читает граф из файла.
// Формат определяется расширением: .dot и .gv — Graphviz, остальное — JSON.
func LoadGraphFile(path string) (*domain.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".dot", ".gv":
		return ParseDOT(string(data))
	case ".json", "":
		return ParseGraph(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Validate выполняет структурную валидацию графа.
//
// Проверяет:
// - Наличие узлов
// - Непустые и уникальные ID узлов
// - Непустой тип у каждого узла
// - Что рёбра ссылаются на существующие узлы
// - Уникальность ID рёбер
//
// Циклы и петли не считаются структурной ошибкой — для них есть DetectCycle.
func Validate(g *domain.Graph) error {
	if g == nil || len(g.Nodes) == 0 {
		return ErrEmptyGraph
	}

	nodeIDs := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if err := ValidateNode(n, nodeIDs); err != nil {
			return err
		}
	}

	edgeIDs := make(map[string]bool, len(g.Edges))
	for _, e := range g.Edges {
		if e.ID != "" {
			if edgeIDs[e.ID] {
				return newEdgeError(e.ID, "id",
					fmt.Sprintf("duplicate edge ID: %s", e.ID), ErrDuplicateEdgeID)
			}
			edgeIDs[e.ID] = true
		}

		if !nodeIDs[e.Source] {
			return newEdgeError(e.ID, "source",
				fmt.Sprintf("source references unknown node: %s", e.Source), ErrUnknownEdgeNode)
		}
		if !nodeIDs[e.Target] {
			return newEdgeError(e.ID, "target",
				fmt.Sprintf("target references unknown node: %s", e.Target), ErrUnknownEdgeNode)
		}
	}

	return nil
}

// ValidateNode валидирует один узел.
// nodeIDs — уже встреченные ID (для проверки уникальности).
func ValidateNode(n *domain.Node, nodeIDs map[string]bool) error {
	if n == nil || n.ID == "" {
		return NewValidationError("", "id", "node has empty ID", ErrEmptyNodeID)
	}

	if nodeIDs[n.ID] {
		return NewValidationError(n.ID, "id",
			fmt.Sprintf("duplicate node ID: %s", n.ID), ErrDuplicateNodeID)
	}
	nodeIDs[n.ID] = true

	if n.Type == "" {
		return NewValidationError(n.ID, "type", "node has empty type", ErrEmptyNodeType)
	}

	return nil
}

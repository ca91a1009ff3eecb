package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/awalterschulze/gographviz"

	"github.com/shaiso/Conveyor/internal/domain"
)

// ParseDOT парсит граф из Graphviz DOT.
//
// Атрибуты узла:
//   - type  — тип шага (обязателен для осмысленной компиляции)
//   - label — имя шага
//   - всё остальное попадает в Properties; значения, похожие на JSON
//     (числа, true/false, массивы, объекты), декодируются
//
// Порты рёбер ("a:out -> b:in") становятся SourceHandle/TargetHandle.
func ParseDOT(src string) (*domain.Graph, error) {
	ast, err := gographviz.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseGraph, err)
	}

	// Стандартный gographviz.Graph отклоняет неизвестные атрибуты,
	// поэтому собираем граф сами.
	c := newDOTCollector()
	if err := gographviz.Analyse(ast, c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseGraph, err)
	}

	g := &domain.Graph{
		Nodes: make([]*domain.Node, 0, len(c.order)),
		Edges: make([]domain.Edge, 0, len(c.edges)),
	}

	for _, id := range c.order {
		attrs := c.nodes[id]
		n := &domain.Node{ID: id}
		for k, v := range attrs {
			switch k {
			case "type":
				n.Type = unquote(v)
			case "label":
				n.Label = unquote(v)
			default:
				if n.Properties == nil {
					n.Properties = make(map[string]any)
				}
				n.Properties[k] = decodeDOTValue(v)
			}
		}
		n.ResetExecution()
		g.Nodes = append(g.Nodes, n)
	}

	for i, e := range c.edges {
		id := e.attrs["id"]
		if id == "" {
			id = fmt.Sprintf("e%d", i)
		}
		g.Edges = append(g.Edges, domain.Edge{
			ID:           id,
			Source:       e.src,
			Target:       e.dst,
			SourceHandle: e.srcPort,
			TargetHandle: e.dstPort,
		})
	}

	return g, nil
}

// decodeDOTValue декодирует значение атрибута в том виде, как оно записано в DOT.
//
// Значение в кавычках остаётся строкой ("1.20", "007"), кроме JSON-массивов
// и объектов. Без кавычек декодируются целые, дробные числа и true/false.
func decodeDOTValue(raw string) any {
	raw = strings.TrimSpace(raw)
	v := unquote(raw)
	if v == "" {
		return v
	}

	if quoted := v != raw; quoted {
		if v[0] == '[' || v[0] == '{' {
			var out any
			if err := json.Unmarshal([]byte(v), &out); err == nil {
				return out
			}
		}
		return v
	}

	// Ведущий ноль — идентификатор, а не число
	if len(v) > 1 && v[0] == '0' && v[1] != '.' {
		return v
	}
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	switch v[0] {
	case 't', 'f', '-', '.', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var out any
		if err := json.Unmarshal([]byte(v), &out); err == nil {
			return out
		}
	}
	return v
}

type dotEdge struct {
	src, srcPort string
	dst, dstPort string
	attrs        map[string]string
}

// dotCollector реализует gographviz.Interface без проверки атрибутов.
type dotCollector struct {
	name  string
	nodes map[string]map[string]string
	order []string
	edges []dotEdge
}

func newDOTCollector() *dotCollector {
	return &dotCollector{nodes: make(map[string]map[string]string)}
}

func (c *dotCollector) SetStrict(bool) error   { return nil }
func (c *dotCollector) SetDir(bool) error      { return nil }
func (c *dotCollector) SetName(n string) error { c.name = unquote(n); return nil }
func (c *dotCollector) String() string         { return c.name }

func (c *dotCollector) AddAttr(_, _, _ string) error { return nil }

func (c *dotCollector) AddSubGraph(_, _ string, _ map[string]string) error { return nil }

func (c *dotCollector) AddNode(_ string, name string, attrs map[string]string) error {
	id := unquote(name)
	if _, ok := c.nodes[id]; !ok {
		c.nodes[id] = make(map[string]string, len(attrs))
		c.order = append(c.order, id)
	}
	// Значения хранятся как в исходнике: кавычки нужны decodeDOTValue
	for k, v := range attrs {
		c.nodes[id][k] = v
	}
	return nil
}

func (c *dotCollector) AddEdge(src, dst string, directed bool, attrs map[string]string) error {
	return c.AddPortEdge(src, "", dst, "", directed, attrs)
}

func (c *dotCollector) AddPortEdge(src, srcPort, dst, dstPort string, _ bool, attrs map[string]string) error {
	// Узлы, упомянутые только в рёбрах, тоже попадают в граф
	for _, name := range []string{src, dst} {
		if err := c.AddNode("", name, nil); err != nil {
			return err
		}
	}

	a := make(map[string]string, len(attrs))
	for k, v := range attrs {
		a[k] = unquote(v)
	}

	c.edges = append(c.edges, dotEdge{
		src:     unquote(src),
		srcPort: portName(srcPort),
		dst:     unquote(dst),
		dstPort: portName(dstPort),
		attrs:   a,
	})
	return nil
}

// portName превращает ":out" или ":out:n" в "out".
func portName(p string) string {
	p = strings.TrimPrefix(p, ":")
	if i := strings.Index(p, ":"); i >= 0 {
		p = p[:i]
	}
	return unquote(p)
}

// unquote снимает внешние кавычки со значения DOT и раскрывает \".
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return strings.ReplaceAll(s[1:len(s)-1], `\"`, `"`)
	}
	return s
}

// FormatDOT рисует план стадий в DOT: каждая стадия — кластер.
func FormatDOT(g *domain.Graph, plan *Plan) (string, error) {
	out := gographviz.NewEscape()
	if err := out.SetName("pipeline"); err != nil {
		return "", err
	}
	if err := out.SetDir(true); err != nil {
		return "", err
	}
	if err := out.AddAttr("pipeline", "rankdir", "LR"); err != nil {
		return "", err
	}

	added := make(map[string]bool, len(g.Nodes))

	for _, s := range plan.Stages {
		cluster := "cluster_" + strings.ReplaceAll(s.Name, "-", "_")
		if err := out.AddSubGraph("pipeline", cluster, map[string]string{"label": s.Name}); err != nil {
			return "", err
		}
		for _, n := range s.Nodes {
			attrs := map[string]string{
				"label": fmt.Sprintf("%s (%s)", n.Name(), n.Type),
				"shape": "box",
			}
			if n.IsTrigger() {
				attrs["shape"] = "ellipse"
			}
			if err := out.AddNode(cluster, n.ID, attrs); err != nil {
				return "", err
			}
			added[n.ID] = true
		}
	}

	for _, id := range plan.Unstaged {
		if err := out.AddNode("pipeline", id, map[string]string{"style": "dashed"}); err != nil {
			return "", err
		}
		added[id] = true
	}

	for _, e := range g.Edges {
		if !added[e.Source] || !added[e.Target] {
			continue
		}
		attrs := map[string]string{}
		if e.SourceHandle != "" {
			attrs["taillabel"] = e.SourceHandle
		}
		if err := out.AddEdge(e.Source, e.Target, true, attrs); err != nil {
			return "", err
		}
	}

	return out.String(), nil
}

package engine

import (
	"github.com/shaiso/Conveyor/internal/domain"
)

// Vertex — узел в индексе графа.
type Vertex struct {
	// Node — исходный узел графа.
	Node *domain.Node

	// ID — идентификатор узла.
	ID string

	// InDegree — количество уникальных входящих рёбер.
	InDegree int

	// Parents — узлы, из которых есть ребро в этот узел.
	Parents []*Vertex

	// Children — узлы, в которые есть ребро из этого узла.
	Children []*Vertex

	// index — позиция узла в graph.Nodes.
	index int
}

// DAG — индекс графа для обхода.
//
// Несмотря на имя, DAG строится и для графов с циклами:
// проверка выполняется отдельно через TopologicalSort.
type DAG struct {
	// Nodes — все узлы графа (nodeID → Vertex).
	Nodes map[string]*Vertex

	// Vertices — узлы в порядке объявления.
	Vertices []*Vertex
}

// BuildDAG строит индекс из графа.
//
// Рёбра на неизвестные узлы игнорируются (Validate сообщает о них отдельно).
// Повторные рёбра между одной парой узлов учитываются один раз.
func BuildDAG(g *domain.Graph) *DAG {
	dag := &DAG{
		Nodes:    make(map[string]*Vertex, len(g.Nodes)),
		Vertices: make([]*Vertex, 0, len(g.Nodes)),
	}

	// Первый проход: создаём все узлы
	for i, n := range g.Nodes {
		if _, exists := dag.Nodes[n.ID]; exists {
			continue
		}
		v := &Vertex{Node: n, ID: n.ID, index: i}
		dag.Nodes[n.ID] = v
		dag.Vertices = append(dag.Vertices, v)
	}

	// Второй проход: связываем узлы рёбрами
	for _, e := range g.Edges {
		from, ok := dag.Nodes[e.Source]
		if !ok {
			continue
		}
		to, ok := dag.Nodes[e.Target]
		if !ok {
			continue
		}
		dag.addEdge(from, to)
	}

	return dag
}

// addEdge добавляет ребро между узлами.
// Дополнительно проверяет на дубликаты, чтобы избежать двойного учета InDegree.
func (d *DAG) addEdge(from, to *Vertex) {
	for _, p := range to.Parents {
		if p.ID == from.ID {
			return
		}
	}
	from.Children = append(from.Children, to)
	to.Parents = append(to.Parents, from)
	to.InDegree++
}

// Roots возвращает узлы, удовлетворяющие предикату, в порядке объявления.
//
// Если ни один узел не подходит, корнем становится первый узел графа,
// чтобы обход гарантированно продвинулся.
func (d *DAG) Roots(pred RootPredicate) []*Vertex {
	if pred == nil {
		pred = DefaultRootPredicate
	}

	roots := make([]*Vertex, 0)
	for _, v := range d.Vertices {
		if pred(v.Node, v.InDegree) {
			roots = append(roots, v)
		}
	}

	if len(roots) == 0 && len(d.Vertices) > 0 {
		roots = append(roots, d.Vertices[0])
	}

	return roots
}

// TopologicalSort выполняет топологическую сортировку (алгоритм Кана).
//
// Порядок детерминирован: узлы с нулевой степенью берутся в порядке объявления.
// Возвращает *CycleError, если обнаружен цикл.
func (d *DAG) TopologicalSort() ([]*Vertex, error) {
	// Копируем inDegree, чтобы не модифицировать оригинал
	inDegree := make(map[string]int, len(d.Vertices))
	queue := make([]*Vertex, 0)
	for _, v := range d.Vertices {
		inDegree[v.ID] = v.InDegree
		if v.InDegree == 0 {
			queue = append(queue, v)
		}
	}

	order := make([]*Vertex, 0, len(d.Vertices))

	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		order = append(order, v)

		for _, child := range v.Children {
			inDegree[child.ID]--
			if inDegree[child.ID] == 0 {
				queue = append(queue, child)
			}
		}
	}

	// Если не все узлы обработаны — есть цикл
	if len(order) != len(d.Vertices) {
		stuck := make([]string, 0, len(d.Vertices)-len(order))
		for _, v := range d.Vertices {
			if inDegree[v.ID] > 0 {
				stuck = append(stuck, v.ID)
			}
		}
		return nil, &CycleError{Nodes: stuck}
	}

	return order, nil
}

// Size возвращает количество узлов.
func (d *DAG) Size() int {
	return len(d.Vertices)
}

// DetectCycle проверяет граф на циклы.
// Возвращает *CycleError (errors.Is(err, ErrCyclicGraph)) или nil.
func DetectCycle(g *domain.Graph) error {
	_, err := BuildDAG(g).TopologicalSort()
	return err
}

// TopologicalOrder возвращает ID узлов в топологическом порядке.
func TopologicalOrder(g *domain.Graph) ([]string, error) {
	order, err := BuildDAG(g).TopologicalSort()
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(order))
	for i, v := range order {
		ids[i] = v.ID
	}
	return ids, nil
}

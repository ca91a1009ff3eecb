package engine

import (
	"errors"
	"strings"
)

// Ошибки валидации графа.
var (
	// ErrEmptyGraph — граф не содержит узлов.
	ErrEmptyGraph = errors.New("graph has no nodes")

	// ErrEmptyNodeID — узел не имеет ID.
	ErrEmptyNodeID = errors.New("node has empty ID")

	// ErrDuplicateNodeID — несколько узлов с одинаковым ID.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrEmptyNodeType — узел не имеет типа.
	ErrEmptyNodeType = errors.New("node has empty type")

	// ErrUnknownEdgeNode — ребро ссылается на несуществующий узел.
	ErrUnknownEdgeNode = errors.New("edge references unknown node")

	// ErrDuplicateEdgeID — несколько рёбер с одинаковым ID.
	ErrDuplicateEdgeID = errors.New("duplicate edge ID")

	// ErrCyclicGraph — в графе обнаружен цикл.
	ErrCyclicGraph = errors.New("cyclic graph")
)

// Ошибки загрузки графа.
var (
	// ErrParseGraph — не удалось разобрать JSON или DOT.
	ErrParseGraph = errors.New("graph parse failed")

	// ErrUnsupportedFormat — неизвестный формат файла графа.
	ErrUnsupportedFormat = errors.New("unsupported graph format")
)

// Ошибки рендеринга шаблонов.
var (
	// ErrTemplateRender — ошибка рендеринга шаблона.
	ErrTemplateRender = errors.New("template render failed")

	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse failed")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	NodeID  string // ID узла, где произошла ошибка
	EdgeID  string // ID ребра, если ошибка относится к ребру
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	switch {
	case e.NodeID != "":
		return "node " + e.NodeID + ": " + e.Message
	case e.EdgeID != "":
		return "edge " + e.EdgeID + ": " + e.Message
	default:
		return e.Message
	}
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации узла.
func NewValidationError(nodeID, field, message string, err error) *ValidationError {
	return &ValidationError{
		NodeID:  nodeID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// newEdgeError создаёт ошибку валидации ребра.
func newEdgeError(edgeID, field, message string, err error) *ValidationError {
	return &ValidationError{
		EdgeID:  edgeID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// CycleError — граф содержит цикл.
//
// Nodes — узлы, которые не удалось упорядочить (лежат на цикле
// или достижимы только через него), в порядке объявления.
type CycleError struct {
	Nodes []string
}

// Error реализует интерфейс error.
func (e *CycleError) Error() string {
	return ErrCyclicGraph.Error() + ": " + strings.Join(e.Nodes, ", ")
}

// Unwrap возвращает ErrCyclicGraph.
func (e *CycleError) Unwrap() error {
	return ErrCyclicGraph
}

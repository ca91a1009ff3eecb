package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Backend — идентификатор целевого формата компиляции.
type Backend string

// Generator превращает узел во фрагмент конфигурации для одного backend'а.
// ok=false означает, что узел ничего не даёт этому backend'у.
type Generator func(node *domain.Node) (fragment any, ok bool)

// ExecFunc — поведение узла при симуляции прогона.
// inputs — выходы родителей по ключу входа.
type ExecFunc func(ctx context.Context, node *domain.Node, inputs map[string]any) (any, error)

// Item — описание типа шага.
//
// После регистрации Item не меняется: повторная регистрация
// того же типа заменяет запись целиком.
type Item struct {
	// Type — ключ в реестре ("build", "trigger.push", ...).
	Type string `json:"type"`

	// Label — человекочитаемое имя типа.
	Label string `json:"label,omitempty"`

	// Category — группа в каталоге ("trigger", "build", "deploy", ...).
	Category string `json:"category,omitempty"`

	// Generators — генераторы фрагментов по backend'ам.
	Generators map[Backend]Generator `json:"-"`

	// Execute — поведение при симуляции. Nil — используется результат по умолчанию.
	Execute ExecFunc `json:"-"`

	// Metadata — произвольные данные для внешнего редактора.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Generate вызывает генератор для backend'а.
// ok=false, если генератора нет или он ничего не вернул.
func (it *Item) Generate(backend Backend, node *domain.Node) (any, bool) {
	gen, ok := it.Generators[backend]
	if !ok || gen == nil {
		return nil, false
	}
	return gen(node)
}

// Backends возвращает backend'ы, для которых есть генератор, по алфавиту.
func (it *Item) Backends() []Backend {
	out := make([]Backend, 0, len(it.Generators))
	for b, gen := range it.Generators {
		if gen != nil {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Registry — реестр типов шагов.
//
// Реестр создаётся явно и передаётся компилятору и исполнителю.
// Потокобезопасен; регистрация должна завершиться до компиляций и прогонов,
// которые от неё зависят.
type Registry struct {
	mu    sync.RWMutex
	items map[string]*Item
}

// New создаёт пустой реестр.
func New() *Registry {
	return &Registry{
		items: make(map[string]*Item),
	}
}

// Register регистрирует тип шага.
// Если тип уже существует, он будет перезаписан.
func (r *Registry) Register(item *Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.Type] = item
}

// RegisterFunc регистрирует тип из набора генераторов и метаданных.
func (r *Registry) RegisterFunc(stepType string, generators map[Backend]Generator, metadata map[string]any) {
	r.Register(&Item{
		Type:       stepType,
		Generators: generators,
		Metadata:   metadata,
	})
}

// Get возвращает тип по имени.
// Возвращает ErrTypeNotFound, если тип не найден.
func (r *Registry) Get(stepType string) (*Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, exists := r.items[stepType]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTypeNotFound, stepType)
	}

	return item, nil
}

// Generator возвращает генератор для пары (тип, backend).
// Возвращает ErrTypeNotFound или ErrNoGenerator.
func (r *Registry) Generator(stepType string, backend Backend) (Generator, error) {
	item, err := r.Get(stepType)
	if err != nil {
		return nil, err
	}

	gen, ok := item.Generators[backend]
	if !ok || gen == nil {
		return nil, fmt.Errorf("%w: %s for %s", ErrNoGenerator, stepType, backend)
	}

	return gen, nil
}

// Has проверяет, зарегистрирован ли тип.
func (r *Registry) Has(stepType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.items[stepType]
	return exists
}

// Types возвращает список всех зарегистрированных типов.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.items))
	for t := range r.items {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Items возвращает все типы, отсортированные по имени.
func (r *Registry) Items() []*Item {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]*Item, 0, len(r.items))
	for _, it := range r.items {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Type < items[j].Type })
	return items
}

// Count возвращает количество зарегистрированных типов.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Unregister удаляет тип из реестра.
func (r *Registry) Unregister(stepType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, stepType)
}

// Unsupported возвращает узлы графа, которые ничего не дадут backend'у:
// тип не зарегистрирован либо для backend'а нет генератора.
// Нужен для предупреждений о совместимости; компилятор такие узлы просто пропускает.
func (r *Registry) Unsupported(g *domain.Graph, backend Backend) []string {
	var ids []string
	for _, n := range g.Nodes {
		if _, err := r.Generator(n.Type, backend); err != nil {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

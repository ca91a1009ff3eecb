package steps

import (
	"sort"

	"github.com/shaiso/Conveyor/internal/compiler"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/registry"
)

// Категории каталога.
const (
	CategoryTrigger  = "trigger"
	CategorySource   = "source"
	CategoryBuild    = "build"
	CategoryQuality  = "quality"
	CategoryDeploy   = "deploy"
	CategoryNotify   = "notify"
	CategoryFlow     = "flow"
	CategoryArtifact = "artifact"
)

// Definition — описание типа шага каталога.
//
// Из Definition строится registry.Item: генераторы для backend'ов
// выводятся из Command, Action и Files, выполнение — из Step.
type Definition struct {
	Type     string
	Label    string
	Category string

	// Command — shell-команда узла (gitlab-ci, jenkins, shell и run: в GitHub).
	// ok=false — узел не даёт команды.
	Command func(n *domain.Node) (cmd string, ok bool)

	// Action — готовый шаг GitHub Actions (uses:). Nil — используется Command.
	Action func(n *domain.Node) map[string]any

	// Files — файлы для backend'а files.
	Files func(n *domain.Node) map[string]string

	// Step — выполнение узла. Nil — Executor использует результат по умолчанию.
	Step Step

	// Properties — свойства, которые понимает тип (для редактора).
	Properties []string
}

// Item строит элемент реестра.
func (d Definition) Item() *registry.Item {
	gens := make(map[registry.Backend]registry.Generator)

	if d.Command != nil {
		command := registry.Generator(func(n *domain.Node) (any, bool) {
			return d.Command(n)
		})
		gens[compiler.BackendGitLabCI] = command
		gens[compiler.BackendJenkins] = command
		gens[compiler.BackendShell] = command
	}

	if d.Action != nil || d.Command != nil {
		gens[compiler.BackendGitHubActions] = func(n *domain.Node) (any, bool) {
			if d.Action != nil {
				step := map[string]any{"name": n.Name()}
				for k, v := range d.Action(n) {
					step[k] = v
				}
				return step, true
			}
			cmd, ok := d.Command(n)
			if !ok {
				return nil, false
			}
			return map[string]any{"name": n.Name(), "run": cmd}, true
		}
	}

	if d.Files != nil {
		gens[compiler.BackendFiles] = func(n *domain.Node) (any, bool) {
			files := d.Files(n)
			return files, len(files) > 0
		}
	}

	item := &registry.Item{
		Type:       d.Type,
		Label:      d.Label,
		Category:   d.Category,
		Generators: gens,
	}
	if d.Step != nil {
		item.Execute = Executor(d.Step)
	}
	if len(d.Properties) > 0 {
		item.Metadata = map[string]any{"properties": d.Properties}
	}
	return item
}

// Definitions возвращает стандартный каталог, отсортированный по типу.
func Definitions() []Definition {
	defs := []Definition{
		genericTrigger(),
		pushTrigger(),
		pullRequestTrigger(),
		scheduleTrigger(),
		manualTrigger(),
		tagTrigger(),
		checkoutDefinition(),
		buildDefinition(),
		testDefinition(),
		scanDefinition(),
		deployDefinition(),
		notifyDefinition(),
		httpDefinition(),
		delayDefinition(),
		transformDefinition(),
		conditionDefinition(),
		fileDefinition(),
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Type < defs[j].Type })
	return defs
}

// Register регистрирует определения в реестре.
func Register(r *registry.Registry, defs ...Definition) {
	for _, d := range defs {
		r.Register(d.Item())
	}
}

// DefaultRegistry создаёт реестр со всеми стандартными шагами.
func DefaultRegistry() *registry.Registry {
	r := registry.New()
	Register(r, Definitions()...)
	return r
}

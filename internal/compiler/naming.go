package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
)

// NormalizeName приводит имя к виду задания: нижний регистр, пробелы в дефисы.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

// JobNamer выбирает имя задания для стадии.
// nodes — узлы стадии, давшие фрагмент для backend'а.
type JobNamer func(stage *engine.Stage, nodes []*domain.Node) string

// DefaultJobName — имя единственного узла стадии (label или ID),
// иначе имя стадии ("stage-<n>").
func DefaultJobName(stage *engine.Stage, nodes []*domain.Node) string {
	if len(nodes) == 1 {
		if name := NormalizeName(nodes[0].Name()); name != "" {
			return name
		}
	}
	return stage.Name
}

// GitHubJobName — DefaultJobName, приведённое к допустимому job ID GitHub:
// только [a-z0-9_-], первый символ — буква или "_".
func GitHubJobName(stage *engine.Stage, nodes []*domain.Node) string {
	if id := jobID(DefaultJobName(stage, nodes)); id != "" {
		return id
	}
	return jobID(stage.Name)
}

// jobID заменяет недопустимые символы на "-" и схлопывает повторы.
func jobID(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range NormalizeName(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}

	id := strings.TrimSuffix(b.String(), "-")
	if id != "" && id[0] >= '0' && id[0] <= '9' {
		id = "job-" + id
	}
	return id
}

// StageJobName — всегда имя стадии.
func StageJobName(stage *engine.Stage, _ []*domain.Node) string {
	return stage.Name
}

// nameSet выдаёт уникальные имена заданий: при совпадении добавляется "-2", "-3", ...
type nameSet map[string]bool

func (s nameSet) next(name string) string {
	name = NormalizeName(name)
	if !s[name] {
		return name
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", name, i)
		if !s[candidate] {
			return candidate
		}
	}
}

func (s nameSet) take(name string) {
	s[name] = true
}

// sortedKeys возвращает ключи map по алфавиту.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

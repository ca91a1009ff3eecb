package compiler

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Strategy определяет, как фрагменты узлов складываются в стадию
// и как стадии складываются в документ backend'а.
//
// Компилятор вызывает методы в порядке:
//
//	acc := InitStage()
//	acc = ProcessNode(node, fragment, acc)   // для каждого узла с фрагментом
//	stage, ok := FinalizeStage(acc, name, needs)
//	doc := CombineStages(stages)             // stages — только ok=true, в порядке стадий
//
// Все методы чистые: стратегию можно переиспользовать между компиляциями.
type Strategy interface {
	// InitStage возвращает пустой аккумулятор стадии.
	InitStage() any

	// ProcessNode добавляет фрагмент узла в аккумулятор и возвращает его.
	ProcessNode(node *domain.Node, fragment any, acc any) any

	// FinalizeStage превращает аккумулятор в готовую стадию.
	// ok=false означает, что стадию нужно отбросить.
	FinalizeStage(acc any, name string, needs []string) (stage any, ok bool)

	// CombineStages собирает документ из готовых стадий (имя задания → стадия).
	CombineStages(stages *OrderedMap) any
}

// FlatStrategy — фрагменты как строки, стадии склеиваются переводами строк.
// Для backend'ов без понятия задания (один скрипт).
type FlatStrategy struct{}

// InitStage реализует Strategy.
func (FlatStrategy) InitStage() any {
	return []string{}
}

// ProcessNode реализует Strategy.
func (FlatStrategy) ProcessNode(_ *domain.Node, fragment any, acc any) any {
	lines, _ := acc.([]string)
	if text, ok := fragmentText(fragment); ok {
		lines = append(lines, text)
	}
	return lines
}

// FinalizeStage реализует Strategy. Пустая стадия отбрасывается.
func (FlatStrategy) FinalizeStage(acc any, _ string, _ []string) (any, bool) {
	lines, _ := acc.([]string)
	if len(lines) == 0 {
		return nil, false
	}
	return strings.Join(lines, "\n"), true
}

// CombineStages реализует Strategy.
func (FlatStrategy) CombineStages(stages *OrderedMap) any {
	parts := make([]string, 0, stages.Len())
	for _, k := range stages.Keys() {
		v, _ := stages.Get(k)
		if s, ok := v.(string); ok {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

// Job — задание job-graph документа.
type Job struct {
	RunsOn string   `json:"runs-on,omitempty" yaml:"runs-on,omitempty"`
	Needs  []string `json:"needs,omitempty" yaml:"needs,omitempty"`
	Steps  []any    `json:"steps" yaml:"steps"`
}

// JobGraphStrategy — каждая стадия становится заданием со списком шагов
// и зависимостями needs.
type JobGraphStrategy struct {
	// RunsOn — раннер заданий. Пусто — поле не выводится.
	RunsOn string
}

// InitStage реализует Strategy.
func (JobGraphStrategy) InitStage() any {
	return []any{}
}

// ProcessNode реализует Strategy. Срезы разворачиваются в отдельные шаги.
func (JobGraphStrategy) ProcessNode(_ *domain.Node, fragment any, acc any) any {
	steps, _ := acc.([]any)
	return appendFlattened(steps, fragment)
}

// FinalizeStage реализует Strategy. Стадия без шагов отбрасывается.
func (s JobGraphStrategy) FinalizeStage(acc any, _ string, needs []string) (any, bool) {
	steps, _ := acc.([]any)
	if len(steps) == 0 {
		return nil, false
	}
	job := &Job{RunsOn: s.RunsOn, Steps: steps}
	if len(needs) > 0 {
		job.Needs = needs
	}
	return job, true
}

// CombineStages реализует Strategy: документ — map имя задания → Job.
func (JobGraphStrategy) CombineStages(stages *OrderedMap) any {
	return stages
}

// ScriptJob — задание script-block документа.
type ScriptJob struct {
	Stage  string   `json:"stage" yaml:"stage"`
	Image  string   `json:"image,omitempty" yaml:"image,omitempty"`
	Needs  []string `json:"needs,omitempty" yaml:"needs,omitempty"`
	Script []string `json:"script" yaml:"script"`
}

// ScriptBlockStrategy — каждая стадия становится заданием со списком
// команд script. Каждое задание получает собственный stage.
type ScriptBlockStrategy struct {
	// Image — образ заданий. Пусто — поле не выводится.
	Image string
}

// InitStage реализует Strategy.
func (ScriptBlockStrategy) InitStage() any {
	return []string{}
}

// ProcessNode реализует Strategy. Срезы дают несколько команд.
func (ScriptBlockStrategy) ProcessNode(_ *domain.Node, fragment any, acc any) any {
	lines, _ := acc.([]string)
	for _, item := range appendFlattened(nil, fragment) {
		if text, ok := fragmentText(item); ok {
			lines = append(lines, text)
		}
	}
	return lines
}

// FinalizeStage реализует Strategy. Стадия без команд отбрасывается.
func (s ScriptBlockStrategy) FinalizeStage(acc any, name string, needs []string) (any, bool) {
	lines, _ := acc.([]string)
	if len(lines) == 0 {
		return nil, false
	}
	job := &ScriptJob{Stage: name, Image: s.Image, Script: lines}
	if len(needs) > 0 {
		job.Needs = needs
	}
	return job, true
}

// CombineStages реализует Strategy.
func (ScriptBlockStrategy) CombineStages(stages *OrderedMap) any {
	return stages
}

// FileSetStrategy — узлы выдают целые файлы (путь → содержимое).
// Более поздняя стадия перезаписывает файл с тем же путём.
type FileSetStrategy struct{}

// InitStage реализует Strategy.
func (FileSetStrategy) InitStage() any {
	return NewOrderedMap()
}

// ProcessNode реализует Strategy.
func (FileSetStrategy) ProcessNode(_ *domain.Node, fragment any, acc any) any {
	files, ok := acc.(*OrderedMap)
	if !ok {
		files = NewOrderedMap()
	}

	switch f := fragment.(type) {
	case map[string]string:
		for _, k := range sortedKeys(f) {
			files.Set(k, f[k])
		}
	case map[string]any:
		for _, k := range sortedKeys(f) {
			if text, ok := fragmentText(f[k]); ok {
				files.Set(k, text)
			}
		}
	case *OrderedMap:
		for _, k := range f.Keys() {
			v, _ := f.Get(k)
			if text, ok := fragmentText(v); ok {
				files.Set(k, text)
			}
		}
	}

	return files
}

// FinalizeStage реализует Strategy. Стадия без файлов отбрасывается.
func (FileSetStrategy) FinalizeStage(acc any, _ string, _ []string) (any, bool) {
	files, ok := acc.(*OrderedMap)
	if !ok || files.Len() == 0 {
		return nil, false
	}
	return files, true
}

// CombineStages реализует Strategy: все файлы в одном OrderedMap.
func (FileSetStrategy) CombineStages(stages *OrderedMap) any {
	out := NewOrderedMap()
	for _, name := range stages.Keys() {
		v, _ := stages.Get(name)
		files, ok := v.(*OrderedMap)
		if !ok {
			continue
		}
		for _, path := range files.Keys() {
			content, _ := files.Get(path)
			out.Set(path, content)
		}
	}
	return out
}

// fragmentText превращает фрагмент в строку.
func fragmentText(fragment any) (string, bool) {
	switch v := fragment.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case []string:
		if len(v) == 0 {
			return "", false
		}
		return strings.Join(v, "\n"), true
	case []any:
		lines := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := fragmentText(item); ok {
				lines = append(lines, s)
			}
		}
		if len(lines) == 0 {
			return "", false
		}
		return strings.Join(lines, "\n"), true
	case fmt.Stringer:
		return v.String(), true
	default:
		return fmt.Sprint(v), true
	}
}

// appendFlattened добавляет фрагмент; срезы разворачиваются поэлементно.
func appendFlattened(dst []any, fragment any) []any {
	if fragment == nil {
		return dst
	}
	rv := reflect.ValueOf(fragment)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return append(dst, fragment)
	}
	for i := 0; i < rv.Len(); i++ {
		if item := rv.Index(i).Interface(); item != nil {
			dst = append(dst, item)
		}
	}
	return dst
}

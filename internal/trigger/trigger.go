package trigger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Kind — событие, запускающее пайплайн.
type Kind string

const (
	// KindPush — push в репозиторий.
	KindPush Kind = "push"

	// KindPullRequest — открытие или обновление pull/merge request.
	KindPullRequest Kind = "pull_request"

	// KindSchedule — запуск по cron.
	KindSchedule Kind = "schedule"

	// KindManual — ручной запуск.
	KindManual Kind = "manual"

	// KindTag — создание тега.
	KindTag Kind = "tag"
)

// ErrInvalidTrigger — настройки триггера некорректны.
var ErrInvalidTrigger = errors.New("invalid trigger")

// Trigger — конфигурация триггерного узла.
type Trigger struct {
	// NodeID — узел, из которого получен триггер.
	NodeID string `json:"node_id"`

	// Kind — событие.
	Kind Kind `json:"kind"`

	// Branches, Tags, Paths — фильтры событий репозитория.
	Branches []string `json:"branches,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Paths    []string `json:"paths,omitempty"`

	// Types — типы событий pull request ("opened", "synchronize", ...).
	Types []string `json:"types,omitempty"`

	// Cron — cron-выражение (только для schedule).
	Cron string `json:"cron,omitempty"`

	// Timezone — часовой пояс cron. По умолчанию "UTC".
	Timezone string `json:"timezone,omitempty"`

	// Inputs — параметры ручного запуска.
	Inputs map[string]any `json:"inputs,omitempty"`
}

// KindOf определяет событие по типу узла.
//
//	"trigger.push", "push-trigger" → push
//	"trigger" → свойство "event" или push
func KindOf(n *domain.Node) (Kind, bool) {
	if !n.IsTrigger() {
		return "", false
	}

	t := strings.ToLower(n.Type)
	name := ""
	switch {
	case strings.HasPrefix(t, "trigger."):
		name = strings.TrimPrefix(t, "trigger.")
	case strings.HasSuffix(t, "-trigger"):
		name = strings.TrimSuffix(t, "-trigger")
	}
	if name == "" {
		name = stringProp(n.Properties, "event")
	}

	switch strings.ReplaceAll(name, "-", "_") {
	case "", "push", "commit":
		return KindPush, true
	case "pull_request", "pr", "merge_request", "mr":
		return KindPullRequest, true
	case "schedule", "cron", "timer":
		return KindSchedule, true
	case "manual", "dispatch", "workflow_dispatch":
		return KindManual, true
	case "tag", "release":
		return KindTag, true
	default:
		return Kind(name), true
	}
}

// FromNode извлекает триггер из узла.
// ok=false, если узел не является триггером.
func FromNode(n *domain.Node) (Trigger, bool) {
	kind, ok := KindOf(n)
	if !ok {
		return Trigger{}, false
	}

	p := n.Properties
	tr := Trigger{
		NodeID:   n.ID,
		Kind:     kind,
		Branches: listProp(p, "branches"),
		Tags:     listProp(p, "tags"),
		Paths:    listProp(p, "paths"),
		Types:    listProp(p, "types"),
		Cron:     stringProp(p, "cron"),
		Timezone: stringProp(p, "timezone"),
	}
	if tr.Cron == "" {
		tr.Cron = stringProp(p, "schedule")
	}
	if tr.Timezone == "" {
		tr.Timezone = "UTC"
	}
	if inputs, ok := p["inputs"].(map[string]any); ok {
		tr.Inputs = inputs
	}

	return tr, true
}

// FromNodes извлекает триггеры из всех узлов в порядке объявления.
func FromNodes(nodes []*domain.Node) []Trigger {
	var out []Trigger
	for _, n := range nodes {
		if tr, ok := FromNode(n); ok {
			out = append(out, tr)
		}
	}
	return out
}

// Validate проверяет настройки триггера.
func (t Trigger) Validate() error {
	if t.Kind != KindSchedule {
		return nil
	}
	if t.Cron == "" {
		return fmt.Errorf("%w: node %s: schedule has no cron expression", ErrInvalidTrigger, t.NodeID)
	}
	if err := ValidateCron(t.Cron); err != nil {
		return fmt.Errorf("%w: node %s: %v", ErrInvalidTrigger, t.NodeID, err)
	}
	return nil
}

// stringProp извлекает строковое свойство.
func stringProp(p map[string]any, key string) string {
	if s, ok := p[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// listProp извлекает список строк: массив или строку через запятую.
func listProp(p map[string]any, key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	default:
		return nil
	}
}

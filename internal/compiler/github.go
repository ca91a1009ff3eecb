package compiler

import (
	"log/slog"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/trigger"
)

// GitHubTriggers собирает секцию on: из триггерных узлов.
//
// Триггеры одного события объединяются: фильтры складываются,
// cron-расписания добавляются списком. Расписания с невалидным cron
// пропускаются с предупреждением. Возвращает nil, если триггеров нет.
func GitHubTriggers(nodes []*domain.Node, logger *slog.Logger) any {
	triggers := trigger.FromNodes(nodes)
	if len(triggers) == 0 {
		return nil
	}

	on := NewOrderedMap()
	for _, tr := range triggers {
		if err := tr.Validate(); err != nil {
			logger.Warn("skipping invalid trigger", "node_id", tr.NodeID, "error", err)
			continue
		}

		switch tr.Kind {
		case trigger.KindPush, trigger.KindTag:
			filters := eventFilters(on, "push")
			mergeList(filters, "branches", tr.Branches)
			mergeList(filters, "tags", tr.Tags)
			mergeList(filters, "paths", tr.Paths)
			if tr.Kind == trigger.KindTag && len(tr.Tags) == 0 {
				mergeList(filters, "tags", []string{"*"})
			}
		case trigger.KindPullRequest:
			filters := eventFilters(on, "pull_request")
			mergeList(filters, "branches", tr.Branches)
			mergeList(filters, "paths", tr.Paths)
			mergeList(filters, "types", tr.Types)
		case trigger.KindSchedule:
			var crons []map[string]string
			if v, ok := on.Get("schedule"); ok {
				crons = v.([]map[string]string)
			}
			on.Set("schedule", append(crons, map[string]string{"cron": tr.Cron}))
		case trigger.KindManual:
			filters := eventFilters(on, "workflow_dispatch")
			if len(tr.Inputs) > 0 {
				filters.Set("inputs", tr.Inputs)
			}
		default:
			eventFilters(on, string(tr.Kind))
		}
	}

	if on.Len() == 0 {
		return nil
	}
	return on
}

// GitHubWorkflow возвращает обёртку: name, on и jobs.
// Без триггеров workflow запускается вручную (workflow_dispatch).
func GitHubWorkflow(name string) Wrapper {
	return func(document any, triggers any, _ []*domain.Node) any {
		wf := NewOrderedMap()
		wf.Set("name", name)

		if triggers != nil {
			wf.Set("on", triggers)
		} else {
			on := NewOrderedMap()
			on.Set("workflow_dispatch", NewOrderedMap())
			wf.Set("on", on)
		}

		wf.Set("jobs", document)
		return wf
	}
}

// eventFilters возвращает (создавая при необходимости) фильтры события.
func eventFilters(on *OrderedMap, event string) *OrderedMap {
	if v, ok := on.Get(event); ok {
		return v.(*OrderedMap)
	}
	m := NewOrderedMap()
	on.Set(event, m)
	return m
}

// mergeList добавляет значения в список без повторов.
func mergeList(m *OrderedMap, key string, values []string) {
	if len(values) == 0 {
		return
	}
	var list []string
	if v, ok := m.Get(key); ok {
		list = v.([]string)
	}
	for _, val := range values {
		if !containsString(list, val) {
			list = append(list, val)
		}
	}
	m.Set(key, list)
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

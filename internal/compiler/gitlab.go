package compiler

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/trigger"
)

// GitLabRules собирает workflow.rules из триггерных узлов.
// Возвращает nil, если триггеров нет.
func GitLabRules(nodes []*domain.Node, logger *slog.Logger) any {
	var rules []map[string]string

	for _, tr := range trigger.FromNodes(nodes) {
		if err := tr.Validate(); err != nil {
			logger.Warn("skipping invalid trigger", "node_id", tr.NodeID, "error", err)
			continue
		}

		var cond string
		switch tr.Kind {
		case trigger.KindPush:
			cond = `$CI_PIPELINE_SOURCE == "push"`
			if len(tr.Branches) > 0 {
				cond += " && " + anyOf("$CI_COMMIT_BRANCH", tr.Branches)
			}
		case trigger.KindPullRequest:
			cond = `$CI_PIPELINE_SOURCE == "merge_request_event"`
			if len(tr.Branches) > 0 {
				cond += " && " + anyOf("$CI_MERGE_REQUEST_TARGET_BRANCH_NAME", tr.Branches)
			}
		case trigger.KindTag:
			cond = "$CI_COMMIT_TAG"
		case trigger.KindSchedule:
			cond = `$CI_PIPELINE_SOURCE == "schedule"`
		case trigger.KindManual:
			cond = `$CI_PIPELINE_SOURCE == "web"`
		default:
			cond = fmt.Sprintf("$CI_PIPELINE_SOURCE == %q", string(tr.Kind))
		}

		rules = append(rules, map[string]string{"if": cond})
	}

	if len(rules) == 0 {
		return nil
	}
	return rules
}

// GitLabPipeline — обёртка: workflow, stages и задания верхнего уровня.
func GitLabPipeline(document any, triggers any, _ []*domain.Node) any {
	out := NewOrderedMap()

	if triggers != nil {
		workflow := NewOrderedMap()
		workflow.Set("rules", triggers)
		out.Set("workflow", workflow)
	}

	jobs, ok := document.(*OrderedMap)
	if !ok {
		return out
	}

	stages := make([]string, 0, jobs.Len())
	for _, name := range jobs.Keys() {
		v, _ := jobs.Get(name)
		if job, ok := v.(*ScriptJob); ok {
			stages = append(stages, job.Stage)
		}
	}
	out.Set("stages", stages)

	renamed := gitlabJobNames(jobs.Keys())
	for _, name := range jobs.Keys() {
		v, _ := jobs.Get(name)
		if job, ok := v.(*ScriptJob); ok && len(job.Needs) > 0 {
			copied := *job
			copied.Needs = make([]string, len(job.Needs))
			for i, need := range job.Needs {
				if to, ok := renamed[need]; ok {
					need = to
				}
				copied.Needs[i] = need
			}
			v = &copied
		}
		if to, ok := renamed[name]; ok {
			name = to
		}
		out.Set(name, v)
	}

	return out
}

// gitlabJobNames переименовывает задания с зарезервированными именами
// в "<name>-job" без совпадений с остальными заданиями.
func gitlabJobNames(names []string) map[string]string {
	taken := make(nameSet, len(names))
	for _, name := range names {
		taken.take(name)
	}

	renamed := make(map[string]string)
	for _, name := range names {
		if !gitlabReserved[name] {
			continue
		}
		to := taken.next(name + "-job")
		taken.take(to)
		renamed[name] = to
	}
	return renamed
}

// gitlabReserved — ключи верхнего уровня, которые не могут быть именами заданий.
var gitlabReserved = map[string]bool{
	"default":   true,
	"include":   true,
	"stages":    true,
	"variables": true,
	"workflow":  true,
	"image":     true,
	"services":  true,
	"cache":     true,
}

// anyOf строит условие var == "a" || var == "b" (с учётом шаблонов ветки).
func anyOf(variable string, values []string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if strings.ContainsAny(v, "*?") {
			pattern := strings.NewReplacer("/", `\/`, ".", `\.`, "*", ".*", "?", ".").Replace(v)
			parts = append(parts, fmt.Sprintf("%s =~ /^%s$/", variable, pattern))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s == %q", variable, v))
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " || ") + ")"
}

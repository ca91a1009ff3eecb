package steps

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/trigger"
)

// Типы триггеров и checkout.
const (
	StepTypeTrigger            = "trigger"
	StepTypePushTrigger        = "trigger.push"
	StepTypePullRequestTrigger = "trigger.pull_request"
	StepTypeScheduleTrigger    = "trigger.schedule"
	StepTypeManualTrigger      = "trigger.manual"
	StepTypeTagTrigger         = "trigger.tag"
	StepTypeCheckout           = "checkout"
)

// TriggerStep — симуляция события, запустившего пайплайн.
//
// Триггеры не дают фрагментов для backend'ов: их собирают агрегаторы
// компилятора. При выполнении триггер описывает событие.
//
// Outputs:
//
//	{
//	    "event": "push",
//	    "ref": "refs/heads/main",
//	    "branch": "main"
//	}
//
// Для schedule дополнительно "cron" и "next_run", для manual — "inputs".
type TriggerStep struct {
	stepType string
	now      func() time.Time
}

// NewTriggerStep создаёт TriggerStep для типа триггера.
func NewTriggerStep(stepType string) *TriggerStep {
	return &TriggerStep{stepType: stepType, now: time.Now}
}

// Type возвращает тип шага.
func (s *TriggerStep) Type() string {
	return s.stepType
}

// Execute описывает событие триггера.
func (s *TriggerStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
	default:
	}

	tr, _ := trigger.FromNode(&domain.Node{ID: req.NodeID, Type: s.stepType, Properties: req.Config})
	if err := tr.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	outputs := map[string]any{"event": string(tr.Kind)}

	switch tr.Kind {
	case trigger.KindTag:
		tag := "v0.0.0"
		if len(tr.Tags) > 0 && !strings.ContainsAny(tr.Tags[0], "*?") {
			tag = tr.Tags[0]
		}
		outputs["tag"] = tag
		outputs["ref"] = "refs/tags/" + tag
	case trigger.KindSchedule:
		outputs["cron"] = tr.Cron
		if next, err := trigger.NextCron(tr.Cron, s.now(), tr.Timezone); err == nil {
			outputs["next_run"] = next.UTC().Format(time.RFC3339)
		}
	case trigger.KindManual:
		inputs := tr.Inputs
		if inputs == nil {
			inputs = map[string]any{}
		}
		outputs["inputs"] = inputs
	}

	if _, ok := outputs["ref"]; !ok {
		branch := "main"
		if len(tr.Branches) > 0 && !strings.ContainsAny(tr.Branches[0], "*?") {
			branch = tr.Branches[0]
		}
		outputs["branch"] = branch
		outputs["ref"] = "refs/heads/" + branch
	}

	return NewResponse(outputs), nil
}

func triggerDefinition(stepType, label string, props ...string) Definition {
	return Definition{
		Type:       stepType,
		Label:      label,
		Category:   CategoryTrigger,
		Step:       NewTriggerStep(stepType),
		Properties: props,
	}
}

func genericTrigger() Definition {
	return triggerDefinition(StepTypeTrigger, "Trigger", "event", "branches", "tags", "paths", "cron", "timezone")
}

func pushTrigger() Definition {
	return triggerDefinition(StepTypePushTrigger, "On push", "branches", "paths")
}

func pullRequestTrigger() Definition {
	return triggerDefinition(StepTypePullRequestTrigger, "On pull request", "branches", "paths", "types")
}

func scheduleTrigger() Definition {
	return triggerDefinition(StepTypeScheduleTrigger, "On schedule", "cron", "timezone")
}

func manualTrigger() Definition {
	return triggerDefinition(StepTypeManualTrigger, "Manual run", "inputs")
}

func tagTrigger() Definition {
	return triggerDefinition(StepTypeTagTrigger, "On tag", "tags")
}

// checkoutDefinition — получение исходного кода.
//
// Конфигурация:
//
//	{
//	    "repository": "https://github.com/acme/app.git",  // пусто — текущий репозиторий
//	    "ref": "main",
//	    "depth": 1
//	}
//
// Outputs: repository, ref и детерминированный "commit".
func checkoutDefinition() Definition {
	def := commandDefinition(Definition{
		Type:       StepTypeCheckout,
		Label:      "Checkout",
		Category:   CategorySource,
		Properties: []string{"repository", "ref", "depth"},
	}, checkoutCommand, func(req *Request) map[string]any {
		repo := GetConfigString(req.Config, "repository")
		ref := GetConfigString(req.Config, "ref")
		if ref == "" {
			ref = "main"
		}
		sum := sha1.Sum([]byte(repo + "@" + ref))
		return map[string]any{
			"repository": repo,
			"ref":        ref,
			"commit":     hex.EncodeToString(sum[:])[:12],
		}
	})

	def.Action = func(n *domain.Node) map[string]any {
		action := map[string]any{"uses": "actions/checkout@v4"}
		with := make(map[string]any)
		if repo := GetConfigString(n.Properties, "repository"); repo != "" {
			with["repository"] = repo
		}
		if ref := GetConfigString(n.Properties, "ref"); ref != "" {
			with["ref"] = ref
		}
		if depth := GetConfigInt(n.Properties, "depth"); depth > 0 {
			with["fetch-depth"] = depth
		}
		if len(with) > 0 {
			action["with"] = with
		}
		return action
	}

	return def
}

func checkoutCommand(config map[string]any) string {
	repo := GetConfigString(config, "repository")
	ref := GetConfigString(config, "ref")
	depth := GetConfigInt(config, "depth")

	var args []string
	if repo != "" {
		args = append(args, "git", "clone")
		if depth > 0 {
			args = append(args, fmt.Sprintf("--depth=%d", depth))
		}
		if ref != "" {
			args = append(args, "--branch", shellQuote(ref))
		}
		args = append(args, shellQuote(repo), ".")
		return strings.Join(args, " ")
	}

	if ref == "" {
		return "git rev-parse HEAD"
	}
	fetch := "git fetch origin " + shellQuote(ref)
	if depth > 0 {
		fetch = fmt.Sprintf("git fetch --depth=%d origin %s", depth, shellQuote(ref))
	}
	return fetch + " && git checkout " + shellQuote(ref)
}

package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Ключи общей конфигурации командных шагов.
const (
	configCommand = "command"
	configFail    = "fail"
)

// CommandStep — симуляция шага, который на CI выполнил бы shell-команду.
//
// Команда не запускается: шаг возвращает её текст и дополнительные
// выходы, которые строит Outputs. Свойство "fail" (строка или true)
// заставляет шаг упасть, чтобы проверять поведение пайплайна при ошибке.
//
// Outputs:
//
//	{
//	    "command": "go build ./...",
//	    "exit_code": 0,
//	    ...  // поля конкретного типа
//	}
type CommandStep struct {
	stepType string

	// command строит команду по отрендеренной конфигурации.
	command func(config map[string]any) string

	// outputs добавляет поля конкретного типа.
	outputs func(req *Request) map[string]any
}

// NewCommandStep создаёт CommandStep.
func NewCommandStep(stepType string, command func(map[string]any) string, outputs func(*Request) map[string]any) *CommandStep {
	return &CommandStep{stepType: stepType, command: command, outputs: outputs}
}

// Type возвращает тип шага.
func (s *CommandStep) Type() string {
	return s.stepType
}

// Execute симулирует выполнение команды.
func (s *CommandStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
	default:
	}

	cmd := ""
	if s.command != nil {
		cmd = s.command(req.Config)
	}

	if msg, failed := failure(req.Config); failed {
		return nil, fmt.Errorf("%w: %s: %s", ErrStepFailed, req.NodeID, msg)
	}

	outputs := map[string]any{
		"command":   cmd,
		"exit_code": 0,
	}
	if s.outputs != nil {
		for k, v := range s.outputs(req) {
			outputs[k] = v
		}
	}

	return NewResponse(outputs), nil
}

// failure проверяет свойство "fail".
func failure(config map[string]any) (string, bool) {
	switch v := config[configFail].(type) {
	case bool:
		return "simulated failure", v
	case string:
		if v = strings.TrimSpace(v); v != "" && v != "false" {
			if v == "true" {
				return "simulated failure", true
			}
			return v, true
		}
	}
	return "", false
}

// shellQuote заключает аргумент в одинарные кавычки, если это нужно.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`!*?&|;<>()[]{}#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// resolveCommand возвращает команду шага.
// Явное свойство "command" важнее команды по умолчанию.
func resolveCommand(config map[string]any, build func(config map[string]any) string) string {
	if cmd := strings.TrimSpace(GetConfigString(config, configCommand)); cmd != "" {
		return cmd
	}
	if build == nil {
		return ""
	}
	return build(config)
}

// commandDefinition — тип шага, выполняющий одну shell-команду.
// Генераторы и симуляция строят команду одной функцией.
func commandDefinition(def Definition, build func(config map[string]any) string, outputs func(*Request) map[string]any) Definition {
	def.Command = func(n *domain.Node) (string, bool) {
		cmd := resolveCommand(n.Properties, build)
		return cmd, cmd != ""
	}
	def.Step = NewCommandStep(def.Type, func(config map[string]any) string {
		return resolveCommand(config, build)
	}, outputs)
	if !containsProperty(def.Properties, configCommand) {
		def.Properties = append(def.Properties, configCommand, configFail)
	}
	return def
}

func containsProperty(props []string, name string) bool {
	for _, p := range props {
		if p == name {
			return true
		}
	}
	return false
}

package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/registry"
)

// Ошибки шагов.
var (
	// ErrInvalidConfig — невалидная конфигурация шага.
	ErrInvalidConfig = errors.New("invalid step config")

	// ErrStepTimeout — шаг превысил таймаут.
	ErrStepTimeout = errors.New("step execution timeout")

	// ErrStepCancelled — выполнение шага отменено.
	ErrStepCancelled = errors.New("step execution cancelled")

	// ErrStepFailed — шаг завершился ошибкой (в том числе симулированной).
	ErrStepFailed = errors.New("step failed")
)

// Step — исполняемая часть типа шага.
//
// Каждый тип каталога (build, deploy, notify, delay, ...) реализует этот интерфейс.
// В реестр Step попадает через Executor, который рендерит свойства узла.
type Step interface {
	// Type возвращает тип шага.
	Type() string

	// Execute выполняет шаг и возвращает результат.
	// Шаг должен проверять ctx.Done() для graceful shutdown.
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// Request — входные данные для выполнения шага.
type Request struct {
	// NodeID — идентификатор узла.
	NodeID string

	// Config — свойства узла, отрендеренные через engine.RenderConfig.
	Config map[string]any

	// TemplateContext — входы узла и его свойства для шаблонов.
	TemplateContext *engine.Context

	// Timeout — таймаут выполнения шага.
	// Если 0, используется таймаут по умолчанию.
	Timeout time.Duration
}

// Response — результат выполнения шага.
type Response struct {
	// Outputs — выходные данные шага.
	// Доступны детям узла через {{ .Inputs.<ключ входа>.field }}
	Outputs map[string]any
}

// NewRequest создаёт новый Request.
func NewRequest(nodeID string, config map[string]any, tmplCtx *engine.Context, timeout time.Duration) *Request {
	if config == nil {
		config = make(map[string]any)
	}
	return &Request{
		NodeID:          nodeID,
		Config:          config,
		TemplateContext: tmplCtx,
		Timeout:         timeout,
	}
}

// NewResponse создаёт новый Response с outputs.
func NewResponse(outputs map[string]any) *Response {
	if outputs == nil {
		outputs = make(map[string]any)
	}
	return &Response{
		Outputs: outputs,
	}
}

// EmptyResponse возвращает пустой Response.
func EmptyResponse() *Response {
	return &Response{
		Outputs: make(map[string]any),
	}
}

// Executor превращает Step в функцию выполнения для реестра.
//
// Свойства узла рендерятся шаблонами с входами узла, свойство
// "timeout_sec" ограничивает время выполнения.
func Executor(step Step) registry.ExecFunc {
	return func(ctx context.Context, node *domain.Node, inputs map[string]any) (any, error) {
		tmplCtx := engine.NewContext(node, inputs)

		config, err := engine.RenderConfig(node.Properties, tmplCtx)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, step.Type(), err)
		}

		timeout := time.Duration(GetConfigInt(config, configTimeoutSec)) * time.Second
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		resp, err := step.Execute(ctx, NewRequest(node.ID, config, tmplCtx, timeout))
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s after %s", ErrStepTimeout, node.ID, timeout)
			}
			return nil, err
		}
		if resp == nil {
			return map[string]any{}, nil
		}
		return resp.Outputs, nil
	}
}

// GetConfigString извлекает строковое значение из конфига.
func GetConfigString(config map[string]any, key string) string {
	if v, ok := config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetConfigInt извлекает числовое значение из конфига.
func GetConfigInt(config map[string]any, key string) int {
	if v, ok := config[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}

// GetConfigBool извлекает булево значение из конфига.
func GetConfigBool(config map[string]any, key string, defaultVal bool) bool {
	if v, ok := config[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

// GetConfigMap извлекает map из конфига.
func GetConfigMap(config map[string]any, key string) map[string]any {
	if v, ok := config[key]; ok {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return nil
}

// GetConfigMapString извлекает map[string]string из конфига.
func GetConfigMapString(config map[string]any, key string) map[string]string {
	if v, ok := config[key]; ok {
		switch m := v.(type) {
		case map[string]string:
			return m
		case map[string]any:
			result := make(map[string]string)
			for k, val := range m {
				if s, ok := val.(string); ok {
					result[k] = s
				}
			}
			return result
		}
	}
	return nil
}

// GetConfigStrings извлекает список строк: массив или строку через запятую.
func GetConfigStrings(config map[string]any, key string) []string {
	switch v := config[key].(type) {
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
	}
	return nil
}

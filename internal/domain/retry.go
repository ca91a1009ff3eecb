package domain

// RetryPolicy — политика повторных попыток узла.
//
// Задаётся в свойстве "retry" узла:
//
//	{"retry": {"max_attempts": 3, "backoff": "exponential", "initial_delay_ms": 100}}
//
// Короткая форма {"retries": 2} означает две дополнительные попытки с fixed backoff.
type RetryPolicy struct {
	// MaxAttempts — максимальное количество попыток (включая первую).
	MaxAttempts int `json:"max_attempts,omitempty"`

	// Backoff — стратегия задержки: "fixed", "exponential".
	Backoff string `json:"backoff,omitempty"`

	// InitialDelayMs — начальная задержка в миллисекундах.
	InitialDelayMs int `json:"initial_delay_ms,omitempty"`

	// MaxDelayMs — максимальная задержка в миллисекундах.
	MaxDelayMs int `json:"max_delay_ms,omitempty"`
}

// RetryPolicyFromNode читает политику из свойств узла.
// Возвращает nil, если retry не настроен.
func RetryPolicyFromNode(n *Node) *RetryPolicy {
	if n == nil || n.Properties == nil {
		return nil
	}

	if raw, ok := n.Properties["retry"].(map[string]any); ok {
		p := &RetryPolicy{
			MaxAttempts:    toInt(raw["max_attempts"]),
			InitialDelayMs: toInt(raw["initial_delay_ms"]),
			MaxDelayMs:     toInt(raw["max_delay_ms"]),
		}
		if b, ok := raw["backoff"].(string); ok {
			p.Backoff = b
		}
		if p.MaxAttempts <= 1 {
			return nil
		}
		return p
	}

	if retries := toInt(n.Properties["retries"]); retries > 0 {
		return &RetryPolicy{MaxAttempts: retries + 1, Backoff: "fixed"}
	}

	return nil
}

// toInt приводит числа из JSON к int.
func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

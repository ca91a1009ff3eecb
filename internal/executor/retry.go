package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// executeWithRetry вызывает callback узла с повторами согласно RetryPolicy.
//
// Ожидание между попытками прерывается отменой контекста;
// в этом случае возвращается результат последней попытки.
func (e *Executor) executeWithRetry(ctx context.Context, n *domain.Node, fn Callback, inputs map[string]any, logger *slog.Logger) nodeResult {
	policy := domain.RetryPolicyFromNode(n)

	maxAttempts := 1
	if policy != nil && policy.MaxAttempts > 1 {
		maxAttempts = policy.MaxAttempts
	}

	var res nodeResult
	for attempt := 1; ; attempt++ {
		res.attempts = attempt
		res.output, res.err = invoke(ctx, fn, n, inputs)

		if res.err == nil || attempt >= maxAttempts || ctx.Err() != nil {
			return res
		}

		delay := calculateBackoff(attempt, policy)
		logger.Debug("retrying node",
			"node_id", n.ID,
			"attempt", attempt,
			"delay", delay,
			"error", res.err,
		)
		e.metrics.ObserveRetry(n.Type)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return res
		}
	}
}

// invoke вызывает callback, превращая panic в ошибку узла.
func invoke(ctx context.Context, fn Callback, n *domain.Node, inputs map[string]any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, n, inputs)
}

// calculateBackoff вычисляет задержку перед следующей попыткой.
func calculateBackoff(attempt int, policy *domain.RetryPolicy) time.Duration {
	if policy == nil {
		return time.Second
	}

	initialDelay := time.Duration(policy.InitialDelayMs) * time.Millisecond
	if initialDelay <= 0 {
		initialDelay = time.Second
	}

	maxDelay := time.Duration(policy.MaxDelayMs) * time.Millisecond
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	delay := initialDelay
	if policy.Backoff == "exponential" {
		// delay = initialDelay * 2^(attempt-1)
		for i := 1; i < attempt && delay < maxDelay; i++ {
			delay *= 2
		}
	}

	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

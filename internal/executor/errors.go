package executor

import "errors"

// Ошибки прогона. Run их не возвращает: они попадают в ExecutionRecord.Error.
var (
	// ErrExecutionFailed — callback узла вернул ошибку, прогон остановлен.
	ErrExecutionFailed = errors.New("node execution failed")

	// ErrUnreachableDependency — узел не может стать готовым:
	// полный проход очереди не дал прогресса.
	ErrUnreachableDependency = errors.New("unreachable dependency")

	// ErrRecordNotFound — запись истории не найдена.
	ErrRecordNotFound = errors.New("execution record not found")

	// ErrNilGraph — граф не передан.
	ErrNilGraph = errors.New("graph is nil")
)

package domain

import (
	"time"

	"github.com/google/uuid"
)

// NodeResult — результат одного узла в ExecutionRecord.
type NodeResult struct {
	Status ExecutionStatus `json:"status"`
	Output any             `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`

	// Attempts — число попыток (больше 1 только при retry).
	Attempts int `json:"attempts,omitempty"`
}

// ExecutionRecord — отчёт об одном прогоне графа.
//
// Создаётся Executor'ом на каждый прогон и после возврата не меняется.
// Details не содержит записей для узлов, которые не выполнялись.
type ExecutionRecord struct {
	// ID — уникальный идентификатор прогона.
	ID uuid.UUID `json:"id"`

	// PipelineID — пайплайн, если граф был загружен из хранилища.
	PipelineID *uuid.UUID `json:"pipeline_id,omitempty"`

	// Timestamp — время начала прогона.
	Timestamp time.Time `json:"timestamp"`

	// Status — success, если ни один узел не упал.
	Status RecordStatus `json:"status"`

	// TotalNodes — число всех узлов графа, а не только выполненных.
	TotalNodes int `json:"total_nodes"`

	// Details — результаты по узлам (nodeID → результат).
	Details map[string]NodeResult `json:"details"`

	// Order — ID узлов в порядке выполнения.
	Order []string `json:"order"`

	// Error — ошибка уровня прогона (цикл, недостижимый узел, отмена,
	// либо ошибка упавшего узла).
	Error string `json:"error,omitempty"`

	// Trigger — источник запуска: "manual", "api", "schedule", ...
	Trigger string `json:"trigger,omitempty"`

	// IdempotencyKey — ключ для защиты от повторных запусков по расписанию.
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// DurationMs — длительность прогона.
	DurationMs int64 `json:"duration_ms"`
}

// Succeeded возвращает true, если прогон успешен.
func (r *ExecutionRecord) Succeeded() bool {
	return r.Status == RecordSuccess
}

// Executed возвращает число узлов, у которых есть запись в Details.
func (r *ExecutionRecord) Executed() int {
	return len(r.Details)
}

// Duration возвращает длительность прогона.
func (r *ExecutionRecord) Duration() time.Duration {
	return time.Duration(r.DurationMs) * time.Millisecond
}

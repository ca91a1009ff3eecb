package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/registry"
)

// Pipeline DTOs

// CreatePipelineRequest — запрос на создание pipeline.
// Graph — снимок редактора {"nodes": [...], "edges": [...]}.
type CreatePipelineRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Graph       json.RawMessage `json:"graph"`
	IsActive    *bool           `json:"is_active,omitempty"`
}

// UpdatePipelineRequest — запрос на обновление pipeline.
type UpdatePipelineRequest struct {
	Name        *string         `json:"name,omitempty"`
	Description *string         `json:"description,omitempty"`
	Graph       json.RawMessage `json:"graph,omitempty"`
	IsActive    *bool           `json:"is_active,omitempty"`
}

// PipelineResponse — ответ с pipeline.
type PipelineResponse struct {
	ID          uuid.UUID     `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	IsActive    bool          `json:"is_active"`
	Graph       *domain.Graph `json:"graph,omitempty"`
	NodeCount   int           `json:"node_count"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// PipelineFromDomain конвертирует domain.Pipeline в PipelineResponse.
// withGraph=false — без графа (для списков).
func PipelineFromDomain(p domain.Pipeline, withGraph bool) PipelineResponse {
	resp := PipelineResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		IsActive:    p.IsActive,
		NodeCount:   len(p.Graph.Nodes),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if withGraph {
		g := p.Graph
		resp.Graph = &g
	}
	return resp
}

// Compile DTOs

// CompileRequest — запрос на компиляцию графа.
type CompileRequest struct {
	Graph   json.RawMessage `json:"graph"`
	Backend string          `json:"backend"`

	// StageMode — "longest" или "bfs". Пусто — режим компилятора.
	StageMode string `json:"stage_mode,omitempty"`

	// Title — имя документа.
	Title string `json:"title,omitempty"`
}

// CompileResponse — результат компиляции.
type CompileResponse struct {
	Backend  registry.Backend `json:"backend"`
	Filename string           `json:"filename,omitempty"`
	Text     string           `json:"text"`
	Plan     *engine.Plan     `json:"plan"`
	Skipped  []string         `json:"skipped,omitempty"`
}

// ValidateRequest — запрос на проверку графа.
type ValidateRequest struct {
	Graph json.RawMessage `json:"graph"`
}

// ValidateResponse — результат проверки.
//
// Unsupported — узлы без генератора для каждого backend'а; они
// не мешают компиляции, но не попадут в документ.
type ValidateResponse struct {
	Valid       bool                `json:"valid"`
	Errors      []string            `json:"errors,omitempty"`
	Unsupported map[string][]string `json:"unsupported,omitempty"`
	Stages      *engine.Plan        `json:"stages,omitempty"`
}

// StepTypeResponse — описание типа шага.
type StepTypeResponse struct {
	Type     string             `json:"type"`
	Label    string             `json:"label,omitempty"`
	Category string             `json:"category,omitempty"`
	Backends []registry.Backend `json:"backends"`
	Metadata map[string]any     `json:"metadata,omitempty"`
}

// StepTypeFromItem конвертирует registry.Item в StepTypeResponse.
func StepTypeFromItem(it *registry.Item) StepTypeResponse {
	return StepTypeResponse{
		Type:     it.Type,
		Label:    it.Label,
		Category: it.Category,
		Backends: it.Backends(),
		Metadata: it.Metadata,
	}
}

// Run DTOs

// RunPipelineRequest — запрос на прогон сохранённого pipeline.
type RunPipelineRequest struct {
	Trigger        string `json:"trigger,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// RunGraphRequest — запрос на прогон графа без сохранения.
type RunGraphRequest struct {
	Graph   json.RawMessage `json:"graph"`
	Trigger string          `json:"trigger,omitempty"`
}

// RunAcceptedResponse — ответ на асинхронный запуск.
type RunAcceptedResponse struct {
	RequestID  uuid.UUID `json:"request_id"`
	PipelineID uuid.UUID `json:"pipeline_id"`
}

// ExecutionSummary — запись прогона без деталей по узлам.
type ExecutionSummary struct {
	ID         uuid.UUID           `json:"id"`
	PipelineID *uuid.UUID          `json:"pipeline_id,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
	Status     domain.RecordStatus `json:"status"`
	TotalNodes int                 `json:"total_nodes"`
	Executed   int                 `json:"executed"`
	Error      string              `json:"error,omitempty"`
	Trigger    string              `json:"trigger,omitempty"`
	DurationMs int64               `json:"duration_ms"`
}

// ExecutionSummaryFromDomain конвертирует запись в ExecutionSummary.
func ExecutionSummaryFromDomain(rec *domain.ExecutionRecord) ExecutionSummary {
	return ExecutionSummary{
		ID:         rec.ID,
		PipelineID: rec.PipelineID,
		Timestamp:  rec.Timestamp,
		Status:     rec.Status,
		TotalNodes: rec.TotalNodes,
		Executed:   rec.Executed(),
		Error:      rec.Error,
		Trigger:    rec.Trigger,
		DurationMs: rec.DurationMs,
	}
}

// Schedule DTOs

// CreateScheduleRequest — запрос на создание schedule.
type CreateScheduleRequest struct {
	Name        string `json:"name"`
	CronExpr    string `json:"cron_expr,omitempty"`
	IntervalSec int    `json:"interval_sec,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// UpdateScheduleRequest — запрос на обновление schedule.
type UpdateScheduleRequest struct {
	Name        *string `json:"name,omitempty"`
	CronExpr    *string `json:"cron_expr,omitempty"`
	IntervalSec *int    `json:"interval_sec,omitempty"`
	Timezone    *string `json:"timezone,omitempty"`
}

// SetEnabledRequest — запрос на включение/выключение.
type SetEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// ScheduleResponse — ответ с schedule.
type ScheduleResponse struct {
	ID            uuid.UUID  `json:"id"`
	PipelineID    uuid.UUID  `json:"pipeline_id"`
	NodeID        string     `json:"node_id,omitempty"`
	Name          string     `json:"name"`
	CronExpr      string     `json:"cron_expr,omitempty"`
	IntervalSec   int        `json:"interval_sec,omitempty"`
	Timezone      string     `json:"timezone"`
	Enabled       bool       `json:"enabled"`
	NextDueAt     *time.Time `json:"next_due_at,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	LastRequestID *uuid.UUID `json:"last_request_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ScheduleFromDomain конвертирует domain.Schedule в ScheduleResponse.
func ScheduleFromDomain(s *domain.Schedule) ScheduleResponse {
	if s == nil {
		return ScheduleResponse{}
	}
	return ScheduleResponse{
		ID:            s.ID,
		PipelineID:    s.PipelineID,
		NodeID:        s.NodeID,
		Name:          s.Name,
		CronExpr:      s.CronExpr,
		IntervalSec:   s.IntervalSec,
		Timezone:      s.Timezone,
		Enabled:       s.Enabled,
		NextDueAt:     s.NextDueAt,
		LastRunAt:     s.LastRunAt,
		LastRequestID: s.LastRequestID,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

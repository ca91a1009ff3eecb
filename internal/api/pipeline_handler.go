package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/compiler"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/registry"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/scheduler"
)

// ListPipelines возвращает список pipelines.
// GET /api/v1/pipelines?active=...&limit=...&offset=...
func (h *Handler) ListPipelines(w http.ResponseWriter, r *http.Request) {
	filter := repo.PipelineFilter{
		Limit:  int(mustParseInt(r.URL.Query().Get("limit"), 50)),
		Offset: int(mustParseInt(r.URL.Query().Get("offset"), 0)),
	}
	if activeStr := r.URL.Query().Get("active"); activeStr != "" {
		active := activeStr == "true"
		filter.Active = &active
	}

	pipelines, err := h.pipelines.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]PipelineResponse, len(pipelines))
	for i, p := range pipelines {
		result[i] = PipelineFromDomain(p, false)
	}

	List(w, result, len(result))
}

// CreatePipeline создаёт новый pipeline.
// POST /api/v1/pipelines
//
// Узлы trigger.schedule превращаются в расписания.
func (h *Handler) CreatePipeline(w http.ResponseWriter, r *http.Request) {
	var req CreatePipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Name == "" {
		BadRequest(w, "name is required")
		return
	}

	now := time.Now().UTC()
	p := &domain.Pipeline{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	if len(req.Graph) > 0 {
		g, err := decodeGraph(req.Graph)
		if HandleRepoError(w, h.logger, err, "") {
			return
		}
		p.Graph = *g
	}

	schedules, err := scheduler.SchedulesFromPipeline(p, now)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	if err := h.pipelines.Create(r.Context(), p); HandleRepoError(w, h.logger, err, "") {
		return
	}
	if err := h.replaceSchedules(r.Context(), p.ID, schedules); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("pipeline created", "pipeline_id", p.ID, "name", p.Name, "schedules", len(schedules))
	Created(w, PipelineFromDomain(*p, true))
}

// GetPipeline возвращает pipeline по ID вместе с графом.
// GET /api/v1/pipelines/{id}
func (h *Handler) GetPipeline(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}

	p, err := h.pipelines.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "pipeline not found") {
		return
	}

	Success(w, PipelineFromDomain(*p, true))
}

// UpdatePipeline обновляет pipeline.
// PUT /api/v1/pipelines/{id}
func (h *Handler) UpdatePipeline(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}

	var req UpdatePipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	p, err := h.pipelines.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "pipeline not found") {
		return
	}

	if req.Name != nil {
		if *req.Name == "" {
			BadRequest(w, "name must not be empty")
			return
		}
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	if len(req.Graph) > 0 {
		g, err := decodeGraph(req.Graph)
		if HandleRepoError(w, h.logger, err, "") {
			return
		}
		p.Graph = *g
	}

	now := time.Now().UTC()
	p.UpdatedAt = now

	schedules, err := scheduler.SchedulesFromPipeline(p, now)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	if err := h.pipelines.Update(r.Context(), p); HandleRepoError(w, h.logger, err, "pipeline not found") {
		return
	}
	if err := h.replaceSchedules(r.Context(), p.ID, schedules); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Success(w, PipelineFromDomain(*p, true))
}

// DeletePipeline удаляет pipeline. Расписания удаляются каскадом.
// DELETE /api/v1/pipelines/{id}
func (h *Handler) DeletePipeline(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}

	if err := h.pipelines.Delete(r.Context(), id); HandleRepoError(w, h.logger, err, "pipeline not found") {
		return
	}

	NoContent(w)
}

// CompilePipeline компилирует сохранённый pipeline.
// GET /api/v1/pipelines/{id}/compile?backend=...&stage_mode=...
func (h *Handler) CompilePipeline(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}

	p, err := h.pipelines.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "pipeline not found") {
		return
	}

	backend := r.URL.Query().Get("backend")
	if backend == "" {
		backend = string(compiler.BackendGitHubActions)
	}

	g := p.Graph
	h.compile(w, compiler.Request{
		Graph:   &g,
		Backend: registry.Backend(backend),
		Title:   p.Name,
	}, r.URL.Query().Get("stage_mode"))
}

// replaceSchedules синхронизирует расписания узлов trigger.schedule.
func (h *Handler) replaceSchedules(ctx context.Context, pipelineID uuid.UUID, schedules []domain.Schedule) error {
	if h.schedules == nil {
		return nil
	}
	return h.schedules.ReplaceForPipeline(ctx, pipelineID, schedules)
}

// decodeGraph парсит снимок редактора и проверяет структуру графа.
func decodeGraph(raw json.RawMessage) (*domain.Graph, error) {
	g, err := engine.ParseGraph(raw)
	if err != nil {
		return nil, err
	}
	if err := engine.Validate(g); err != nil {
		return nil, err
	}
	return g, nil
}

// mustParseInt парсит строку в int с дефолтным значением.
func mustParseInt(s string, defaultVal int64) int64 {
	if n, err := json.Number(s).Int64(); err == nil {
		return n
	}
	return defaultVal
}

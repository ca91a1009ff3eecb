package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/runner"
)

// RunPipeline запускает сохранённый pipeline.
// POST /api/v1/pipelines/{id}/runs[?async=true]
//
// Синхронный прогон возвращает ExecutionRecord (200 даже для статуса error).
// Асинхронный — 202 с request_id; запись появится в /executions/{request_id}.
func (h *Handler) RunPipeline(w http.ResponseWriter, r *http.Request) {
	pipelineID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}

	var req RunPipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		BadRequest(w, "invalid request body")
		return
	}

	runReq := runner.RunRequest{
		PipelineID:     pipelineID,
		Trigger:        req.Trigger,
		IdempotencyKey: req.IdempotencyKey,
	}

	if r.URL.Query().Get("async") == "true" {
		if h.dispatcher == nil {
			InvalidState(w, "async runs are not configured")
			return
		}

		// Проверяем, что pipeline существует
		_, err := h.pipelines.GetByID(r.Context(), pipelineID)
		if HandleRepoError(w, h.logger, err, "pipeline not found") {
			return
		}

		requestID, err := h.dispatcher.Dispatch(r.Context(), runReq)
		if err != nil {
			InternalError(w, h.logger, err)
			return
		}

		JSON(w, http.StatusAccepted, DataResponse{Data: RunAcceptedResponse{
			RequestID:  requestID,
			PipelineID: pipelineID,
		}})
		return
	}

	rec, err := h.runner.RunPipeline(r.Context(), runReq)
	if HandleRepoError(w, h.logger, err, "pipeline not found") {
		return
	}

	Success(w, rec)
}

// RunGraph выполняет граф из запроса без сохранения pipeline.
// POST /api/v1/runs
//
// Ответ — ExecutionRecord и граф с заполненными полями выполнения.
func (h *Handler) RunGraph(w http.ResponseWriter, r *http.Request) {
	var req RunGraphRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	g, err := decodeGraph(req.Graph)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	rec := h.runner.RunGraph(r.Context(), g, req.Trigger)

	Success(w, struct {
		Record *domain.ExecutionRecord `json:"record"`
		Graph  *domain.Graph           `json:"graph"`
	}{rec, g})
}

// ListExecutions возвращает историю прогонов.
// GET /api/v1/executions?pipeline_id=...&status=...&limit=...&offset=...
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	filter := executor.ListFilter{
		Limit:  int(mustParseInt(r.URL.Query().Get("limit"), 50)),
		Offset: int(mustParseInt(r.URL.Query().Get("offset"), 0)),
	}

	if pipelineIDStr := r.URL.Query().Get("pipeline_id"); pipelineIDStr != "" {
		pipelineID, err := uuid.Parse(pipelineIDStr)
		if err != nil {
			BadRequest(w, "invalid pipeline_id")
			return
		}
		filter.PipelineID = &pipelineID
	}

	if status := r.URL.Query().Get("status"); status != "" {
		if status != string(domain.RecordSuccess) && status != string(domain.RecordError) {
			BadRequest(w, "invalid status")
			return
		}
		filter.Status = domain.ParseRecordStatus(status)
	}

	records, err := h.runner.History().List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ExecutionSummary, len(records))
	for i, rec := range records {
		result[i] = ExecutionSummaryFromDomain(rec)
	}

	List(w, result, len(result))
}

// GetExecution возвращает запись прогона с деталями по узлам.
// GET /api/v1/executions/{id}
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid execution id")
		return
	}

	rec, err := h.runner.History().Get(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "execution not found") {
		return
	}

	Success(w, rec)
}

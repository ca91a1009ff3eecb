package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/scheduler"
)

// ListSchedules возвращает список schedules с фильтрацией.
// GET /api/v1/schedules?pipeline_id=...&enabled=...&limit=...&offset=...
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	if !h.requireSchedules(w) {
		return
	}

	filter := repo.ScheduleFilter{
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

	if enabledStr := r.URL.Query().Get("enabled"); enabledStr != "" {
		enabled := enabledStr == "true"
		filter.Enabled = &enabled
	}

	schedules, err := h.schedules.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ScheduleResponse, len(schedules))
	for i := range schedules {
		result[i] = ScheduleFromDomain(&schedules[i])
	}

	List(w, result, len(result))
}

// CreateSchedule создаёт расписание вручную (без узла trigger.schedule).
// POST /api/v1/pipelines/{id}/schedules
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	if !h.requireSchedules(w) {
		return
	}

	pipelineID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}

	var req CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Name == "" {
		BadRequest(w, "name is required")
		return
	}

	// Проверяем, что pipeline существует
	_, err = h.pipelines.GetByID(r.Context(), pipelineID)
	if HandleRepoError(w, h.logger, err, "pipeline not found") {
		return
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}

	now := time.Now().UTC()
	schedule := &domain.Schedule{
		ID:          uuid.New(),
		PipelineID:  pipelineID,
		Name:        req.Name,
		CronExpr:    req.CronExpr,
		IntervalSec: req.IntervalSec,
		Timezone:    timezone,
		Enabled:     req.Enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if !h.scheduleNextDue(w, schedule, now) {
		return
	}

	if err := h.schedules.Create(r.Context(), schedule); HandleRepoError(w, h.logger, err, "") {
		return
	}

	Created(w, ScheduleFromDomain(schedule))
}

// GetSchedule возвращает schedule по ID.
// GET /api/v1/schedules/{id}
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	if !h.requireSchedules(w) {
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid schedule id")
		return
	}

	schedule, err := h.schedules.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	Success(w, ScheduleFromDomain(schedule))
}

// UpdateSchedule обновляет schedule и пересчитывает next_due_at.
// PUT /api/v1/schedules/{id}
//
// Расписания из узлов trigger.schedule меняются только через граф.
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	if !h.requireSchedules(w) {
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid schedule id")
		return
	}

	var req UpdateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	schedule, err := h.schedules.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}
	if schedule.NodeID != "" {
		InvalidState(w, "schedule is defined by node "+schedule.NodeID+"; edit the pipeline graph instead")
		return
	}

	if req.Name != nil {
		schedule.Name = *req.Name
	}
	if req.CronExpr != nil {
		schedule.CronExpr = *req.CronExpr
	}
	if req.IntervalSec != nil {
		schedule.IntervalSec = *req.IntervalSec
	}
	if req.Timezone != nil {
		schedule.Timezone = *req.Timezone
	}

	now := time.Now().UTC()
	schedule.UpdatedAt = now
	if !h.scheduleNextDue(w, schedule, now) {
		return
	}

	if err := h.schedules.Update(r.Context(), schedule); HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	Success(w, ScheduleFromDomain(schedule))
}

// DeleteSchedule удаляет schedule.
// DELETE /api/v1/schedules/{id}
func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	if !h.requireSchedules(w) {
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid schedule id")
		return
	}

	if err := h.schedules.Delete(r.Context(), id); HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	NoContent(w)
}

// SetScheduleEnabled включает или выключает schedule.
// PUT /api/v1/schedules/{id}/enabled
func (h *Handler) SetScheduleEnabled(w http.ResponseWriter, r *http.Request) {
	if !h.requireSchedules(w) {
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid schedule id")
		return
	}

	var req SetEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if err := h.schedules.SetEnabled(r.Context(), id, req.Enabled); HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	// Возвращаем обновлённый schedule
	schedule, err := h.schedules.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	Success(w, ScheduleFromDomain(schedule))
}

// requireSchedules отвечает 422, если хранилище расписаний не настроено.
func (h *Handler) requireSchedules(w http.ResponseWriter) bool {
	if h.schedules == nil {
		InvalidState(w, "schedules are not configured")
		return false
	}
	return true
}

// scheduleNextDue проверяет расписание и заполняет NextDueAt.
func (h *Handler) scheduleNextDue(w http.ResponseWriter, s *domain.Schedule, now time.Time) bool {
	if err := scheduler.ValidateSchedule(s); err != nil {
		BadRequest(w, err.Error())
		return false
	}
	next, err := scheduler.CalculateNextDue(s, now)
	if err != nil {
		BadRequest(w, err.Error())
		return false
	}
	s.NextDueAt = &next
	return true
}

package api

import (
	"encoding/json"
	"net/http"

	"github.com/shaiso/Conveyor/internal/compiler"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/registry"
	"github.com/shaiso/Conveyor/internal/trigger"
)

// Compile компилирует граф из запроса.
// POST /api/v1/compile
func (h *Handler) Compile(w http.ResponseWriter, r *http.Request) {
	var req CompileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Backend == "" {
		BadRequest(w, "backend is required")
		return
	}

	g, err := engine.ParseGraph(req.Graph)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	h.compile(w, compiler.Request{
		Graph:   g,
		Backend: registry.Backend(req.Backend),
		Title:   req.Title,
	}, req.StageMode)
}

// compile выполняет запрос и пишет CompileResponse.
// Неизвестный backend или режим стадий — 400.
func (h *Handler) compile(w http.ResponseWriter, req compiler.Request, stageMode string) {
	if stageMode != "" {
		mode, err := engine.ParseStageMode(stageMode)
		if err != nil {
			BadRequest(w, err.Error())
			return
		}
		req.StageMode = mode
	}

	target, err := h.compiler.Target(req.Backend)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	res, err := h.compiler.Build(req)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Success(w, CompileResponse{
		Backend:  res.Backend,
		Filename: target.Filename,
		Text:     res.Text,
		Plan:     res.Plan,
		Skipped:  res.Skipped,
	})
}

// Validate проверяет граф: структура, циклы, триггеры и поддержка backend'ами.
// POST /api/v1/validate
//
// Невалидный граф — это 200 с valid=false; 400 только для неразбираемого тела.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	g, err := engine.ParseGraph(req.Graph)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	resp := ValidateResponse{Unsupported: make(map[string][]string)}

	if err := engine.Validate(g); err != nil {
		resp.Errors = append(resp.Errors, err.Error())
	}
	if err := engine.DetectCycle(g); err != nil {
		resp.Errors = append(resp.Errors, err.Error())
	}
	for _, tr := range trigger.FromNodes(g.Nodes) {
		if err := tr.Validate(); err != nil {
			resp.Errors = append(resp.Errors, err.Error())
		}
	}

	reg := h.compiler.Registry()
	for _, t := range h.compiler.Targets() {
		if missing := reg.Unsupported(g, t.Name); len(missing) > 0 {
			resp.Unsupported[string(t.Name)] = missing
		}
	}

	resp.Valid = len(resp.Errors) == 0
	if resp.Valid {
		resp.Stages = engine.StageGraph(g)
	}

	Success(w, resp)
}

// ListStepTypes возвращает каталог типов шагов.
// GET /api/v1/step-types?category=...
func (h *Handler) ListStepTypes(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")

	var result []StepTypeResponse
	for _, it := range h.compiler.Registry().Items() {
		if category != "" && it.Category != category {
			continue
		}
		result = append(result, StepTypeFromItem(it))
	}

	List(w, result, len(result))
}

// ListBackends возвращает зарегистрированные backend'ы.
// GET /api/v1/backends
func (h *Handler) ListBackends(w http.ResponseWriter, _ *http.Request) {
	targets := h.compiler.Targets()
	List(w, targets, len(targets))
}

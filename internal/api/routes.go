package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
		Metrics(h.metrics),
	)

	// Pipelines
	mux.Handle("GET /api/v1/pipelines", chain(http.HandlerFunc(h.ListPipelines)))
	mux.Handle("POST /api/v1/pipelines", chain(http.HandlerFunc(h.CreatePipeline)))
	mux.Handle("GET /api/v1/pipelines/{id}", chain(http.HandlerFunc(h.GetPipeline)))
	mux.Handle("PUT /api/v1/pipelines/{id}", chain(http.HandlerFunc(h.UpdatePipeline)))
	mux.Handle("DELETE /api/v1/pipelines/{id}", chain(http.HandlerFunc(h.DeletePipeline)))
	mux.Handle("GET /api/v1/pipelines/{id}/compile", chain(http.HandlerFunc(h.CompilePipeline)))
	mux.Handle("POST /api/v1/pipelines/{id}/runs", chain(http.HandlerFunc(h.RunPipeline)))

	// Compile & validate
	mux.Handle("POST /api/v1/compile", chain(http.HandlerFunc(h.Compile)))
	mux.Handle("POST /api/v1/validate", chain(http.HandlerFunc(h.Validate)))
	mux.Handle("GET /api/v1/step-types", chain(http.HandlerFunc(h.ListStepTypes)))
	mux.Handle("GET /api/v1/backends", chain(http.HandlerFunc(h.ListBackends)))

	// Runs & executions
	mux.Handle("POST /api/v1/runs", chain(http.HandlerFunc(h.RunGraph)))
	mux.Handle("GET /api/v1/executions", chain(http.HandlerFunc(h.ListExecutions)))
	mux.Handle("GET /api/v1/executions/{id}", chain(http.HandlerFunc(h.GetExecution)))

	// Schedules
	mux.Handle("GET /api/v1/schedules", chain(http.HandlerFunc(h.ListSchedules)))
	mux.Handle("POST /api/v1/pipelines/{id}/schedules", chain(http.HandlerFunc(h.CreateSchedule)))
	mux.Handle("GET /api/v1/schedules/{id}", chain(http.HandlerFunc(h.GetSchedule)))
	mux.Handle("PUT /api/v1/schedules/{id}", chain(http.HandlerFunc(h.UpdateSchedule)))
	mux.Handle("DELETE /api/v1/schedules/{id}", chain(http.HandlerFunc(h.DeleteSchedule)))
	mux.Handle("PUT /api/v1/schedules/{id}/enabled", chain(http.HandlerFunc(h.SetScheduleEnabled)))

	// Service
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
}

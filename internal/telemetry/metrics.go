package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics — Prometheus метрики Conveyor.
//
// Все методы безопасны для nil-получателя: компоненты,
// созданные без метрик, просто ничего не считают.
type Metrics struct {
	// Compilations — число компиляций по backend'у и результату (ok/error).
	Compilations *prometheus.CounterVec

	// CompileDuration — длительность компиляции.
	CompileDuration *prometheus.HistogramVec

	// SkippedNodes — узлы, пропущенные компилятором (нет генератора).
	SkippedNodes *prometheus.CounterVec

	// Runs — прогоны по итоговому статусу.
	Runs *prometheus.CounterVec

	// RunDuration — длительность прогона.
	RunDuration prometheus.Histogram

	// NodeExecutions — выполнения узлов по типу и статусу.
	NodeExecutions *prometheus.CounterVec

	// NodeRetries — повторные попытки узлов по типу.
	NodeRetries *prometheus.CounterVec

	// HTTPRequests — запросы к API по методу и коду ответа.
	HTTPRequests *prometheus.CounterVec

	// ScheduledRuns — запуски, созданные планировщиком.
	ScheduledRuns prometheus.Counter
}

// NewMetrics регистрирует метрики в reg.
// Для production передаётся prometheus.DefaultRegisterer, в тестах — prometheus.NewRegistry().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Compilations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_compilations_total",
			Help: "Total number of graph compilations.",
		}, []string{"backend", "result"}),

		CompileDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conveyor_compile_duration_seconds",
			Help:    "Graph compilation latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"backend"}),

		SkippedNodes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_compile_skipped_nodes_total",
			Help: "Nodes skipped during compilation because no generator was registered.",
		}, []string{"backend"}),

		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_runs_total",
			Help: "Total number of graph runs by final status.",
		}, []string{"status"}),

		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "conveyor_run_duration_seconds",
			Help:    "Graph run latency.",
			Buckets: prometheus.DefBuckets,
		}),

		NodeExecutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_node_executions_total",
			Help: "Node executions by step type and status.",
		}, []string{"type", "status"}),

		NodeRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_node_retries_total",
			Help: "Node retry attempts by step type.",
		}, []string{"type"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_api_requests_total",
			Help: "API requests by method and status code.",
		}, []string{"method", "code"}),

		ScheduledRuns: f.NewCounter(prometheus.CounterOpts{
			Name: "conveyor_scheduled_runs_total",
			Help: "Run requests created by the scheduler.",
		}),
	}
}

// ObserveCompile записывает результат компиляции.
func (m *Metrics) ObserveCompile(backend string, ok bool, skipped int, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.Compilations.WithLabelValues(backend, result).Inc()
	m.CompileDuration.WithLabelValues(backend).Observe(d.Seconds())
	if skipped > 0 {
		m.SkippedNodes.WithLabelValues(backend).Add(float64(skipped))
	}
}

// ObserveRun записывает результат прогона.
func (m *Metrics) ObserveRun(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(status).Inc()
	m.RunDuration.Observe(d.Seconds())
}

// ObserveNode записывает результат выполнения узла.
func (m *Metrics) ObserveNode(stepType, status string) {
	if m == nil {
		return
	}
	m.NodeExecutions.WithLabelValues(stepType, status).Inc()
}

// ObserveRetry записывает повторную попытку узла.
func (m *Metrics) ObserveRetry(stepType string) {
	if m == nil {
		return
	}
	m.NodeRetries.WithLabelValues(stepType).Inc()
}

// ObserveHTTP записывает запрос к API.
func (m *Metrics) ObserveHTTP(method, code string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, code).Inc()
}

// ObserveScheduled записывает запуск по расписанию.
func (m *Metrics) ObserveScheduled() {
	if m == nil {
		return
	}
	m.ScheduledRuns.Inc()
}

package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveCompile("shell", true, 2, time.Millisecond)
	m.ObserveCompile("shell", false, 0, time.Millisecond)
	m.ObserveRun("success", time.Second)
	m.ObserveNode("build", "success")
	m.ObserveNode("build", "success")
	m.ObserveRetry("deploy")

	if got := testutil.ToFloat64(m.Compilations.WithLabelValues("shell", "ok")); got != 1 {
		t.Errorf("expected 1 ok compilation, got %v", got)
	}
	if got := testutil.ToFloat64(m.Compilations.WithLabelValues("shell", "error")); got != 1 {
		t.Errorf("expected 1 failed compilation, got %v", got)
	}
	if got := testutil.ToFloat64(m.SkippedNodes.WithLabelValues("shell")); got != 2 {
		t.Errorf("expected 2 skipped nodes, got %v", got)
	}
	if got := testutil.ToFloat64(m.NodeExecutions.WithLabelValues("build", "success")); got != 2 {
		t.Errorf("expected 2 node executions, got %v", got)
	}
	if got := testutil.ToFloat64(m.NodeRetries.WithLabelValues("deploy")); got != 1 {
		t.Errorf("expected 1 retry, got %v", got)
	}
}

func TestMetrics_Nil(t *testing.T) {
	// nil-получатель не паникует
	var m *Metrics
	m.ObserveCompile("shell", true, 1, time.Millisecond)
	m.ObserveRun("error", time.Second)
	m.ObserveNode("build", "error")
	m.ObserveRetry("build")
	m.ObserveHTTP("GET", "200")
	m.ObserveScheduled()
}

func TestLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	if LogLevel().String() != "DEBUG" {
		t.Errorf("expected DEBUG, got %s", LogLevel())
	}

	t.Setenv("LOG_LEVEL", "")
	if LogLevel().String() != "INFO" {
		t.Errorf("expected INFO by default, got %s", LogLevel())
	}
}

package repo

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

func TestLockKey(t *testing.T) {
	a := LockKey("conveyor-scheduler")
	b := LockKey("conveyor-scheduler")
	if a != b {
		t.Errorf("lock key should be stable: %d != %d", a, b)
	}
	if LockKey("other") == a {
		t.Error("different names should give different keys")
	}
}

func TestStoredGraph(t *testing.T) {
	g := &domain.Graph{
		Nodes: []*domain.Node{{
			ID:              "build",
			Type:            "build",
			Properties:      map[string]any{"language": "go"},
			ExecutionStatus: domain.StatusError,
			ExecutionOutput: map[string]any{"x": 1},
			ExecutionError:  "boom",
		}},
	}

	data, err := storedGraph(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Поля выполнения не сохраняются, пустые рёбра — массив
	want := `{"nodes":[{"id":"build","type":"build","properties":{"language":"go"}}],"edges":[]}`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}

	// Исходный граф не меняется
	if g.Nodes[0].ExecutionStatus != domain.StatusError {
		t.Error("source graph was modified")
	}

	var back domain.Graph
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Nodes[0].Properties["language"] != "go" {
		t.Errorf("properties lost: %v", back.Nodes[0].Properties)
	}
}

func TestNullHelpers(t *testing.T) {
	if nullString("") != nil {
		t.Error("empty string should be NULL")
	}
	if s := nullString("x"); s == nil || *s != "x" {
		t.Error("non-empty string should be kept")
	}

	if nullInt(0) != nil {
		t.Error("zero should be NULL")
	}

	nilID := uuid.Nil
	if nullUUID(&nilID) != nil || nullUUID(nil) != nil {
		t.Error("nil uuid should be NULL")
	}
	id := uuid.New()
	if got := nullUUID(&id); got == nil || *got != id {
		t.Error("uuid should be kept")
	}
}

func TestLimitOrDefault(t *testing.T) {
	got := []int{limitOrDefault(0), limitOrDefault(-1), limitOrDefault(20), limitOrDefault(5000)}
	if diff := cmp.Diff([]int{50, 50, 20, 1000}, got); diff != "" {
		t.Errorf("limits mismatch (-want +got):\n%s", diff)
	}
}

func TestSchema(t *testing.T) {
	for _, table := range []string{"pipelines", "executions", "schedules"} {
		if !strings.Contains(Schema, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("schema should create %s", table)
		}
	}
}

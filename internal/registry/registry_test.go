package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/shaiso/Conveyor/internal/domain"
)

func constGen(v any) Generator {
	return func(*domain.Node) (any, bool) { return v, true }
}

func TestRegistry(t *testing.T) {
	r := New()

	// Пустой реестр
	if r.Count() != 0 {
		t.Errorf("expected empty registry")
	}

	// Регистрация
	r.Register(&Item{Type: "build", Generators: map[Backend]Generator{"shell": constGen("make")}})
	if r.Count() != 1 {
		t.Errorf("expected 1 type, got %d", r.Count())
	}

	// Получение
	item, err := r.Get("build")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Type != "build" {
		t.Errorf("expected build, got %s", item.Type)
	}

	// Несуществующий тип
	_, err = r.Get("unknown")
	if !errors.Is(err, ErrTypeNotFound) {
		t.Errorf("expected ErrTypeNotFound, got %v", err)
	}

	// Has
	if !r.Has("build") {
		t.Error("should have build")
	}
	if r.Has("unknown") {
		t.Error("should not have unknown")
	}

	// Unregister
	r.Unregister("build")
	if r.Has("build") {
		t.Error("should not have build after unregister")
	}
}

func TestRegistry_LastWriteWins(t *testing.T) {
	r := New()
	r.RegisterFunc("build", map[Backend]Generator{"shell": constGen("v1")}, nil)
	r.RegisterFunc("build", map[Backend]Generator{"shell": constGen("v2")}, map[string]any{"rev": 2})

	item, err := r.Get("build")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	frag, ok := item.Generate("shell", &domain.Node{ID: "b"})
	if !ok || frag != "v2" {
		t.Errorf("expected v2, got %v (ok=%v)", frag, ok)
	}
	if item.Metadata["rev"] != 2 {
		t.Errorf("metadata should be replaced, got %v", item.Metadata)
	}
	if r.Count() != 1 {
		t.Errorf("expected 1 type, got %d", r.Count())
	}
}

func TestRegistry_Generator(t *testing.T) {
	r := New()
	r.Register(&Item{
		Type: "deploy",
		Generators: map[Backend]Generator{
			"github-actions": constGen(map[string]any{"run": "deploy"}),
			"shell":          nil,
		},
	})

	if _, err := r.Generator("deploy", "github-actions"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := r.Generator("deploy", "shell"); !errors.Is(err, ErrNoGenerator) {
		t.Errorf("nil generator should be ErrNoGenerator, got %v", err)
	}
	if _, err := r.Generator("deploy", "gitlab-ci"); !errors.Is(err, ErrNoGenerator) {
		t.Errorf("expected ErrNoGenerator, got %v", err)
	}
	if _, err := r.Generator("missing", "shell"); !errors.Is(err, ErrTypeNotFound) {
		t.Errorf("expected ErrTypeNotFound, got %v", err)
	}

	item, _ := r.Get("deploy")
	if diff := cmp.Diff([]Backend{"github-actions"}, item.Backends()); diff != "" {
		t.Errorf("backends mismatch (-want +got):\n%s", diff)
	}
	if _, ok := item.Generate("shell", &domain.Node{}); ok {
		t.Error("nil generator should not produce a fragment")
	}
}

func TestRegistry_TypesSorted(t *testing.T) {
	r := New()
	for _, typ := range []string{"test", "build", "deploy"} {
		r.Register(&Item{Type: typ})
	}

	if diff := cmp.Diff([]string{"build", "deploy", "test"}, r.Types()); diff != "" {
		t.Errorf("types mismatch (-want +got):\n%s", diff)
	}
	items := r.Items()
	if len(items) != 3 || items[0].Type != "build" {
		t.Errorf("items not sorted: %v", items)
	}
}

func TestRegistry_Unsupported(t *testing.T) {
	r := New()
	r.Register(&Item{Type: "build", Generators: map[Backend]Generator{"shell": constGen("make")}})
	r.Register(&Item{Type: "scan"})

	g := &domain.Graph{Nodes: []*domain.Node{
		{ID: "b", Type: "build"},
		{ID: "s", Type: "scan"},
		{ID: "x", Type: "exotic"},
	}}

	if diff := cmp.Diff([]string{"s", "x"}, r.Unsupported(g, "shell")); diff != "" {
		t.Errorf("unsupported mismatch (-want +got):\n%s", diff)
	}
}

func TestItem_Execute(t *testing.T) {
	item := &Item{
		Type: "echo",
		Execute: func(_ context.Context, n *domain.Node, inputs map[string]any) (any, error) {
			return map[string]any{"node": n.ID, "inputs": len(inputs)}, nil
		},
	}

	out, err := item.Execute(context.Background(), &domain.Node{ID: "e"}, map[string]any{"a": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"node": "e", "inputs": 1}, out); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

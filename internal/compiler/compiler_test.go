package compiler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/registry"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

const testBackend registry.Backend = "test"

func text(s string) registry.Generator {
	return func(*domain.Node) (any, bool) { return s, true }
}

// scenarioRegistry — генераторы из примера: trigger → checkout, build, deploy.
func scenarioRegistry() *registry.Registry {
	r := registry.New()
	r.Register(&registry.Item{Type: "trigger", Generators: map[registry.Backend]registry.Generator{testBackend: text("checkout")}})
	r.Register(&registry.Item{Type: "build", Generators: map[registry.Backend]registry.Generator{testBackend: text("run build")}})
	r.Register(&registry.Item{Type: "deploy", Generators: map[registry.Backend]registry.Generator{testBackend: text("run deploy")}})
	return r
}

func scenarioGraph() *domain.Graph {
	return &domain.Graph{
		Nodes: []*domain.Node{
			{ID: "t", Type: "trigger"},
			{ID: "build", Type: "build"},
			{ID: "deploy", Type: "deploy"},
		},
		Edges: []domain.Edge{
			{ID: "e1", Source: "t", Target: "build"},
			{ID: "e2", Source: "build", Target: "deploy"},
		},
	}
}

func newTestCompiler(r *registry.Registry) *Compiler {
	return New(Config{Registry: r, Logger: telemetry.Discard()})
}

func TestCompileWith_Flat(t *testing.T) {
	c := newTestCompiler(scenarioRegistry())

	res, err := c.CompileWith(scenarioGraph(), testBackend, Options{Strategy: FlatStrategy{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Text != "checkout\nrun build\nrun deploy" {
		t.Errorf("unexpected output: %q", res.Text)
	}
}

func TestCompileWith_JobGraph(t *testing.T) {
	c := newTestCompiler(scenarioRegistry())

	res, err := c.CompileWith(scenarioGraph(), testBackend, Options{
		Strategy:        JobGraphStrategy{},
		ExcludeTriggers: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal([]byte(res.Text), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, res.Text)
	}

	want := map[string]any{
		"build":  map[string]any{"steps": []any{"run build"}},
		"deploy": map[string]any{"steps": []any{"run deploy"}, "needs": []any{"build"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"build", "deploy"}, res.Jobs.Keys()); diff != "" {
		t.Errorf("job order mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileWith_BothStageModes(t *testing.T) {
	c := newTestCompiler(scenarioRegistry())

	for _, mode := range []engine.StageMode{engine.ModeBreadthFirst, engine.ModeLongestPath} {
		res, err := c.CompileWith(scenarioGraph(), testBackend, Options{StageMode: mode})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", mode, err)
		}
		if res.Text != "checkout\nrun build\nrun deploy" {
			t.Errorf("%s: unexpected output: %q", mode, res.Text)
		}
	}
}

func TestCompileWith_SkipSafety(t *testing.T) {
	r := scenarioRegistry()
	// scan зарегистрирован, но без генератора для backend'а
	r.Register(&registry.Item{Type: "scan", Generators: map[registry.Backend]registry.Generator{"other": text("SCAN-MARKER")}})
	// ok=false тоже означает пропуск
	r.Register(&registry.Item{Type: "noop", Generators: map[registry.Backend]registry.Generator{
		testBackend: func(*domain.Node) (any, bool) { return "NOOP-MARKER", false },
	}})

	g := scenarioGraph()
	g.Nodes = append(g.Nodes,
		&domain.Node{ID: "scan", Type: "scan"},
		&domain.Node{ID: "noop", Type: "noop"},
		&domain.Node{ID: "ghost", Type: "unregistered"},
	)
	g.Edges = append(g.Edges,
		domain.Edge{Source: "build", Target: "scan"},
		domain.Edge{Source: "build", Target: "noop"},
		domain.Edge{Source: "deploy", Target: "ghost"},
	)

	c := newTestCompiler(r)
	for _, strategy := range []Strategy{FlatStrategy{}, JobGraphStrategy{}, ScriptBlockStrategy{}} {
		res, err := c.CompileWith(g, testBackend, Options{Strategy: strategy})
		if err != nil {
			t.Fatalf("%T: unexpected error: %v", strategy, err)
		}
		for _, marker := range []string{"SCAN-MARKER", "NOOP-MARKER", "unregistered"} {
			if strings.Contains(res.Text, marker) {
				t.Errorf("%T: output contains skipped node %q:\n%s", strategy, marker, res.Text)
			}
		}
		if diff := cmp.Diff([]string{"scan", "noop", "ghost"}, res.Skipped); diff != "" {
			t.Errorf("%T: skipped mismatch (-want +got):\n%s", strategy, diff)
		}
	}
}

func TestCompileWith_DroppedStageForwardsNeeds(t *testing.T) {
	r := scenarioRegistry()
	r.Register(&registry.Item{Type: "gate"})

	// build → gate (нет генератора) → deploy
	g := &domain.Graph{
		Nodes: []*domain.Node{
			{ID: "build", Type: "build"},
			{ID: "gate", Type: "gate"},
			{ID: "deploy", Type: "deploy"},
		},
		Edges: []domain.Edge{
			{Source: "build", Target: "gate"},
			{Source: "gate", Target: "deploy"},
		},
	}

	res, err := newTestCompiler(r).CompileWith(g, testBackend, Options{Strategy: JobGraphStrategy{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v, ok := res.Jobs.Get("deploy")
	if !ok {
		t.Fatalf("deploy job missing: %v", res.Jobs.Keys())
	}
	if diff := cmp.Diff([]string{"build"}, v.(*Job).Needs); diff != "" {
		t.Errorf("needs mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileWith_DependencySoundness(t *testing.T) {
	r := registry.New()
	for _, typ := range []string{"a", "b", "c", "d", "e", "f"} {
		r.Register(&registry.Item{Type: typ, Generators: map[registry.Backend]registry.Generator{testBackend: text("run " + typ)}})
	}
	r.Register(&registry.Item{Type: "silent"})

	g := &domain.Graph{
		Nodes: []*domain.Node{
			{ID: "a", Type: "a"}, {ID: "b", Type: "b"}, {ID: "c", Type: "c"},
			{ID: "s", Type: "silent"}, {ID: "d", Type: "d"}, {ID: "e", Type: "e"}, {ID: "f", Type: "f"},
		},
		Edges: []domain.Edge{
			{Source: "a", Target: "b"}, {Source: "a", Target: "c"}, {Source: "b", Target: "s"},
			{Source: "s", Target: "d"}, {Source: "c", Target: "d"}, {Source: "d", Target: "e"},
			{Source: "a", Target: "f"}, {Source: "e", Target: "f"},
		},
	}

	for _, mode := range []engine.StageMode{engine.ModeBreadthFirst, engine.ModeLongestPath} {
		res, err := newTestCompiler(r).CompileWith(g, testBackend, Options{Strategy: JobGraphStrategy{}, StageMode: mode})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", mode, err)
		}

		seen := make(map[string]bool)
		for _, name := range res.Jobs.Keys() {
			v, _ := res.Jobs.Get(name)
			for _, need := range v.(*Job).Needs {
				if !seen[need] {
					t.Errorf("%s: job %s needs %s which does not precede it", mode, name, need)
				}
			}
			seen[name] = true
		}
	}
}

func TestCompileWith_JobNames(t *testing.T) {
	r := scenarioRegistry()
	g := &domain.Graph{
		Nodes: []*domain.Node{
			{ID: "b1", Type: "build", Label: "Build App"},
			{ID: "b2", Type: "build", Label: "build   app"},
			{ID: "d1", Type: "deploy"},
			{ID: "d2", Type: "deploy"},
		},
		Edges: []domain.Edge{
			{Source: "b1", Target: "b2"},
			{Source: "b2", Target: "d1"},
			{Source: "b2", Target: "d2"},
		},
	}

	res, err := newTestCompiler(r).CompileWith(g, testBackend, Options{Strategy: JobGraphStrategy{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Один узел — имя узла; совпадение — суффикс; несколько узлов — имя стадии
	if diff := cmp.Diff([]string{"build-app", "build-app-2", "stage-2"}, res.Jobs.Keys()); diff != "" {
		t.Errorf("job names mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileWith_FileSet(t *testing.T) {
	r := registry.New()
	r.Register(&registry.Item{Type: "dockerfile", Generators: map[registry.Backend]registry.Generator{
		BackendFiles: func(n *domain.Node) (any, bool) {
			return map[string]string{"Dockerfile": "FROM " + n.Properties["image"].(string)}, true
		},
	}})
	r.Register(&registry.Item{Type: "makefile", Generators: map[registry.Backend]registry.Generator{
		BackendFiles: func(*domain.Node) (any, bool) {
			return map[string]any{"Makefile": "build:\n\tgo build ./...", "ignored": 42}, true
		},
	}})

	g := &domain.Graph{
		Nodes: []*domain.Node{
			{ID: "img", Type: "dockerfile", Properties: map[string]any{"image": "golang:1.24"}},
			{ID: "mk", Type: "makefile"},
			{ID: "img2", Type: "dockerfile", Properties: map[string]any{"image": "alpine"}},
		},
		Edges: []domain.Edge{{Source: "img", Target: "mk"}, {Source: "mk", Target: "img2"}},
	}

	res, err := newTestCompiler(r).Build(Request{Graph: g, Backend: BackendFiles})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	files := res.Document.(*OrderedMap)
	if diff := cmp.Diff([]string{"Dockerfile", "Makefile", "ignored"}, files.Keys()); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
	// Поздняя стадия перезаписывает файл
	if v, _ := files.Get("Dockerfile"); v != "FROM alpine" {
		t.Errorf("expected later stage to win, got %v", v)
	}
	if !strings.Contains(res.Text, "==> Makefile <==\nbuild:\n\tgo build ./...\n") {
		t.Errorf("unexpected file set text:\n%s", res.Text)
	}
}

func TestCompile_UnknownBackend(t *testing.T) {
	c := newTestCompiler(scenarioRegistry())

	_, err := c.Compile(scenarioGraph(), "azure-devops")
	if !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestCompileWith_FormatterError(t *testing.T) {
	c := newTestCompiler(scenarioRegistry())

	_, err := c.CompileWith(scenarioGraph(), testBackend, Options{
		Formatter: func(any) (string, error) { return "", errors.New("disk full") },
	})
	if !errors.Is(err, ErrFormat) {
		t.Errorf("expected ErrFormat, got %v", err)
	}
}

func TestCompileWith_CyclicGraph(t *testing.T) {
	g := scenarioGraph()
	g.Edges = append(g.Edges, domain.Edge{Source: "deploy", Target: "build"})

	res, err := newTestCompiler(scenarioRegistry()).CompileWith(g, testBackend, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Plan.Cyclic || res.Plan.Mode != engine.ModeBreadthFirst {
		t.Errorf("expected bfs fallback, got mode=%s cyclic=%v", res.Plan.Mode, res.Plan.Cyclic)
	}
	if res.Text != "checkout\nrun build\nrun deploy" {
		t.Errorf("unexpected output: %q", res.Text)
	}
}

func TestCompileWith_WrapperAndTriggers(t *testing.T) {
	c := newTestCompiler(scenarioRegistry())

	var seenNodes int
	res, err := c.CompileWith(scenarioGraph(), testBackend, Options{
		ExcludeTriggers: true,
		Triggers: func(nodes []*domain.Node, _ *slog.Logger) any {
			seenNodes = len(nodes)
			return "on-push"
		},
		Wrapper: func(doc, triggers any, _ []*domain.Node) any {
			return triggers.(string) + ":\n" + doc.(string)
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Агрегатор видит все узлы, включая исключённый триггер
	if seenNodes != 3 {
		t.Errorf("aggregator should see all nodes, saw %d", seenNodes)
	}
	if res.Text != "on-push:\nrun build\nrun deploy" {
		t.Errorf("unexpected output: %q", res.Text)
	}
}

func TestCompile_Deterministic(t *testing.T) {
	c := newTestCompiler(builtinTestRegistry())
	g := releaseGraph()

	for _, target := range c.Targets() {
		first, err := c.Compile(g, target.Name)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", target.Name, err)
		}
		for i := 0; i < 5; i++ {
			again, err := c.Compile(g, target.Name)
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", target.Name, err)
			}
			if again != first {
				t.Fatalf("%s: output changed between runs:\n%s\n---\n%s", target.Name, first, again)
			}
		}
	}
}

func TestOrderedMap(t *testing.T) {
	m := NewOrderedMap()
	m.Set("zeta", 1)
	m.Set("alpha", []string{"x"})
	m.Set("zeta", 2)

	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(b) != `{"zeta":2,"alpha":["x"]}` {
		t.Errorf("unexpected JSON: %s", b)
	}

	y, err := YAML(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if y != "zeta: 2\nalpha:\n  - x\n" {
		t.Errorf("unexpected YAML:\n%s", y)
	}
}

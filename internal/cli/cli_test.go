package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
)

const sampleGraph = `{
  "nodes": [
    {"id": "on-push", "type": "trigger.push", "properties": {"branches": ["main"]}},
    {"id": "build", "type": "build", "properties": {"language": "go"}},
    {"id": "test", "type": "test", "properties": {"language": "go"}}
  ],
  "edges": [
    {"source": "on-push", "target": "build"},
    {"source": "build", "target": "test"}
  ]
}`

// writeGraph пишет граф во временный файл.
func writeGraph(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write graph: %v", err)
	}
	return path
}

// execute собирает корневую команду как cmd/conveyor и запускает её.
func execute(t *testing.T, apiURL string, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	var out, errOut bytes.Buffer
	jsonMode := false

	root := &cobra.Command{Use: "conveyor", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().BoolVar(&jsonMode, "json", false, "")

	clientFn := func() *Client { return NewClient(apiURL) }
	outputFn := func() *Output { return NewOutputTo(&out, &errOut, jsonMode) }

	root.AddCommand(NewLocalCmds(outputFn)...)
	root.AddCommand(
		NewPipelineCmd(clientFn, outputFn),
		NewExecutionCmd(clientFn, outputFn),
		NewScheduleCmd(clientFn, outputFn),
	)
	root.SetArgs(args)

	err = root.Execute()
	return out.String(), errOut.String(), err
}

func TestCompileCmd(t *testing.T) {
	path := writeGraph(t, "web.json", sampleGraph)

	stdout, _, err := execute(t, "", "compile", path, "--backend", "shell")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !strings.Contains(stdout, "go build ./...") || !strings.Contains(stdout, "go test ./...") {
		t.Errorf("unexpected script:\n%s", stdout)
	}

	// Вывод в файл
	target := filepath.Join(t.TempDir(), "ci.yml")
	if _, _, err := execute(t, "", "compile", path, "-o", target); err != nil {
		t.Fatalf("compile to file: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(data), "name: web") || !strings.Contains(string(data), "jobs:") {
		t.Errorf("unexpected workflow:\n%s", data)
	}

	if _, _, err := execute(t, "", "compile", path, "--backend", "travis"); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestRunCmd(t *testing.T) {
	path := writeGraph(t, "web.json", sampleGraph)

	stdout, stderr, err := execute(t, "", "run", path, "--parallel", "2")
	if err != nil {
		t.Fatalf("run: %v (%s)", err, stderr)
	}
	for _, id := range []string{"on-push", "build", "test"} {
		if !strings.Contains(stdout, id) {
			t.Errorf("output should list node %s:\n%s", id, stdout)
		}
	}
	if !strings.Contains(stderr, "success (3/3 nodes") {
		t.Errorf("unexpected summary: %s", stderr)
	}

	failing := writeGraph(t, "fail.json", `{"nodes": [{"id": "build", "type": "build", "properties": {"fail": true}}]}`)
	if _, _, err := execute(t, "", "run", failing); err == nil {
		t.Error("expected error for failed run")
	}
}

func TestStagesCmd(t *testing.T) {
	path := writeGraph(t, "web.json", sampleGraph)

	stdout, _, err := execute(t, "", "stages", path)
	if err != nil {
		t.Fatalf("stages: %v", err)
	}
	for _, want := range []string{"STAGE", "stage-0", "stage-2", "test"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stages output should contain %q:\n%s", want, stdout)
		}
	}

	stdout, _, err = execute(t, "", "stages", path, "--format", "dot")
	if err != nil {
		t.Fatalf("stages dot: %v", err)
	}
	if !strings.Contains(stdout, "digraph") || !strings.Contains(stdout, "cluster_stage_1") {
		t.Errorf("unexpected DOT:\n%s", stdout)
	}

	if _, _, err := execute(t, "", "stages", path, "--format", "svg"); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, _, err := execute(t, "", "stages", path, "--mode", "random"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestValidateCmd(t *testing.T) {
	ok := writeGraph(t, "web.json", sampleGraph)
	if _, stderr, err := execute(t, "", "validate", ok); err != nil {
		t.Fatalf("validate: %v (%s)", err, stderr)
	}

	cyclic := writeGraph(t, "cycle.json", `{
		"nodes": [{"id": "a", "type": "build"}, {"id": "b", "type": "test"}],
		"edges": [{"source": "a", "target": "b"}, {"source": "b", "target": "a"}]
	}`)
	_, stderr, err := execute(t, "", "validate", cyclic)
	if !errors.Is(err, ErrInvalidGraph) {
		t.Fatalf("expected ErrInvalidGraph, got %v", err)
	}
	if !strings.Contains(stderr, "cyclic") {
		t.Errorf("stderr should mention the cycle: %s", stderr)
	}
}

func TestCatalogCmds(t *testing.T) {
	stdout, _, err := execute(t, "", "backends")
	if err != nil {
		t.Fatalf("backends: %v", err)
	}
	for _, b := range []string{"github-actions", "gitlab-ci", "jenkins", "shell", "files"} {
		if !strings.Contains(stdout, b) {
			t.Errorf("backends should list %s:\n%s", b, stdout)
		}
	}

	stdout, _, err = execute(t, "", "--json", "types", "--category", "trigger")
	if err != nil {
		t.Fatalf("types: %v", err)
	}
	var items []struct {
		Type     string `json:"type"`
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(stdout), &items); err != nil {
		t.Fatalf("decode types: %v\n%s", err, stdout)
	}
	if len(items) == 0 {
		t.Fatal("expected trigger types")
	}
	for _, it := range items {
		if it.Category != "trigger" {
			t.Errorf("unexpected category %q for %s", it.Category, it.Type)
		}
	}
}

// fakeAPI отвечает заготовленными конвертами и запоминает запросы.
type fakeAPI struct {
	mu       sync.Mutex
	requests []string
	bodies   []string
}

func (f *fakeAPI) last() (request, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1], f.bodies[len(f.bodies)-1]
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body bytes.Buffer
	body.ReadFrom(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.RequestURI())
	f.bodies = append(f.bodies, body.String())
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/pipelines":
		w.Write([]byte(`{"data":[{"id":"p1","name":"web-app","is_active":true,"node_count":3}],"total":1}`))
	case r.Method == http.MethodPost && r.URL.Path == "/api/v1/pipelines":
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"p2","name":"new","is_active":true,"node_count":3}}`))
	case r.URL.Path == "/api/v1/pipelines/p1/compile":
		w.Write([]byte(`{"data":{"backend":"shell","text":"#!/usr/bin/env bash\necho hi\n"}}`))
	case r.URL.Path == "/api/v1/pipelines/p1/runs" && r.URL.Query().Get("async") == "true":
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"data":{"request_id":"r1","pipeline_id":"p1"}}`))
	case r.URL.Path == "/api/v1/pipelines/p1/runs":
		w.Write([]byte(`{"data":{"id":"e1","status":"error","total_nodes":2,"order":["build"],` +
			`"details":{"build":{"status":"error","error":"boom"}},"error":"boom"}}`))
	case r.URL.Path == "/api/v1/executions":
		w.Write([]byte(`{"data":[{"id":"e1","pipeline_id":"p1","status":"success","total_nodes":2,"executed":2}],"total":1}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"pipeline not found"}}`))
	}
}

func TestPipelineCmds(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	stdout, _, err := execute(t, srv.URL, "pipeline", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(stdout, "web-app") {
		t.Errorf("list should show pipeline:\n%s", stdout)
	}

	// DOT-файл переводится в JSON перед отправкой
	dot := writeGraph(t, "web.dot", `digraph p { build [type="build"]; test [type="test"]; build -> test }`)
	if _, _, err := execute(t, srv.URL, "pipeline", "create", dot, "--name", "new"); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, last := api.last()
	if !strings.Contains(last, `"name":"new"`) || !strings.Contains(last, `"target":"test"`) {
		t.Errorf("unexpected create body: %s", last)
	}

	stdout, _, err = execute(t, srv.URL, "pipeline", "compile", "p1", "-b", "shell")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !strings.Contains(stdout, "echo hi") {
		t.Errorf("compile should print script:\n%s", stdout)
	}
	if got, _ := api.last(); got != "GET /api/v1/pipelines/p1/compile?backend=shell" {
		t.Errorf("unexpected request: %s", got)
	}

	stdout, _, err = execute(t, srv.URL, "pipeline", "run", "p1")
	if err == nil || !strings.Contains(err.Error(), "status error") {
		t.Errorf("failed run should return error, got %v", err)
	}
	if !strings.Contains(stdout, "boom") {
		t.Errorf("run output should show node error:\n%s", stdout)
	}

	if _, _, err := execute(t, srv.URL, "pipeline", "run", "p1", "--async"); err != nil {
		t.Errorf("async run: %v", err)
	}

	_, _, err = execute(t, srv.URL, "pipeline", "show", "missing")
	if err == nil || err.Error() != "NOT_FOUND: pipeline not found" {
		t.Errorf("expected API error, got %v", err)
	}
}

func TestExecutionList(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	stdout, _, err := execute(t, srv.URL, "execution", "list", "--pipeline-id", "p1", "--status", "success")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(stdout, "2/2") {
		t.Errorf("list should show executed/total:\n%s", stdout)
	}
	if got, _ := api.last(); got != "GET /api/v1/executions?pipeline_id=p1&status=success" {
		t.Errorf("unexpected request: %s", got)
	}
}

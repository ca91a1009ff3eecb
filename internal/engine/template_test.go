package engine

import (
	"strings"
	"testing"

	"github.com/shaiso/Conveyor/internal/domain"
)

func TestNewContext(t *testing.T) {
	node := &domain.Node{ID: "build", Type: "build", Properties: map[string]any{"image": "golang:1.24"}}
	ctx := NewContext(node, nil)

	if ctx.Inputs == nil {
		t.Error("Inputs should not be nil")
	}
	if ctx.Env == nil {
		t.Error("Env should not be nil")
	}
	if ctx.Node == nil || ctx.Node.ID != "build" {
		t.Fatalf("expected node context for build, got %+v", ctx.Node)
	}
	// Label пустой — используется ID
	if ctx.Node.Label != "build" {
		t.Errorf("expected label fallback to id, got %q", ctx.Node.Label)
	}
}

func TestRender_NodeAndInputs(t *testing.T) {
	node := &domain.Node{
		ID:         "deploy",
		Type:       "deploy",
		Label:      "Deploy Prod",
		Properties: map[string]any{"environment": "production"},
	}
	ctx := NewContext(node, map[string]any{
		"build": map[string]any{"artifact": "app.tar.gz"},
	})
	ctx.SetEnv("REGION", "eu-west-1")

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{
			name:     "property",
			template: "env={{ .Node.Properties.environment }}",
			expected: "env=production",
		},
		{
			name:     "parent output",
			template: "{{ .Inputs.build.artifact }}",
			expected: "app.tar.gz",
		},
		{
			name:     "env",
			template: "{{ .Env.REGION }}",
			expected: "eu-west-1",
		},
		{
			name:     "slug",
			template: "{{ slug .Node.Label }}",
			expected: "deploy-prod",
		},
		{
			name:     "no template",
			template: "Plain text",
			expected: "Plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Render(tt.template, ctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestRender_TemplateFunctions(t *testing.T) {
	ctx := NewContext(nil, map[string]any{
		"text": "Hello World",
		"list": []string{"a", "b", "c"},
	})

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{name: "lower", template: "{{ lower .Inputs.text }}", expected: "hello world"},
		{name: "upper", template: "{{ upper .Inputs.text }}", expected: "HELLO WORLD"},
		{name: "contains", template: `{{ contains .Inputs.text "World" }}`, expected: "true"},
		{name: "default with value", template: `{{ default "fallback" .Inputs.text }}`, expected: "Hello World"},
		{name: "default with nil", template: `{{ default "fallback" .Inputs.missing }}`, expected: "fallback"},
		{name: "json", template: `{{ json .Inputs.list }}`, expected: `["a","b","c"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Render(tt.template, ctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestRender_InvalidTemplate(t *testing.T) {
	ctx := NewContext(nil, nil)

	// Некорректный синтаксис
	_, err := Render("{{ .Invalid syntax", ctx)
	if err == nil {
		t.Fatal("expected error for invalid template")
	}
	if !strings.Contains(err.Error(), "template parse") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestRenderProperties(t *testing.T) {
	node := &domain.Node{
		ID:   "notify",
		Type: "notify",
		Properties: map[string]any{
			"url":     "https://hooks.example.com/{{ .Node.ID }}",
			"retries": 2,
			"body": map[string]any{
				"text": "build {{ .Inputs.build.status }}",
			},
			"tags": []any{"{{ .Node.Type }}", "ci"},
		},
	}

	props, err := RenderProperties(node, map[string]any{
		"build": map[string]any{"status": "ok"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if props["url"] != "https://hooks.example.com/notify" {
		t.Errorf("unexpected url: %v", props["url"])
	}
	if props["retries"] != 2 {
		t.Errorf("non-string values should pass through, got %v", props["retries"])
	}
	body, ok := props["body"].(map[string]any)
	if !ok || body["text"] != "build ok" {
		t.Errorf("unexpected body: %v", props["body"])
	}
	tags, ok := props["tags"].([]any)
	if !ok || len(tags) != 2 || tags[0] != "notify" {
		t.Errorf("unexpected tags: %v", props["tags"])
	}

	// Исходные свойства не изменились
	if node.Properties["url"] != "https://hooks.example.com/{{ .Node.ID }}" {
		t.Error("RenderProperties must not mutate node properties")
	}
}

func TestRenderCondition(t *testing.T) {
	ctx := NewContext(nil, map[string]any{"count": 5, "ok": true})

	tests := []struct {
		condition string
		expected  bool
	}{
		{"", true},
		{".Inputs.ok", true},
		{"gt .Inputs.count 3", true},
		{"eq .Inputs.count 1", false},
	}

	for _, tt := range tests {
		got, err := RenderCondition(tt.condition, ctx)
		if err != nil {
			t.Fatalf("condition %q: unexpected error: %v", tt.condition, err)
		}
		if got != tt.expected {
			t.Errorf("condition %q: expected %v, got %v", tt.condition, tt.expected, got)
		}
	}
}

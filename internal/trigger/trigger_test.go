package trigger

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/shaiso/Conveyor/internal/domain"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		node *domain.Node
		kind Kind
		ok   bool
	}{
		{&domain.Node{Type: "trigger.push"}, KindPush, true},
		{&domain.Node{Type: "trigger"}, KindPush, true},
		{&domain.Node{Type: "trigger", Properties: map[string]any{"event": "schedule"}}, KindSchedule, true},
		{&domain.Node{Type: "trigger.pull-request"}, KindPullRequest, true},
		{&domain.Node{Type: "manual-trigger"}, KindManual, true},
		{&domain.Node{Type: "trigger.release"}, KindTag, true},
		{&domain.Node{Type: "trigger.webhook"}, Kind("webhook"), true},
		{&domain.Node{Type: "build"}, "", false},
	}

	for _, tt := range tests {
		kind, ok := KindOf(tt.node)
		if ok != tt.ok || kind != tt.kind {
			t.Errorf("%s: expected (%q, %v), got (%q, %v)", tt.node.Type, tt.kind, tt.ok, kind, ok)
		}
	}
}

func TestFromNodes(t *testing.T) {
	nodes := []*domain.Node{
		{ID: "push", Type: "trigger.push", Properties: map[string]any{
			"branches": []any{"main", "release/*"},
			"paths":    "src/**, go.mod",
		}},
		{ID: "build", Type: "build"},
		{ID: "nightly", Type: "trigger.schedule", Properties: map[string]any{
			"cron":     "0 3 * * *",
			"timezone": "Europe/Moscow",
		}},
	}

	got := FromNodes(nodes)
	want := []Trigger{
		{NodeID: "push", Kind: KindPush, Branches: []string{"main", "release/*"}, Paths: []string{"src/**", "go.mod"}, Timezone: "UTC"},
		{NodeID: "nightly", Kind: KindSchedule, Cron: "0 3 * * *", Timezone: "Europe/Moscow"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("triggers mismatch (-want +got):\n%s", diff)
	}
}

func TestTrigger_Validate(t *testing.T) {
	valid := Trigger{NodeID: "n", Kind: KindSchedule, Cron: "*/5 * * * *"}
	if err := valid.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	for _, tr := range []Trigger{
		{NodeID: "n", Kind: KindSchedule},
		{NodeID: "n", Kind: KindSchedule, Cron: "every day"},
	} {
		if err := tr.Validate(); !errors.Is(err, ErrInvalidTrigger) {
			t.Errorf("cron %q: expected ErrInvalidTrigger, got %v", tr.Cron, err)
		}
	}

	// Не-schedule триггеры не требуют cron
	if err := (Trigger{Kind: KindPush}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNextCron(t *testing.T) {
	from := time.Date(2025, 1, 1, 10, 30, 0, 0, time.UTC)

	next, err := NextCron("0 12 * * *", from, "UTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}

	// Невалидный timezone — fallback на UTC
	next, err = NextCron("0 12 * * *", from, "Mars/Olympus")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Hour() != 12 {
		t.Errorf("expected 12:00 UTC, got %v", next)
	}

	if _, err := NextCron("bad", from, "UTC"); err == nil {
		t.Error("expected error for invalid expression")
	}
}

package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/runner"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

var testNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

type memorySchedules struct {
	mu      sync.Mutex
	items   []domain.Schedule
	updated []domain.Schedule
}

func (m *memorySchedules) ListDue(_ context.Context, now time.Time, limit int) ([]domain.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Schedule
	for _, s := range m.items {
		if s.IsDue(now) && len(out) < limit {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memorySchedules) Update(_ context.Context, s *domain.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.items {
		if m.items[i].ID == s.ID {
			m.items[i] = *s
		}
	}
	m.updated = append(m.updated, *s)
	return nil
}

type recordingDispatcher struct {
	reqs []runner.RunRequest
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, req runner.RunRequest) (uuid.UUID, error) {
	if d.err != nil {
		return uuid.Nil, d.err
	}
	d.reqs = append(d.reqs, req)
	return req.RequestID, nil
}

func newTestScheduler(store *memorySchedules, d runner.Dispatcher) *Scheduler {
	return New(Config{
		Schedules:  store,
		Dispatcher: d,
		Logger:     telemetry.Discard(),
		Now:        func() time.Time { return testNow },
	})
}

func dueAt(t time.Time) *time.Time { return &t }

func TestTick_DispatchesDueSchedules(t *testing.T) {
	pipelineID := uuid.New()
	due := domain.Schedule{
		ID:         uuid.New(),
		PipelineID: pipelineID,
		CronExpr:   "0 3 * * *",
		Timezone:   "UTC",
		Enabled:    true,
		NextDueAt:  dueAt(testNow.Add(-time.Minute)),
	}
	future := domain.Schedule{
		ID:          uuid.New(),
		PipelineID:  pipelineID,
		IntervalSec: 60,
		Enabled:     true,
		NextDueAt:   dueAt(testNow.Add(time.Hour)),
	}
	disabled := due
	disabled.ID = uuid.New()
	disabled.Enabled = false

	store := &memorySchedules{items: []domain.Schedule{due, future, disabled}}
	d := &recordingDispatcher{}

	if err := newTestScheduler(store, d).Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if len(d.reqs) != 1 {
		t.Fatalf("expected 1 dispatched run, got %d", len(d.reqs))
	}
	req := d.reqs[0]
	if req.PipelineID != pipelineID || req.Trigger != "schedule" {
		t.Errorf("unexpected request: %+v", req)
	}
	if want := due.ID.String() + "_" + "1767322985"; req.IdempotencyKey != want {
		t.Errorf("idempotency key: got %q, want %q", req.IdempotencyKey, want)
	}

	if len(store.updated) != 1 {
		t.Fatalf("expected 1 update, got %d", len(store.updated))
	}
	got := store.updated[0]
	wantNext := time.Date(2026, 1, 3, 3, 0, 0, 0, time.UTC)
	if got.NextDueAt == nil || !got.NextDueAt.Equal(wantNext) {
		t.Errorf("next_due_at: got %v, want %v", got.NextDueAt, wantNext)
	}
	if got.LastRequestID == nil || *got.LastRequestID != req.RequestID {
		t.Errorf("last_request_id not recorded: %v", got.LastRequestID)
	}
}

func TestTick_DispatchErrorKeepsNextDue(t *testing.T) {
	sched := domain.Schedule{
		ID:          uuid.New(),
		PipelineID:  uuid.New(),
		IntervalSec: 300,
		Enabled:     true,
		NextDueAt:   dueAt(testNow.Add(-time.Second)),
	}
	store := &memorySchedules{items: []domain.Schedule{sched}}
	d := &recordingDispatcher{err: errors.New("broker unavailable")}

	if err := newTestScheduler(store, d).Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	// Расписание не сдвинуто — повторим на следующем тике
	if len(store.updated) != 0 {
		t.Errorf("schedule should not be updated on dispatch error: %+v", store.updated)
	}
}

func TestTick_InvalidScheduleDisabled(t *testing.T) {
	sched := domain.Schedule{
		ID:         uuid.New(),
		PipelineID: uuid.New(),
		CronExpr:   "not a cron",
		Enabled:    true,
		NextDueAt:  dueAt(testNow.Add(-time.Second)),
	}
	store := &memorySchedules{items: []domain.Schedule{sched}}
	d := &recordingDispatcher{}

	if err := newTestScheduler(store, d).Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if len(d.reqs) != 0 {
		t.Errorf("invalid schedule should not dispatch, got %d", len(d.reqs))
	}
	if len(store.updated) != 1 || store.updated[0].Enabled {
		t.Errorf("invalid schedule should be disabled: %+v", store.updated)
	}
}

func TestCalculateNextDue(t *testing.T) {
	tests := []struct {
		name  string
		sched domain.Schedule
		want  time.Time
	}{
		{"interval", domain.Schedule{IntervalSec: 90}, testNow.Add(90 * time.Second)},
		{"cron utc", domain.Schedule{CronExpr: "*/5 * * * *", Timezone: "UTC"}, time.Date(2026, 1, 2, 3, 5, 0, 0, time.UTC)},
		{"cron timezone", domain.Schedule{CronExpr: "0 9 * * *", Timezone: "Europe/Moscow"}, time.Date(2026, 1, 2, 6, 0, 0, 0, time.UTC)},
		{"bad timezone falls back", domain.Schedule{CronExpr: "0 9 * * *", Timezone: "Mars/Base"}, time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateNextDue(&tt.sched, testNow)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := CalculateNextDue(&domain.Schedule{}, testNow); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("expected ErrInvalidSchedule, got %v", err)
	}
}

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		name    string
		sched   domain.Schedule
		wantErr bool
	}{
		{"cron", domain.Schedule{CronExpr: "0 * * * *"}, false},
		{"interval", domain.Schedule{IntervalSec: 60, Timezone: "UTC"}, false},
		{"bad cron", domain.Schedule{CronExpr: "every day"}, true},
		{"empty", domain.Schedule{}, true},
		{"negative interval", domain.Schedule{IntervalSec: -5}, true},
		{"bad timezone", domain.Schedule{IntervalSec: 60, Timezone: "Nowhere/City"}, true},
	}

	for _, tt := range tests {
		err := ValidateSchedule(&tt.sched)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: got err %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidSchedule) {
			t.Errorf("%s: expected ErrInvalidSchedule, got %v", tt.name, err)
		}
	}
}

func TestSchedulesFromPipeline(t *testing.T) {
	p := &domain.Pipeline{
		ID:       uuid.New(),
		IsActive: true,
		Graph: domain.Graph{
			Nodes: []*domain.Node{
				{ID: "on-push", Type: "trigger.push"},
				{ID: "nightly", Type: "trigger.schedule", Label: "Nightly", Properties: map[string]any{"cron": "0 3 * * *"}},
				{ID: "build", Type: "build"},
			},
		},
	}

	got, err := SchedulesFromPipeline(p, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 schedule, got %d", len(got))
	}

	next := time.Date(2026, 1, 3, 3, 0, 0, 0, time.UTC)
	want := domain.Schedule{
		ID:         got[0].ID,
		PipelineID: p.ID,
		NodeID:     "nightly",
		Name:       "Nightly",
		CronExpr:   "0 3 * * *",
		Timezone:   "UTC",
		Enabled:    true,
		NextDueAt:  &next,
		CreatedAt:  testNow,
		UpdatedAt:  testNow,
	}
	if diff := cmp.Diff(want, got[0]); diff != "" {
		t.Errorf("schedule mismatch (-want +got):\n%s", diff)
	}
}

func TestSchedulesFromPipeline_InvalidCron(t *testing.T) {
	p := &domain.Pipeline{
		ID: uuid.New(),
		Graph: domain.Graph{
			Nodes: []*domain.Node{{ID: "nightly", Type: "trigger.schedule", Properties: map[string]any{"cron": "bogus"}}},
		},
	}

	_, err := SchedulesFromPipeline(p, testNow)
	if err == nil || !strings.Contains(err.Error(), "nightly") {
		t.Errorf("expected error naming node, got %v", err)
	}
}

type fakeLeader struct {
	mu       sync.Mutex
	leader   bool
	released bool
}

func (l *fakeLeader) TryAcquire(context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.leader, nil
}

func (l *fakeLeader) Release(context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = true
}

func TestRun_ReleasesLockOnShutdown(t *testing.T) {
	store := &memorySchedules{}
	s := newTestScheduler(store, &recordingDispatcher{})
	leader := &fakeLeader{leader: true}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	s.Run(ctx, 5*time.Millisecond, leader)

	leader.mu.Lock()
	defer leader.mu.Unlock()
	if !leader.released {
		t.Error("expected lock to be released")
	}
}

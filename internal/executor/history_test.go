package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

func TestMemoryHistory_List(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory(0)
	pipelineID := uuid.New()

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		rec := &domain.ExecutionRecord{ID: uuid.New(), Status: domain.RecordSuccess}
		if i%2 == 0 {
			rec.PipelineID = &pipelineID
		}
		if i == 4 {
			rec.Status = domain.RecordError
		}
		ids = append(ids, rec.ID)
		if err := h.Append(ctx, rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	all, _ := h.List(ctx, ListFilter{})
	if len(all) != 5 || all[0].ID != ids[4] {
		t.Errorf("expected newest first, got %d records", len(all))
	}

	// Записи пайплайна: 4, 2, 0
	byPipeline, _ := h.List(ctx, ListFilter{PipelineID: &pipelineID, Offset: 1, Limit: 1})
	if len(byPipeline) != 1 || byPipeline[0].ID != ids[2] {
		t.Errorf("unexpected pipeline page: %v", byPipeline)
	}

	failed, _ := h.List(ctx, ListFilter{Status: domain.RecordError})
	if len(failed) != 1 || failed[0].ID != ids[4] {
		t.Errorf("unexpected failed records: %v", failed)
	}
}

func TestMemoryHistory_Limit(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory(2)

	first := &domain.ExecutionRecord{ID: uuid.New()}
	_ = h.Append(ctx, first)
	_ = h.Append(ctx, &domain.ExecutionRecord{ID: uuid.New()})
	_ = h.Append(ctx, &domain.ExecutionRecord{ID: uuid.New()})

	if h.Len() != 2 {
		t.Errorf("expected 2 records, got %d", h.Len())
	}
	if _, err := h.Get(ctx, first.ID); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected oldest record evicted, got %v", err)
	}
}

func TestMemoryHistory_GetByIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory(0)
	pipelineID := uuid.New()
	other := uuid.New()

	first := &domain.ExecutionRecord{ID: uuid.New(), PipelineID: &pipelineID, IdempotencyKey: "nightly_1"}
	foreign := &domain.ExecutionRecord{ID: uuid.New(), PipelineID: &other, IdempotencyKey: "nightly_2"}
	h.Append(ctx, first)
	h.Append(ctx, foreign)

	got, err := h.GetByIdempotencyKey(ctx, pipelineID, "nightly_1")
	if err != nil || got != first {
		t.Fatalf("expected first record, got %v, %v", got, err)
	}

	// Ключ другого пайплайна не находится
	if _, err := h.GetByIdempotencyKey(ctx, pipelineID, "nightly_2"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

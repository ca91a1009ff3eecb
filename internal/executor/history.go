package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

// History — журнал прогонов. Executor добавляет в него каждую запись.
type History interface {
	Append(ctx context.Context, rec *domain.ExecutionRecord) error
	Get(ctx context.Context, id uuid.UUID) (*domain.ExecutionRecord, error)
	List(ctx context.Context, filter ListFilter) ([]*domain.ExecutionRecord, error)
}

// ListFilter — фильтр для History.List.
type ListFilter struct {
	PipelineID *uuid.UUID
	Status     domain.RecordStatus
	Limit      int
	Offset     int
}

// Matches проверяет, подходит ли запись под фильтр (без учёта Limit/Offset).
func (f ListFilter) Matches(rec *domain.ExecutionRecord) bool {
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	if f.PipelineID != nil {
		if rec.PipelineID == nil || *rec.PipelineID != *f.PipelineID {
			return false
		}
	}
	return true
}

// MemoryHistory — History в памяти процесса.
type MemoryHistory struct {
	mu      sync.RWMutex
	records []*domain.ExecutionRecord
	limit   int
}

// NewMemoryHistory создаёт журнал, хранящий не больше limit записей
// (0 — без ограничения). При переполнении удаляются самые старые.
func NewMemoryHistory(limit int) *MemoryHistory {
	return &MemoryHistory{limit: limit}
}

// Append добавляет запись.
func (h *MemoryHistory) Append(_ context.Context, rec *domain.ExecutionRecord) error {
	if rec == nil {
		return fmt.Errorf("append: nil record")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, rec)
	if h.limit > 0 && len(h.records) > h.limit {
		h.records = append([]*domain.ExecutionRecord(nil), h.records[len(h.records)-h.limit:]...)
	}
	return nil
}

// Get возвращает запись по ID.
func (h *MemoryHistory) Get(_ context.Context, id uuid.UUID) (*domain.ExecutionRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for i := len(h.records) - 1; i >= 0; i-- {
		if h.records[i].ID == id {
			return h.records[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
}

// GetByIdempotencyKey возвращает последнюю запись пайплайна с ключом.
func (h *MemoryHistory) GetByIdempotencyKey(_ context.Context, pipelineID uuid.UUID, key string) (*domain.ExecutionRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for i := len(h.records) - 1; i >= 0; i-- {
		rec := h.records[i]
		if rec.IdempotencyKey == key && rec.PipelineID != nil && *rec.PipelineID == pipelineID {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%w: idempotency key %q", ErrRecordNotFound, key)
}

// List возвращает записи, новые первыми.
func (h *MemoryHistory) List(_ context.Context, filter ListFilter) ([]*domain.ExecutionRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*domain.ExecutionRecord, 0)
	skipped := 0
	for i := len(h.records) - 1; i >= 0; i-- {
		rec := h.records[i]
		if !filter.Matches(rec) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, rec)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Len возвращает количество записей.
func (h *MemoryHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/executor"
)

// ExecutionRepo — журнал прогонов в PostgreSQL.
// Реализует executor.History.
type ExecutionRepo struct {
	pool *pgxpool.Pool
}

var _ executor.History = (*ExecutionRepo)(nil)

// NewExecutionRepo создаёт новый ExecutionRepo.
func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

const executionColumns = `id, pipeline_id, status, trigger, idempotency_key, total_nodes,
	details, node_order, error, started_at, duration_ms`

// Append сохраняет запись прогона.
// Повторный ключ идемпотентности для того же pipeline даёт ErrAlreadyExists.
func (r *ExecutionRepo) Append(ctx context.Context, rec *domain.ExecutionRecord) error {
	if rec == nil {
		return fmt.Errorf("append: nil record")
	}

	detailsJSON, err := json.Marshal(rec.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	order := rec.Order
	if order == nil {
		order = []string{}
	}

	query := `
		INSERT INTO executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.pool.Exec(ctx, query,
		rec.ID,
		nullUUID(rec.PipelineID),
		string(rec.Status),
		nullString(rec.Trigger),
		nullString(rec.IdempotencyKey),
		rec.TotalNodes,
		detailsJSON,
		order,
		nullString(rec.Error),
		rec.Timestamp,
		rec.DurationMs,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: idempotency key %q", ErrAlreadyExists, rec.IdempotencyKey)
	}
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// Get возвращает запись по ID.
func (r *ExecutionRepo) Get(ctx context.Context, id uuid.UUID) (*domain.ExecutionRecord, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`
	return scanExecution(r.pool.QueryRow(ctx, query, id))
}

// GetByIdempotencyKey возвращает запись по ключу идемпотентности.
func (r *ExecutionRepo) GetByIdempotencyKey(ctx context.Context, pipelineID uuid.UUID, key string) (*domain.ExecutionRecord, error) {
	query := `SELECT ` + executionColumns + `
		FROM executions
		WHERE pipeline_id = $1 AND idempotency_key = $2`
	return scanExecution(r.pool.QueryRow(ctx, query, pipelineID, key))
}

// List возвращает записи, новые первыми.
func (r *ExecutionRepo) List(ctx context.Context, filter executor.ListFilter) ([]*domain.ExecutionRecord, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE ($1::uuid IS NULL OR pipeline_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY started_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullUUID(filter.PipelineID),
		nullString(string(filter.Status)),
		limitOrDefault(filter.Limit),
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var records []*domain.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// --- Helpers ---

func scanExecution(row pgx.Row) (*domain.ExecutionRecord, error) {
	var rec domain.ExecutionRecord
	var status string
	var trigger, idempotencyKey, runError *string
	var detailsJSON []byte

	err := row.Scan(
		&rec.ID,
		&rec.PipelineID,
		&status,
		&trigger,
		&idempotencyKey,
		&rec.TotalNodes,
		&detailsJSON,
		&rec.Order,
		&runError,
		&rec.Timestamp,
		&rec.DurationMs,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, executor.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}

	rec.Status = domain.ParseRecordStatus(status)
	if trigger != nil {
		rec.Trigger = *trigger
	}
	if idempotencyKey != nil {
		rec.IdempotencyKey = *idempotencyKey
	}
	if runError != nil {
		rec.Error = *runError
	}
	if err := json.Unmarshal(detailsJSON, &rec.Details); err != nil {
		return nil, fmt.Errorf("unmarshal details: %w", err)
	}
	if rec.Details == nil {
		rec.Details = map[string]domain.NodeResult{}
	}

	return &rec, nil
}

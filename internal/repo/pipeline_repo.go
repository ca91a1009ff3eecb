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
)

// PipelineRepo — репозиторий для работы с pipelines.
type PipelineRepo struct {
	pool *pgxpool.Pool
}

// NewPipelineRepo создаёт новый PipelineRepo.
func NewPipelineRepo(pool *pgxpool.Pool) *PipelineRepo {
	return &PipelineRepo{pool: pool}
}

const pipelineColumns = `id, name, description, graph, is_active, created_at, updated_at`

// Create создаёт новый pipeline.
func (r *PipelineRepo) Create(ctx context.Context, p *domain.Pipeline) error {
	graphJSON, err := storedGraph(&p.Graph)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO pipelines (id, name, description, graph, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, query,
		p.ID,
		p.Name,
		nullString(p.Description),
		graphJSON,
		p.IsActive,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: pipeline %q", ErrAlreadyExists, p.Name)
	}
	if err != nil {
		return fmt.Errorf("insert pipeline: %w", err)
	}
	return nil
}

// GetByID возвращает pipeline по ID.
func (r *PipelineRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Pipeline, error) {
	query := `SELECT ` + pipelineColumns + ` FROM pipelines WHERE id = $1`
	return scanPipeline(r.pool.QueryRow(ctx, query, id))
}

// GetByName возвращает pipeline по имени.
func (r *PipelineRepo) GetByName(ctx context.Context, name string) (*domain.Pipeline, error) {
	query := `SELECT ` + pipelineColumns + ` FROM pipelines WHERE name = $1`
	return scanPipeline(r.pool.QueryRow(ctx, query, name))
}

// PipelineFilter — параметры фильтрации pipelines.
type PipelineFilter struct {
	Active *bool
	Limit  int
	Offset int
}

// List возвращает список pipelines.
func (r *PipelineRepo) List(ctx context.Context, filter PipelineFilter) ([]domain.Pipeline, error) {
	query := `
		SELECT ` + pipelineColumns + `
		FROM pipelines
		WHERE ($1::boolean IS NULL OR is_active = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, filter.Active, limitOrDefault(filter.Limit), filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	defer rows.Close()

	var pipelines []domain.Pipeline
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, err
		}
		pipelines = append(pipelines, *p)
	}
	return pipelines, rows.Err()
}

// Update обновляет pipeline.
func (r *PipelineRepo) Update(ctx context.Context, p *domain.Pipeline) error {
	graphJSON, err := storedGraph(&p.Graph)
	if err != nil {
		return err
	}

	query := `
		UPDATE pipelines
		SET name = $2, description = $3, graph = $4, is_active = $5, updated_at = $6
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		p.ID,
		p.Name,
		nullString(p.Description),
		graphJSON,
		p.IsActive,
		p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: pipeline %q", ErrAlreadyExists, p.Name)
	}
	if err != nil {
		return fmt.Errorf("update pipeline: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет pipeline (каскадно удалит schedules).
func (r *PipelineRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM pipelines WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete pipeline: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

func scanPipeline(row pgx.Row) (*domain.Pipeline, error) {
	var p domain.Pipeline
	var description *string
	var graphJSON []byte

	err := row.Scan(
		&p.ID,
		&p.Name,
		&description,
		&graphJSON,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan pipeline: %w", err)
	}

	if description != nil {
		p.Description = *description
	}
	if err := json.Unmarshal(graphJSON, &p.Graph); err != nil {
		return nil, fmt.Errorf("unmarshal graph: %w", err)
	}

	return &p, nil
}

// storedGraph сериализует граф без полей выполнения.
func storedGraph(g *domain.Graph) ([]byte, error) {
	clone := g.Clone()
	for _, n := range clone.Nodes {
		n.ExecutionStatus = ""
		n.ExecutionOutput = nil
		n.ExecutionError = ""
	}
	if clone.Nodes == nil {
		clone.Nodes = []*domain.Node{}
	}
	if clone.Edges == nil {
		clone.Edges = []domain.Edge{}
	}

	data, err := json.Marshal(clone)
	if err != nil {
		return nil, fmt.Errorf("marshal graph: %w", err)
	}
	return data, nil
}

// limitOrDefault ограничивает размер страницы.
func limitOrDefault(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullUUID возвращает nil для пустого UUID.
func nullUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	return id
}

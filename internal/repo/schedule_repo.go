package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conveyor/internal/domain"
)

// ScheduleRepo — репозиторий для работы с schedules.
type ScheduleRepo struct {
	pool *pgxpool.Pool
}

// NewScheduleRepo создаёт новый ScheduleRepo.
func NewScheduleRepo(pool *pgxpool.Pool) *ScheduleRepo {
	return &ScheduleRepo{pool: pool}
}

const scheduleColumns = `s.id, s.pipeline_id, s.node_id, s.name, s.cron_expr, s.interval_sec, s.timezone,
	s.enabled, s.next_due_at, s.last_run_at, s.last_request_id, s.created_at, s.updated_at`

// execer — общее у пула и транзакции.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Create создаёт новый schedule.
func (r *ScheduleRepo) Create(ctx context.Context, schedule *domain.Schedule) error {
	return insertSchedule(ctx, r.pool, schedule)
}

// GetByID возвращает schedule по ID.
func (r *ScheduleRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules s WHERE s.id = $1`
	return scanSchedule(r.pool.QueryRow(ctx, query, id))
}

// List возвращает список schedules с фильтрацией.
func (r *ScheduleRepo) List(ctx context.Context, filter ScheduleFilter) ([]domain.Schedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM schedules s
		WHERE ($1::uuid IS NULL OR s.pipeline_id = $1)
		  AND ($2::boolean IS NULL OR s.enabled = $2)
		ORDER BY s.created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullUUID(filter.PipelineID),
		filter.Enabled,
		limitOrDefault(filter.Limit),
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return collectSchedules(rows)
}

// ListDue возвращает schedules активных pipelines, готовые к выполнению.
func (r *ScheduleRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM schedules s
		JOIN pipelines p ON p.id = s.pipeline_id
		WHERE s.enabled = true
		  AND p.is_active = true
		  AND s.next_due_at IS NOT NULL
		  AND s.next_due_at <= $1
		ORDER BY s.next_due_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	return collectSchedules(rows)
}

// Update обновляет schedule.
func (r *ScheduleRepo) Update(ctx context.Context, schedule *domain.Schedule) error {
	query := `
		UPDATE schedules
		SET name = $2, cron_expr = $3, interval_sec = $4, timezone = $5,
		    enabled = $6, next_due_at = $7, last_run_at = $8, last_request_id = $9,
		    updated_at = $10
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		schedule.ID,
		nullString(schedule.Name),
		nullString(schedule.CronExpr),
		nullInt(schedule.IntervalSec),
		schedule.Timezone,
		schedule.Enabled,
		schedule.NextDueAt,
		schedule.LastRunAt,
		schedule.LastRequestID,
		schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет schedule.
func (r *ScheduleRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetEnabled включает/выключает schedule.
func (r *ScheduleRepo) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE schedules SET enabled = $2, updated_at = NOW() WHERE id = $1
	`, id, enabled)
	if err != nil {
		return fmt.Errorf("set enabled: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceForPipeline заменяет schedules, полученные из узлов trigger.schedule.
//
// Расписания, созданные вручную (без node_id), не трогаются. Для узла,
// у которого уже было расписание с тем же cron, сохраняются next_due_at
// и last_run_at, чтобы сохранение пайплайна не сдвигало запуск.
func (r *ScheduleRepo) ReplaceForPipeline(ctx context.Context, pipelineID uuid.UUID, schedules []domain.Schedule) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+scheduleColumns+`
			FROM schedules s
			WHERE s.pipeline_id = $1 AND s.node_id IS NOT NULL
		`, pipelineID)
		if err != nil {
			return fmt.Errorf("list pipeline schedules: %w", err)
		}
		existing, err := collectSchedules(rows)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM schedules WHERE pipeline_id = $1 AND node_id IS NOT NULL`, pipelineID); err != nil {
			return fmt.Errorf("delete pipeline schedules: %w", err)
		}

		for i := range schedules {
			sched := &schedules[i]
			sched.PipelineID = pipelineID
			for _, old := range existing {
				if old.NodeID == sched.NodeID && old.CronExpr == sched.CronExpr && old.Timezone == sched.Timezone {
					sched.NextDueAt = old.NextDueAt
					sched.LastRunAt = old.LastRunAt
					sched.LastRequestID = old.LastRequestID
				}
			}
			if err := insertSchedule(ctx, tx, sched); err != nil {
				return err
			}
			if sched.LastRunAt != nil {
				if _, err := tx.Exec(ctx, `
					UPDATE schedules SET last_run_at = $2, last_request_id = $3 WHERE id = $1
				`, sched.ID, sched.LastRunAt, sched.LastRequestID); err != nil {
					return fmt.Errorf("restore schedule state: %w", err)
				}
			}
		}
		return nil
	})
}

// --- Helpers ---

// ScheduleFilter — параметры фильтрации schedules.
type ScheduleFilter struct {
	PipelineID *uuid.UUID
	Enabled    *bool
	Limit      int
	Offset     int
}

func insertSchedule(ctx context.Context, db execer, schedule *domain.Schedule) error {
	query := `
		INSERT INTO schedules (id, pipeline_id, node_id, name, cron_expr, interval_sec, timezone,
		                       enabled, next_due_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := db.Exec(ctx, query,
		schedule.ID,
		schedule.PipelineID,
		nullString(schedule.NodeID),
		nullString(schedule.Name),
		nullString(schedule.CronExpr),
		nullInt(schedule.IntervalSec),
		schedule.Timezone,
		schedule.Enabled,
		schedule.NextDueAt,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

func collectSchedules(rows pgx.Rows) ([]domain.Schedule, error) {
	defer rows.Close()

	var schedules []domain.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *schedule)
	}
	return schedules, rows.Err()
}

func scanSchedule(row pgx.Row) (*domain.Schedule, error) {
	var s domain.Schedule
	var nodeID, name, cronExpr *string
	var intervalSec *int

	err := row.Scan(
		&s.ID,
		&s.PipelineID,
		&nodeID,
		&name,
		&cronExpr,
		&intervalSec,
		&s.Timezone,
		&s.Enabled,
		&s.NextDueAt,
		&s.LastRunAt,
		&s.LastRequestID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
	}

	if nodeID != nil {
		s.NodeID = *nodeID
	}
	if name != nil {
		s.Name = *name
	}
	if cronExpr != nil {
		s.CronExpr = *cronExpr
	}
	if intervalSec != nil {
		s.IntervalSec = *intervalSec
	}

	return &s, nil
}

// nullInt возвращает nil для нулевого int.
func nullInt(i int) *int {
	if i == 0 {
		return nil
	}
	return &i
}

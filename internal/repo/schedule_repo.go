package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Forge/internal/domain"
)

// ScheduleRepo — репозиторий для работы с schedules.
type ScheduleRepo struct {
	pool *pgxpool.Pool
}

// NewScheduleRepo создаёт новый ScheduleRepo.
func NewScheduleRepo(pool *pgxpool.Pool) *ScheduleRepo {
	return &ScheduleRepo{pool: pool}
}

// CreateSchedule создаёт новое расписание.
func (r *ScheduleRepo) CreateSchedule(ctx context.Context, s *domain.Schedule) error {
	graphJSON, err := json.Marshal(s.Graph)
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}

	query := `
		INSERT INTO schedules (id, name, graph, cron_expr, interval_sec, timezone,
		                       enabled, next_due_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.pool.Exec(ctx, query,
		s.ID,
		nullString(s.Name),
		graphJSON,
		nullString(s.CronExpr),
		nullInt(s.IntervalSec),
		s.Timezone,
		s.Enabled,
		s.NextDueAt,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

// UpdateSchedule записывает текущее состояние расписания.
func (r *ScheduleRepo) UpdateSchedule(ctx context.Context, s *domain.Schedule) error {
	query := `
		UPDATE schedules
		SET enabled = $2, next_due_at = $3, last_run_at = $4,
		    last_pipeline_id = $5, updated_at = $6
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		s.ID,
		s.Enabled,
		s.NextDueAt,
		s.LastRunAt,
		s.LastPipelineID,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: schedule %s", ErrNotFound, s.ID)
	}
	return nil
}

// GetSchedule возвращает расписание по ID.
func (r *ScheduleRepo) GetSchedule(ctx context.Context, id uuid.UUID) (*domain.Schedule, error) {
	query := `
		SELECT id, name, graph, cron_expr, interval_sec, timezone, enabled,
		       next_due_at, last_run_at, last_pipeline_id, created_at, updated_at
		FROM schedules
		WHERE id = $1
	`
	return scanSchedule(r.pool.QueryRow(ctx, query, id))
}

// ListDueSchedules возвращает активные расписания с next_due_at <= now.
func (r *ScheduleRepo) ListDueSchedules(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error) {
	query := `
		SELECT id, name, graph, cron_expr, interval_sec, timezone, enabled,
		       next_due_at, last_run_at, last_pipeline_id, created_at, updated_at
		FROM schedules
		WHERE enabled = true AND next_due_at IS NOT NULL AND next_due_at <= $1
		ORDER BY next_due_at ASC
		LIMIT NULLIF($2, 0)
	`
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	defer rows.Close()

	return collectSchedules(rows)
}

// ListSchedules возвращает все расписания.
func (r *ScheduleRepo) ListSchedules(ctx context.Context) ([]domain.Schedule, error) {
	query := `
		SELECT id, name, graph, cron_expr, interval_sec, timezone, enabled,
		       next_due_at, last_run_at, last_pipeline_id, created_at, updated_at
		FROM schedules
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	return collectSchedules(rows)
}

// --- Helpers ---

func collectSchedules(rows pgx.Rows) ([]domain.Schedule, error) {
	var schedules []domain.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *s)
	}
	return schedules, rows.Err()
}

func scanSchedule(row pgx.Row) (*domain.Schedule, error) {
	var s domain.Schedule
	var name, cronExpr *string
	var intervalSec *int
	var graphJSON []byte

	err := row.Scan(
		&s.ID,
		&name,
		&graphJSON,
		&cronExpr,
		&intervalSec,
		&s.Timezone,
		&s.Enabled,
		&s.NextDueAt,
		&s.LastRunAt,
		&s.LastPipelineID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: schedule", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
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
	if graphJSON != nil {
		if err := json.Unmarshal(graphJSON, &s.Graph); err != nil {
			return nil, fmt.Errorf("unmarshal graph: %w", err)
		}
	}

	return &s, nil
}

// nullInt возвращает nil для нулевого значения.
func nullInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

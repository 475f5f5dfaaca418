package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Forge/internal/domain"
)

// PipelineRepo — репозиторий для работы с pipeline_instances.
type PipelineRepo struct {
	pool *pgxpool.Pool
}

// NewPipelineRepo создаёт новый PipelineRepo.
func NewPipelineRepo(pool *pgxpool.Pool) *PipelineRepo {
	return &PipelineRepo{pool: pool}
}

// CreatePipeline создаёт новый pipeline.
func (r *PipelineRepo) CreatePipeline(ctx context.Context, p *domain.PipelineInstance) error {
	graphJSON, err := json.Marshal(p.Graph)
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}
	nodeTasksJSON, err := json.Marshal(p.NodeTasks)
	if err != nil {
		return fmt.Errorf("marshal node tasks: %w", err)
	}

	query := `
		INSERT INTO pipeline_instances (id, name, state, graph, node_tasks, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		p.ID,
		nullString(p.Name),
		p.State,
		graphJSON,
		nodeTasksJSON,
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pipeline: %w", err)
	}
	return nil
}

// UpdatePipeline записывает текущее состояние pipeline.
func (r *PipelineRepo) UpdatePipeline(ctx context.Context, p *domain.PipelineInstance) error {
	nodeTasksJSON, err := json.Marshal(p.NodeTasks)
	if err != nil {
		return fmt.Errorf("marshal node tasks: %w", err)
	}

	query := `
		UPDATE pipeline_instances
		SET state = $2, node_tasks = $3, error = $4, started_at = $5, finished_at = $6
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		p.ID,
		p.State,
		nodeTasksJSON,
		nullString(p.Error),
		p.StartedAt,
		p.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update pipeline: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: pipeline %s", ErrNotFound, p.ID)
	}
	return nil
}

// GetPipeline возвращает pipeline по ID.
func (r *PipelineRepo) GetPipeline(ctx context.Context, id uuid.UUID) (*domain.PipelineInstance, error) {
	query := `
		SELECT id, name, state, graph, node_tasks, error, created_at, started_at, finished_at
		FROM pipeline_instances
		WHERE id = $1
	`
	return scanPipeline(r.pool.QueryRow(ctx, query, id))
}

// ListPipelinesInState возвращает pipelines в заданном состоянии.
// Используется recovery-сканом при старте оркестратора.
func (r *PipelineRepo) ListPipelinesInState(ctx context.Context, state domain.PipelineState, limit int) ([]domain.PipelineInstance, error) {
	query := `
		SELECT id, name, state, graph, node_tasks, error, created_at, started_at, finished_at
		FROM pipeline_instances
		WHERE state = $1
		ORDER BY created_at ASC
		LIMIT NULLIF($2, 0)
	`
	rows, err := r.pool.Query(ctx, query, state, limit)
	if err != nil {
		return nil, fmt.Errorf("list pipelines in state: %w", err)
	}
	defer rows.Close()

	var pipelines []domain.PipelineInstance
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, err
		}
		pipelines = append(pipelines, *p)
	}
	return pipelines, rows.Err()
}

// --- Helpers ---

func scanPipeline(row pgx.Row) (*domain.PipelineInstance, error) {
	var p domain.PipelineInstance
	var name, errMsg *string
	var graphJSON, nodeTasksJSON []byte

	err := row.Scan(
		&p.ID,
		&name,
		&p.State,
		&graphJSON,
		&nodeTasksJSON,
		&errMsg,
		&p.CreatedAt,
		&p.StartedAt,
		&p.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: pipeline", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan pipeline: %w", err)
	}

	if name != nil {
		p.Name = *name
	}
	if errMsg != nil {
		p.Error = *errMsg
	}
	if graphJSON != nil {
		if err := json.Unmarshal(graphJSON, &p.Graph); err != nil {
			return nil, fmt.Errorf("unmarshal graph: %w", err)
		}
	}
	if nodeTasksJSON != nil {
		if err := json.Unmarshal(nodeTasksJSON, &p.NodeTasks); err != nil {
			return nil, fmt.Errorf("unmarshal node tasks: %w", err)
		}
	}

	return &p, nil
}

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

// InstanceRepo — репозиторий для работы с task_instances.
type InstanceRepo struct {
	pool *pgxpool.Pool
}

// NewInstanceRepo создаёт новый InstanceRepo.
func NewInstanceRepo(pool *pgxpool.Pool) *InstanceRepo {
	return &InstanceRepo{pool: pool}
}

// CreateInstance создаёт новый экземпляр задачи.
func (r *InstanceRepo) CreateInstance(ctx context.Context, task *domain.TaskInstance) error {
	inputsJSON, err := json.Marshal(task.Inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}

	query := `
		INSERT INTO task_instances (id, kind, pipeline_id, node_id, attempt, state, inputs, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		task.ID,
		task.Kind,
		nullUUID(task.PipelineID),
		nullString(task.NodeID),
		task.Attempt,
		task.State,
		inputsJSON,
		task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task instance: %w", err)
	}
	return nil
}

// Transition записывает рабочую копию, если текущее персистентное состояние
// входит в from. Условие проверяется в самом UPDATE, поэтому гонка двух
// конкурирующих переходов разрешается атомарно на стороне БД.
func (r *InstanceRepo) Transition(ctx context.Context, task *domain.TaskInstance, from ...domain.TaskState) error {
	outputsJSON, err := json.Marshal(task.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}
	var errorJSON []byte
	if task.Error != nil {
		errorJSON, err = json.Marshal(task.Error)
		if err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
	}

	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}

	query := `
		UPDATE task_instances
		SET attempt = $2, state = $3, outputs = $4, error = $5,
		    not_before = $6, started_at = $7, finished_at = $8
		WHERE id = $1 AND state = ANY($9)
	`
	result, err := r.pool.Exec(ctx, query,
		task.ID,
		task.Attempt,
		task.State,
		outputsJSON,
		errorJSON,
		task.NotBefore,
		task.StartedAt,
		task.FinishedAt,
		states,
	)
	if err != nil {
		return fmt.Errorf("transition task instance: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Либо записи нет, либо состояние уже ушло вперёд
		current, getErr := r.GetInstance(ctx, task.ID)
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: task %s is %s, expected one of %v",
			ErrInvalidTransition, task.ID, current.State, from)
	}
	return nil
}

// GetInstance возвращает экземпляр по ID.
func (r *InstanceRepo) GetInstance(ctx context.Context, id uuid.UUID) (*domain.TaskInstance, error) {
	query := `
		SELECT id, kind, pipeline_id, node_id, attempt, state, inputs, outputs,
		       error, not_before, created_at, started_at, finished_at
		FROM task_instances
		WHERE id = $1
	`
	return scanInstance(r.pool.QueryRow(ctx, query, id))
}

// ListByPipeline возвращает все экземпляры pipeline в порядке создания.
func (r *InstanceRepo) ListByPipeline(ctx context.Context, pipelineID uuid.UUID) ([]domain.TaskInstance, error) {
	query := `
		SELECT id, kind, pipeline_id, node_id, attempt, state, inputs, outputs,
		       error, not_before, created_at, started_at, finished_at
		FROM task_instances
		WHERE pipeline_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.pool.Query(ctx, query, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("list task instances: %w", err)
	}
	defer rows.Close()

	return collectInstances(rows)
}

// ListInstancesInState возвращает экземпляры в заданном состоянии.
func (r *InstanceRepo) ListInstancesInState(ctx context.Context, state domain.TaskState, limit int) ([]domain.TaskInstance, error) {
	query := `
		SELECT id, kind, pipeline_id, node_id, attempt, state, inputs, outputs,
		       error, not_before, created_at, started_at, finished_at
		FROM task_instances
		WHERE state = $1
		ORDER BY created_at ASC
		LIMIT NULLIF($2, 0)
	`
	rows, err := r.pool.Query(ctx, query, state, limit)
	if err != nil {
		return nil, fmt.Errorf("list task instances in state: %w", err)
	}
	defer rows.Close()

	return collectInstances(rows)
}

// --- Helpers ---

func collectInstances(rows pgx.Rows) ([]domain.TaskInstance, error) {
	var tasks []domain.TaskInstance
	for rows.Next() {
		task, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// scanInstance сканирует одну строку в TaskInstance.
func scanInstance(row pgx.Row) (*domain.TaskInstance, error) {
	var task domain.TaskInstance
	var pipelineID *uuid.UUID
	var nodeID *string
	var inputsJSON, outputsJSON, errorJSON []byte

	err := row.Scan(
		&task.ID,
		&task.Kind,
		&pipelineID,
		&nodeID,
		&task.Attempt,
		&task.State,
		&inputsJSON,
		&outputsJSON,
		&errorJSON,
		&task.NotBefore,
		&task.CreatedAt,
		&task.StartedAt,
		&task.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: task instance", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan task instance: %w", err)
	}

	if pipelineID != nil {
		task.PipelineID = *pipelineID
	}
	if nodeID != nil {
		task.NodeID = *nodeID
	}
	if inputsJSON != nil {
		if err := json.Unmarshal(inputsJSON, &task.Inputs); err != nil {
			return nil, fmt.Errorf("unmarshal inputs: %w", err)
		}
	}
	if outputsJSON != nil {
		if err := json.Unmarshal(outputsJSON, &task.Outputs); err != nil {
			return nil, fmt.Errorf("unmarshal outputs: %w", err)
		}
	}
	if errorJSON != nil {
		if err := json.Unmarshal(errorJSON, &task.Error); err != nil {
			return nil, fmt.Errorf("unmarshal error: %w", err)
		}
	}

	return &task, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullUUID возвращает nil для uuid.Nil (standalone задачи без pipeline).
func nullUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

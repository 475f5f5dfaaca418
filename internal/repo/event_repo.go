package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Forge/internal/domain"
)

// pgUniqueViolation — SQLSTATE нарушения уникального индекса.
const pgUniqueViolation = "23505"

// EventRepo — репозиторий журнала событий pipeline.
//
// Sequence выдаётся самим INSERT: следующий номер вычисляется по
// максимальному в рамках pipeline. Уникальный индекс (pipeline_id, sequence)
// сериализует конкурентную запись: ветви одного pipeline завершаются
// параллельно, проигравший гонку INSERT повторяется с новым номером.
type EventRepo struct {
	pool *pgxpool.Pool
}

// NewEventRepo создаёт новый EventRepo.
func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// AppendEvent присваивает следующий sequence и сохраняет событие.
// Sequence и CreatedAt записываются обратно в ev.
func (r *EventRepo) AppendEvent(ctx context.Context, ev *domain.EventRecord) error {
	payloadJSON, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO pipeline_events (pipeline_id, sequence, node_id, kind, payload, created_at)
		SELECT $1, COALESCE(MAX(sequence), 0) + 1, $2, $3, $4, $5
		FROM pipeline_events
		WHERE pipeline_id = $1
		RETURNING sequence
	`
	for {
		err = r.pool.QueryRow(ctx, query,
			ev.PipelineID,
			nullString(ev.NodeID),
			ev.Kind,
			payloadJSON,
			ev.CreatedAt,
		).Scan(&ev.Sequence)
		if err == nil {
			return nil
		}
		// Конкурент успел занять вычисленный sequence: берём следующий.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && ctx.Err() == nil {
			continue
		}
		return fmt.Errorf("append event: %w", err)
	}
}

// ListEvents возвращает события pipeline с Sequence > after в порядке записи.
func (r *EventRepo) ListEvents(ctx context.Context, pipelineID uuid.UUID, after uint64, limit int) ([]domain.EventRecord, error) {
	query := `
		SELECT pipeline_id, sequence, node_id, kind, payload, created_at
		FROM pipeline_events
		WHERE pipeline_id = $1 AND sequence > $2
		ORDER BY sequence ASC
		LIMIT NULLIF($3, 0)
	`
	rows, err := r.pool.Query(ctx, query, pipelineID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.EventRecord
	for rows.Next() {
		var ev domain.EventRecord
		var nodeID *string
		var payloadJSON []byte

		err := rows.Scan(
			&ev.PipelineID,
			&ev.Sequence,
			&nodeID,
			&ev.Kind,
			&payloadJSON,
			&ev.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		if nodeID != nil {
			ev.NodeID = *nodeID
		}
		if payloadJSON != nil {
			if err := json.Unmarshal(payloadJSON, &ev.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal payload: %w", err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

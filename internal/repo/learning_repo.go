package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Forge/internal/domain"
)

// LearningRepo — репозиторий базы знаний об отказах: счётчики сигнатур
// и append-only история заметок об исправлениях.
type LearningRepo struct {
	pool *pgxpool.Pool
}

// NewLearningRepo создаёт новый LearningRepo.
func NewLearningRepo(pool *pgxpool.Pool) *LearningRepo {
	return &LearningRepo{pool: pool}
}

// RecordFailure фиксирует наблюдение сигнатуры и возвращает новый счётчик.
func (r *LearningRepo) RecordFailure(ctx context.Context, sig domain.FailureSignature) (int, error) {
	query := `
		INSERT INTO failure_signatures (key, kind, category, occurrences)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (key)
		DO UPDATE SET occurrences = failure_signatures.occurrences + 1
		RETURNING occurrences
	`
	var count int
	err := r.pool.QueryRow(ctx, query, sig.Key(), sig.Kind, sig.Category).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("record failure: %w", err)
	}
	return count, nil
}

// RecordNote добавляет заметку об исправлении в историю сигнатуры.
func (r *LearningRepo) RecordNote(ctx context.Context, note domain.RemediationNote) error {
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO remediation_notes (signature_key, kind, category, note, occurrences, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		note.Signature.Key(),
		note.Signature.Kind,
		note.Signature.Category,
		note.Note,
		note.Occurrences,
		note.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record note: %w", err)
	}
	return nil
}

// LatestNote возвращает последнюю заметку для сигнатуры (last-write-wins).
func (r *LearningRepo) LatestNote(ctx context.Context, sig domain.FailureSignature) (*domain.RemediationNote, error) {
	query := `
		SELECT note, occurrences, created_at
		FROM remediation_notes
		WHERE signature_key = $1
		ORDER BY id DESC
		LIMIT 1
	`
	note := domain.RemediationNote{Signature: sig}
	err := r.pool.QueryRow(ctx, query, sig.Key()).Scan(&note.Note, &note.Occurrences, &note.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: no note for signature %s", ErrNotFound, sig.Key())
	}
	if err != nil {
		return nil, fmt.Errorf("latest note: %w", err)
	}
	return &note, nil
}

// NoteHistory возвращает все заметки сигнатуры в порядке записи.
func (r *LearningRepo) NoteHistory(ctx context.Context, sig domain.FailureSignature) ([]domain.RemediationNote, error) {
	query := `
		SELECT note, occurrences, created_at
		FROM remediation_notes
		WHERE signature_key = $1
		ORDER BY id ASC
	`
	rows, err := r.pool.Query(ctx, query, sig.Key())
	if err != nil {
		return nil, fmt.Errorf("note history: %w", err)
	}
	defer rows.Close()

	var notes []domain.RemediationNote
	for rows.Next() {
		note := domain.RemediationNote{Signature: sig}
		if err := rows.Scan(&note.Note, &note.Occurrences, &note.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

package learning

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Forge/internal/domain"
	"github.com/shaiso/Forge/internal/store"
)

// Advice — результат наблюдения отказа: сигнатура, сколько раз она
// встречалась и подсказка из истории исправлений (если есть).
type Advice struct {
	Signature   domain.FailureSignature
	Occurrences int
	Hint        string
}

// Learner накапливает знания об отказах задач и выдаёт подсказки
// при повторении известной сигнатуры.
type Learner struct {
	store store.LearningStore
}

// NewLearner создаёт Learner поверх заданного LearningStore.
func NewLearner(ls store.LearningStore) *Learner {
	return &Learner{store: ls}
}

// Observe фиксирует отказ задачи и возвращает накопленные знания
// о его сигнатуре. Подсказка берётся из последней заметки об исправлении;
// если заметок нет, Hint пуст.
func (l *Learner) Observe(ctx context.Context, kind string, execErr *domain.ExecError) (Advice, error) {
	sig := domain.FailureSignature{Kind: kind, Category: execErr.Category}

	count, err := l.store.RecordFailure(ctx, sig)
	if err != nil {
		return Advice{}, fmt.Errorf("record failure: %w", err)
	}

	advice := Advice{Signature: sig, Occurrences: count}

	note, err := l.store.LatestNote(ctx, sig)
	if errors.Is(err, store.ErrNotFound) {
		return advice, nil
	}
	if err != nil {
		return Advice{}, fmt.Errorf("latest note: %w", err)
	}
	advice.Hint = note.Note
	return advice, nil
}

// Suggest возвращает подсказку для сигнатуры без записи наблюдения.
// Пустая строка означает, что заметок для сигнатуры нет.
func (l *Learner) Suggest(ctx context.Context, sig domain.FailureSignature) (string, error) {
	note, err := l.store.LatestNote(ctx, sig)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest note: %w", err)
	}
	return note.Note, nil
}

// AddNote записывает заметку об исправлении для сигнатуры.
// История append-only: новая заметка не стирает предыдущие,
// но именно она будет выдаваться как подсказка.
//
// Текст хранится дословно: нормализация применяется к сообщениям
// ошибок при группировке, а заметка — написанная человеком инструкция,
// пути и идентификаторы в ней значимы.
func (l *Learner) AddNote(ctx context.Context, sig domain.FailureSignature, text string) error {
	note := domain.RemediationNote{
		Signature: sig,
		Note:      text,
	}
	if err := l.store.RecordNote(ctx, note); err != nil {
		return fmt.Errorf("record note: %w", err)
	}
	return nil
}

// History возвращает все заметки сигнатуры в порядке записи.
func (l *Learner) History(ctx context.Context, sig domain.FailureSignature) ([]domain.RemediationNote, error) {
	return l.store.NoteHistory(ctx, sig)
}

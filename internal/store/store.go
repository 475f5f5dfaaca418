package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Forge/internal/domain"
)

// InstanceStore — персистентное хранилище экземпляров задач.
//
// Store — единственный владелец персистентных записей; оркестратор держит
// только рабочие копии в памяти и записывает каждый переход через Store.
type InstanceStore interface {
	// CreateInstance сохраняет новый экземпляр задачи.
	CreateInstance(ctx context.Context, task *domain.TaskInstance) error

	// Transition записывает рабочую копию task, если персистентное состояние
	// экземпляра входит в from — одно атомарное условное обновление
	// (optimistic concurrency). Возвращает ErrInvalidTransition, если
	// текущее состояние не входит в from: защита от двойного завершения
	// и от «воскрешения» отменённой задачи.
	Transition(ctx context.Context, task *domain.TaskInstance, from ...domain.TaskState) error

	// GetInstance возвращает экземпляр по ID.
	GetInstance(ctx context.Context, id uuid.UUID) (*domain.TaskInstance, error)

	// ListByPipeline возвращает все экземпляры pipeline
	// в порядке создания.
	ListByPipeline(ctx context.Context, pipelineID uuid.UUID) ([]domain.TaskInstance, error)

	// ListInstancesInState возвращает экземпляры в заданном состоянии.
	// Используется сканом восстановления (RUNNING на старте процесса).
	ListInstancesInState(ctx context.Context, state domain.TaskState, limit int) ([]domain.TaskInstance, error)
}

// PipelineStore — персистентное хранилище экземпляров pipeline.
type PipelineStore interface {
	// CreatePipeline сохраняет новый pipeline.
	CreatePipeline(ctx context.Context, p *domain.PipelineInstance) error

	// UpdatePipeline записывает текущее состояние pipeline.
	UpdatePipeline(ctx context.Context, p *domain.PipelineInstance) error

	// GetPipeline возвращает pipeline по ID.
	GetPipeline(ctx context.Context, id uuid.UUID) (*domain.PipelineInstance, error)

	// ListPipelinesInState возвращает pipelines в заданном состоянии
	// в порядке создания.
	ListPipelinesInState(ctx context.Context, state domain.PipelineState, limit int) ([]domain.PipelineInstance, error)
}

// EventStore — журнал событий pipeline.
type EventStore interface {
	// AppendEvent присваивает событию следующий sequence в рамках
	// его pipeline и durably сохраняет его. Sequence записывается
	// в переданную запись.
	AppendEvent(ctx context.Context, ev *domain.EventRecord) error

	// ListEvents возвращает события pipeline с Sequence > after,
	// по возрастанию sequence.
	ListEvents(ctx context.Context, pipelineID uuid.UUID, after uint64, limit int) ([]domain.EventRecord, error)
}

// LearningStore — индекс заметок об исправлениях по сигнатурам ошибок.
type LearningStore interface {
	// RecordFailure фиксирует наблюдение сигнатуры.
	// Возвращает общее количество наблюдений.
	RecordFailure(ctx context.Context, sig domain.FailureSignature) (int, error)

	// RecordNote добавляет заметку об исправлении (история append-only).
	RecordNote(ctx context.Context, note domain.RemediationNote) error

	// LatestNote возвращает последнюю заметку для сигнатуры
	// или ErrNotFound.
	LatestNote(ctx context.Context, sig domain.FailureSignature) (*domain.RemediationNote, error)

	// NoteHistory возвращает все заметки сигнатуры в порядке записи.
	NoteHistory(ctx context.Context, sig domain.FailureSignature) ([]domain.RemediationNote, error)
}

// ScheduleStore — хранилище расписаний периодической подачи pipeline.
type ScheduleStore interface {
	// CreateSchedule сохраняет новое расписание.
	CreateSchedule(ctx context.Context, s *domain.Schedule) error

	// UpdateSchedule записывает текущее состояние расписания.
	UpdateSchedule(ctx context.Context, s *domain.Schedule) error

	// GetSchedule возвращает расписание по ID.
	GetSchedule(ctx context.Context, id uuid.UUID) (*domain.Schedule, error)

	// ListDueSchedules возвращает активные расписания с next_due_at <= now.
	ListDueSchedules(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error)

	// ListSchedules возвращает все расписания.
	ListSchedules(ctx context.Context) ([]domain.Schedule, error)
}

// Store — полный State Store.
type Store interface {
	InstanceStore
	PipelineStore
	EventStore
	LearningStore
	ScheduleStore
}

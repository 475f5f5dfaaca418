package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Forge/internal/domain"
)

// Memory — in-memory реализация Store.
//
// Используется в тестах и в dev-режиме одного процесса. Семантика переходов
// идентична Postgres-реализации: Transition — атомарная условная запись
// под мьютексом.
type Memory struct {
	mu sync.Mutex

	tasks     map[uuid.UUID]*domain.TaskInstance
	taskOrder []uuid.UUID

	pipelines     map[uuid.UUID]*domain.PipelineInstance
	pipelineOrder []uuid.UUID

	events map[uuid.UUID][]domain.EventRecord

	failures map[string]int
	notes    map[string][]domain.RemediationNote

	schedules     map[uuid.UUID]*domain.Schedule
	scheduleOrder []uuid.UUID
}

// NewMemory создаёт пустое in-memory хранилище.
func NewMemory() *Memory {
	return &Memory{
		tasks:     make(map[uuid.UUID]*domain.TaskInstance),
		pipelines: make(map[uuid.UUID]*domain.PipelineInstance),
		events:    make(map[uuid.UUID][]domain.EventRecord),
		failures:  make(map[string]int),
		notes:     make(map[string][]domain.RemediationNote),
		schedules: make(map[uuid.UUID]*domain.Schedule),
	}
}

// --- InstanceStore ---

// CreateInstance сохраняет новый экземпляр задачи.
func (m *Memory) CreateInstance(_ context.Context, task *domain.TaskInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[task.ID]; exists {
		return fmt.Errorf("%w: task %s", ErrAlreadyExists, task.ID)
	}
	m.tasks[task.ID] = copyTask(task)
	m.taskOrder = append(m.taskOrder, task.ID)
	return nil
}

// Transition записывает рабочую копию, если текущее состояние входит в from.
func (m *Memory) Transition(_ context.Context, task *domain.TaskInstance, from ...domain.TaskState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.tasks[task.ID]
	if !exists {
		return fmt.Errorf("%w: task %s", ErrNotFound, task.ID)
	}

	allowed := false
	for _, s := range from {
		if current.State == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: task %s is %s, expected one of %v",
			ErrInvalidTransition, task.ID, current.State, from)
	}

	m.tasks[task.ID] = copyTask(task)
	return nil
}

// GetInstance возвращает экземпляр по ID.
func (m *Memory) GetInstance(_ context.Context, id uuid.UUID) (*domain.TaskInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, exists := m.tasks[id]
	if !exists {
		return nil, fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	return copyTask(task), nil
}

// ListByPipeline возвращает все экземпляры pipeline в порядке создания.
func (m *Memory) ListByPipeline(_ context.Context, pipelineID uuid.UUID) ([]domain.TaskInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var tasks []domain.TaskInstance
	for _, id := range m.taskOrder {
		task := m.tasks[id]
		if task.PipelineID == pipelineID {
			tasks = append(tasks, *copyTask(task))
		}
	}
	return tasks, nil
}

// ListInstancesInState возвращает экземпляры в заданном состоянии.
func (m *Memory) ListInstancesInState(_ context.Context, state domain.TaskState, limit int) ([]domain.TaskInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var tasks []domain.TaskInstance
	for _, id := range m.taskOrder {
		task := m.tasks[id]
		if task.State == state {
			tasks = append(tasks, *copyTask(task))
			if limit > 0 && len(tasks) >= limit {
				break
			}
		}
	}
	return tasks, nil
}

// --- PipelineStore ---

// CreatePipeline сохраняет новый pipeline.
func (m *Memory) CreatePipeline(_ context.Context, p *domain.PipelineInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.pipelines[p.ID]; exists {
		return fmt.Errorf("%w: pipeline %s", ErrAlreadyExists, p.ID)
	}
	m.pipelines[p.ID] = copyPipeline(p)
	m.pipelineOrder = append(m.pipelineOrder, p.ID)
	return nil
}

// UpdatePipeline записывает текущее состояние pipeline.
func (m *Memory) UpdatePipeline(_ context.Context, p *domain.PipelineInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.pipelines[p.ID]; !exists {
		return fmt.Errorf("%w: pipeline %s", ErrNotFound, p.ID)
	}
	m.pipelines[p.ID] = copyPipeline(p)
	return nil
}

// GetPipeline возвращает pipeline по ID.
func (m *Memory) GetPipeline(_ context.Context, id uuid.UUID) (*domain.PipelineInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, exists := m.pipelines[id]
	if !exists {
		return nil, fmt.Errorf("%w: pipeline %s", ErrNotFound, id)
	}
	return copyPipeline(p), nil
}

// ListPipelinesInState возвращает pipelines в заданном состоянии.
func (m *Memory) ListPipelinesInState(_ context.Context, state domain.PipelineState, limit int) ([]domain.PipelineInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []domain.PipelineInstance
	for _, id := range m.pipelineOrder {
		p := m.pipelines[id]
		if p.State == state {
			result = append(result, *copyPipeline(p))
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

// --- EventStore ---

// AppendEvent присваивает следующий sequence и сохраняет событие.
func (m *Memory) AppendEvent(_ context.Context, ev *domain.EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seq := uint64(len(m.events[ev.PipelineID])) + 1
	ev.Sequence = seq
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	m.events[ev.PipelineID] = append(m.events[ev.PipelineID], *ev)
	return nil
}

// ListEvents возвращает события pipeline с Sequence > after.
func (m *Memory) ListEvents(_ context.Context, pipelineID uuid.UUID, after uint64, limit int) ([]domain.EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.events[pipelineID]
	var result []domain.EventRecord
	for _, ev := range all {
		if ev.Sequence > after {
			result = append(result, ev)
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

// --- LearningStore ---

// RecordFailure фиксирует наблюдение сигнатуры.
func (m *Memory) RecordFailure(_ context.Context, sig domain.FailureSignature) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failures[sig.Key()]++
	return m.failures[sig.Key()], nil
}

// RecordNote добавляет заметку об исправлении.
func (m *Memory) RecordNote(_ context.Context, note domain.RemediationNote) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now()
	}
	key := note.Signature.Key()
	m.notes[key] = append(m.notes[key], note)
	return nil
}

// LatestNote возвращает последнюю заметку для сигнатуры.
func (m *Memory) LatestNote(_ context.Context, sig domain.FailureSignature) (*domain.RemediationNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.notes[sig.Key()]
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: no note for signature %s", ErrNotFound, sig.Key())
	}
	note := history[len(history)-1]
	return &note, nil
}

// NoteHistory возвращает все заметки сигнатуры в порядке записи.
func (m *Memory) NoteHistory(_ context.Context, sig domain.FailureSignature) ([]domain.RemediationNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.notes[sig.Key()]
	result := make([]domain.RemediationNote, len(history))
	copy(result, history)
	return result, nil
}

// --- ScheduleStore ---

// CreateSchedule сохраняет новое расписание.
func (m *Memory) CreateSchedule(_ context.Context, s *domain.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.schedules[s.ID]; exists {
		return fmt.Errorf("%w: schedule %s", ErrAlreadyExists, s.ID)
	}
	cp := *s
	m.schedules[s.ID] = &cp
	m.scheduleOrder = append(m.scheduleOrder, s.ID)
	return nil
}

// UpdateSchedule записывает текущее состояние расписания.
func (m *Memory) UpdateSchedule(_ context.Context, s *domain.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.schedules[s.ID]; !exists {
		return fmt.Errorf("%w: schedule %s", ErrNotFound, s.ID)
	}
	cp := *s
	m.schedules[s.ID] = &cp
	return nil
}

// GetSchedule возвращает расписание по ID.
func (m *Memory) GetSchedule(_ context.Context, id uuid.UUID) (*domain.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, exists := m.schedules[id]
	if !exists {
		return nil, fmt.Errorf("%w: schedule %s", ErrNotFound, id)
	}
	cp := *s
	return &cp, nil
}

// ListDueSchedules возвращает активные расписания с next_due_at <= now.
func (m *Memory) ListDueSchedules(_ context.Context, now time.Time, limit int) ([]domain.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []domain.Schedule
	for _, id := range m.scheduleOrder {
		s := m.schedules[id]
		if s.IsDue(now) {
			due = append(due, *s)
			if limit > 0 && len(due) >= limit {
				break
			}
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextDueAt.Before(*due[j].NextDueAt)
	})
	return due, nil
}

// ListSchedules возвращает все расписания.
func (m *Memory) ListSchedules(_ context.Context) ([]domain.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]domain.Schedule, 0, len(m.scheduleOrder))
	for _, id := range m.scheduleOrder {
		result = append(result, *m.schedules[id])
	}
	return result, nil
}

// --- Helpers ---

// copyTask делает копию экземпляра, чтобы рабочие копии вызывающих
// не разделяли память с «персистентным» состоянием.
func copyTask(t *domain.TaskInstance) *domain.TaskInstance {
	cp := *t
	cp.Inputs = copyMap(t.Inputs)
	cp.Outputs = copyMap(t.Outputs)
	if t.Error != nil {
		e := *t.Error
		cp.Error = &e
	}
	if t.NotBefore != nil {
		nb := *t.NotBefore
		cp.NotBefore = &nb
	}
	if t.StartedAt != nil {
		s := *t.StartedAt
		cp.StartedAt = &s
	}
	if t.FinishedAt != nil {
		f := *t.FinishedAt
		cp.FinishedAt = &f
	}
	return &cp
}

func copyPipeline(p *domain.PipelineInstance) *domain.PipelineInstance {
	cp := *p
	if p.NodeTasks != nil {
		cp.NodeTasks = make(map[string]uuid.UUID, len(p.NodeTasks))
		for k, v := range p.NodeTasks {
			cp.NodeTasks[k] = v
		}
	}
	return &cp
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Forge/internal/domain"
)

func newTestTask() *domain.TaskInstance {
	return &domain.TaskInstance{
		ID:        uuid.New(),
		Kind:      "load_dataset",
		NodeID:    "load",
		State:     domain.TaskStatePending,
		Inputs:    map[string]any{"path": "/data/train.jsonl"},
		CreatedAt: time.Now(),
	}
}

func TestMemory_TransitionAllowed(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	task := newTestTask()
	if err := mem.CreateInstance(ctx, task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	task.MarkRunning()
	if err := mem.Transition(ctx, task, domain.TaskStatePending); err != nil {
		t.Fatalf("transition PENDING->RUNNING failed: %v", err)
	}

	stored, err := mem.GetInstance(ctx, task.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.State != domain.TaskStateRunning {
		t.Errorf("expected RUNNING, got %s", stored.State)
	}
	if stored.Attempt != 1 {
		t.Errorf("expected attempt 1, got %d", stored.Attempt)
	}
}

func TestMemory_TransitionRejected(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	task := newTestTask()
	if err := mem.CreateInstance(ctx, task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Переход COMPLETED возможен только из RUNNING
	copy1 := *task
	copy1.MarkCompleted(map[string]any{"dataset_id": "ds-1"})
	err := mem.Transition(ctx, &copy1, domain.TaskStateRunning)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}

	// Состояние не изменилось
	stored, _ := mem.GetInstance(ctx, task.ID)
	if stored.State != domain.TaskStatePending {
		t.Errorf("expected PENDING after rejected transition, got %s", stored.State)
	}
}

func TestMemory_TransitionRace(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	task := newTestTask()
	task.State = domain.TaskStateRunning
	if err := mem.CreateInstance(ctx, task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Две конкурирующие рабочие копии: отмена и завершение
	cancel := *task
	cancel.MarkCancelled()
	complete := *task
	complete.MarkCompleted(nil)

	if err := mem.Transition(ctx, &cancel, domain.TaskStateRunning); err != nil {
		t.Fatalf("first transition should win: %v", err)
	}
	err := mem.Transition(ctx, &complete, domain.TaskStateRunning)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second transition should lose, got %v", err)
	}

	stored, _ := mem.GetInstance(ctx, task.ID)
	if stored.State != domain.TaskStateCancelled {
		t.Errorf("expected CANCELLED, got %s", stored.State)
	}
}

func TestMemory_GetInstanceNotFound(t *testing.T) {
	mem := NewMemory()
	_, err := mem.GetInstance(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemory_CreateInstanceDuplicate(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	task := newTestTask()
	if err := mem.CreateInstance(ctx, task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := mem.CreateInstance(ctx, task)
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestMemory_ListByPipeline(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	pipelineID := uuid.New()
	for i := 0; i < 3; i++ {
		task := newTestTask()
		task.PipelineID = pipelineID
		if err := mem.CreateInstance(ctx, task); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	// Посторонняя задача
	other := newTestTask()
	if err := mem.CreateInstance(ctx, other); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tasks, err := mem.ListByPipeline(ctx, pipelineID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 3 {
		t.Errorf("expected 3 tasks, got %d", len(tasks))
	}
}

func TestMemory_ListInstancesInState(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	running := newTestTask()
	running.State = domain.TaskStateRunning
	pending := newTestTask()

	if err := mem.CreateInstance(ctx, running); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mem.CreateInstance(ctx, pending); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tasks, err := mem.ListInstancesInState(ctx, domain.TaskStateRunning, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != running.ID {
		t.Errorf("expected only the running task, got %d tasks", len(tasks))
	}
}

func TestMemory_WorkingCopyIsolation(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	task := newTestTask()
	if err := mem.CreateInstance(ctx, task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Мутация рабочей копии не должна протекать в хранилище
	task.State = domain.TaskStateFailed
	task.Inputs["path"] = "mutated"

	stored, _ := mem.GetInstance(ctx, task.ID)
	if stored.State != domain.TaskStatePending {
		t.Errorf("stored state leaked mutation: %s", stored.State)
	}
	if stored.Inputs["path"] != "/data/train.jsonl" {
		t.Errorf("stored inputs leaked mutation: %v", stored.Inputs["path"])
	}
}

func TestMemory_EventSequence(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	pipelineID := uuid.New()
	kinds := []domain.EventKind{
		domain.EventPipelineStarted,
		domain.EventNodeStarted,
		domain.EventNodeCompleted,
		domain.EventPipelineCompleted,
	}
	for _, kind := range kinds {
		ev := &domain.EventRecord{PipelineID: pipelineID, Kind: kind}
		if err := mem.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	events, err := mem.ListEvents(ctx, pipelineID, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	// Sequence монотонна и начинается с 1
	for i, ev := range events {
		if ev.Sequence != uint64(i+1) {
			t.Errorf("event %d: expected sequence %d, got %d", i, i+1, ev.Sequence)
		}
	}

	// Независимые последовательности для разных pipeline
	otherID := uuid.New()
	ev := &domain.EventRecord{PipelineID: otherID, Kind: domain.EventPipelineStarted}
	if err := mem.AppendEvent(ctx, ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Sequence != 1 {
		t.Errorf("expected sequence 1 for new pipeline, got %d", ev.Sequence)
	}
}

func TestMemory_ListEventsAfter(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	pipelineID := uuid.New()
	for i := 0; i < 5; i++ {
		ev := &domain.EventRecord{PipelineID: pipelineID, Kind: domain.EventNodeStarted}
		if err := mem.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	events, err := mem.ListEvents(ctx, pipelineID, 3, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events after sequence 3, got %d", len(events))
	}
	if events[0].Sequence != 4 || events[1].Sequence != 5 {
		t.Errorf("expected sequences 4 and 5, got %d and %d", events[0].Sequence, events[1].Sequence)
	}
}

func TestMemory_RecordFailureCounts(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	sig := domain.FailureSignature{Kind: "finetune", Category: domain.ErrTimeout}
	for i := 1; i <= 3; i++ {
		count, err := mem.RecordFailure(ctx, sig)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != i {
			t.Errorf("expected count %d, got %d", i, count)
		}
	}

	// Другая сигнатура считается отдельно
	other := domain.FailureSignature{Kind: "finetune", Category: domain.ErrTaskLogic}
	count, err := mem.RecordFailure(ctx, other)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Errorf("expected count 1 for new signature, got %d", count)
	}
}

func TestMemory_NoteHistory(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	sig := domain.FailureSignature{Kind: "ptq", Category: domain.ErrTaskLogic}

	_, err := mem.LatestNote(ctx, sig)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for empty history, got %v", err)
	}

	notes := []string{"увеличить batch size", "проверить калибровочный датасет"}
	for _, text := range notes {
		err := mem.RecordNote(ctx, domain.RemediationNote{Signature: sig, Note: text})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	latest, err := mem.LatestNote(ctx, sig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest.Note != notes[1] {
		t.Errorf("expected latest note %q, got %q", notes[1], latest.Note)
	}

	history, err := mem.NoteHistory(ctx, sig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 notes, got %d", len(history))
	}
	if history[0].Note != notes[0] {
		t.Errorf("history order wrong: %q first", history[0].Note)
	}
}

func TestMemory_ListDueSchedules(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	due := &domain.Schedule{ID: uuid.New(), Name: "nightly", Enabled: true, NextDueAt: &past}
	notYet := &domain.Schedule{ID: uuid.New(), Name: "weekly", Enabled: true, NextDueAt: &future}
	disabled := &domain.Schedule{ID: uuid.New(), Name: "off", Enabled: false, NextDueAt: &past}

	for _, s := range []*domain.Schedule{due, notYet, disabled} {
		if err := mem.CreateSchedule(ctx, s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	result, err := mem.ListDueSchedules(ctx, now, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("expected 1 due schedule, got %d", len(result))
	}
	if result[0].ID != due.ID {
		t.Errorf("expected schedule %s, got %s", due.ID, result[0].ID)
	}
}

func TestMemory_PipelineLifecycle(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	p := &domain.PipelineInstance{
		ID:    uuid.New(),
		Name:  "train-and-eval",
		State: domain.PipelineStatePending,
	}
	if err := mem.CreatePipeline(ctx, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p.MarkRunning()
	if err := mem.UpdatePipeline(ctx, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, err := mem.GetPipeline(ctx, p.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.State != domain.PipelineStateRunning {
		t.Errorf("expected RUNNING, got %s", stored.State)
	}

	running, err := mem.ListPipelinesInState(ctx, domain.PipelineStateRunning, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(running) != 1 {
		t.Errorf("expected 1 running pipeline, got %d", len(running))
	}
}

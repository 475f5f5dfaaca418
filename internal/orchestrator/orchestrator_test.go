package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Forge/internal/catalog"
	"github.com/shaiso/Forge/internal/dispatch"
	"github.com/shaiso/Forge/internal/domain"
	"github.com/shaiso/Forge/internal/events"
	"github.com/shaiso/Forge/internal/learning"
	"github.com/shaiso/Forge/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	store   *store.Memory
	stream  *events.Stream
	learner *learning.Learner
	orc     *Orchestrator
}

// newTestEnv поднимает оркестратор поверх in-memory store
// с зарегистрированными определениями задач.
func newTestEnv(t *testing.T, defs ...domain.TaskDefinition) *testEnv {
	t.Helper()

	cat := catalog.New()
	for _, def := range defs {
		if err := cat.Register(def); err != nil {
			t.Fatalf("register %s: %v", def.Kind, err)
		}
	}

	mem := store.NewMemory()
	stream := events.NewStream(mem)
	learner := learning.NewLearner(mem)
	disp := dispatch.New(cat, nil, discardLogger())

	orc := New(Config{
		Store:        mem,
		Catalog:      cat,
		Dispatcher:   disp,
		Stream:       stream,
		Learner:      learner,
		PollInterval: 50 * time.Millisecond,
		Logger:       discardLogger(),
	})
	if err := orc.Start(context.Background()); err != nil {
		t.Fatalf("start orchestrator: %v", err)
	}
	t.Cleanup(orc.Stop)

	return &testEnv{store: mem, stream: stream, learner: learner, orc: orc}
}

func (e *testEnv) waitFinished(t *testing.T, id uuid.UUID) *domain.PipelineInstance {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		p, err := e.store.GetPipeline(context.Background(), id)
		if err != nil {
			t.Fatalf("get pipeline: %v", err)
		}
		if p.IsFinished() {
			return p
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("pipeline %s did not reach terminal state", id)
	return nil
}

func (e *testEnv) task(t *testing.T, p *domain.PipelineInstance, nodeID string) *domain.TaskInstance {
	t.Helper()

	task, err := e.store.GetInstance(context.Background(), p.NodeTasks[nodeID])
	if err != nil {
		t.Fatalf("get task for node %s: %v", nodeID, err)
	}
	return task
}

func echoDef(kind string) domain.TaskDefinition {
	return domain.TaskDefinition{
		Kind:     kind,
		Category: domain.CategoryLightweight,
		Handler: domain.ExecutableFunc(func(_ context.Context, inputs map[string]any) (map[string]any, error) {
			out := make(map[string]any, len(inputs))
			for k, v := range inputs {
				out[k] = v
			}
			return out, nil
		}),
	}
}

func TestDiamondPipelineCompletes(t *testing.T) {
	env := newTestEnv(t,
		domain.TaskDefinition{
			Kind:     "produce",
			Category: domain.CategoryLightweight,
			OutputSchema: domain.Schema{
				"value": {Type: domain.FieldString},
			},
			Handler: domain.ExecutableFunc(func(_ context.Context, _ map[string]any) (map[string]any, error) {
				return map[string]any{"value": "seed"}, nil
			}),
		},
		echoDef("transform"),
		domain.TaskDefinition{
			Kind:     "join",
			Category: domain.CategoryLightweight,
			Handler: domain.ExecutableFunc(func(_ context.Context, inputs map[string]any) (map[string]any, error) {
				left, _ := inputs["left"].(string)
				right, _ := inputs["right"].(string)
				return map[string]any{"joined": left + "+" + right}, nil
			}),
		},
	)

	g := &domain.PipelineGraph{
		Name: "diamond",
		Nodes: []domain.NodeSpec{
			{ID: "a", Kind: "produce"},
			{ID: "b", Kind: "transform", InputMappings: map[string]string{"a.value": "value"}},
			{ID: "c", Kind: "transform", InputMappings: map[string]string{"a.value": "value"}},
			{ID: "d", Kind: "join", InputMappings: map[string]string{
				"b.value": "left",
				"c.value": "right",
			}},
		},
	}

	p, err := env.orc.SubmitPipeline(context.Background(), g)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	final := env.waitFinished(t, p.ID)
	if final.State != domain.PipelineStateCompleted {
		t.Fatalf("state = %s, want COMPLETED (error: %s)", final.State, final.Error)
	}

	join := env.task(t, final, "d")
	if got := join.Outputs["joined"]; got != "seed+seed" {
		t.Errorf("join output = %v, want seed+seed", got)
	}
	for _, nodeID := range []string{"a", "b", "c", "d"} {
		task := env.task(t, final, nodeID)
		if task.State != domain.TaskStateCompleted {
			t.Errorf("node %s state = %s, want COMPLETED", nodeID, task.State)
		}
		if task.Attempt != 1 {
			t.Errorf("node %s attempt = %d, want 1", nodeID, task.Attempt)
		}
	}

	// Поток событий: монотонный sequence, started первым, терминальное — последним.
	evs, err := env.store.ListEvents(context.Background(), p.ID, 0, 0)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(evs) == 0 {
		t.Fatal("expected events, got none")
	}
	for i := range evs {
		if evs[i].Sequence != uint64(i+1) {
			t.Fatalf("event %d has sequence %d", i, evs[i].Sequence)
		}
	}
	if evs[0].Kind != domain.EventPipelineStarted {
		t.Errorf("first event = %s, want pipeline.started", evs[0].Kind)
	}
	if last := evs[len(evs)-1]; last.Kind != domain.EventPipelineCompleted {
		t.Errorf("last event = %s, want pipeline.completed", last.Kind)
	}
}

func TestInputPrecedence(t *testing.T) {
	env := newTestEnv(t, echoDef("echo"))

	g := &domain.PipelineGraph{
		Name:         "precedence",
		GlobalInputs: map[string]any{"p": "global", "q": "global"},
		Nodes: []domain.NodeSpec{
			{ID: "n", Kind: "echo", Inputs: map[string]any{"q": "static"}},
		},
	}

	p, err := env.orc.SubmitPipeline(context.Background(), g)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	final := env.waitFinished(t, p.ID)
	if final.State != domain.PipelineStateCompleted {
		t.Fatalf("state = %s, want COMPLETED", final.State)
	}

	task := env.task(t, final, "n")
	if task.Inputs["p"] != "global" {
		t.Errorf("input p = %v, want global value", task.Inputs["p"])
	}
	// Статический input узла выигрывает у global при совпадении имён.
	if task.Inputs["q"] != "static" {
		t.Errorf("input q = %v, want static value", task.Inputs["q"])
	}
}

func TestRetryThenSuccess(t *testing.T) {
	var calls atomic.Int32
	env := newTestEnv(t, domain.TaskDefinition{
		Kind:     "flaky",
		Category: domain.CategoryLightweight,
		Retry: domain.RetryPolicy{
			MaxAttempts:    3,
			Backoff:        "fixed",
			InitialDelayMs: 10,
		},
		Handler: domain.ExecutableFunc(func(_ context.Context, _ map[string]any) (map[string]any, error) {
			if calls.Add(1) < 3 {
				return nil, errors.New("transient failure")
			}
			return map[string]any{"ok": true}, nil
		}),
	})

	p, taskID, err := env.orc.SubmitTask(context.Background(), "flaky", nil)
	if err != nil {
		t.Fatalf("submit task: %v", err)
	}

	final := env.waitFinished(t, p.ID)
	if final.State != domain.PipelineStateCompleted {
		t.Fatalf("state = %s, want COMPLETED (error: %s)", final.State, final.Error)
	}

	task, err := env.store.GetInstance(context.Background(), taskID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.Attempt != 3 {
		t.Errorf("attempt = %d, want 3", task.Attempt)
	}

	evs, _ := env.store.ListEvents(context.Background(), p.ID, 0, 0)
	retrying := 0
	for i := range evs {
		if evs[i].Kind == domain.EventNodeRetrying {
			retrying++
		}
	}
	if retrying != 2 {
		t.Errorf("node.retrying events = %d, want 2", retrying)
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	env := newTestEnv(t, domain.TaskDefinition{
		Kind:     "broken",
		Category: domain.CategoryLightweight,
		Retry: domain.RetryPolicy{
			MaxAttempts:    2,
			InitialDelayMs: 5,
		},
		Handler: domain.ExecutableFunc(func(_ context.Context, _ map[string]any) (map[string]any, error) {
			return nil, errors.New("always broken")
		}),
	})

	p, taskID, err := env.orc.SubmitTask(context.Background(), "broken", nil)
	if err != nil {
		t.Fatalf("submit task: %v", err)
	}

	final := env.waitFinished(t, p.ID)
	if final.State != domain.PipelineStateFailed {
		t.Fatalf("state = %s, want FAILED", final.State)
	}

	task, _ := env.store.GetInstance(context.Background(), taskID)
	if task.State != domain.TaskStateFailed {
		t.Fatalf("task state = %s, want FAILED", task.State)
	}
	if task.Attempt != 2 {
		t.Errorf("attempt = %d, want 2", task.Attempt)
	}
	if task.Error == nil || task.Error.Category != domain.ErrTaskLogic {
		t.Errorf("error = %+v, want TaskLogicError", task.Error)
	}
}

func TestUpstreamFailureCascade(t *testing.T) {
	env := newTestEnv(t,
		domain.TaskDefinition{
			Kind:     "fail",
			Category: domain.CategoryLightweight,
			Handler: domain.ExecutableFunc(func(_ context.Context, _ map[string]any) (map[string]any, error) {
				return nil, errors.New("boom")
			}),
		},
		echoDef("echo"),
	)

	g := &domain.PipelineGraph{
		Name: "cascade",
		Nodes: []domain.NodeSpec{
			{ID: "a", Kind: "fail"},
			{ID: "b", Kind: "echo", DependsOn: []string{"a"}},
			{ID: "c", Kind: "echo", DependsOn: []string{"b"}},
			{ID: "independent", Kind: "echo"},
		},
	}

	p, err := env.orc.SubmitPipeline(context.Background(), g)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	final := env.waitFinished(t, p.ID)
	if final.State != domain.PipelineStateFailed {
		t.Fatalf("state = %s, want FAILED", final.State)
	}
	if final.Error == "" {
		t.Error("pipeline error is empty")
	}

	// Вся цепочка за упавшим узлом помечена UpstreamFailed.
	for _, nodeID := range []string{"b", "c"} {
		task := env.task(t, final, nodeID)
		if task.State != domain.TaskStateFailed {
			t.Fatalf("node %s state = %s, want FAILED", nodeID, task.State)
		}
		if task.Error == nil || task.Error.Category != domain.ErrUpstreamFailed {
			t.Errorf("node %s error = %+v, want UpstreamFailed", nodeID, task.Error)
		}
	}

	// Независимая ветка выполняется несмотря на отказ.
	indep := env.task(t, final, "independent")
	if indep.State != domain.TaskStateCompleted {
		t.Errorf("independent node state = %s, want COMPLETED", indep.State)
	}
}

func TestMissingUpstreamOutput(t *testing.T) {
	env := newTestEnv(t,
		domain.TaskDefinition{
			Kind:     "empty",
			Category: domain.CategoryLightweight,
			Handler: domain.ExecutableFunc(func(_ context.Context, _ map[string]any) (map[string]any, error) {
				return map[string]any{}, nil
			}),
		},
		echoDef("echo"),
	)

	g := &domain.PipelineGraph{
		Name: "missing-output",
		Nodes: []domain.NodeSpec{
			{ID: "producer", Kind: "empty"},
			{ID: "consumer", Kind: "echo", InputMappings: map[string]string{"producer.value": "value"}},
		},
	}

	p, err := env.orc.SubmitPipeline(context.Background(), g)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	final := env.waitFinished(t, p.ID)
	if final.State != domain.PipelineStateFailed {
		t.Fatalf("state = %s, want FAILED", final.State)
	}

	consumer := env.task(t, final, "consumer")
	if consumer.Error == nil || consumer.Error.Category != domain.ErrMissingUpstreamOutput {
		t.Fatalf("consumer error = %+v, want MissingUpstreamOutput", consumer.Error)
	}
}

func TestCancelRunningPipeline(t *testing.T) {
	started := make(chan struct{}, 1)
	env := newTestEnv(t,
		domain.TaskDefinition{
			Kind:     "blocker",
			Category: domain.CategoryLightweight,
			Handler: domain.ExecutableFunc(func(ctx context.Context, _ map[string]any) (map[string]any, error) {
				started <- struct{}{}
				<-ctx.Done()
				return nil, ctx.Err()
			}),
		},
		echoDef("echo"),
	)

	g := &domain.PipelineGraph{
		Name: "cancel-me",
		Nodes: []domain.NodeSpec{
			{ID: "long", Kind: "blocker"},
			{ID: "after", Kind: "echo", DependsOn: []string{"long"}},
		},
	}

	p, err := env.orc.SubmitPipeline(context.Background(), g)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("blocker node did not start")
	}

	if err := env.orc.CancelPipeline(context.Background(), p.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	final := env.waitFinished(t, p.ID)
	if final.State != domain.PipelineStateCancelled {
		t.Fatalf("state = %s, want CANCELLED", final.State)
	}
	for _, nodeID := range []string{"long", "after"} {
		task := env.task(t, final, nodeID)
		if task.State != domain.TaskStateCancelled {
			t.Errorf("node %s state = %s, want CANCELLED", nodeID, task.State)
		}
	}

	// Повторная отмена терминального pipeline отклоняется.
	if err := env.orc.CancelPipeline(context.Background(), p.ID); !errors.Is(err, ErrNotCancellable) {
		t.Errorf("cancel finished pipeline: err = %v, want ErrNotCancellable", err)
	}
}

func TestFailureHintFromLearning(t *testing.T) {
	env := newTestEnv(t, domain.TaskDefinition{
		Kind:     "known-bad",
		Category: domain.CategoryLightweight,
		Handler: domain.ExecutableFunc(func(_ context.Context, _ map[string]any) (map[string]any, error) {
			return nil, errors.New("CUDA out of memory")
		}),
	})

	sig := domain.FailureSignature{Kind: "known-bad", Category: domain.ErrTaskLogic}
	if err := env.learner.AddNote(context.Background(), sig, "reduce batch size"); err != nil {
		t.Fatalf("add note: %v", err)
	}

	p, taskID, err := env.orc.SubmitTask(context.Background(), "known-bad", nil)
	if err != nil {
		t.Fatalf("submit task: %v", err)
	}

	final := env.waitFinished(t, p.ID)
	if final.State != domain.PipelineStateFailed {
		t.Fatalf("state = %s, want FAILED", final.State)
	}

	task, _ := env.store.GetInstance(context.Background(), taskID)
	if task.Error == nil || task.Error.Hint != "reduce batch size" {
		t.Errorf("error = %+v, want hint from remediation note", task.Error)
	}
}

// seedInterrupted готовит в Store картину процесса, упавшего посреди
// выполнения: pipeline RUNNING, первый узел RUNNING, второй PENDING.
func seedInterrupted(t *testing.T, mem *store.Memory, kind string) *domain.PipelineInstance {
	t.Helper()
	ctx := context.Background()

	g := domain.PipelineGraph{
		ID:   uuid.New(),
		Name: "interrupted",
		Nodes: []domain.NodeSpec{
			{ID: "first", Kind: kind},
			{ID: "second", Kind: kind, DependsOn: []string{"first"}},
		},
	}
	now := time.Now()
	started := now.Add(-time.Minute)

	p := &domain.PipelineInstance{
		ID:    g.ID,
		Name:  g.Name,
		State: domain.PipelineStateRunning,
		Graph: g,
		NodeTasks: map[string]uuid.UUID{
			"first":  uuid.New(),
			"second": uuid.New(),
		},
		CreatedAt: started,
		StartedAt: &started,
	}
	if err := mem.CreatePipeline(ctx, p); err != nil {
		t.Fatalf("seed pipeline: %v", err)
	}

	first := &domain.TaskInstance{
		ID:         p.NodeTasks["first"],
		Kind:       kind,
		PipelineID: p.ID,
		NodeID:     "first",
		Attempt:    1,
		State:      domain.TaskStateRunning,
		CreatedAt:  started,
		StartedAt:  &started,
	}
	second := &domain.TaskInstance{
		ID:         p.NodeTasks["second"],
		Kind:       kind,
		PipelineID: p.ID,
		NodeID:     "second",
		State:      domain.TaskStatePending,
		CreatedAt:  started,
	}
	if err := mem.CreateInstance(ctx, first); err != nil {
		t.Fatalf("seed first task: %v", err)
	}
	if err := mem.CreateInstance(ctx, second); err != nil {
		t.Fatalf("seed second task: %v", err)
	}
	return p
}

func TestRecoveryRetriesIdempotentTask(t *testing.T) {
	cat := catalog.New()
	if err := cat.Register(domain.TaskDefinition{
		Kind:       "resumable",
		Category:   domain.CategoryLightweight,
		Idempotent: true,
		Retry:      domain.RetryPolicy{MaxAttempts: 3, InitialDelayMs: 5},
		Handler: domain.ExecutableFunc(func(_ context.Context, _ map[string]any) (map[string]any, error) {
			return map[string]any{"done": true}, nil
		}),
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	mem := store.NewMemory()
	seeded := seedInterrupted(t, mem, "resumable")

	orc := New(Config{
		Store:      mem,
		Catalog:    cat,
		Dispatcher: dispatch.New(cat, nil, discardLogger()),
		Stream:     events.NewStream(mem),
		Learner:    learning.NewLearner(mem),
		Logger:     discardLogger(),
	})
	if err := orc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(orc.Stop)

	env := &testEnv{store: mem}
	final := env.waitFinished(t, seeded.ID)
	if final.State != domain.PipelineStateCompleted {
		t.Fatalf("state = %s, want COMPLETED (error: %s)", final.State, final.Error)
	}

	first := env.task(t, final, "first")
	if first.Attempt != 2 {
		t.Errorf("first attempt = %d, want 2 (retry after interruption)", first.Attempt)
	}
	second := env.task(t, final, "second")
	if second.State != domain.TaskStateCompleted {
		t.Errorf("second state = %s, want COMPLETED", second.State)
	}
}

func TestRecoveryFailsNonIdempotentTask(t *testing.T) {
	cat := catalog.New()
	if err := cat.Register(domain.TaskDefinition{
		Kind:     "one-shot",
		Category: domain.CategoryLightweight,
		Handler: domain.ExecutableFunc(func(_ context.Context, _ map[string]any) (map[string]any, error) {
			return map[string]any{}, nil
		}),
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	mem := store.NewMemory()
	seeded := seedInterrupted(t, mem, "one-shot")

	orc := New(Config{
		Store:      mem,
		Catalog:    cat,
		Dispatcher: dispatch.New(cat, nil, discardLogger()),
		Stream:     events.NewStream(mem),
		Learner:    learning.NewLearner(mem),
		Logger:     discardLogger(),
	})
	if err := orc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(orc.Stop)

	env := &testEnv{store: mem}
	final := env.waitFinished(t, seeded.ID)
	if final.State != domain.PipelineStateFailed {
		t.Fatalf("state = %s, want FAILED", final.State)
	}

	first := env.task(t, final, "first")
	if first.Error == nil || first.Error.Category != domain.ErrInterrupted {
		t.Errorf("first error = %+v, want InterruptedExecution", first.Error)
	}
	second := env.task(t, final, "second")
	if second.Error == nil || second.Error.Category != domain.ErrUpstreamFailed {
		t.Errorf("second error = %+v, want UpstreamFailed", second.Error)
	}
}

func TestRecoveryDoesNotRerunCompletedNode(t *testing.T) {
	// Картина рестарта: первый узел завершился до падения процесса,
	// второй был прерван посреди выполнения. Завершённый узел не
	// перезапускается, его outputs питают mappings второго.
	var firstRuns atomic.Int32

	cat := catalog.New()
	if err := cat.Register(domain.TaskDefinition{
		Kind:     "stage-one",
		Category: domain.CategoryLightweight,
		OutputSchema: domain.Schema{
			"value": {Type: domain.FieldString},
		},
		Handler: domain.ExecutableFunc(func(_ context.Context, _ map[string]any) (map[string]any, error) {
			firstRuns.Add(1)
			return map[string]any{"value": "recomputed"}, nil
		}),
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := cat.Register(domain.TaskDefinition{
		Kind:       "stage-two",
		Category:   domain.CategoryLightweight,
		Idempotent: true,
		Retry:      domain.RetryPolicy{MaxAttempts: 3, InitialDelayMs: 5},
		Handler: domain.ExecutableFunc(func(_ context.Context, inputs map[string]any) (map[string]any, error) {
			out := make(map[string]any, len(inputs))
			for k, v := range inputs {
				out[k] = v
			}
			return out, nil
		}),
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	mem := store.NewMemory()
	ctx := context.Background()

	g := domain.PipelineGraph{
		ID:   uuid.New(),
		Name: "half-done",
		Nodes: []domain.NodeSpec{
			{ID: "first", Kind: "stage-one"},
			{ID: "second", Kind: "stage-two",
				InputMappings: map[string]string{"first.value": "carried"}},
		},
	}
	now := time.Now()
	started := now.Add(-time.Minute)
	finished := now.Add(-30 * time.Second)

	p := &domain.PipelineInstance{
		ID:    g.ID,
		Name:  g.Name,
		State: domain.PipelineStateRunning,
		Graph: g,
		NodeTasks: map[string]uuid.UUID{
			"first":  uuid.New(),
			"second": uuid.New(),
		},
		CreatedAt: started,
		StartedAt: &started,
	}
	if err := mem.CreatePipeline(ctx, p); err != nil {
		t.Fatalf("seed pipeline: %v", err)
	}
	if err := mem.CreateInstance(ctx, &domain.TaskInstance{
		ID:         p.NodeTasks["first"],
		Kind:       "stage-one",
		PipelineID: p.ID,
		NodeID:     "first",
		Attempt:    1,
		State:      domain.TaskStateCompleted,
		Outputs:    map[string]any{"value": "seed"},
		CreatedAt:  started,
		StartedAt:  &started,
		FinishedAt: &finished,
	}); err != nil {
		t.Fatalf("seed first task: %v", err)
	}
	if err := mem.CreateInstance(ctx, &domain.TaskInstance{
		ID:         p.NodeTasks["second"],
		Kind:       "stage-two",
		PipelineID: p.ID,
		NodeID:     "second",
		Attempt:    1,
		State:      domain.TaskStateRunning,
		CreatedAt:  started,
		StartedAt:  &finished,
	}); err != nil {
		t.Fatalf("seed second task: %v", err)
	}

	orc := New(Config{
		Store:      mem,
		Catalog:    cat,
		Dispatcher: dispatch.New(cat, nil, discardLogger()),
		Stream:     events.NewStream(mem),
		Learner:    learning.NewLearner(mem),
		Logger:     discardLogger(),
	})
	if err := orc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(orc.Stop)

	env := &testEnv{store: mem}
	final := env.waitFinished(t, p.ID)
	if final.State != domain.PipelineStateCompleted {
		t.Fatalf("state = %s, want COMPLETED (error: %s)", final.State, final.Error)
	}

	if n := firstRuns.Load(); n != 0 {
		t.Errorf("completed node re-executed %d times, want 0", n)
	}
	first := env.task(t, final, "first")
	if first.State != domain.TaskStateCompleted || first.Attempt != 1 {
		t.Errorf("first = %s attempt %d, want COMPLETED attempt 1", first.State, first.Attempt)
	}

	second := env.task(t, final, "second")
	if second.State != domain.TaskStateCompleted {
		t.Fatalf("second state = %s, want COMPLETED", second.State)
	}
	if second.Attempt != 2 {
		t.Errorf("second attempt = %d, want 2 (retry after interruption)", second.Attempt)
	}
	if second.Outputs["carried"] != "seed" {
		t.Errorf("second outputs = %v, want pre-restart output carried through mapping", second.Outputs)
	}
}

func TestPollAdoptsPendingPipeline(t *testing.T) {
	env := newTestEnv(t, echoDef("echo"))

	// Pipeline, созданный мимо SubmitPipeline (например, другим
	// процессом), подбирается poll-циклом.
	g := domain.PipelineGraph{
		ID:    uuid.New(),
		Name:  "external",
		Nodes: []domain.NodeSpec{{ID: "n", Kind: "echo"}},
	}
	p := &domain.PipelineInstance{
		ID:        g.ID,
		Name:      g.Name,
		State:     domain.PipelineStatePending,
		Graph:     g,
		NodeTasks: map[string]uuid.UUID{"n": uuid.New()},
		CreatedAt: time.Now(),
	}
	if err := env.store.CreatePipeline(context.Background(), p); err != nil {
		t.Fatalf("create pipeline: %v", err)
	}
	task := &domain.TaskInstance{
		ID:         p.NodeTasks["n"],
		Kind:       "echo",
		PipelineID: p.ID,
		NodeID:     "n",
		State:      domain.TaskStatePending,
		CreatedAt:  time.Now(),
	}
	if err := env.store.CreateInstance(context.Background(), task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	final := env.waitFinished(t, p.ID)
	if final.State != domain.PipelineStateCompleted {
		t.Fatalf("state = %s, want COMPLETED", final.State)
	}
}

// flakyEventStore отклоняет первую запись события заданного вида,
// имитируя временный отказ хранилища журнала.
type flakyEventStore struct {
	store.EventStore
	failKind domain.EventKind
	failed   atomic.Bool
}

func (f *flakyEventStore) AppendEvent(ctx context.Context, ev *domain.EventRecord) error {
	if ev.Kind == f.failKind && f.failed.CompareAndSwap(false, true) {
		return errors.New("connection reset by peer")
	}
	return f.EventStore.AppendEvent(ctx, ev)
}

func TestEventAppendRetriedAfterStoreFailure(t *testing.T) {
	cat := catalog.New()
	if err := cat.Register(echoDef("echo")); err != nil {
		t.Fatalf("register: %v", err)
	}

	mem := store.NewMemory()
	flaky := &flakyEventStore{EventStore: mem, failKind: domain.EventNodeCompleted}

	orc := New(Config{
		Store:      mem,
		Catalog:    cat,
		Dispatcher: dispatch.New(cat, nil, discardLogger()),
		Stream:     events.NewStream(flaky),
		Learner:    learning.NewLearner(mem),
		Logger:     discardLogger(),
	})
	if err := orc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(orc.Stop)

	p, _, err := orc.SubmitTask(context.Background(), "echo", map[string]any{"value": "x"})
	if err != nil {
		t.Fatalf("submit task: %v", err)
	}

	env := &testEnv{store: mem}
	final := env.waitFinished(t, p.ID)
	if final.State != domain.PipelineStateCompleted {
		t.Fatalf("state = %s, want COMPLETED", final.State)
	}

	if !flaky.failed.Load() {
		t.Fatal("injected append failure was not hit")
	}

	// Событие не потеряно: после повтора журнал полон и непрерывен.
	deadline := time.Now().Add(2 * time.Second)
	var recorded []domain.EventRecord
	for time.Now().Before(deadline) {
		recorded, err = mem.ListEvents(context.Background(), p.ID, 0, 0)
		if err != nil {
			t.Fatalf("list events: %v", err)
		}
		if len(recorded) == 4 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	want := []domain.EventKind{
		domain.EventPipelineStarted,
		domain.EventNodeStarted,
		domain.EventNodeCompleted,
		domain.EventPipelineCompleted,
	}
	if len(recorded) != len(want) {
		t.Fatalf("got %d events, want %d", len(recorded), len(want))
	}
	for i, ev := range recorded {
		if ev.Kind != want[i] {
			t.Errorf("event %d kind = %s, want %s", i, ev.Kind, want[i])
		}
		if ev.Sequence != uint64(i+1) {
			t.Errorf("event %d sequence = %d, want %d", i, ev.Sequence, i+1)
		}
	}
}

func TestSubmitRejectsUnknownKind(t *testing.T) {
	env := newTestEnv(t, echoDef("echo"))

	g := &domain.PipelineGraph{
		Name:  "bad",
		Nodes: []domain.NodeSpec{{ID: "n", Kind: "no-such-kind"}},
	}
	if _, err := env.orc.SubmitPipeline(context.Background(), g); err == nil {
		t.Fatal("expected validation error for unknown kind")
	}
}

package schedule

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Forge/internal/domain"
	"github.com/shaiso/Forge/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSubmitter записывает поданные графы вместо выполнения.
type fakeSubmitter struct {
	submitted []domain.PipelineGraph
}

func (f *fakeSubmitter) SubmitPipeline(_ context.Context, g *domain.PipelineGraph) (*domain.PipelineInstance, error) {
	f.submitted = append(f.submitted, *g)
	return &domain.PipelineInstance{ID: g.ID, State: domain.PipelineStateRunning}, nil
}

func testGraph() domain.PipelineGraph {
	return domain.PipelineGraph{
		Name:  "nightly",
		Nodes: []domain.NodeSpec{{ID: "n", Kind: "load_dataset"}},
	}
}

func TestTickFiresDueSchedule(t *testing.T) {
	mem := store.NewMemory()
	sub := &fakeSubmitter{}
	s := New(Config{Schedules: mem, Submitter: sub, Logger: discardLogger()})

	past := time.Now().Add(-time.Minute)
	sched := &domain.Schedule{
		ID:          uuid.New(),
		Name:        "nightly",
		Graph:       testGraph(),
		IntervalSec: 3600,
		Timezone:    "UTC",
		Enabled:     true,
		NextDueAt:   &past,
	}
	if err := mem.CreateSchedule(context.Background(), sched); err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if len(sub.submitted) != 1 {
		t.Fatalf("submitted %d pipelines, want 1", len(sub.submitted))
	}
	if sub.submitted[0].ID == uuid.Nil {
		t.Error("submitted graph has no fresh pipeline ID")
	}

	updated, err := mem.GetSchedule(context.Background(), sched.ID)
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if updated.NextDueAt == nil || !updated.NextDueAt.After(time.Now()) {
		t.Errorf("next_due_at = %v, want pushed into the future", updated.NextDueAt)
	}
	if updated.LastPipelineID == nil || *updated.LastPipelineID != sub.submitted[0].ID {
		t.Errorf("last_pipeline_id = %v, want %s", updated.LastPipelineID, sub.submitted[0].ID)
	}

	// Повторный тик до next_due_at ничего не подаёт.
	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if len(sub.submitted) != 1 {
		t.Errorf("submitted %d pipelines after second tick, want still 1", len(sub.submitted))
	}
}

func TestTickSkipsDisabledSchedule(t *testing.T) {
	mem := store.NewMemory()
	sub := &fakeSubmitter{}
	s := New(Config{Schedules: mem, Submitter: sub, Logger: discardLogger()})

	past := time.Now().Add(-time.Minute)
	sched := &domain.Schedule{
		ID:          uuid.New(),
		Graph:       testGraph(),
		IntervalSec: 60,
		Timezone:    "UTC",
		Enabled:     false,
		NextDueAt:   &past,
	}
	if err := mem.CreateSchedule(context.Background(), sched); err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(sub.submitted) != 0 {
		t.Errorf("disabled schedule fired %d times", len(sub.submitted))
	}
}

func TestCreateComputesFirstDue(t *testing.T) {
	mem := store.NewMemory()
	s := New(Config{Schedules: mem, Submitter: &fakeSubmitter{}, Logger: discardLogger()})

	sched := &domain.Schedule{
		Name:        "hourly",
		Graph:       testGraph(),
		IntervalSec: 3600,
		Enabled:     true,
	}
	if err := s.Create(context.Background(), sched); err != nil {
		t.Fatalf("create: %v", err)
	}

	if sched.ID == uuid.Nil {
		t.Error("schedule did not get an ID")
	}
	if sched.Timezone != "UTC" {
		t.Errorf("timezone = %q, want UTC default", sched.Timezone)
	}
	if sched.NextDueAt == nil {
		t.Fatal("next_due_at not computed")
	}
	until := time.Until(*sched.NextDueAt)
	if until < 59*time.Minute || until > 61*time.Minute {
		t.Errorf("first due in %v, want about an hour", until)
	}
}

func TestCreateRejectsBadCron(t *testing.T) {
	mem := store.NewMemory()
	s := New(Config{Schedules: mem, Submitter: &fakeSubmitter{}, Logger: discardLogger()})

	sched := &domain.Schedule{
		Name:     "broken",
		Graph:    testGraph(),
		CronExpr: "not a cron",
		Enabled:  true,
	}
	if err := s.Create(context.Background(), sched); err == nil {
		t.Error("expected error for malformed cron expression")
	}
}

func TestNextDueCron(t *testing.T) {
	sched := &domain.Schedule{
		CronExpr: "0 3 * * *", // каждый день в 03:00
		Timezone: "UTC",
	}
	from := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	next, err := NextDue(sched, from)
	if err != nil {
		t.Fatalf("next due: %v", err)
	}
	want := time.Date(2026, 1, 16, 3, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestNextDueRequiresCronOrInterval(t *testing.T) {
	sched := &domain.Schedule{Timezone: "UTC"}
	if _, err := NextDue(sched, time.Now()); err == nil {
		t.Error("expected error for schedule without cron or interval")
	}
}

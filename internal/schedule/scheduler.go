package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Forge/internal/domain"
	"github.com/shaiso/Forge/internal/store"
)

// Submitter принимает графы на выполнение. Реализуется оркестратором.
type Submitter interface {
	SubmitPipeline(ctx context.Context, g *domain.PipelineGraph) (*domain.PipelineInstance, error)
}

// Scheduler подаёт pipelines по расписаниям с истекшим next_due_at.
type Scheduler struct {
	schedules store.ScheduleStore
	submitter Submitter
	logger    *slog.Logger

	tickInterval time.Duration
	batchSize    int

	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Scheduler.
type Config struct {
	Schedules store.ScheduleStore
	Submitter Submitter
	Logger    *slog.Logger

	// TickInterval — период проверки due-расписаний (default: 1s).
	TickInterval time.Duration

	// BatchSize — количество расписаний за один тик (default: 100).
	BatchSize int
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	tickInterval := cfg.TickInterval
	if tickInterval <= 0 {
		tickInterval = time.Second
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		schedules:    cfg.Schedules,
		submitter:    cfg.Submitter,
		logger:       logger.With("component", "scheduler"),
		tickInterval: tickInterval,
		batchSize:    batchSize,
	}
}

// Start запускает цикл тиков.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
					s.logger.Error("scheduler tick failed", "error", err)
				}
			}
		}
	}()

	s.logger.Info("scheduler started", "tick_interval", s.tickInterval)
}

// Stop останавливает цикл тиков.
func (s *Scheduler) Stop() {
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Tick обрабатывает все due-расписания. Ошибка одного расписания
// не блокирует обработку остальных.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := time.Now()

	due, err := s.schedules.ListDueSchedules(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("list due schedules: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	var submitted int
	for i := range due {
		sched := &due[i]
		if err := s.fire(ctx, sched, now); err != nil {
			s.logger.Error("failed to fire schedule",
				"schedule_id", sched.ID,
				"schedule_name", sched.Name,
				"error", err,
			)
			continue
		}
		submitted++
	}

	s.logger.Info("scheduler tick completed", "due", len(due), "submitted", submitted)
	return nil
}

// fire подаёт pipeline из шаблона расписания и переводит next_due_at
// вперёд. Шаблон получает свежий pipeline ID на каждую подачу.
func (s *Scheduler) fire(ctx context.Context, sched *domain.Schedule, now time.Time) error {
	g := sched.Graph
	g.ID = uuid.New()
	if g.Name == "" {
		g.Name = sched.Name
	}

	p, err := s.submitter.SubmitPipeline(ctx, &g)
	if err != nil {
		return fmt.Errorf("submit pipeline: %w", err)
	}

	nextDue, err := NextDue(sched, now)
	if err != nil {
		// Расписание некорректно; отключаем, чтобы не зациклиться
		// на каждом тике.
		s.logger.Error("cannot compute next due, disabling schedule",
			"schedule_id", sched.ID, "error", err)
		sched.Enabled = false
		return s.schedules.UpdateSchedule(ctx, sched)
	}

	sched.RecordRun(p.ID, nextDue)
	if err := s.schedules.UpdateSchedule(ctx, sched); err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}

	s.logger.Info("pipeline submitted from schedule",
		"schedule_id", sched.ID,
		"schedule_name", sched.Name,
		"pipeline_id", p.ID,
		"next_due_at", nextDue,
	)
	return nil
}

// Create заполняет служебные поля нового расписания и сохраняет его:
// проверяет cron-выражение, вычисляет первое next_due_at.
func (s *Scheduler) Create(ctx context.Context, sched *domain.Schedule) error {
	if sched.ID == uuid.Nil {
		sched.ID = uuid.New()
	}
	if sched.Timezone == "" {
		sched.Timezone = "UTC"
	}
	if sched.IsCron() {
		if err := ValidateCronExpr(sched.CronExpr); err != nil {
			return err
		}
	}

	firstDue, err := NextDue(sched, time.Now())
	if err != nil {
		return err
	}
	sched.NextDueAt = &firstDue
	sched.CreatedAt = time.Now()
	sched.UpdatedAt = sched.CreatedAt

	return s.schedules.CreateSchedule(ctx, sched)
}

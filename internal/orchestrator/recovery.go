package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Forge/internal/domain"
	"github.com/shaiso/Forge/internal/graph"
)

// recover восстанавливает выполнение после рестарта процесса.
//
// Для каждого RUNNING pipeline разбираются узлы, прерванные посреди
// выполнения: идемпотентная задача с неисчерпанным бюджетом попыток
// уходит в RETRY_PENDING и будет перезапущена, остальные помечаются
// FAILED/InterruptedExecution с каскадом на зависимые узлы. Затем
// pipeline снова становится активным и доводится до конца.
func (o *Orchestrator) recover(ctx context.Context) error {
	running, err := o.store.ListPipelinesInState(ctx, domain.PipelineStateRunning, 0)
	if err != nil {
		return fmt.Errorf("list running pipelines: %w", err)
	}

	for i := range running {
		p := running[i]
		if err := o.recoverPipeline(ctx, &p); err != nil {
			o.logger.Error("recover pipeline", "pipeline_id", p.ID, "error", err)
		}
	}

	if len(running) > 0 {
		o.logger.Info("recovery finished", "pipelines", len(running))
	}

	// PENDING pipelines подбираются сразу, не дожидаясь первого тика
	// poll-цикла.
	o.adoptPendingBatch()
	return nil
}

func (o *Orchestrator) recoverPipeline(ctx context.Context, p *domain.PipelineInstance) error {
	resolved, err := graph.Validate(&p.Graph, o.catalog)
	if err != nil {
		p.MarkFailed(err.Error())
		if updateErr := o.store.UpdatePipeline(ctx, p); updateErr != nil {
			return updateErr
		}
		o.publishEvent(p.ID, "", domain.EventPipelineFailed, map[string]any{
			"error": err.Error(),
		})
		return nil
	}

	tasks, err := o.store.ListByPipeline(ctx, p.ID)
	if err != nil {
		return err
	}

	ps := newPipelineState(p, resolved)

	for i := range tasks {
		task := tasks[i]
		if task.State != domain.TaskStateRunning {
			continue
		}
		o.recoverTask(ctx, ps, &task)
	}

	// Проекция строится по актуальному состоянию, включая только что
	// разобранные прерванные узлы.
	tasks, err = o.store.ListByPipeline(ctx, p.ID)
	if err != nil {
		return err
	}
	ps.restoreFrom(tasks)

	return o.activate(ps, true)
}

// recoverTask разбирает задачу, застрявшую в RUNNING после рестарта.
func (o *Orchestrator) recoverTask(ctx context.Context, ps *pipelineState, task *domain.TaskInstance) {
	def, err := o.catalog.Lookup(task.Kind)
	if err == nil && def.Idempotent && def.Retry.AllowsRetry(task.Attempt) {
		task.MarkRetryPending(time.Now())
		if err := o.store.Transition(ctx, task, domain.TaskStateRunning); err != nil {
			o.logger.Error("persist recovery RETRY_PENDING", "task_id", task.ID, "error", err)
			return
		}
		o.publishEvent(task.PipelineID, task.NodeID, domain.EventNodeRetrying, map[string]any{
			"kind":     task.Kind,
			"attempt":  task.Attempt,
			"category": string(domain.ErrInterrupted),
			"error":    "execution interrupted by process restart",
		})
		o.logger.Warn("interrupted task scheduled for retry",
			"task_id", task.ID, "node_id", task.NodeID, "attempt", task.Attempt)
		return
	}

	execErr := &domain.ExecError{
		Category: domain.ErrInterrupted,
		Message:  "execution interrupted by process restart",
	}
	o.failNode(ctx, ps, task, execErr)
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Forge/internal/domain"
	"github.com/shaiso/Forge/internal/graph"
	"github.com/shaiso/Forge/internal/learning"
	"github.com/shaiso/Forge/internal/store"
	"github.com/shaiso/Forge/internal/telemetry"
)

// SubmitPipeline валидирует граф, создаёт персистентные экземпляры
// pipeline и его узлов и запускает выполнение. Возвращает принятый
// pipeline в состоянии RUNNING.
func (o *Orchestrator) SubmitPipeline(ctx context.Context, g *domain.PipelineGraph) (*domain.PipelineInstance, error) {
	if o.ctx == nil || o.ctx.Err() != nil {
		return nil, ErrStopped
	}

	resolved, err := graph.Validate(g, o.catalog)
	if err != nil {
		return nil, err
	}

	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}

	p := &domain.PipelineInstance{
		ID:        g.ID,
		Name:      g.Name,
		State:     domain.PipelineStatePending,
		Graph:     *g,
		NodeTasks: make(map[string]uuid.UUID, len(g.Nodes)),
		CreatedAt: time.Now(),
	}

	for i := range g.Nodes {
		node := &g.Nodes[i]
		p.NodeTasks[node.ID] = uuid.New()
	}

	if err := o.store.CreatePipeline(ctx, p); err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}
	for i := range g.Nodes {
		node := &g.Nodes[i]
		task := &domain.TaskInstance{
			ID:         p.NodeTasks[node.ID],
			Kind:       node.Kind,
			PipelineID: p.ID,
			NodeID:     node.ID,
			State:      domain.TaskStatePending,
			CreatedAt:  time.Now(),
		}
		if err := o.store.CreateInstance(ctx, task); err != nil {
			return nil, fmt.Errorf("create task instance %s: %w", node.ID, err)
		}
	}

	if err := o.activate(newPipelineState(p, resolved), false); err != nil {
		return nil, err
	}
	telemetry.PipelinesSubmitted.Inc()
	return p, nil
}

// SubmitTask запускает одиночную задачу, оборачивая её в одноузловой
// pipeline. Возвращает pipeline и ID созданного экземпляра задачи.
func (o *Orchestrator) SubmitTask(ctx context.Context, kind string, inputs map[string]any) (*domain.PipelineInstance, uuid.UUID, error) {
	g := &domain.PipelineGraph{
		Name: kind,
		Nodes: []domain.NodeSpec{
			{ID: "task", Kind: kind, Inputs: inputs},
		},
	}

	p, err := o.SubmitPipeline(ctx, g)
	if err != nil {
		return nil, uuid.Nil, err
	}
	return p, p.NodeTasks["task"], nil
}

// CancelPipeline запрашивает отмену pipeline. Выполняющиеся узлы
// прерываются через отмену контекста, ещё не запущенные помечаются
// CANCELLED. Терминальный pipeline отменить нельзя.
func (o *Orchestrator) CancelPipeline(ctx context.Context, id uuid.UUID) error {
	if ps := o.lookupActive(id); ps != nil {
		ps.requestCancel()
		return nil
	}

	// Pipeline не активен: PENDING (ещё не подобран) отменяем
	// напрямую в Store.
	p, err := o.store.GetPipeline(ctx, id)
	if err != nil {
		return err
	}
	if p.State.IsTerminal() {
		return ErrNotCancellable
	}
	if p.State == domain.PipelineStateRunning {
		// RUNNING без активной записи — pipeline другого процесса
		// либо ждёт recovery; отметка в Store подберётся при рестарте.
		return ErrNotCancellable
	}

	tasks, err := o.store.ListByPipeline(ctx, id)
	if err != nil {
		return err
	}
	for i := range tasks {
		task := tasks[i]
		if task.State.IsTerminal() {
			continue
		}
		task.MarkCancelled()
		err := o.store.Transition(ctx, &task, domain.TaskStatePending, domain.TaskStateRetryPending)
		if err != nil && !errors.Is(err, store.ErrInvalidTransition) {
			return err
		}
	}

	p.MarkCancelled()
	if err := o.store.UpdatePipeline(ctx, p); err != nil {
		return err
	}
	o.publishEvent(p.ID, "", domain.EventPipelineCancelled, nil)
	return nil
}

// runPipeline — цикл диспетчеризации одного pipeline: запускает
// готовые узлы в пределах лимита параллелизма, ждёт пробуждения
// от завершившихся узлов или таймера retry, по исчерпании работы
// фиксирует терминальное состояние.
func (o *Orchestrator) runPipeline(runCtx context.Context, ps *pipelineState) {
	defer o.deactivate(ps.pipeline.ID)

	var grp errgroup.Group
	grp.SetLimit(o.maxNodes)

	for !ps.finished() {
		if o.ctx.Err() != nil {
			// Остановка процесса: выполняющиеся узлы прерываются,
			// их RUNNING-состояние разберёт recovery при рестарте.
			grp.Wait()
			return
		}

		var nextRetry time.Time
		if !ps.isCancelRequested() {
			nextRetry = o.dispatchReady(runCtx, &grp, ps)
		}

		var timerC <-chan time.Time
		if !nextRetry.IsZero() {
			timer := time.NewTimer(time.Until(nextRetry))
			timerC = timer.C
			select {
			case <-ps.wake:
				timer.Stop()
			case <-timerC:
			case <-o.ctx.Done():
				timer.Stop()
			}
			continue
		}

		select {
		case <-ps.wake:
		case <-o.ctx.Done():
		}
	}

	grp.Wait()
	o.finalize(ps)
}

// dispatchReady запускает все готовые узлы, не упираясь в лимит
// параллелизма. Возвращает ближайшее время notBefore среди узлов,
// ждущих retry (нулевое время — таких узлов нет).
func (o *Orchestrator) dispatchReady(runCtx context.Context, grp *errgroup.Group, ps *pipelineState) time.Time {
	completed, exclude := ps.snapshot()
	ready := ps.resolved.ReadySet(completed, exclude)

	var nextRetry time.Time
	now := time.Now()

	for _, nodeID := range ready {
		if at, waiting := ps.retryBarrier(nodeID); waiting && at.After(now) {
			if nextRetry.IsZero() || at.Before(nextRetry) {
				nextRetry = at
			}
			continue
		}

		id := nodeID
		ps.markRunning(id)
		started := grp.TryGo(func() error {
			defer ps.wakeUp()
			o.runNode(runCtx, ps, id)
			return nil
		})
		if !started {
			// Лимит параллелизма; завершение любого узла разбудит
			// цикл, и узел будет запущен следующим проходом.
			ps.unmarkRunning(id)
			break
		}
	}

	return nextRetry
}

// runNode выполняет один узел: разрешает входы, переводит задачу
// в RUNNING, вызывает Dispatcher и фиксирует исход.
func (o *Orchestrator) runNode(runCtx context.Context, ps *pipelineState, nodeID string) {
	// Персистентные операции идут на контексте процесса, а не на
	// runCtx: исход прерванного узла тоже должен быть записан.
	pctx := context.WithoutCancel(o.ctx)

	p := ps.pipeline
	node := p.Graph.Node(nodeID)

	task, err := o.store.GetInstance(pctx, p.NodeTasks[nodeID])
	if err != nil {
		o.logger.Error("load task instance", "pipeline_id", p.ID, "node_id", nodeID, "error", err)
		ps.markFailed(nodeID, "node "+nodeID+": "+err.Error())
		return
	}

	inputs, execErr := resolveInputs(node, &p.Graph, ps.nodeOutputs())
	if execErr != nil {
		o.failNode(pctx, ps, task, execErr)
		return
	}

	task.Inputs = inputs
	task.MarkRunning()
	err = o.store.Transition(pctx, task, domain.TaskStatePending, domain.TaskStateRetryPending)
	if err != nil {
		// Конкурирующий переход (например, отмена обогнала запуск):
		// узел считаем отменённым, актуальное состояние — в Store.
		o.logger.Warn("task transition to RUNNING rejected",
			"pipeline_id", p.ID, "node_id", nodeID, "error", err)
		ps.markCancelled(nodeID)
		return
	}

	o.publishEvent(p.ID, nodeID, domain.EventNodeStarted, map[string]any{
		"kind":    task.Kind,
		"attempt": task.Attempt,
	})
	o.logger.Info("node started",
		"pipeline_id", p.ID, "node_id", nodeID, "kind", task.Kind, "attempt", task.Attempt)

	outputs, execErr := o.dispatcher.Execute(runCtx, task)
	if execErr == nil {
		o.completeNode(pctx, ps, task, outputs)
		return
	}

	if execErr.Category == domain.ErrInterrupted {
		if ps.isCancelRequested() {
			o.cancelNode(pctx, ps, task)
			return
		}
		// Остановка процесса: задача остаётся RUNNING в Store,
		// её разберёт recovery.
		ps.unmarkRunning(nodeID)
		return
	}

	if execErr.Category.Retryable() {
		if def, lookupErr := o.catalog.Lookup(task.Kind); lookupErr == nil && def.Retry.AllowsRetry(task.Attempt) {
			o.retryNode(pctx, ps, task, execErr)
			return
		}
	}

	o.failNode(pctx, ps, task, execErr)
}

func (o *Orchestrator) completeNode(ctx context.Context, ps *pipelineState, task *domain.TaskInstance, outputs map[string]any) {
	task.MarkCompleted(outputs)
	if err := o.store.Transition(ctx, task, domain.TaskStateRunning); err != nil {
		o.logger.Error("persist COMPLETED", "task_id", task.ID, "error", err)
	}
	ps.markCompleted(task.NodeID, outputs)

	telemetry.NodesExecuted.WithLabelValues(task.Kind, "completed").Inc()
	telemetry.NodeDuration.WithLabelValues(task.Kind).Observe(task.Duration().Seconds())

	o.publishEvent(task.PipelineID, task.NodeID, domain.EventNodeCompleted, map[string]any{
		"kind":    task.Kind,
		"outputs": outputs,
	})
	o.logger.Info("node completed",
		"pipeline_id", task.PipelineID, "node_id", task.NodeID, "duration", task.Duration())
}

func (o *Orchestrator) retryNode(ctx context.Context, ps *pipelineState, task *domain.TaskInstance, execErr *domain.ExecError) {
	def, lookupErr := o.catalog.Lookup(task.Kind)
	if lookupErr != nil {
		o.failNode(ctx, ps, task, execErr)
		return
	}

	delay := retryDelay(def.Retry, task.Attempt)
	notBefore := time.Now().Add(delay)

	task.MarkRetryPending(notBefore)
	if err := o.store.Transition(ctx, task, domain.TaskStateRunning); err != nil {
		o.logger.Error("persist RETRY_PENDING", "task_id", task.ID, "error", err)
	}
	ps.markRetryPending(task.NodeID, notBefore)

	telemetry.NodesExecuted.WithLabelValues(task.Kind, "retrying").Inc()

	o.publishEvent(task.PipelineID, task.NodeID, domain.EventNodeRetrying, map[string]any{
		"kind":       task.Kind,
		"attempt":    task.Attempt,
		"category":   string(execErr.Category),
		"error":      execErr.Message,
		"not_before": notBefore,
	})
	o.logger.Warn("node scheduled for retry",
		"pipeline_id", task.PipelineID, "node_id", task.NodeID,
		"attempt", task.Attempt, "delay", delay, "category", execErr.Category)
}

func (o *Orchestrator) cancelNode(ctx context.Context, ps *pipelineState, task *domain.TaskInstance) {
	task.MarkCancelled()
	if err := o.store.Transition(ctx, task, domain.TaskStateRunning); err != nil {
		o.logger.Error("persist CANCELLED", "task_id", task.ID, "error", err)
	}
	ps.markCancelled(task.NodeID)

	o.publishEvent(task.PipelineID, task.NodeID, domain.EventNodeCancelled, map[string]any{
		"kind": task.Kind,
	})
}

// failNode фиксирует окончательный отказ узла: пишет наблюдение
// в learning-хранилище, подмешивает подсказку из истории исправлений
// и каскадно помечает зависимые узлы UpstreamFailed.
func (o *Orchestrator) failNode(ctx context.Context, ps *pipelineState, task *domain.TaskInstance, execErr *domain.ExecError) {
	occurrences := 0
	advice, err := o.learner.Observe(ctx, task.Kind, execErr)
	if err != nil {
		o.logger.Error("record failure observation", "task_id", task.ID, "error", err)
	} else {
		occurrences = advice.Occurrences
		if execErr.Hint == "" {
			execErr.Hint = advice.Hint
		}
	}

	task.MarkFailed(execErr)
	err = o.store.Transition(ctx, task,
		domain.TaskStateRunning, domain.TaskStatePending, domain.TaskStateRetryPending)
	if err != nil {
		o.logger.Error("persist FAILED", "task_id", task.ID, "error", err)
	}
	ps.markFailed(task.NodeID, nodeFailure(task.NodeID, execErr))

	telemetry.NodesExecuted.WithLabelValues(task.Kind, "failed").Inc()

	payload := map[string]any{
		"kind":     task.Kind,
		"category": string(execErr.Category),
		"error":    execErr.Message,
	}
	if execErr.Hint != "" {
		payload["hint"] = execErr.Hint
	}
	if occurrences > 0 {
		payload["occurrences"] = occurrences
	}
	// Текст без динамических частей: повторы одной проблемы дают
	// наблюдателям одинаковый ключ группировки.
	payload["error_group"] = learning.NormalizeMessage(execErr.Message)
	o.publishEvent(task.PipelineID, task.NodeID, domain.EventNodeFailed, payload)
	o.logger.Error("node failed",
		"pipeline_id", task.PipelineID, "node_id", task.NodeID,
		"category", execErr.Category, "error", execErr.Message)

	o.cascadeFailure(ctx, ps, task.NodeID)
}

// cascadeFailure помечает FAILED/UpstreamFailed все узлы, транзитивно
// зависящие от упавшего: они гарантированно не смогут выполниться.
func (o *Orchestrator) cascadeFailure(ctx context.Context, ps *pipelineState, failedNodeID string) {
	p := ps.pipeline

	for _, depID := range ps.resolved.TransitiveDependents(failedNodeID) {
		if ps.isTerminal(depID) {
			continue
		}

		task, err := o.store.GetInstance(ctx, p.NodeTasks[depID])
		if err != nil {
			o.logger.Error("load dependent instance", "node_id", depID, "error", err)
			continue
		}

		execErr := &domain.ExecError{
			Category: domain.ErrUpstreamFailed,
			Message:  fmt.Sprintf("upstream node %q failed", failedNodeID),
		}
		task.MarkFailed(execErr)
		err = o.store.Transition(ctx, task, domain.TaskStatePending, domain.TaskStateRetryPending)
		if errors.Is(err, store.ErrInvalidTransition) {
			// Узел успел запуститься или завершиться — его исход
			// зафиксирует собственный runNode.
			continue
		}
		if err != nil {
			o.logger.Error("persist cascade FAILED", "node_id", depID, "error", err)
			continue
		}
		ps.markFailed(depID, nodeFailure(depID, execErr))

		o.publishEvent(p.ID, depID, domain.EventNodeFailed, map[string]any{
			"kind":     task.Kind,
			"category": string(domain.ErrUpstreamFailed),
			"error":    execErr.Message,
		})
	}
}

// finalize выводит терминальное состояние pipeline из состояний узлов
// и публикует терминальное событие, закрывающее поток.
func (o *Orchestrator) finalize(ps *pipelineState) {
	ctx := context.WithoutCancel(o.ctx)
	p := ps.pipeline

	if ps.isCancelRequested() {
		o.cancelRemaining(ctx, ps)
		p.MarkCancelled()
	} else if failure := ps.firstFailure(); failure != "" {
		p.MarkFailed(failure)
	} else {
		p.MarkCompleted()
	}

	if err := o.store.UpdatePipeline(ctx, p); err != nil {
		o.logger.Error("persist pipeline terminal state", "pipeline_id", p.ID, "error", err)
	}
	telemetry.PipelinesFinished.WithLabelValues(string(p.State)).Inc()

	switch p.State {
	case domain.PipelineStateCompleted:
		o.publishEvent(p.ID, "", domain.EventPipelineCompleted, map[string]any{
			"duration_ms": p.Duration().Milliseconds(),
		})
	case domain.PipelineStateFailed:
		o.publishEvent(p.ID, "", domain.EventPipelineFailed, map[string]any{
			"error": p.Error,
		})
	case domain.PipelineStateCancelled:
		o.publishEvent(p.ID, "", domain.EventPipelineCancelled, nil)
	}

	o.logger.Info("pipeline finished",
		"pipeline_id", p.ID, "state", p.State, "duration", p.Duration())
}

// cancelRemaining помечает CANCELLED узлы, до которых выполнение
// не дошло к моменту отмены.
func (o *Orchestrator) cancelRemaining(ctx context.Context, ps *pipelineState) {
	p := ps.pipeline

	for i := range p.Graph.Nodes {
		nodeID := p.Graph.Nodes[i].ID
		if ps.isTerminal(nodeID) {
			continue
		}

		task, err := o.store.GetInstance(ctx, p.NodeTasks[nodeID])
		if err != nil {
			o.logger.Error("load instance for cancel", "node_id", nodeID, "error", err)
			continue
		}
		task.MarkCancelled()
		err = o.store.Transition(ctx, task, domain.TaskStatePending, domain.TaskStateRetryPending)
		if err != nil && !errors.Is(err, store.ErrInvalidTransition) {
			o.logger.Error("persist CANCELLED", "node_id", nodeID, "error", err)
			continue
		}
		ps.markCancelled(nodeID)

		o.publishEvent(p.ID, nodeID, domain.EventNodeCancelled, map[string]any{
			"kind": task.Kind,
		})
	}
}

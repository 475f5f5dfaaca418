package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/shaiso/Forge/internal/domain"
	"github.com/shaiso/Forge/internal/graph"
)

// pipelineState — in-memory состояние одного активного pipeline.
//
// Персистентным источником истины остаётся Store; pipelineState —
// рабочая проекция для цикла диспетчеризации, восстанавливаемая
// из Store при рестарте.
type pipelineState struct {
	pipeline *domain.PipelineInstance
	resolved *graph.Resolved

	mu        sync.Mutex
	completed map[string]bool
	running   map[string]bool
	failed    map[string]bool
	cancelled map[string]bool

	// outputs — node_id → outputs завершённого узла, источник
	// значений для input_mappings зависимых узлов.
	outputs map[string]map[string]any

	// notBefore — node_id → время, раньше которого RETRY_PENDING-узел
	// не диспетчеризуется.
	notBefore map[string]time.Time

	// failure — описание первого отказа, попадает в Error pipeline.
	failure string

	cancelRequested bool

	// wake будит цикл диспетчеризации; буфер 1, лишние сигналы
	// схлопываются.
	wake chan struct{}

	// cancelRun отменяет контекст выполняющихся узлов этого pipeline.
	cancelRun context.CancelFunc
}

func newPipelineState(p *domain.PipelineInstance, resolved *graph.Resolved) *pipelineState {
	return &pipelineState{
		pipeline:  p,
		resolved:  resolved,
		completed: make(map[string]bool),
		running:   make(map[string]bool),
		failed:    make(map[string]bool),
		cancelled: make(map[string]bool),
		outputs:   make(map[string]map[string]any),
		notBefore: make(map[string]time.Time),
		wake:      make(chan struct{}, 1),
	}
}

// restoreFrom заполняет проекцию из персистентных экземпляров задач.
// Вызывается при восстановлении после рестарта, до запуска цикла.
func (ps *pipelineState) restoreFrom(tasks []domain.TaskInstance) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	for i := range tasks {
		task := &tasks[i]
		switch task.State {
		case domain.TaskStateCompleted:
			ps.completed[task.NodeID] = true
			ps.outputs[task.NodeID] = task.Outputs
		case domain.TaskStateFailed:
			ps.failed[task.NodeID] = true
			if ps.failure == "" && task.Error != nil {
				ps.failure = nodeFailure(task.NodeID, task.Error)
			}
		case domain.TaskStateCancelled:
			ps.cancelled[task.NodeID] = true
		case domain.TaskStateRetryPending:
			if task.NotBefore != nil {
				ps.notBefore[task.NodeID] = *task.NotBefore
			}
		}
	}
}

// wakeUp будит цикл диспетчеризации, не блокируясь.
func (ps *pipelineState) wakeUp() {
	select {
	case ps.wake <- struct{}{}:
	default:
	}
}

func (ps *pipelineState) markRunning(nodeID string) {
	ps.mu.Lock()
	ps.running[nodeID] = true
	delete(ps.notBefore, nodeID)
	ps.mu.Unlock()
}

func (ps *pipelineState) unmarkRunning(nodeID string) {
	ps.mu.Lock()
	delete(ps.running, nodeID)
	ps.mu.Unlock()
}

func (ps *pipelineState) markCompleted(nodeID string, outputs map[string]any) {
	ps.mu.Lock()
	delete(ps.running, nodeID)
	ps.completed[nodeID] = true
	ps.outputs[nodeID] = outputs
	ps.mu.Unlock()
}

func (ps *pipelineState) markFailed(nodeID string, desc string) {
	ps.mu.Lock()
	delete(ps.running, nodeID)
	delete(ps.notBefore, nodeID)
	ps.failed[nodeID] = true
	if ps.failure == "" {
		ps.failure = desc
	}
	ps.mu.Unlock()
}

func (ps *pipelineState) markCancelled(nodeID string) {
	ps.mu.Lock()
	delete(ps.running, nodeID)
	delete(ps.notBefore, nodeID)
	ps.cancelled[nodeID] = true
	ps.mu.Unlock()
}

func (ps *pipelineState) markRetryPending(nodeID string, notBefore time.Time) {
	ps.mu.Lock()
	delete(ps.running, nodeID)
	ps.notBefore[nodeID] = notBefore
	ps.mu.Unlock()
}

func (ps *pipelineState) requestCancel() {
	ps.mu.Lock()
	ps.cancelRequested = true
	ps.mu.Unlock()
	if ps.cancelRun != nil {
		ps.cancelRun()
	}
	ps.wakeUp()
}

func (ps *pipelineState) isCancelRequested() bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.cancelRequested
}

// finished сообщает, что циклу диспетчеризации больше нечего делать:
// все узлы в терминальных состояниях, либо запрошена отмена и
// выполняющиеся узлы завершились. Оставшиеся PENDING-узлы при отмене
// добирает finalize.
func (ps *pipelineState) finished() bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if len(ps.running) > 0 {
		return false
	}
	if ps.cancelRequested {
		return true
	}
	return len(ps.completed)+len(ps.failed)+len(ps.cancelled) == ps.resolved.Size()
}

// snapshot возвращает копии completed и exclude-множества для ReadySet.
func (ps *pipelineState) snapshot() (completed, exclude map[string]bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	completed = make(map[string]bool, len(ps.completed))
	for id := range ps.completed {
		completed[id] = true
	}
	exclude = make(map[string]bool, len(ps.running)+len(ps.failed)+len(ps.cancelled))
	for id := range ps.running {
		exclude[id] = true
	}
	for id := range ps.failed {
		exclude[id] = true
	}
	for id := range ps.cancelled {
		exclude[id] = true
	}
	return completed, exclude
}

// retryBarrier возвращает для узла время notBefore, если узел
// ждёт retry. ok=false — узел можно запускать немедленно.
func (ps *pipelineState) retryBarrier(nodeID string) (time.Time, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	at, ok := ps.notBefore[nodeID]
	return at, ok
}

func (ps *pipelineState) nodeOutputs() map[string]map[string]any {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	copied := make(map[string]map[string]any, len(ps.outputs))
	for id, out := range ps.outputs {
		copied[id] = out
	}
	return copied
}

func (ps *pipelineState) isTerminal(nodeID string) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.completed[nodeID] || ps.failed[nodeID] || ps.cancelled[nodeID]
}

func (ps *pipelineState) firstFailure() string {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.failure
}

func nodeFailure(nodeID string, execErr *domain.ExecError) string {
	return "node " + nodeID + ": " + execErr.Error()
}

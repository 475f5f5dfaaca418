package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NodeSpec — спецификация одного узла pipeline.
type NodeSpec struct {
	// ID — уникальный идентификатор узла в рамках графа.
	// Отличается от ID TaskInstance, который создаётся при выполнении.
	ID string `json:"node_id"`

	// Kind — вид задачи для выполнения.
	Kind string `json:"kind"`

	// Inputs — статические входные значения, объявленные на узле.
	Inputs map[string]any `json:"inputs,omitempty"`

	// InputMappings — маршрутизация выходов upstream-узлов во входы этого.
	// Ключ — "<upstream_node_id>.<output_field>", значение — имя локального входа.
	InputMappings map[string]string `json:"input_mappings,omitempty"`

	// DependsOn — явные зависимости (дополнительно к подразумеваемым
	// через input_mappings).
	DependsOn []string `json:"depends_on,omitempty"`
}

// MappingSource разбирает ключ input_mapping на node_id и имя поля output.
// Возвращает ok=false, если ключ не содержит разделителя.
func MappingSource(key string) (nodeID, field string, ok bool) {
	nodeID, field, ok = strings.Cut(key, ".")
	if !ok || nodeID == "" || field == "" {
		return "", "", false
	}
	return nodeID, field, true
}

// PipelineGraph — направленный ациклический граф задач, поданный на выполнение.
//
// Порядок Nodes — порядок объявления; он используется как стабильный
// tie-break при конкуренции готовых узлов за ограниченный ресурс.
type PipelineGraph struct {
	// ID — уникальный идентификатор pipeline.
	ID uuid.UUID `json:"pipeline_id"`

	// Name — имя pipeline для удобства.
	Name string `json:"name,omitempty"`

	// Nodes — узлы графа в порядке объявления.
	Nodes []NodeSpec `json:"nodes"`

	// GlobalInputs — входные значения, переданные вызывающей стороной.
	// Доступны каждому узлу, не перекрывают его статические inputs.
	GlobalInputs map[string]any `json:"global_inputs,omitempty"`
}

// Node возвращает узел по ID или nil, если такого узла нет.
func (g *PipelineGraph) Node(id string) *NodeSpec {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// DependenciesOf возвращает ID зависимостей узла: явные depends_on плюс
// подразумеваемые через input_mappings, без дубликатов.
func (g *PipelineGraph) DependenciesOf(node *NodeSpec) []string {
	seen := make(map[string]bool)
	var deps []string

	for _, dep := range node.DependsOn {
		if !seen[dep] {
			seen[dep] = true
			deps = append(deps, dep)
		}
	}
	for key := range node.InputMappings {
		if upstream, _, ok := MappingSource(key); ok && !seen[upstream] {
			seen[upstream] = true
			deps = append(deps, upstream)
		}
	}
	return deps
}

// PipelineInstance — запись о выполнении pipeline.
type PipelineInstance struct {
	// ID — идентификатор pipeline (совпадает с Graph.ID).
	ID uuid.UUID `json:"id"`

	// Name — имя pipeline.
	Name string `json:"name,omitempty"`

	// State — агрегатное состояние, производное от состояний узлов.
	State PipelineState `json:"state"`

	// Graph — поданный граф (персистентно, для восстановления после рестарта).
	Graph PipelineGraph `json:"graph"`

	// NodeTasks — node_id → ID созданного TaskInstance.
	NodeTasks map[string]uuid.UUID `json:"node_tasks,omitempty"`

	// Error — текст ошибки при FAILED (категория, упавший узел, подсказка).
	Error string `json:"error,omitempty"`

	// CreatedAt — время приёма pipeline.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время перехода в терминальное состояние.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Duration возвращает продолжительность выполнения.
func (p *PipelineInstance) Duration() time.Duration {
	if p.StartedAt == nil || p.FinishedAt == nil {
		return 0
	}
	return p.FinishedAt.Sub(*p.StartedAt)
}

// IsFinished возвращает true, если pipeline завершён.
func (p *PipelineInstance) IsFinished() bool {
	return p.State.IsTerminal()
}

// MarkRunning переводит pipeline в RUNNING.
func (p *PipelineInstance) MarkRunning() {
	now := time.Now()
	p.State = PipelineStateRunning
	p.StartedAt = &now
}

// MarkCompleted переводит pipeline в COMPLETED.
func (p *PipelineInstance) MarkCompleted() {
	now := time.Now()
	p.State = PipelineStateCompleted
	p.FinishedAt = &now
}

// MarkFailed переводит pipeline в FAILED с текстом ошибки.
func (p *PipelineInstance) MarkFailed(errMsg string) {
	now := time.Now()
	p.State = PipelineStateFailed
	p.FinishedAt = &now
	p.Error = errMsg
}

// MarkCancelled переводит pipeline в CANCELLED.
func (p *PipelineInstance) MarkCancelled() {
	now := time.Now()
	p.State = PipelineStateCancelled
	p.FinishedAt = &now
}

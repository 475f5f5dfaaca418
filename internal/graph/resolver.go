package graph

import (
	"fmt"

	"github.com/shaiso/Forge/internal/domain"
)

// Definitions — источник определений задач для валидации.
// Реализуется каталогом.
type Definitions interface {
	Lookup(kind string) (domain.TaskDefinition, error)
}

// Resolved — результат валидации графа: зависимости в обе стороны
// и топологический порядок.
//
// Resolver не владеет персистентным состоянием — Resolved полностью
// восстановим из PipelineGraph плюс текущих состояний узлов в State Store,
// что и делает возможным crash recovery.
type Resolved struct {
	// Graph — исходный граф.
	Graph *domain.PipelineGraph

	// Deps — node_id → ID его зависимостей.
	Deps map[string][]string

	// Dependents — node_id → ID узлов, зависящих от него напрямую.
	Dependents map[string][]string

	// Order — топологически отсортированные node_id.
	Order []string
}

// Validate проверяет граф и строит Resolved.
//
// Ошибки:
//   - ErrCycleDetected — цикл (алгоритм Кана: узлы с ненулевой остаточной
//     in-degree после прохода)
//   - ErrUnknownTaskKind — вид задачи не зарегистрирован
//   - ErrDanglingInputMapping — источник mapping'а ссылается на узел вне
//     графа или на поле вне output-схемы его задачи
//
// Ни один экземпляр задачи при ошибке валидации не создаётся.
func Validate(g *domain.PipelineGraph, defs Definitions) (*Resolved, error) {
	if g == nil || len(g.Nodes) == 0 {
		return nil, ErrEmptyGraph
	}

	kinds := make(map[string]domain.TaskDefinition, len(g.Nodes))
	seen := make(map[string]bool, len(g.Nodes))

	for i := range g.Nodes {
		node := &g.Nodes[i]

		if node.ID == "" {
			return nil, newValidationError("", "node has empty ID", ErrEmptyNodeID)
		}
		if seen[node.ID] {
			return nil, newValidationError(node.ID,
				fmt.Sprintf("duplicate node ID: %s", node.ID), ErrDuplicateNodeID)
		}
		seen[node.ID] = true

		def, err := defs.Lookup(node.Kind)
		if err != nil {
			return nil, newValidationError(node.ID,
				fmt.Sprintf("unknown task kind: %s", node.Kind), ErrUnknownTaskKind)
		}
		kinds[node.ID] = def
	}

	r := &Resolved{
		Graph:      g,
		Deps:       make(map[string][]string, len(g.Nodes)),
		Dependents: make(map[string][]string, len(g.Nodes)),
	}

	for i := range g.Nodes {
		node := &g.Nodes[i]

		if err := validateMappings(g, node, kinds); err != nil {
			return nil, err
		}

		deps := g.DependenciesOf(node)
		for _, dep := range deps {
			if dep == node.ID {
				return nil, newValidationError(node.ID, "node depends on itself", ErrSelfDependency)
			}
			if !seen[dep] {
				return nil, newValidationError(node.ID,
					fmt.Sprintf("depends on unknown node: %s", dep), ErrDanglingInputMapping)
			}
			r.Dependents[dep] = append(r.Dependents[dep], node.ID)
		}
		r.Deps[node.ID] = deps
	}

	order, err := r.topologicalSort()
	if err != nil {
		return nil, err
	}
	r.Order = order

	return r, nil
}

// validateMappings проверяет источники input_mappings узла.
func validateMappings(g *domain.PipelineGraph, node *domain.NodeSpec, kinds map[string]domain.TaskDefinition) error {
	for key := range node.InputMappings {
		upstream, field, ok := domain.MappingSource(key)
		if !ok {
			return newValidationError(node.ID,
				fmt.Sprintf("malformed input mapping source %q", key), ErrDanglingInputMapping)
		}
		if g.Node(upstream) == nil {
			return newValidationError(node.ID,
				fmt.Sprintf("input mapping references unknown node: %s", upstream), ErrDanglingInputMapping)
		}
		def := kinds[upstream]
		if len(def.OutputSchema) > 0 && !def.OutputSchema.Has(field) {
			return newValidationError(node.ID,
				fmt.Sprintf("input mapping references output %q not declared by node %s (%s)",
					field, upstream, def.Kind), ErrDanglingInputMapping)
		}
	}
	return nil
}

// topologicalSort выполняет топологическую сортировку (алгоритм Кана).
// Возвращает ErrCycleDetected, если после прохода остались узлы
// с ненулевой остаточной in-degree.
func (r *Resolved) topologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(r.Deps))
	for id, deps := range r.Deps {
		inDegree[id] = len(deps)
	}

	// Очередь узлов с inDegree = 0 в порядке объявления.
	var queue []string
	for i := range r.Graph.Nodes {
		id := r.Graph.Nodes[i].ID
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(r.Deps))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		for _, dependent := range r.Dependents[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(r.Graph.Nodes) {
		return nil, ErrCycleDetected
	}
	return order, nil
}

// ReadySet возвращает узлы, готовые к выполнению: каждая зависимость
// в completed, сам узел не в exclude (уже запущен или завершён).
//
// Порядок результата — порядок объявления узлов в графе: стабильный
// tie-break при конкуренции за ограниченный ресурс диспетчеризации.
// Взаимно независимые готовые узлы могут выполняться параллельно —
// Resolver не навязывает порядок между ними.
func (r *Resolved) ReadySet(completed, exclude map[string]bool) []string {
	var ready []string

	for i := range r.Graph.Nodes {
		id := r.Graph.Nodes[i].ID
		if completed[id] || exclude[id] {
			continue
		}

		allDepsCompleted := true
		for _, dep := range r.Deps[id] {
			if !completed[dep] {
				allDepsCompleted = false
				break
			}
		}
		if allDepsCompleted {
			ready = append(ready, id)
		}
	}
	return ready
}

// TransitiveDependents возвращает все узлы, транзитивно зависящие от nodeID,
// в порядке объявления. Используется для каскадной пометки UpstreamFailed.
func (r *Resolved) TransitiveDependents(nodeID string) []string {
	reached := make(map[string]bool)
	stack := []string{nodeID}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, dep := range r.Dependents[current] {
			if !reached[dep] {
				reached[dep] = true
				stack = append(stack, dep)
			}
		}
	}

	var result []string
	for i := range r.Graph.Nodes {
		id := r.Graph.Nodes[i].ID
		if reached[id] {
			result = append(result, id)
		}
	}
	return result
}

// Size возвращает количество узлов в графе.
func (r *Resolved) Size() int {
	return len(r.Graph.Nodes)
}

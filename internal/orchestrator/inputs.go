package orchestrator

import (
	"fmt"

	"github.com/shaiso/Forge/internal/domain"
)

// resolveInputs собирает входные значения узла перед запуском:
// global inputs pipeline, поверх них статические inputs узла
// (статика выигрывает у global при совпадении имён), поверх —
// значения, подтянутые из outputs upstream-узлов по input_mappings.
//
// Ссылка mapping на поле, которого нет в outputs upstream-узла, —
// ошибка MissingUpstreamOutput: узел не запускается.
func resolveInputs(node *domain.NodeSpec, graph *domain.PipelineGraph, outputs map[string]map[string]any) (map[string]any, *domain.ExecError) {
	resolved := make(map[string]any, len(graph.GlobalInputs)+len(node.Inputs)+len(node.InputMappings))

	for key, value := range graph.GlobalInputs {
		resolved[key] = value
	}
	for key, value := range node.Inputs {
		resolved[key] = value
	}

	for source, target := range node.InputMappings {
		upstream, field, ok := domain.MappingSource(source)
		if !ok {
			return nil, &domain.ExecError{
				Category: domain.ErrMissingUpstreamOutput,
				Message:  fmt.Sprintf("malformed input mapping %q on node %q", source, node.ID),
			}
		}

		upstreamOutputs, has := outputs[upstream]
		if !has {
			return nil, &domain.ExecError{
				Category: domain.ErrMissingUpstreamOutput,
				Message:  fmt.Sprintf("node %q: upstream %q has no recorded outputs", node.ID, upstream),
			}
		}
		value, has := upstreamOutputs[field]
		if !has {
			return nil, &domain.ExecError{
				Category: domain.ErrMissingUpstreamOutput,
				Message:  fmt.Sprintf("node %q: upstream %q did not produce output %q", node.ID, upstream, field),
			}
		}
		resolved[target] = value
	}

	return resolved, nil
}

package graph

import (
	"errors"
	"testing"

	"github.com/shaiso/Forge/internal/domain"
)

// defsMap — простая реализация Definitions для тестов.
type defsMap map[string]domain.TaskDefinition

func (d defsMap) Lookup(kind string) (domain.TaskDefinition, error) {
	def, ok := d[kind]
	if !ok {
		return domain.TaskDefinition{}, errors.New("not registered")
	}
	return def, nil
}

func testDefs() defsMap {
	return defsMap{
		"fetch": {Kind: "fetch", Category: domain.CategoryLightweight,
			OutputSchema: domain.Schema{
				"payload": {Type: domain.FieldObject},
			}},
		"train": {Kind: "train", Category: domain.CategoryIsolated,
			OutputSchema: domain.Schema{
				"model_id": {Type: domain.FieldArtifact},
			}},
		"notify": {Kind: "notify", Category: domain.CategoryLightweight},
	}
}

func TestValidate_SimpleChain(t *testing.T) {
	g := &domain.PipelineGraph{
		Name: "chain",
		Nodes: []domain.NodeSpec{
			{ID: "a", Kind: "fetch"},
			{ID: "b", Kind: "train", DependsOn: []string{"a"}},
			{ID: "c", Kind: "notify", DependsOn: []string{"b"}},
		},
	}

	r, err := Validate(g, testDefs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r.Size() != 3 {
		t.Errorf("expected 3 nodes, got %d", r.Size())
	}
	want := []string{"a", "b", "c"}
	for i, id := range want {
		if r.Order[i] != id {
			t.Errorf("order[%d]: expected %s, got %s", i, id, r.Order[i])
		}
	}
	if len(r.Deps["b"]) != 1 || r.Deps["b"][0] != "a" {
		t.Errorf("b should depend on a, got %v", r.Deps["b"])
	}
	if len(r.Dependents["a"]) != 1 || r.Dependents["a"][0] != "b" {
		t.Errorf("a should have dependent b, got %v", r.Dependents["a"])
	}
}

func TestValidate_Diamond(t *testing.T) {
	// a → b → d
	// a → c → d
	g := &domain.PipelineGraph{
		Nodes: []domain.NodeSpec{
			{ID: "a", Kind: "fetch"},
			{ID: "b", Kind: "notify", DependsOn: []string{"a"}},
			{ID: "c", Kind: "notify", DependsOn: []string{"a"}},
			{ID: "d", Kind: "notify", DependsOn: []string{"b", "c"}},
		},
	}

	r, err := Validate(g, testDefs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(r.Deps["d"]) != 2 {
		t.Errorf("d should have 2 dependencies, got %v", r.Deps["d"])
	}
	// Порядок объявления: a раньше b и c, d последний.
	if r.Order[0] != "a" || r.Order[3] != "d" {
		t.Errorf("unexpected order: %v", r.Order)
	}
}

func TestValidate_ImplicitDependencyFromMapping(t *testing.T) {
	g := &domain.PipelineGraph{
		Nodes: []domain.NodeSpec{
			{ID: "a", Kind: "train"},
			{ID: "b", Kind: "notify",
				InputMappings: map[string]string{"a.model_id": "model"}},
		},
	}

	r, err := Validate(g, testDefs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Deps["b"]) != 1 || r.Deps["b"][0] != "a" {
		t.Errorf("mapping should imply dependency on a, got %v", r.Deps["b"])
	}
}

func TestValidate_CycleDetected(t *testing.T) {
	g := &domain.PipelineGraph{
		Nodes: []domain.NodeSpec{
			{ID: "a", Kind: "notify", DependsOn: []string{"b"}},
			{ID: "b", Kind: "notify", DependsOn: []string{"a"}},
		},
	}

	_, err := Validate(g, testDefs())
	if !errors.Is(err, ErrCycleDetected) {
		t.Errorf("expected ErrCycleDetected, got %v", err)
	}
}

func TestValidate_SelfDependency(t *testing.T) {
	g := &domain.PipelineGraph{
		Nodes: []domain.NodeSpec{
			{ID: "a", Kind: "notify", DependsOn: []string{"a"}},
		},
	}

	_, err := Validate(g, testDefs())
	if !errors.Is(err, ErrSelfDependency) {
		t.Errorf("expected ErrSelfDependency, got %v", err)
	}
}

func TestValidate_UnknownKind(t *testing.T) {
	g := &domain.PipelineGraph{
		Nodes: []domain.NodeSpec{
			{ID: "a", Kind: "no-such-kind"},
		},
	}

	_, err := Validate(g, testDefs())
	if !errors.Is(err, ErrUnknownTaskKind) {
		t.Errorf("expected ErrUnknownTaskKind, got %v", err)
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatal("expected ValidationError")
	}
	if verr.NodeID != "a" {
		t.Errorf("expected node a in error, got %s", verr.NodeID)
	}
}

func TestValidate_DuplicateNodeID(t *testing.T) {
	g := &domain.PipelineGraph{
		Nodes: []domain.NodeSpec{
			{ID: "a", Kind: "notify"},
			{ID: "a", Kind: "notify"},
		},
	}

	_, err := Validate(g, testDefs())
	if !errors.Is(err, ErrDuplicateNodeID) {
		t.Errorf("expected ErrDuplicateNodeID, got %v", err)
	}
}

func TestValidate_EmptyGraph(t *testing.T) {
	if _, err := Validate(nil, testDefs()); !errors.Is(err, ErrEmptyGraph) {
		t.Errorf("nil graph: expected ErrEmptyGraph, got %v", err)
	}
	if _, err := Validate(&domain.PipelineGraph{}, testDefs()); !errors.Is(err, ErrEmptyGraph) {
		t.Errorf("empty graph: expected ErrEmptyGraph, got %v", err)
	}
}

func TestValidate_DanglingMapping(t *testing.T) {
	cases := []struct {
		name     string
		mappings map[string]string
	}{
		{"unknown node", map[string]string{"ghost.payload": "data"}},
		{"malformed source", map[string]string{"no-dot": "data"}},
		{"undeclared output", map[string]string{"a.no_such_field": "data"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := &domain.PipelineGraph{
				Nodes: []domain.NodeSpec{
					{ID: "a", Kind: "train"},
					{ID: "b", Kind: "notify", InputMappings: tc.mappings},
				},
			}
			_, err := Validate(g, testDefs())
			if !errors.Is(err, ErrDanglingInputMapping) {
				t.Errorf("expected ErrDanglingInputMapping, got %v", err)
			}
		})
	}
}

func TestReadySet(t *testing.T) {
	g := &domain.PipelineGraph{
		Nodes: []domain.NodeSpec{
			{ID: "a", Kind: "fetch"},
			{ID: "b", Kind: "notify", DependsOn: []string{"a"}},
			{ID: "c", Kind: "notify", DependsOn: []string{"a"}},
			{ID: "d", Kind: "notify", DependsOn: []string{"b", "c"}},
		},
	}

	r, err := Validate(g, testDefs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Ничего не завершено — готов только корень.
	ready := r.ReadySet(map[string]bool{}, map[string]bool{})
	if len(ready) != 1 || ready[0] != "a" {
		t.Errorf("expected [a], got %v", ready)
	}

	// a завершён — готовы b и c в порядке объявления.
	ready = r.ReadySet(map[string]bool{"a": true}, map[string]bool{})
	if len(ready) != 2 || ready[0] != "b" || ready[1] != "c" {
		t.Errorf("expected [b c], got %v", ready)
	}

	// b уже запущен — из готовых остаётся только c.
	ready = r.ReadySet(map[string]bool{"a": true}, map[string]bool{"b": true})
	if len(ready) != 1 || ready[0] != "c" {
		t.Errorf("expected [c], got %v", ready)
	}

	// d не готов, пока не завершены оба upstream'а.
	ready = r.ReadySet(map[string]bool{"a": true, "b": true}, map[string]bool{})
	if len(ready) != 1 || ready[0] != "c" {
		t.Errorf("expected [c], got %v", ready)
	}
}

func TestTransitiveDependents(t *testing.T) {
	g := &domain.PipelineGraph{
		Nodes: []domain.NodeSpec{
			{ID: "a", Kind: "fetch"},
			{ID: "b", Kind: "notify", DependsOn: []string{"a"}},
			{ID: "c", Kind: "notify", DependsOn: []string{"b"}},
			{ID: "x", Kind: "notify"},
		},
	}

	r, err := Validate(g, testDefs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deps := r.TransitiveDependents("a")
	if len(deps) != 2 || deps[0] != "b" || deps[1] != "c" {
		t.Errorf("expected [b c], got %v", deps)
	}
	if got := r.TransitiveDependents("x"); len(got) != 0 {
		t.Errorf("x has no dependents, got %v", got)
	}
}

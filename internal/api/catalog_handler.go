package api

import (
	"encoding/json"
	"net/http"

	"github.com/shaiso/Forge/internal/catalog"
	"github.com/shaiso/Forge/internal/domain"
	"github.com/shaiso/Forge/internal/graph"
	"github.com/shaiso/Forge/internal/telemetry"
)

// ListCatalog обрабатывает GET /api/v1/catalog?category=ISOLATED
func (h *Handler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	var filters []catalog.ListFilter
	if v := r.URL.Query().Get("category"); v != "" {
		cat := domain.Category(v)
		if cat != domain.CategoryLightweight && cat != domain.CategoryIsolated {
			BadRequest(w, "unknown category: "+v)
			return
		}
		filters = append(filters, catalog.ByCategory(cat))
	}

	defs := h.catalog.Definitions(filters...)
	out := make([]TaskDefinitionResponse, 0, len(defs))
	for _, def := range defs {
		out = append(out, DefinitionFromDomain(def))
	}
	List(w, out, len(out))
}

// GetDefinition обрабатывает GET /api/v1/catalog/{kind}
func (h *Handler) GetDefinition(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	def, err := h.catalog.Lookup(kind)
	if err != nil {
		NotFound(w, "unknown task kind: "+kind)
		return
	}
	Success(w, DefinitionFromDomain(def))
}

// SubmitTask обрабатывает POST /api/v1/tasks
//
// Standalone задача оборачивается в одноузловой pipeline: единый
// жизненный цикл, журнал событий и retry-механика для всего.
func (h *Handler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.Kind == "" {
		BadRequest(w, "kind is required")
		return
	}

	g := (&SubmitPipelineRequest{
		Name:  req.Kind,
		Nodes: []NodeRequest{{NodeID: "task", Kind: req.Kind, Inputs: req.Inputs}},
	}).ToGraph()

	if _, err := graph.Validate(g, h.catalog); err != nil {
		HandleGraphError(w, err)
		return
	}

	p, err := h.createPending(r.Context(), g)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.notifySubmitted(r.Context(), p.ID)
	telemetry.PipelinesSubmitted.Inc()

	h.logger.Info("standalone task submitted",
		"pipeline_id", p.ID,
		"task_id", p.NodeTasks["task"],
		"kind", req.Kind,
	)
	Created(w, map[string]any{
		"pipeline": PipelineFromDomain(p),
		"task_id":  p.NodeTasks["task"],
	})
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Forge/internal/domain"
	"github.com/shaiso/Forge/internal/graph"
	"github.com/shaiso/Forge/internal/telemetry"
)

// SubmitPipeline обрабатывает POST /api/v1/pipelines
//
// Граф валидируется против каталога, pipeline и его узлы создаются
// в состоянии PENDING, оркестратор уведомляется через RabbitMQ.
func (h *Handler) SubmitPipeline(w http.ResponseWriter, r *http.Request) {
	var req SubmitPipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if len(req.Nodes) == 0 {
		BadRequest(w, "nodes is required")
		return
	}

	g := req.ToGraph()
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

	h.logger.Info("pipeline submitted",
		"pipeline_id", p.ID,
		"name", p.Name,
		"nodes", len(p.Graph.Nodes),
	)
	Created(w, PipelineFromDomain(p))
}

// createPending создаёт персистентные записи pipeline и его узлов
// в состоянии PENDING. Выполнением занимается процесс оркестратора.
func (h *Handler) createPending(ctx context.Context, g *domain.PipelineGraph) (*domain.PipelineInstance, error) {
	p := &domain.PipelineInstance{
		ID:        g.ID,
		Name:      g.Name,
		State:     domain.PipelineStatePending,
		Graph:     *g,
		NodeTasks: make(map[string]uuid.UUID, len(g.Nodes)),
		CreatedAt: time.Now(),
	}
	for i := range g.Nodes {
		p.NodeTasks[g.Nodes[i].ID] = uuid.New()
	}

	if err := h.store.CreatePipeline(ctx, p); err != nil {
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
		if err := h.store.CreateInstance(ctx, task); err != nil {
			return nil, fmt.Errorf("create task instance %s: %w", node.ID, err)
		}
	}
	return p, nil
}

// notifySubmitted уведомляет оркестратор о новом pipeline. Ошибка
// публикации не фатальна: оркестратор подберёт PENDING poll-циклом.
func (h *Handler) notifySubmitted(ctx context.Context, pipelineID uuid.UUID) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.PublishPipelineSubmitted(ctx, pipelineID); err != nil {
		h.logger.Warn("failed to publish pipeline.submitted, orchestrator will poll",
			"pipeline_id", pipelineID,
			"error", err,
		)
	}
}

// GetPipeline обрабатывает GET /api/v1/pipelines/{id}
func (h *Handler) GetPipeline(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r.PathValue("id"))
	if !ok {
		return
	}

	p, err := h.store.GetPipeline(r.Context(), id)
	if HandleStoreError(w, h.logger, err, "pipeline not found") {
		return
	}
	Success(w, PipelineFromDomain(p))
}

// ListPipelines обрабатывает GET /api/v1/pipelines?state=RUNNING&limit=50
//
// Фильтр state обязателен: Store индексирует pipelines по состоянию,
// полного скана нет.
func (h *Handler) ListPipelines(w http.ResponseWriter, r *http.Request) {
	stateParam := r.URL.Query().Get("state")
	if stateParam == "" {
		BadRequest(w, "state query parameter is required")
		return
	}
	state := domain.PipelineState(stateParam)
	if !state.Valid() {
		BadRequest(w, "unknown pipeline state: "+stateParam)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	pipelines, err := h.store.ListPipelinesInState(r.Context(), state, limit)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	out := make([]PipelineResponse, 0, len(pipelines))
	for i := range pipelines {
		out = append(out, PipelineFromDomain(&pipelines[i]))
	}
	List(w, out, len(out))
}

// CancelPipeline обрабатывает POST /api/v1/pipelines/{id}/cancel
//
// API не выполняет отмену сам: запрос уходит оркестратору через
// RabbitMQ, а клиенту возвращается текущее состояние pipeline.
func (h *Handler) CancelPipeline(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r.PathValue("id"))
	if !ok {
		return
	}

	p, err := h.store.GetPipeline(r.Context(), id)
	if HandleStoreError(w, h.logger, err, "pipeline not found") {
		return
	}
	if p.IsFinished() {
		InvalidState(w, "pipeline already in terminal state "+string(p.State))
		return
	}

	if h.publisher == nil {
		InvalidState(w, "cancellation unavailable: message queue is not configured")
		return
	}
	if err := h.publisher.PublishPipelineCancel(r.Context(), id); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("pipeline cancellation requested", "pipeline_id", id)
	Success(w, PipelineFromDomain(p))
}

// ListPipelineTasks обрабатывает GET /api/v1/pipelines/{id}/tasks
func (h *Handler) ListPipelineTasks(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r.PathValue("id"))
	if !ok {
		return
	}

	if _, err := h.store.GetPipeline(r.Context(), id); HandleStoreError(w, h.logger, err, "pipeline not found") {
		return
	}

	tasks, err := h.store.ListByPipeline(r.Context(), id)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	out := make([]TaskResponse, 0, len(tasks))
	for i := range tasks {
		out = append(out, TaskFromDomain(&tasks[i]))
	}
	List(w, out, len(out))
}

// GetTask обрабатывает GET /api/v1/tasks/{id}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r.PathValue("id"))
	if !ok {
		return
	}

	task, err := h.store.GetInstance(r.Context(), id)
	if HandleStoreError(w, h.logger, err, "task not found") {
		return
	}
	Success(w, TaskFromDomain(task))
}

// parseUUID разбирает UUID из path-параметра, при ошибке пишет 400.
func parseUUID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		BadRequest(w, "invalid id: "+raw)
		return uuid.Nil, false
	}
	return id, true
}

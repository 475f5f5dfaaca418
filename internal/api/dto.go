package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Forge/internal/domain"
)

// SubmitPipelineRequest — запрос на подачу pipeline.
type SubmitPipelineRequest struct {
	Name         string         `json:"name,omitempty"`
	Nodes        []NodeRequest  `json:"nodes"`
	GlobalInputs map[string]any `json:"global_inputs,omitempty"`
}

// NodeRequest — один узел графа в запросе на подачу.
type NodeRequest struct {
	NodeID        string            `json:"node_id"`
	Kind          string            `json:"kind"`
	Inputs        map[string]any    `json:"inputs,omitempty"`
	InputMappings map[string]string `json:"input_mappings,omitempty"`
	DependsOn     []string          `json:"depends_on,omitempty"`
}

// ToGraph собирает доменный граф из запроса. ID назначается здесь:
// клиент не выбирает идентификаторы pipeline.
func (r *SubmitPipelineRequest) ToGraph() *domain.PipelineGraph {
	g := &domain.PipelineGraph{
		ID:           uuid.New(),
		Name:         r.Name,
		GlobalInputs: r.GlobalInputs,
		Nodes:        make([]domain.NodeSpec, 0, len(r.Nodes)),
	}
	for _, n := range r.Nodes {
		g.Nodes = append(g.Nodes, domain.NodeSpec{
			ID:            n.NodeID,
			Kind:          n.Kind,
			Inputs:        n.Inputs,
			InputMappings: n.InputMappings,
			DependsOn:     n.DependsOn,
		})
	}
	return g
}

// SubmitTaskRequest — запрос на выполнение standalone задачи.
// API оборачивает её в одноузловой pipeline.
type SubmitTaskRequest struct {
	Kind   string         `json:"kind"`
	Inputs map[string]any `json:"inputs,omitempty"`
}

// PipelineResponse — представление pipeline в ответах API.
type PipelineResponse struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name,omitempty"`
	State      string     `json:"state"`
	NodeCount  int        `json:"node_count"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DurationMs int64      `json:"duration_ms,omitempty"`
}

// PipelineFromDomain конвертирует доменный pipeline в ответ API.
func PipelineFromDomain(p *domain.PipelineInstance) PipelineResponse {
	return PipelineResponse{
		ID:         p.ID,
		Name:       p.Name,
		State:      string(p.State),
		NodeCount:  len(p.Graph.Nodes),
		Error:      p.Error,
		CreatedAt:  p.CreatedAt,
		StartedAt:  p.StartedAt,
		FinishedAt: p.FinishedAt,
		DurationMs: p.Duration().Milliseconds(),
	}
}

// TaskResponse — представление экземпляра задачи в ответах API.
type TaskResponse struct {
	ID         uuid.UUID         `json:"id"`
	NodeID     string            `json:"node_id"`
	Kind       string            `json:"kind"`
	State      string            `json:"state"`
	Attempt    int               `json:"attempt"`
	Inputs     map[string]any    `json:"inputs,omitempty"`
	Outputs    map[string]any    `json:"outputs,omitempty"`
	Error      *domain.ExecError `json:"error,omitempty"`
	NotBefore  *time.Time        `json:"not_before,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}

// TaskFromDomain конвертирует доменный экземпляр задачи в ответ API.
func TaskFromDomain(t *domain.TaskInstance) TaskResponse {
	return TaskResponse{
		ID:         t.ID,
		NodeID:     t.NodeID,
		Kind:       t.Kind,
		State:      string(t.State),
		Attempt:    t.Attempt,
		Inputs:     t.Inputs,
		Outputs:    t.Outputs,
		Error:      t.Error,
		NotBefore:  t.NotBefore,
		CreatedAt:  t.CreatedAt,
		StartedAt:  t.StartedAt,
		FinishedAt: t.FinishedAt,
	}
}

// EventResponse — представление события в ответах API.
type EventResponse struct {
	Sequence  uint64         `json:"sequence"`
	Kind      string         `json:"kind"`
	NodeID    string         `json:"node_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// EventFromDomain конвертирует доменное событие в ответ API.
func EventFromDomain(ev *domain.EventRecord) EventResponse {
	return EventResponse{
		Sequence:  ev.Sequence,
		Kind:      string(ev.Kind),
		NodeID:    ev.NodeID,
		Payload:   ev.Payload,
		CreatedAt: ev.CreatedAt,
	}
}

// TaskDefinitionResponse — представление вида задачи из каталога.
type TaskDefinitionResponse struct {
	Kind         string             `json:"kind"`
	Description  string             `json:"description,omitempty"`
	Category     string             `json:"category"`
	InputSchema  domain.Schema      `json:"input_schema,omitempty"`
	OutputSchema domain.Schema      `json:"output_schema,omitempty"`
	Retry        domain.RetryPolicy `json:"retry,omitempty"`
	Idempotent   bool               `json:"idempotent,omitempty"`
	TimeoutSec   int                `json:"timeout_sec,omitempty"`
}

// DefinitionFromDomain конвертирует определение вида задачи в ответ API.
func DefinitionFromDomain(def domain.TaskDefinition) TaskDefinitionResponse {
	return TaskDefinitionResponse{
		Kind:         def.Kind,
		Description:  def.Description,
		Category:     string(def.Category),
		InputSchema:  def.InputSchema,
		OutputSchema: def.OutputSchema,
		Retry:        def.Retry,
		Idempotent:   def.Idempotent,
		TimeoutSec:   def.TimeoutSec,
	}
}

// CreateScheduleRequest — запрос на создание расписания.
type CreateScheduleRequest struct {
	Name         string         `json:"name,omitempty"`
	Nodes        []NodeRequest  `json:"nodes"`
	GlobalInputs map[string]any `json:"global_inputs,omitempty"`
	CronExpr     string         `json:"cron_expr,omitempty"`
	IntervalSec  int            `json:"interval_sec,omitempty"`
	Timezone     string         `json:"timezone,omitempty"`
}

// ToSchedule собирает доменное расписание из запроса.
// Расписание создаётся активным.
func (r *CreateScheduleRequest) ToSchedule() *domain.Schedule {
	graph := SubmitPipelineRequest{
		Name:         r.Name,
		Nodes:        r.Nodes,
		GlobalInputs: r.GlobalInputs,
	}
	return &domain.Schedule{
		Name:        r.Name,
		Graph:       *graph.ToGraph(),
		CronExpr:    r.CronExpr,
		IntervalSec: r.IntervalSec,
		Timezone:    r.Timezone,
		Enabled:     true,
	}
}

// ScheduleResponse — представление расписания в ответах API.
type ScheduleResponse struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name,omitempty"`
	CronExpr       string     `json:"cron_expr,omitempty"`
	IntervalSec    int        `json:"interval_sec,omitempty"`
	Timezone       string     `json:"timezone"`
	Enabled        bool       `json:"enabled"`
	NodeCount      int        `json:"node_count"`
	NextDueAt      *time.Time `json:"next_due_at,omitempty"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastPipelineID *uuid.UUID `json:"last_pipeline_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ScheduleFromDomain конвертирует доменное расписание в ответ API.
func ScheduleFromDomain(s *domain.Schedule) ScheduleResponse {
	return ScheduleResponse{
		ID:             s.ID,
		Name:           s.Name,
		CronExpr:       s.CronExpr,
		IntervalSec:    s.IntervalSec,
		Timezone:       s.Timezone,
		Enabled:        s.Enabled,
		NodeCount:      len(s.Graph.Nodes),
		NextDueAt:      s.NextDueAt,
		LastRunAt:      s.LastRunAt,
		LastPipelineID: s.LastPipelineID,
		CreatedAt:      s.CreatedAt,
	}
}

// SetEnabledRequest — запрос на включение/выключение расписания.
type SetEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// AddNoteRequest — запрос на добавление заметки об исправлении.
type AddNoteRequest struct {
	Kind     string `json:"kind"`
	Category string `json:"category"`
	Note     string `json:"note"`
}

// NoteResponse — представление заметки об исправлении.
type NoteResponse struct {
	Kind        string    `json:"kind"`
	Category    string    `json:"category"`
	Note        string    `json:"note"`
	Occurrences int       `json:"occurrences,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NoteFromDomain конвертирует доменную заметку в ответ API.
func NoteFromDomain(n *domain.RemediationNote) NoteResponse {
	return NoteResponse{
		Kind:        n.Signature.Kind,
		Category:    string(n.Signature.Category),
		Note:        n.Note,
		Occurrences: n.Occurrences,
		CreatedAt:   n.CreatedAt,
	}
}

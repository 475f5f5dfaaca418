package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shaiso/Forge/internal/graph"
	"github.com/shaiso/Forge/internal/schedule"
)

// CreateSchedule обрабатывает POST /api/v1/schedules
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		InvalidState(w, "schedules are not configured")
		return
	}

	var req CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if len(req.Nodes) == 0 {
		BadRequest(w, "nodes is required")
		return
	}
	if req.CronExpr == "" && req.IntervalSec <= 0 {
		BadRequest(w, "either cron_expr or interval_sec is required")
		return
	}

	sched := req.ToSchedule()
	if _, err := graph.Validate(&sched.Graph, h.catalog); err != nil {
		HandleGraphError(w, err)
		return
	}

	if err := h.scheduler.Create(r.Context(), sched); err != nil {
		BadRequest(w, err.Error())
		return
	}

	h.logger.Info("schedule created",
		"schedule_id", sched.ID,
		"name", sched.Name,
		"cron", sched.CronExpr,
		"interval_sec", sched.IntervalSec,
	)
	Created(w, ScheduleFromDomain(sched))
}

// ListSchedules обрабатывает GET /api/v1/schedules
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.store.ListSchedules(r.Context())
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	out := make([]ScheduleResponse, 0, len(schedules))
	for i := range schedules {
		out = append(out, ScheduleFromDomain(&schedules[i]))
	}
	List(w, out, len(out))
}

// GetSchedule обрабатывает GET /api/v1/schedules/{id}
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r.PathValue("id"))
	if !ok {
		return
	}

	sched, err := h.store.GetSchedule(r.Context(), id)
	if HandleStoreError(w, h.logger, err, "schedule not found") {
		return
	}
	Success(w, ScheduleFromDomain(sched))
}

// SetScheduleEnabled обрабатывает PUT /api/v1/schedules/{id}/enabled
//
// Выключение не трогает уже поданные pipelines, только останавливает
// дальнейшие срабатывания. При включении next_due_at пересчитывается
// от текущего момента, пропущенные срабатывания не навёрстываются.
func (h *Handler) SetScheduleEnabled(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r.PathValue("id"))
	if !ok {
		return
	}

	var req SetEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}

	sched, err := h.store.GetSchedule(r.Context(), id)
	if HandleStoreError(w, h.logger, err, "schedule not found") {
		return
	}

	if sched.Enabled != req.Enabled {
		sched.Enabled = req.Enabled
		if req.Enabled {
			next, err := schedule.NextDue(sched, time.Now())
			if err != nil {
				InvalidState(w, "cannot compute next due time: "+err.Error())
				return
			}
			sched.NextDueAt = &next
		}
		sched.UpdatedAt = time.Now()
		if err := h.store.UpdateSchedule(r.Context(), sched); err != nil {
			InternalError(w, h.logger, err)
			return
		}
		h.logger.Info("schedule toggled", "schedule_id", id, "enabled", req.Enabled)
	}
	Success(w, ScheduleFromDomain(sched))
}

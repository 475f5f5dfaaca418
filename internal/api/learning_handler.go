package api

import (
	"encoding/json"
	"net/http"

	"github.com/shaiso/Forge/internal/domain"
)

// AddNote обрабатывает POST /api/v1/learning/notes
//
// Заметка об исправлении привязывается к сигнатуре (kind, category)
// и будет выдаваться как подсказка при следующем отказе той же сигнатуры.
func (h *Handler) AddNote(w http.ResponseWriter, r *http.Request) {
	var req AddNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.Kind == "" || req.Category == "" || req.Note == "" {
		BadRequest(w, "kind, category and note are required")
		return
	}
	if !h.catalog.Has(req.Kind) {
		BadRequest(w, "unknown task kind: "+req.Kind)
		return
	}

	sig := domain.FailureSignature{
		Kind:     req.Kind,
		Category: domain.ErrorCategory(req.Category),
	}
	if err := h.learner.AddNote(r.Context(), sig, req.Note); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("remediation note added", "kind", req.Kind, "category", req.Category)
	Created(w, map[string]string{
		"kind":     req.Kind,
		"category": req.Category,
	})
}

// ListNotes обрабатывает GET /api/v1/learning/notes?kind=finetune&category=TaskLogicError
//
// Возвращает историю заметок сигнатуры в порядке записи; подсказкой
// при отказе служит последняя из них.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	category := r.URL.Query().Get("category")
	if kind == "" || category == "" {
		BadRequest(w, "kind and category query parameters are required")
		return
	}

	sig := domain.FailureSignature{
		Kind:     kind,
		Category: domain.ErrorCategory(category),
	}
	notes, err := h.learner.History(r.Context(), sig)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	out := make([]NoteResponse, 0, len(notes))
	for i := range notes {
		out = append(out, NoteFromDomain(&notes[i]))
	}
	List(w, out, len(out))
}

// GetHint обрабатывает GET /api/v1/learning/hint?kind=finetune&category=TaskLogicError
//
// Возвращает актуальную подсказку для сигнатуры или 404, если заметок нет.
func (h *Handler) GetHint(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	category := r.URL.Query().Get("category")
	if kind == "" || category == "" {
		BadRequest(w, "kind and category query parameters are required")
		return
	}

	sig := domain.FailureSignature{
		Kind:     kind,
		Category: domain.ErrorCategory(category),
	}
	hint, err := h.learner.Suggest(r.Context(), sig)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}
	if hint == "" {
		NotFound(w, "no remediation hint for this signature")
		return
	}

	Success(w, map[string]string{
		"kind":     kind,
		"category": category,
		"hint":     hint,
	})
}

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shaiso/Forge/internal/domain"
)

// streamPollInterval — период опроса журнала событий SSE-стримом.
// Стрим читает Store напрямую, поэтому видит события любого
// процесса-оркестратора, не только своего.
const streamPollInterval = 500 * time.Millisecond

// ListEvents обрабатывает GET /api/v1/pipelines/{id}/events?from_sequence=0&limit=100
//
// События возвращаются по возрастанию sequence. Клиент возобновляет
// чтение с любого номера: from_sequence=N отдаёт события с sequence > N.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r.PathValue("id"))
	if !ok {
		return
	}

	if _, err := h.store.GetPipeline(r.Context(), id); HandleStoreError(w, h.logger, err, "pipeline not found") {
		return
	}

	var after uint64
	if v := r.URL.Query().Get("from_sequence"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			BadRequest(w, "from_sequence must be a non-negative integer")
			return
		}
		after = n
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	events, err := h.store.ListEvents(r.Context(), id, after, limit)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	out := make([]EventResponse, 0, len(events))
	for i := range events {
		out = append(out, EventFromDomain(&events[i]))
	}
	List(w, out, len(out))
}

// StreamEvents обрабатывает GET /api/v1/pipelines/{id}/events/stream
//
// Server-Sent Events: каждое событие отдаётся как data-строка с JSON,
// id кадра — sequence события. Стрим закрывается после терминального
// события pipeline или при отключении клиента. Переподключившийся
// клиент передаёт Last-Event-ID (или from_sequence) и продолжает
// без пропусков.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r.PathValue("id"))
	if !ok {
		return
	}

	if _, err := h.store.GetPipeline(r.Context(), id); HandleStoreError(w, h.logger, err, "pipeline not found") {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		InvalidState(w, "streaming is not supported by this connection")
		return
	}

	var after uint64
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			after = n
		}
	}
	if v := r.URL.Query().Get("from_sequence"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			BadRequest(w, "from_sequence must be a non-negative integer")
			return
		}
		after = n
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	for {
		events, err := h.store.ListEvents(r.Context(), id, after, 100)
		if err != nil {
			h.logger.Error("event stream read failed", "pipeline_id", id, "error", err)
			return
		}

		for i := range events {
			ev := &events[i]
			if err := writeSSE(w, ev); err != nil {
				return
			}
			after = ev.Sequence
			if ev.Kind.IsTerminal() {
				flusher.Flush()
				return
			}
		}
		if len(events) > 0 {
			flusher.Flush()
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// writeSSE пишет одно событие в формате Server-Sent Events.
func writeSSE(w http.ResponseWriter, ev *domain.EventRecord) error {
	data, err := json.Marshal(EventFromDomain(ev))
	if err != nil {
		return err
	}
	_, err = w.Write([]byte(
		"id: " + strconv.FormatUint(ev.Sequence, 10) + "\n" +
			"event: " + string(ev.Kind) + "\n" +
			"data: " + string(data) + "\n\n",
	))
	return err
}

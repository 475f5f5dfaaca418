package api

import "net/http"

// Routes собирает все маршруты API с middleware.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// Pipelines
	mux.HandleFunc("POST /api/v1/pipelines", h.SubmitPipeline)
	mux.HandleFunc("GET /api/v1/pipelines", h.ListPipelines)
	mux.HandleFunc("GET /api/v1/pipelines/{id}", h.GetPipeline)
	mux.HandleFunc("POST /api/v1/pipelines/{id}/cancel", h.CancelPipeline)
	mux.HandleFunc("GET /api/v1/pipelines/{id}/tasks", h.ListPipelineTasks)
	mux.HandleFunc("GET /api/v1/pipelines/{id}/events", h.ListEvents)
	mux.HandleFunc("GET /api/v1/pipelines/{id}/events/stream", h.StreamEvents)

	// Standalone задачи
	mux.HandleFunc("POST /api/v1/tasks", h.SubmitTask)
	mux.HandleFunc("GET /api/v1/tasks/{id}", h.GetTask)

	// Каталог видов задач
	mux.HandleFunc("GET /api/v1/catalog", h.ListCatalog)
	mux.HandleFunc("GET /api/v1/catalog/{kind}", h.GetDefinition)

	// Расписания
	mux.HandleFunc("POST /api/v1/schedules", h.CreateSchedule)
	mux.HandleFunc("GET /api/v1/schedules", h.ListSchedules)
	mux.HandleFunc("GET /api/v1/schedules/{id}", h.GetSchedule)
	mux.HandleFunc("PUT /api/v1/schedules/{id}/enabled", h.SetScheduleEnabled)

	// Заметки об исправлениях отказов
	mux.HandleFunc("POST /api/v1/learning/notes", h.AddNote)
	mux.HandleFunc("GET /api/v1/learning/notes", h.ListNotes)
	mux.HandleFunc("GET /api/v1/learning/hint", h.GetHint)

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)(mux)
}

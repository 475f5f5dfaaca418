package api

import (
	"log/slog"

	"github.com/shaiso/Forge/internal/catalog"
	"github.com/shaiso/Forge/internal/learning"
	"github.com/shaiso/Forge/internal/mq"
	"github.com/shaiso/Forge/internal/schedule"
	"github.com/shaiso/Forge/internal/store"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	store     store.Store
	catalog   *catalog.Catalog
	learner   *learning.Learner
	scheduler *schedule.Scheduler
	publisher *mq.Publisher
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Store   store.Store
	Catalog *catalog.Catalog
	Learner *learning.Learner

	// Scheduler используется только для создания расписаний
	// (валидация cron, первое next_due_at); тикает он в процессе
	// оркестратора.
	Scheduler *schedule.Scheduler

	// Publisher — уведомления оркестратора. nil допустим:
	// оркестратор подберёт PENDING pipelines poll-циклом.
	Publisher *mq.Publisher

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		store:     cfg.Store,
		catalog:   cfg.Catalog,
		learner:   cfg.Learner,
		scheduler: cfg.Scheduler,
		publisher: cfg.Publisher,
		logger:    logger.With("component", "api"),
	}
}

// Forge API — HTTP-интерфейс оркестрации pipelines.
//
// API-процесс не выполняет pipelines: он валидирует графы, создаёт
// персистентные записи в состоянии PENDING и уведомляет оркестратор
// через RabbitMQ. Статусы и события читаются напрямую из Postgres.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Forge/internal/api"
	"github.com/shaiso/Forge/internal/catalog"
	"github.com/shaiso/Forge/internal/learning"
	"github.com/shaiso/Forge/internal/mq"
	"github.com/shaiso/Forge/internal/repo"
	"github.com/shaiso/Forge/internal/schedule"
	"github.com/shaiso/Forge/internal/tasks"
	"github.com/shaiso/Forge/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting forge-api")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	st := repo.NewPostgres(pool)

	// Каталог встроенных видов задач
	cat := catalog.New()
	if err := tasks.RegisterBuiltins(cat); err != nil {
		logger.Error("failed to register builtin tasks", "error", err)
		os.Exit(1)
	}

	// RabbitMQ: уведомления оркестратора о подачах и отменах.
	// Без MQ API остаётся работоспособным — оркестратор подбирает
	// PENDING pipelines poll-циклом, но отмена недоступна.
	var publisher *mq.Publisher
	mqConn, err := mq.NewConnection(mq.URLFromEnv(), logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, orchestrator will rely on polling", "error", err)
	} else {
		defer mqConn.Close()
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		publisher = mq.NewPublisher(mqConn, logger)
		logger.Info("RabbitMQ connected")
	}

	// Scheduler здесь нужен только для создания расписаний
	// (валидация cron, первое next_due_at); тикает он в оркестраторе.
	sched := schedule.New(schedule.Config{
		Schedules: st,
		Logger:    logger,
	})

	handler := api.NewHandler(api.Config{
		Store:     st,
		Catalog:   cat,
		Learner:   learning.NewLearner(st),
		Scheduler: sched,
		Publisher: publisher,
		Logger:    logger,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Routes())

	addr := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		addr = ":" + v
	}

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("forge-api stopped")
}

// Forge Orchestrator — ядро выполнения pipelines.
//
// Orchestrator:
//   - Принимает поданные pipelines из RabbitMQ и поллингом из Postgres
//   - Валидирует графы и ведёт готовые узлы через диспетчер
//   - LIGHTWEIGHT задачи выполняет in-process, ISOLATED отправляет runner'ам
//   - Восстанавливает прерванные pipelines после рестарта
//   - Срабатывает расписания периодической подачи
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Forge/internal/catalog"
	"github.com/shaiso/Forge/internal/dispatch"
	"github.com/shaiso/Forge/internal/events"
	"github.com/shaiso/Forge/internal/learning"
	"github.com/shaiso/Forge/internal/mq"
	"github.com/shaiso/Forge/internal/orchestrator"
	"github.com/shaiso/Forge/internal/repo"
	"github.com/shaiso/Forge/internal/schedule"
	"github.com/shaiso/Forge/internal/tasks"
	"github.com/shaiso/Forge/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting forge-orchestrator")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	st := repo.NewPostgres(pool)

	// Каталог встроенных видов задач
	cat := catalog.New()
	if err := tasks.RegisterBuiltins(cat); err != nil {
		logger.Error("failed to register builtin tasks", "error", err)
		os.Exit(1)
	}

	// RabbitMQ: приём подач из API и транспорт до изолированных runner'ов.
	// Без MQ оркестратор работает в polling-only режиме, ISOLATED задачи
	// падают с IsolationFailure.
	var mqConn *mq.Connection
	var runtime *mq.Runtime
	mqConn, err = mq.NewConnection(mq.URLFromEnv(), logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		runtime = mq.NewRuntime(mqConn, logger)
		if err := runtime.Start(ctx); err != nil {
			logger.Error("failed to start isolation runtime", "error", err)
			os.Exit(1)
		}
		defer runtime.Stop()
	}

	learner := learning.NewLearner(st)

	var dispatcher *dispatch.Dispatcher
	if runtime != nil {
		dispatcher = dispatch.New(cat, runtime, logger)
	} else {
		dispatcher = dispatch.New(cat, nil, logger)
	}

	orch := orchestrator.New(orchestrator.Config{
		Store:      st,
		Catalog:    cat,
		Dispatcher: dispatcher,
		Stream:     events.NewStream(st),
		Learner:    learner,
		Conn:       mqConn,
		Logger:     logger,
	})

	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	// Scheduler тикает в процессе оркестратора и подаёт pipelines
	// напрямую, минуя MQ.
	sched := schedule.New(schedule.Config{
		Schedules: st,
		Submitter: orch,
		Logger:    logger,
	})
	sched.Start(ctx)

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8083"
	if v := os.Getenv("ORCH_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	sched.Stop()
	orch.Stop()
	logger.Info("forge-orchestrator stopped")
}

// Forge Runner — изолированная среда выполнения тяжёлых задач.
//
// Runner потребляет task.dispatch из очереди tasks.isolated, выполняет
// обработчик задачи локально и публикует task.result. Результат ошибки
// выполнения — тоже результат: сообщение подтверждается, решения о retry
// принимает оркестратор.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Forge/internal/catalog"
	"github.com/shaiso/Forge/internal/dispatch"
	"github.com/shaiso/Forge/internal/mq"
	"github.com/shaiso/Forge/internal/runner"
	"github.com/shaiso/Forge/internal/tasks"
	"github.com/shaiso/Forge/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting forge-runner")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Каталог: runner'у нужны обработчики ISOLATED задач
	cat := catalog.New()
	if err := tasks.RegisterBuiltins(cat); err != nil {
		logger.Error("failed to register builtin tasks", "error", err)
		os.Exit(1)
	}

	// RabbitMQ обязателен: runner живёт на очереди tasks.isolated
	mqConn, err := mq.NewConnection(mq.URLFromEnv(), logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, mqConn); err != nil {
		logger.Warn("failed to setup topology", "error", err)
	}

	prefetch := 1
	if v := os.Getenv("RUNNER_PREFETCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			prefetch = n
		}
	}

	r := runner.New(runner.Config{
		Dispatcher: dispatch.New(cat, nil, logger),
		Publisher:  mq.NewPublisher(mqConn, logger),
		Conn:       mqConn,
		Prefetch:   prefetch,
		Logger:     logger,
	})

	if err := r.Start(ctx); err != nil {
		logger.Error("failed to start runner", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8084"
	if v := os.Getenv("RUNNER_PORT"); v != "" {
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

	r.Stop()
	logger.Info("forge-runner stopped")
}

// Package telemetry обеспечивает наблюдаемость Forge.
//
// Включает:
//   - logging.go — structured logging через slog (LOG_LEVEL, LOG_FORMAT)
//   - metrics.go — Prometheus-метрики: счётчики поданных и завершённых
//     pipelines, выполнение узлов по видам задач, активные pipelines,
//     HTTP-запросы API
//
// Все процессы (api, orchestrator, runner) используют единый формат
// логирования и экспортируют метрики на /metrics.
package telemetry

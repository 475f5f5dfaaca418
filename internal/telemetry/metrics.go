package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики ядра оркестрации. Регистрируются в default registry;
// каждый процесс отдаёт их через promhttp на /metrics.
var (
	// PipelinesSubmitted — принятые pipelines.
	PipelinesSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forge_pipelines_submitted_total",
		Help: "Number of pipelines accepted for execution.",
	})

	// PipelinesFinished — завершённые pipelines по терминальному состоянию.
	PipelinesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forge_pipelines_finished_total",
		Help: "Number of pipelines that reached a terminal state.",
	}, []string{"state"})

	// NodesExecuted — исходы выполнения узлов.
	NodesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forge_nodes_executed_total",
		Help: "Node execution outcomes by task kind.",
	}, []string{"kind", "outcome"})

	// NodeDuration — длительность выполнения узла.
	NodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forge_node_duration_seconds",
		Help:    "Node execution duration by task kind.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{"kind"})

	// ActivePipelines — количество активных pipelines в процессе.
	ActivePipelines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "forge_active_pipelines",
		Help: "Number of pipelines currently being driven by this process.",
	})

	// HTTPRequests — HTTP-запросы API по методу, шаблону пути и статусу.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forge_http_requests_total",
		Help: "HTTP requests served by the API.",
	}, []string{"method", "pattern", "status"})

	// HTTPDuration — длительность обработки HTTP-запроса.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forge_http_request_duration_seconds",
		Help:    "HTTP request handling duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "pattern"})
)

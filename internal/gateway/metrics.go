package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the gateway's Prometheus instruments.
type metrics struct {
	tasksCreated    prometheus.Counter
	tasksCompleted  prometheus.Counter
	tasksFailed     prometheus.Counter
	tasksCanceled   prometheus.Counter
	queueDepth      prometheus.Gauge
	activeTasks     prometheus.Gauge
	requestDuration *prometheus.HistogramVec
	sseStreams      prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		tasksCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "aegis", Subsystem: "gateway",
			Name: "tasks_created_total", Help: "Tasks admitted or queued.",
		}),
		tasksCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "aegis", Subsystem: "gateway",
			Name: "tasks_completed_total", Help: "Tasks that completed successfully.",
		}),
		tasksFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "aegis", Subsystem: "gateway",
			Name: "tasks_failed_total", Help: "Tasks that ended in failure.",
		}),
		tasksCanceled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "aegis", Subsystem: "gateway",
			Name: "tasks_canceled_total", Help: "Tasks canceled by clients.",
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "aegis", Subsystem: "gateway",
			Name: "queue_depth", Help: "Tasks waiting in the admission queue.",
		}),
		activeTasks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "aegis", Subsystem: "gateway",
			Name: "active_tasks", Help: "Tasks currently dispatched to the inner agent.",
		}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aegis", Subsystem: "gateway",
			Name: "request_duration_seconds", Help: "JSON-RPC method latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		sseStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "aegis", Subsystem: "gateway",
			Name: "sse_streams", Help: "Open message/stream connections.",
		}),
	}
}

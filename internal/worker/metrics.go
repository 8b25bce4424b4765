package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry               *prometheus.Registry
	tasksTotal             *prometheus.CounterVec
	taskDuration           *prometheus.HistogramVec
	activeTasks            prometheus.Gauge
	orphansPurgedTotal     prometheus.Counter
	webhooksDeliveredTotal *prometheus.CounterVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &metrics{
		registry: registry,
		tasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelshelf_worker_tasks_total",
			Help: "Total worker tasks by type and outcome.",
		}, []string{"type", "outcome"}),
		taskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelshelf_worker_task_duration_seconds",
			Help:    "Handling duration for each worker task.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type", "outcome"}),
		activeTasks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pixelshelf_worker_active_tasks",
			Help: "Current number of tasks being handled.",
		}),
		orphansPurgedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "pixelshelf_worker_orphans_purged_total",
			Help: "Stored images removed because no metadata record referenced them.",
		}),
		webhooksDeliveredTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelshelf_worker_webhooks_delivered_total",
			Help: "Webhook deliveries acknowledged by the receiver, by event.",
		}, []string{"event"}),
	}
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

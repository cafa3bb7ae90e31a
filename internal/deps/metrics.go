package deps

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	subscribedTasksGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "depman",
		Subsystem: "deps",
		Name:      "subscribed_tasks",
		Help:      "Tasks with an active get-dependency subscription.",
	})
	requiredTasksGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "depman",
		Subsystem: "deps",
		Name:      "required_tasks",
		Help:      "Creating tasks with at least one required output object.",
	})
	requiredObjectsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "depman",
		Subsystem: "deps",
		Name:      "required_objects",
		Help:      "Objects with an outstanding pull.",
	})
	pendingTasksGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "depman",
		Subsystem: "deps",
		Name:      "pending_tasks",
		Help:      "Tasks whose outputs will materialize locally.",
	})
)

// RegisterMetrics registers the manager gauges with the default
// Prometheus registry. Safe to call multiple times.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			subscribedTasksGauge,
			requiredTasksGauge,
			requiredObjectsGauge,
			pendingTasksGauge,
		)
	})
}

// RecordMetrics reports the current index sizes to the metrics sink.
func (m *Manager) RecordMetrics() {
	RegisterMetrics()
	subscribedTasksGauge.Set(float64(len(m.taskDeps)))
	requiredTasksGauge.Set(float64(len(m.requiredObjects)))
	requiredObjectsGauge.Set(float64(len(m.activePulls)))
	pendingTasksGauge.Set(float64(len(m.pendingTasks)))
}

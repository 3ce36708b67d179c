package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Node and worker pool gauges
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskmaster_nodes_total",
			Help: "Total number of known nodes by status",
		},
		[]string{"status"},
	)

	WorkersIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskmaster_workers_idle",
			Help: "Number of workers currently in the idle pool",
		},
	)

	WorkersWorking = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskmaster_workers_working",
			Help: "Number of workers currently holding a work assignment",
		},
	)

	// Queue and task metrics
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskmaster_queue_depth",
			Help: "Number of task instances currently queued (STOPPED)",
		},
	)

	RunningTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskmaster_running_tasks",
			Help: "Number of task instances currently RUNNING",
		},
	)

	TasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskmaster_tasks_total",
			Help: "Total number of task instances reaching a terminal completion_type",
		},
		[]string{"completion_type"},
	)

	DispatchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskmaster_dispatch_latency_seconds",
			Help:    "Time from the start of a dispatch attempt to a worker receiving run_task",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Connection manager metrics
	ReconnectAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskmaster_reconnect_attempts_total",
			Help: "Total number of scheduled reconnect attempts",
		},
		[]string{"node_id"},
	)

	ConnectPassesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskmaster_connect_passes_total",
			Help: "Total number of Connect() passes run",
		},
	)

	// Status aggregator
	StatusPollsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskmaster_status_polls_total",
			Help: "Total number of task_status polls sent to main workers",
		},
	)
)

func init() {
	prometheus.MustRegister(
		NodesTotal,
		WorkersIdle,
		WorkersWorking,
		QueueDepth,
		RunningTasks,
		TasksTotal,
		DispatchLatency,
		ReconnectAttemptsTotal,
		ConnectPassesTotal,
		StatusPollsTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

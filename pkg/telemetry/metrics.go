package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for devforge.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Task metrics
	tasksExecuted *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	handlersFired *prometheus.CounterVec

	// Fact metrics
	factsCollected *prometheus.CounterVec

	// Archive metrics
	archivesBuilt   *prometheus.CounterVec
	archiveDuration *prometheus.HistogramVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// System metrics
	activeRuns prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of runs started",
			},
			[]string{"role"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of runs completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of run execution in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		tasksExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_executed_total",
				Help:      "Total number of tasks executed",
			},
			[]string{"role", "status"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Duration of task execution in seconds",
				Buckets:   buckets,
			},
			[]string{"role", "action"},
		),
		handlersFired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handlers_fired_total",
				Help:      "Total number of handlers fired",
			},
			[]string{"role"},
		),

		factsCollected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "facts_collected_total",
				Help:      "Total number of fact collection passes",
			},
			[]string{"status"},
		),

		archivesBuilt: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archives_built_total",
				Help:      "Total number of release archives built",
			},
			[]string{"status"},
		),
		archiveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "archive_duration_seconds",
				Help:      "Duration of archive builds in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Current number of active runs",
			},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.tasksExecuted,
		m.taskDuration,
		m.handlersFired,
		m.factsCollected,
		m.archivesBuilt,
		m.archiveDuration,
		m.errorsByClass,
		m.errorsByCode,
		m.activeRuns,
	)

	return m, nil
}

// RecordRunStarted increments the counter for started runs.
func (m *Metrics) RecordRunStarted(role string) {
	if m.runsStarted == nil {
		return
	}
	m.runsStarted.WithLabelValues(role).Inc()
	m.activeRuns.Inc()
}

// RecordRunCompleted records a completed run with its status and duration.
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// RecordTaskExecution records the execution of a single task.
func (m *Metrics) RecordTaskExecution(role, action, status string, duration time.Duration) {
	if m.tasksExecuted == nil {
		return
	}
	m.tasksExecuted.WithLabelValues(role, status).Inc()
	m.taskDuration.WithLabelValues(role, action).Observe(duration.Seconds())
}

// RecordHandlerFired records a handler firing for a role.
func (m *Metrics) RecordHandlerFired(role string) {
	if m.handlersFired == nil {
		return
	}
	m.handlersFired.WithLabelValues(role).Inc()
}

// RecordFactsCollected records a fact collection pass against a host.
func (m *Metrics) RecordFactsCollected(status string) {
	if m.factsCollected == nil {
		return
	}
	m.factsCollected.WithLabelValues(status).Inc()
}

// RecordArchiveBuilt records a release archive build with its duration.
func (m *Metrics) RecordArchiveBuilt(status string, duration time.Duration) {
	if m.archivesBuilt == nil {
		return
	}
	m.archivesBuilt.WithLabelValues(status).Inc()
	m.archiveDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer(logger *Logger) error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.WithError(err).Error("metrics server stopped")
			}
		}
	}()

	return nil
}

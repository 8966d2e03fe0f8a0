// Package jobmetrics instruments the background worker.
package jobmetrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Task outcomes.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	// StatusSkipped marks failures asynq will not retry.
	StatusSkipped = "skipped"
)

// Metrics holds the Prometheus collectors for worker tasks.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the task metrics against registerer, or against the
// default registerer when nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker instruments a single task run.
type Tracker struct {
	metrics *Metrics
	task    string
	queue   string
	start   time.Time
}

// Track starts timing a run of task on queue.
func (m *Metrics) Track(task, queue string) *Tracker {
	return &Tracker{metrics: m, task: task, queue: queue, start: time.Now()}
}

// End records duration and outcome, returning err untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.task == "" {
		return err
	}
	status := Status(err)
	if status != StatusSuccess {
		t.metrics.failures.WithLabelValues(t.task).Inc()
	}
	t.metrics.runs.WithLabelValues(t.task, t.queue, status).Inc()
	t.metrics.duration.WithLabelValues(t.task).Observe(time.Since(t.start).Seconds())
	return err
}

// Status classifies a handler result.
func Status(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, asynq.SkipRetry):
		return StatusSkipped
	default:
		return StatusFailure
	}
}

// Middleware instruments every handler served by an asynq mux.
func (m *Metrics) Middleware(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		queue, _ := asynq.GetQueueName(ctx)
		return m.Track(t.Type(), queue).End(next.ProcessTask(ctx, t))
	})
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tagboard_worker_tasks_total",
		Help: "Worker task executions by task type, queue and status.",
	}, []string{"task", "queue", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tagboard_worker_task_failures_total",
		Help: "Worker task failures by task type.",
	}, []string{"task"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tagboard_worker_task_duration_seconds",
		Help:    "Worker task duration in seconds.",
		Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 30},
	}, []string{"task"})
	registerer.MustRegister(runs, failures, duration)
	return &Metrics{runs: runs, failures: failures, duration: duration}
}

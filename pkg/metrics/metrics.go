// Package metrics holds the prometheus collectors of a swarm hub. A nil
// *Collectors is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values of swarm_operations_total.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Collectors records hub activity.
type Collectors struct {
	registry *prometheus.Registry

	operations    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	embeddingJobs *prometheus.CounterVec
	reflections   *prometheus.CounterVec
	cleanupRemove prometheus.Counter
}

// New registers the swarm collectors, plus the Go runtime and process
// collectors, on a fresh registry.
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swarm_operations_total",
			Help: "Hub operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swarm_operation_duration_seconds",
			Help:    "Hub operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		embeddingJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swarm_embedding_jobs_total",
			Help: "Background embedding jobs by outcome.",
		}, []string{"outcome"}),
		reflections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swarm_reflection_runs_total",
			Help: "Reflection runs by extraction method.",
		}, []string{"method"}),
		cleanupRemove: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swarm_profile_entries_expired_total",
			Help: "Expired profile entries physically removed.",
		}),
	}

	c.registry.MustRegister(
		c.operations,
		c.duration,
		c.embeddingJobs,
		c.reflections,
		c.cleanupRemove,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Observe records one operation that started at start and ended with err.
func (c *Collectors) Observe(operation string, start time.Time, err error) {
	if c == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	c.operations.WithLabelValues(operation, outcome).Inc()
	c.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// EmbeddingJob records the outcome of a background embedding job.
func (c *Collectors) EmbeddingJob(outcome string) {
	if c == nil {
		return
	}
	c.embeddingJobs.WithLabelValues(outcome).Inc()
}

// Reflection records a reflection run.
func (c *Collectors) Reflection(method string) {
	if c == nil || method == "" {
		return
	}
	c.reflections.WithLabelValues(method).Inc()
}

// Expired records removed expired profile entries.
func (c *Collectors) Expired(n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.cleanupRemove.Add(float64(n))
}

// Registry exposes the underlying registry.
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Package metrics provides Prometheus metrics for the orchestration core.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector holds the orchestration metrics.
type Collector struct {
	tasksSubmitted   *prometheus.CounterVec
	assignments      *prometheus.CounterVec
	taskCompletions  *prometheus.CounterVec
	taskDuration     *prometheus.HistogramVec
	toolInvocations  *prometheus.CounterVec
	toolDuration     *prometheus.HistogramVec
	agentsByStatus   *prometheus.GaugeVec
	droppedEvents    prometheus.Counter
	knowledgeEntries prometheus.Gauge

	// droppedSeen is the last dropped total folded into droppedEvents.
	droppedSeen atomic.Uint64

	logger *zap.Logger
}

// NewCollector registers the orchestration metrics under namespace with
// reg. A nil reg registers with the default Prometheus registry.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.tasksSubmitted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_submitted_total",
			Help:      "Total number of submitted tasks",
		},
		[]string{"type", "priority"},
	)

	c.assignments = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_assignments_total",
			Help:      "Total number of assignment attempts by result",
		},
		[]string{"type", "result"},
	)

	c.taskCompletions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_completions_total",
			Help:      "Total number of tasks reaching a terminal status",
		},
		[]string{"type", "status"},
	)

	c.taskDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Task execution duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		},
		[]string{"type"},
	)

	c.toolInvocations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_invocations_total",
			Help:      "Total number of tool invocations by capability and status",
		},
		[]string{"capability", "status"},
	)

	c.toolDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_invocation_duration_seconds",
			Help:      "Tool invocation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"capability"},
	)

	c.agentsByStatus = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agents",
			Help:      "Number of registered agents by status",
		},
		[]string{"status"},
	)

	c.droppedEvents = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Total number of lifecycle notifications dropped by a full sink",
		},
	)

	c.knowledgeEntries = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "knowledge_entries",
			Help:      "Number of learned knowledge entries",
		},
	)

	c.logger.Debug("metrics collector registered", zap.String("namespace", namespace))
	return c
}

// RecordSubmitted counts a submitted task.
func (c *Collector) RecordSubmitted(taskType, priority string) {
	if c == nil {
		return
	}
	c.tasksSubmitted.WithLabelValues(taskType, priority).Inc()
}

// RecordAssignment counts an assignment attempt. result is "assigned" or
// "no_agent".
func (c *Collector) RecordAssignment(taskType, result string) {
	if c == nil {
		return
	}
	c.assignments.WithLabelValues(taskType, result).Inc()
}

// RecordCompletion counts a terminal transition and observes its duration.
func (c *Collector) RecordCompletion(taskType, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.taskCompletions.WithLabelValues(taskType, status).Inc()
	c.taskDuration.WithLabelValues(taskType).Observe(duration.Seconds())
}

// RecordToolInvocation counts a tool invocation and observes its duration.
func (c *Collector) RecordToolInvocation(capability string, success bool, duration time.Duration) {
	if c == nil {
		return
	}
	status := "completed"
	if !success {
		status = "failed"
	}
	c.toolInvocations.WithLabelValues(capability, status).Inc()
	c.toolDuration.WithLabelValues(capability).Observe(duration.Seconds())
}

// SetAgentCounts replaces the agents-by-status gauge values.
func (c *Collector) SetAgentCounts(counts map[string]int) {
	if c == nil {
		return
	}
	c.agentsByStatus.Reset()
	for status, n := range counts {
		c.agentsByStatus.WithLabelValues(status).Set(float64(n))
	}
}

// SetDroppedEvents raises the dropped-notifications counter to total.
// Totals lower than the current value are ignored.
func (c *Collector) SetDroppedEvents(total uint64) {
	if c == nil {
		return
	}
	for {
		seen := c.droppedSeen.Load()
		if total <= seen {
			return
		}
		if c.droppedSeen.CompareAndSwap(seen, total) {
			c.droppedEvents.Add(float64(total - seen))
			return
		}
	}
}

// SetKnowledgeEntries records the number of learned entries.
func (c *Collector) SetKnowledgeEntries(n int) {
	if c == nil {
		return
	}
	c.knowledgeEntries.Set(float64(n))
}

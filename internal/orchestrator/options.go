package orchestrator

import (
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ShayCichocki/conductor/internal/metrics"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// RequiredConfig contains the adapters every Orchestrator needs.
type RequiredConfig struct {
	// Tools performs capability calls during execution.
	Tools ToolAdapter
	// Work performs each task's primary unit of work.
	Work WorkAdapter
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

// orchestratorOptions holds all optional configuration.
type orchestratorOptions struct {
	logger         *zap.Logger
	sink           NotificationSink
	metrics        *metrics.Collector
	memory         EpisodeRecorder
	tracer         trace.Tracer
	maxConcurrency int
	agents         []*models.Agent
}

func defaultOptions() *orchestratorOptions {
	return &orchestratorOptions{
		maxConcurrency: 4,
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

// WithNotificationSink sets where lifecycle events go.
func WithNotificationSink(s NotificationSink) Option {
	return func(o *orchestratorOptions) { o.sink = s }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *orchestratorOptions) { o.metrics = c }
}

// WithMemory records every finished task into the given recorder.
func WithMemory(m EpisodeRecorder) Option {
	return func(o *orchestratorOptions) { o.memory = m }
}

// WithTracer sets the tracer used around execution.
func WithTracer(t trace.Tracer) Option {
	return func(o *orchestratorOptions) { o.tracer = t }
}

// WithMaxConcurrency bounds how many tasks ProcessPending runs at once.
func WithMaxConcurrency(n int) Option {
	return func(o *orchestratorOptions) { o.maxConcurrency = n }
}

// WithAgents registers the given agents at construction, in order.
func WithAgents(agents ...*models.Agent) Option {
	return func(o *orchestratorOptions) { o.agents = append(o.agents, agents...) }
}

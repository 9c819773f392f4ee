// Package telemetry exports replay activity as Prometheus metrics and
// OpenTelemetry spans.
//
// Nothing in the replay core imports this package. It plugs in through the
// hook structs of packages jsaction and upgrade:
//
//	obs := telemetry.NewObserver(telemetry.NewMetrics(), "replay")
//	rt := jsaction.NewRuntime(jsaction.WithRuntimeHooks(obs.DispatcherHooks(pageID)))
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "replay").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for upgrade duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		if namespace != "" {
			c.Namespace = namespace
		}
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "replay",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the replay metrics.
type Metrics struct {
	eventsBuffered   prometheus.Counter
	eventsQueued     prometheus.Counter
	eventsDispatched *prometheus.CounterVec
	eventsSuperseded prometheus.Counter
	replayPasses     prometheus.Counter
	replayBatch      prometheus.Histogram
	handlerPanics    prometheus.Counter
	upgradesTotal    *prometheus.CounterVec
	upgradeDuration  prometheus.Histogram
	staleActions     prometheus.Counter
	activePages      prometheus.Gauge
	streamMessages   *prometheus.CounterVec
}

// NewMetrics registers the replay metrics. Registering twice against the
// same registry panics, as promauto does.
//
// Metrics:
//   - replay_events_buffered_total: events held by the contract before boot
//   - replay_events_queued_total: events queued for lack of a handler
//   - replay_events_dispatched_total{mode}: handler runs, mode live or replayed
//   - replay_events_superseded_total: queued events collapsed by dedup
//   - replay_passes_total: replay passes that delivered at least one event
//   - replay_batch_size: events delivered per replay pass
//   - replay_handler_panics_total: recovered handler panics
//   - replay_upgrades_total{state}: adapters settled, by final state
//   - replay_upgrade_duration_seconds: snapshot to registration time
//   - replay_stale_actions_total: actions skipped after hydration
//   - replay_active_pages: pages currently hosted
//   - replay_stream_messages_total{direction}: websocket frames
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}

	return &Metrics{
		eventsBuffered: counter("events_buffered_total", "Events held by the contract until a dispatcher existed"),
		eventsQueued:   counter("events_queued_total", "Events queued because no handler was registered"),
		eventsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "events_dispatched_total",
			Help:        "Handler invocations by delivery mode",
			ConstLabels: config.ConstLabels,
		}, []string{"mode"}),
		eventsSuperseded: counter("events_superseded_total", "Queued events collapsed into a later event for the same action"),
		replayPasses:     counter("passes_total", "Replay passes that delivered at least one event"),
		replayBatch: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "batch_size",
			Help:        "Events delivered per replay pass",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{1, 2, 4, 8, 16, 32},
		}),
		handlerPanics: counter("handler_panics_total", "Recovered handler panics"),
		upgradesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "upgrades_total",
			Help:        "Upgrade adapters settled, by final state",
			ConstLabels: config.ConstLabels,
		}, []string{"state"}),
		upgradeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "upgrade_duration_seconds",
			Help:        "Time from snapshot to handler registration",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),
		staleActions: counter("stale_actions_total", "Actions skipped because their path went stale"),
		activePages: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_pages",
			Help:        "Pages currently hosted",
			ConstLabels: config.ConstLabels,
		}),
		streamMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "stream_messages_total",
			Help:        "Websocket frames by direction",
			ConstLabels: config.ConstLabels,
		}, []string{"direction"}),
	}
}

// PageOpened records a new hosted page.
func (m *Metrics) PageOpened() {
	if m != nil {
		m.activePages.Inc()
	}
}

// PageClosed records a page going away.
func (m *Metrics) PageClosed() {
	if m != nil {
		m.activePages.Dec()
	}
}

// StreamMessage records one websocket frame. direction is "in" or "out".
func (m *Metrics) StreamMessage(direction string) {
	if m != nil {
		m.streamMessages.WithLabelValues(direction).Inc()
	}
}

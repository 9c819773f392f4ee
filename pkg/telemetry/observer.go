package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/replay/pkg/dom"
	"github.com/vango-dev/replay/pkg/jsaction"
	"github.com/vango-dev/replay/pkg/nodepath"
	"github.com/vango-dev/replay/pkg/upgrade"
)

// Default tracer name.
const defaultTracerName = "replay"

// Observer turns dispatcher and adapter hooks into metrics and spans.
// Metrics may be nil, in which case only spans are produced.
type Observer struct {
	metrics *Metrics
	tracer  trace.Tracer
}

// NewObserver creates an observer. The tracer comes from the global
// OpenTelemetry provider.
func NewObserver(m *Metrics, tracerName string) *Observer {
	if tracerName == "" {
		tracerName = defaultTracerName
	}
	return &Observer{metrics: m, tracer: otel.Tracer(tracerName)}
}

// NewObserverWithTracer creates an observer using tracer.
func NewObserverWithTracer(m *Metrics, tracer trace.Tracer) *Observer {
	return &Observer{metrics: m, tracer: tracer}
}

// Metrics returns the metrics, or nil.
func (o *Observer) Metrics() *Metrics {
	return o.metrics
}

// Tracer returns the tracer spans are started on.
func (o *Observer) Tracer() trace.Tracer {
	return o.tracer
}

// DispatcherHooks returns hooks for the dispatcher of page pageID.
func (o *Observer) DispatcherHooks(pageID string) jsaction.Hooks {
	page := attribute.String("replay.page_id", pageID)
	return jsaction.Hooks{
		OnBuffered: func(info jsaction.EventInfo) {
			if o.metrics != nil {
				o.metrics.eventsBuffered.Inc()
			}
		},
		OnQueued: func(info jsaction.EventInfo) {
			if o.metrics != nil {
				o.metrics.eventsQueued.Inc()
			}
		},
		OnDispatched: func(info jsaction.EventInfo, replayed bool) {
			if o.metrics == nil {
				return
			}
			mode := "live"
			if replayed {
				mode = "replayed"
			}
			o.metrics.eventsDispatched.WithLabelValues(mode).Inc()
		},
		OnSuperseded: func(dropped, kept jsaction.EventInfo) {
			if o.metrics != nil {
				o.metrics.eventsSuperseded.Inc()
			}
		},
		OnReplay: func(stats jsaction.ReplayStats) {
			if o.metrics != nil && stats.Delivered > 0 {
				o.metrics.replayPasses.Inc()
				o.metrics.replayBatch.Observe(float64(stats.Delivered))
			}
			_, span := o.tracer.Start(context.Background(), "jsaction.replay",
				trace.WithAttributes(
					page,
					attribute.Int("replay.scanned", stats.Scanned),
					attribute.Int("replay.delivered", stats.Delivered),
					attribute.Int("replay.superseded", stats.Superseded),
					attribute.Int("replay.remaining", stats.Remaining),
				))
			span.End()
		},
		OnHandlerPanic: func(info jsaction.EventInfo, recovered any) {
			if o.metrics != nil {
				o.metrics.handlerPanics.Inc()
			}
			_, span := o.tracer.Start(context.Background(), "jsaction.handler",
				trace.WithAttributes(page, attribute.String("replay.action", info.Action.String())))
			span.SetStatus(codes.Error, fmt.Sprint(recovered))
			span.End()
		},
	}
}

// UpgradeHooks returns hooks for the upgrade adapters of page pageID.
func (o *Observer) UpgradeHooks(pageID string) upgrade.Hooks {
	page := attribute.String("replay.page_id", pageID)
	return upgrade.Hooks{
		OnStale: func(el *dom.Node, action string, path nodepath.Path) {
			if o.metrics != nil {
				o.metrics.staleActions.Inc()
			}
			_, span := o.tracer.Start(context.Background(), "upgrade.stale",
				trace.WithAttributes(
					page,
					attribute.String("replay.tag", el.Tag),
					attribute.String("replay.action", action),
					attribute.String("replay.path", path.String()),
				))
			span.SetStatus(codes.Error, "stale path")
			span.End()
		},
		OnUpgraded: func(el *dom.Node, registered int, took time.Duration) {
			if o.metrics != nil {
				o.metrics.upgradeDuration.Observe(took.Seconds())
			}
			end := time.Now()
			_, span := o.tracer.Start(context.Background(), "upgrade.connect",
				trace.WithTimestamp(end.Add(-took)),
				trace.WithAttributes(
					page,
					attribute.String("replay.tag", el.Tag),
					attribute.Int("replay.registered", registered),
				))
			span.End(trace.WithTimestamp(end))
		},
		OnSettled: func(el *dom.Node, final upgrade.State) {
			if o.metrics != nil {
				o.metrics.upgradesTotal.WithLabelValues(final.String()).Inc()
			}
		},
	}
}

// Package telemetry exposes OpenTelemetry counters for the commit pipeline.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Scope is the instrumentation scope of every lattice instrument.
const Scope = "lattice/pipeline"

// Meter returns the global meter for the given instrumentation scope.
func Meter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}

// Pipeline holds the pipeline counters. A nil *Pipeline records nothing.
type Pipeline struct {
	events      metric.Int64Counter
	failures    metric.Int64Counter
	diagnostics metric.Int64Counter
	relays      metric.Int64Counter
	dispatched  metric.Int64Counter
}

// New creates the counters on meter.
func New(meter metric.Meter) *Pipeline {
	p := &Pipeline{}
	p.events, _ = meter.Int64Counter("lattice.events.notified",
		metric.WithDescription("Events delivered to observer channels"),
	)
	p.failures, _ = meter.Int64Counter("lattice.observer.failures",
		metric.WithDescription("Observer callbacks that failed or panicked"),
	)
	p.diagnostics, _ = meter.Int64Counter("lattice.diagnostics",
		metric.WithDescription("Diagnostics produced by constraint evaluation"),
	)
	p.relays, _ = meter.Int64Counter("lattice.dispatch.relays",
		metric.WithDescription("Unhandled foreign events relayed into the active session"),
	)
	p.dispatched, _ = meter.Int64Counter("lattice.dispatch.commands",
		metric.WithDescription("Commands executed by dispatch handlers"),
	)
	return p
}

var (
	defaultOnce sync.Once
	defaultP    *Pipeline
)

// Default returns counters bound to the global meter provider. Instruments
// created before otel.SetMeterProvider is called are forwarded by the
// global delegate.
func Default() *Pipeline {
	defaultOnce.Do(func() {
		defaultP = New(Meter(Scope))
	})
	return defaultP
}

// EventNotified counts one delivery on channel for domain.
func (p *Pipeline) EventNotified(ctx context.Context, domain, channel string) {
	if p == nil || p.events == nil {
		return
	}
	p.events.Add(ctx, 1, metric.WithAttributes(
		attribute.String("domain", domain),
		attribute.String("channel", channel),
	))
}

// ObserverFailed counts one isolated observer failure.
func (p *Pipeline) ObserverFailed(ctx context.Context, channel string) {
	if p == nil || p.failures == nil {
		return
	}
	p.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel)))
}

// Diagnostics counts n diagnostics of the given severity.
func (p *Pipeline) Diagnostics(ctx context.Context, severity string, n int) {
	if p == nil || p.diagnostics == nil || n == 0 {
		return
	}
	p.diagnostics.Add(ctx, int64(n), metric.WithAttributes(attribute.String("severity", severity)))
}

// Relayed counts one relayed event.
func (p *Pipeline) Relayed(ctx context.Context, kind string) {
	if p == nil || p.relays == nil {
		return
	}
	p.relays.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// CommandsDispatched counts commands returned by dispatch handlers.
func (p *Pipeline) CommandsDispatched(ctx context.Context, kind string, n int) {
	if p == nil || p.dispatched == nil || n == 0 {
		return
	}
	p.dispatched.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
}

// Package tracing installs an OpenTelemetry tracer provider and offers span
// helpers for command-frame dispatch (StartFrame) and time-request grant
// cycles (StartGrantCycle, EndWithOutcome). The broker-base command loop
// and the core do not call these helpers, so a running node records no
// frame or grant-cycle spans.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/timmyreynolds/HELICS"

// InstallProvider builds an SDK TracerProvider for a node process, labeled
// with its component name (broker/core) and registers it as the global
// provider, so every package's Tracer() call below produces real spans
// instead of the otel no-op default. cmd/ binaries call this once at
// startup; tests never need to, since an unregistered tracer is a safe
// no-op.
func InstallProvider(component string) (*sdktrace.TracerProvider, error) {
	res, err := sdkresource.New(context.Background(),
		sdkresource.WithAttributes(attribute.String("service.name", component)),
	)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	return tp, nil
}

// Tracer returns the package-scoped tracer used across the node packages.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartFrame begins a span for one command-frame dispatch.
func StartFrame(ctx context.Context, component, action string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "frame.dispatch",
		trace.WithAttributes(
			attribute.String("helics.component", component),
			attribute.String("helics.action", action),
		),
	)
}

// StartGrantCycle begins a span covering a time request from submission to
// its eventual grant, iterate, timeout or disconnect outcome.
func StartGrantCycle(ctx context.Context, federate string, requested int64) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "timecoord.grant_cycle",
		trace.WithAttributes(
			attribute.String("helics.federate", federate),
			attribute.Int64("helics.requested_time", requested),
		),
	)
}

// EndWithOutcome records the grant-cycle outcome and ends the span.
func EndWithOutcome(span trace.Span, outcome string, granted int64) {
	span.SetAttributes(
		attribute.String("helics.outcome", outcome),
		attribute.Int64("helics.granted_time", granted),
	)
	span.End()
}

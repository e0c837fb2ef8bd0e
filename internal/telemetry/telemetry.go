// SPDX-License-Identifier: MPL-2.0

// Package telemetry holds the OpenTelemetry instruments shared by the planner
// and the executor. New draws them from the global providers, which are no-ops
// unless the embedding process installs an SDK; Setup builds SDK providers for
// a configured exporter instead.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/sofastack/sofa-ark-sub003/pkg/arkmod"
)

// ScopeName is the instrumentation scope of every arkctl tracer and meter.
const ScopeName = "github.com/sofastack/sofa-ark-sub003"

// Attribute keys used on spans and metrics.
var (
	AttrModule    = attribute.Key("arkctl.module")
	AttrOperation = attribute.Key("arkctl.operation")
	AttrPlanID    = attribute.Key("arkctl.plan.id")
	AttrPlanOps   = attribute.Key("arkctl.plan.operations")
	AttrOutcome   = attribute.Key("arkctl.outcome")
)

// Exporter names accepted by Setup.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// Metric names.
const (
	MetricOperations = "arkctl.executor.operations"
	MetricDuration   = "arkctl.executor.operation.duration"
	MetricPlans      = "arkctl.planner.plans"
)

// ErrUnknownExporter is returned by Setup for an exporter it cannot build.
var ErrUnknownExporter = errors.New("unknown telemetry exporter")

// Instruments bundles the tracer and metric instruments.
type Instruments struct {
	Tracer     trace.Tracer
	Operations metric.Int64Counter
	Duration   metric.Float64Histogram
	Plans      metric.Int64Counter
}

// New creates instruments from the global providers.
func New() *Instruments {
	return NewWithProviders(otel.GetTracerProvider(), otel.GetMeterProvider())
}

// NewWithProviders creates instruments from tp and mp. Instrument creation
// errors are reported to the global handler and leave a no-op instrument.
func NewWithProviders(tp trace.TracerProvider, mp metric.MeterProvider) *Instruments {
	meter := mp.Meter(ScopeName)
	ops, err := meter.Int64Counter(MetricOperations,
		metric.WithDescription("Executed lifecycle operations by kind and outcome"))
	if err != nil {
		otel.Handle(err)
	}
	dur, err := meter.Float64Histogram(MetricDuration,
		metric.WithDescription("Lifecycle operation duration"),
		metric.WithUnit("s"))
	if err != nil {
		otel.Handle(err)
	}
	plans, err := meter.Int64Counter(MetricPlans,
		metric.WithDescription("Planning passes by outcome"))
	if err != nil {
		otel.Handle(err)
	}
	return &Instruments{
		Tracer:     tp.Tracer(ScopeName),
		Operations: ops,
		Duration:   dur,
		Plans:      plans,
	}
}

// Setup builds instruments for exporter. ExporterStdout writes spans as they
// end and metrics periodically and on shutdown, as JSON to w. The returned
// shutdown flushes and stops the providers; it is never nil.
func Setup(exporter string, w io.Writer) (*Instruments, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	switch exporter {
	case "", ExporterNone:
		return New(), noop, nil
	case ExporterStdout:
	default:
		return nil, noop, fmt.Errorf("%w: %q", ErrUnknownExporter, exporter)
	}

	spanExp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, noop, fmt.Errorf("create span exporter: %w", err)
	}
	metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, noop, fmt.Errorf("create metric exporter: %w", err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", "arkctl"))
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spanExp), sdktrace.WithResource(res))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	shutdown := func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}
	return NewWithProviders(tp, mp), shutdown, nil
}

// OperationAttrs returns the span and metric attributes of an operation.
func OperationAttrs(op arkmod.Operation) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrOperation.String(op.Kind.String()),
		AttrModule.String(op.Target.String()),
	}
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CountPlan records one planning pass.
func (in *Instruments) CountPlan(ctx context.Context, outcome string) {
	if in == nil || in.Plans == nil {
		return
	}
	in.Plans.Add(ctx, 1, metric.WithAttributes(AttrOutcome.String(outcome)))
}

// RecordOperation records one executed operation.
func (in *Instruments) RecordOperation(ctx context.Context, op arkmod.Operation, outcome string, seconds float64) {
	if in == nil {
		return
	}
	attrs := metric.WithAttributes(append(OperationAttrs(op), AttrOutcome.String(outcome))...)
	if in.Operations != nil {
		in.Operations.Add(ctx, 1, attrs)
	}
	if in.Duration != nil {
		in.Duration.Record(ctx, seconds, attrs)
	}
}

// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/sofastack/sofa-ark-sub003/internal/telemetry"
)

// Telemetry records the spans and metrics of its Instruments in memory.
type Telemetry struct {
	Instruments *telemetry.Instruments
	Spans       *tracetest.SpanRecorder
	Reader      *sdkmetric.ManualReader
}

// NewTelemetry creates in-memory providers and instruments on top of them.
func NewTelemetry() *Telemetry {
	spans := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return &Telemetry{
		Instruments: telemetry.NewWithProviders(tp, mp),
		Spans:       spans,
		Reader:      reader,
	}
}

// SpanNames returns the names of the ended spans in end order.
func (tel *Telemetry) SpanNames() []string {
	ended := tel.Spans.Ended()
	out := make([]string, len(ended))
	for i, s := range ended {
		out[i] = s.Name()
	}
	return out
}

// EndedSpan returns the first ended span called name.
func (tel *Telemetry) EndedSpan(name string) (sdktrace.ReadOnlySpan, bool) {
	for _, s := range tel.Spans.Ended() {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// Count sums the data points of the int64 counter name whose attributes
// include every attr. Histograms count their recorded values.
func (tel *Telemetry) Count(t testing.TB, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := tel.Reader.Collect(t.Context(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					if hasAll(dp.Attributes, attrs) {
						total += dp.Value
					}
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					if hasAll(dp.Attributes, attrs) {
						total += int64(dp.Count)
					}
				}
			}
		}
	}
	return total
}

func hasAll(set attribute.Set, attrs []attribute.KeyValue) bool {
	for _, kv := range attrs {
		v, ok := set.Value(kv.Key)
		if !ok || v.Emit() != kv.Value.Emit() {
			return false
		}
	}
	return true
}

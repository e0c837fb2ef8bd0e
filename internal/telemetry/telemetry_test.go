// SPDX-License-Identifier: MPL-2.0

package telemetry_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/sofastack/sofa-ark-sub003/internal/telemetry"
	"github.com/sofastack/sofa-ark-sub003/internal/testutil"
	"github.com/sofastack/sofa-ark-sub003/pkg/arkmod"
)

func TestInstrumentsRecord(t *testing.T) {
	t.Parallel()

	tel := testutil.NewTelemetry()
	inst := tel.Instruments
	ctx := t.Context()

	_, span := inst.Tracer.Start(ctx, "work")
	telemetry.EndSpan(span, errors.New("boom"))

	ended, ok := tel.EndedSpan("work")
	if !ok {
		t.Fatalf("spans = %v, want work", tel.SpanNames())
	}
	if ended.Status().Code != codes.Error || ended.Status().Description != "boom" {
		t.Errorf("status = %+v, want error boom", ended.Status())
	}
	if len(ended.Events()) != 1 || ended.Events()[0].Name != "exception" {
		t.Errorf("events = %v, want one exception", ended.Events())
	}

	op := arkmod.Operation{Kind: arkmod.OpInstall, Target: arkmod.NewKey("orders", "1.0")}
	inst.CountPlan(ctx, "ok")
	inst.CountPlan(ctx, "ok")
	inst.CountPlan(ctx, "error")
	inst.RecordOperation(ctx, op, "ok", 0.25)

	tests := []struct {
		name    string
		metric  string
		outcome string
		want    int64
	}{
		{name: "all plans", metric: telemetry.MetricPlans, want: 3},
		{name: "failed plans", metric: telemetry.MetricPlans, outcome: "error", want: 1},
		{name: "operations", metric: telemetry.MetricOperations, outcome: "ok", want: 1},
		{name: "durations", metric: telemetry.MetricDuration, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var attrs []attribute.KeyValue
			if tt.outcome != "" {
				attrs = append(attrs, telemetry.AttrOutcome.String(tt.outcome))
			}
			if got := tel.Count(t, tt.metric, attrs...); got != tt.want {
				t.Errorf("Count(%s) = %d, want %d", tt.metric, got, tt.want)
			}
		})
	}
}

func TestNilInstrumentsAreSafe(t *testing.T) {
	t.Parallel()

	var inst *telemetry.Instruments
	inst.CountPlan(t.Context(), "ok")
	inst.RecordOperation(t.Context(), arkmod.Operation{Kind: arkmod.OpUninstall}, "ok", 0)
}

func TestSetup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		exporter string
		wantErr  error
		wantOut  []string
	}{
		{name: "empty", exporter: ""},
		{name: "none", exporter: telemetry.ExporterNone},
		{
			name:     "stdout",
			exporter: telemetry.ExporterStdout,
			wantOut:  []string{`"Name":"planner.Plan"`, telemetry.MetricPlans, "arkctl"},
		},
		{name: "unknown", exporter: "otlp", wantErr: telemetry.ErrUnknownExporter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			inst, shutdown, err := telemetry.Setup(tt.exporter, &out)
			if shutdown == nil {
				t.Fatal("Setup() returned a nil shutdown")
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Setup() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Setup() error = %v", err)
			}

			_, span := inst.Tracer.Start(t.Context(), "planner.Plan")
			telemetry.EndSpan(span, nil)
			inst.CountPlan(t.Context(), "ok")
			if err := shutdown(t.Context()); err != nil {
				t.Fatalf("shutdown() error = %v", err)
			}

			if len(tt.wantOut) == 0 && out.Len() != 0 {
				t.Errorf("output = %q, want none", out.String())
			}
			for _, want := range tt.wantOut {
				if !strings.Contains(out.String(), want) {
					t.Errorf("output = %q, missing %q", out.String(), want)
				}
			}
		})
	}
}

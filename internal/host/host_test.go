// SPDX-License-Identifier: MPL-2.0

package host

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/sofastack/sofa-ark-sub003/internal/config"
	"github.com/sofastack/sofa-ark-sub003/internal/executor"
	"github.com/sofastack/sofa-ark-sub003/internal/resolve"
	"github.com/sofastack/sofa-ark-sub003/internal/telemetry"
	"github.com/sofastack/sofa-ark-sub003/internal/testutil"
	"github.com/sofastack/sofa-ark-sub003/pkg/arkmod"
)

// starts records entry point starts in order.
type starts struct {
	mu     sync.Mutex
	keys   []string
	params map[string]map[string]string
}

func (s *starts) entryPoint() EntryPoint {
	return EntryPoint{
		Start: func(_ context.Context, rec arkmod.Record, params map[string]string) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.keys = append(s.keys, rec.Key().String())
			if s.params == nil {
				s.params = make(map[string]map[string]string)
			}
			s.params[rec.Key().String()] = params
			return nil
		},
	}
}

func (s *starts) order() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.keys)
}

func newHost(t *testing.T, mutate func(*config.Config)) (*Host, *testutil.MemSource, *starts) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Loader.Timeout = 5 * time.Second
	if mutate != nil {
		mutate(cfg)
	}
	src := testutil.NewMemSource()
	h, err := New(cfg, WithSource(src))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	rec := &starts{}
	if err := h.RegisterEntryPoint("main", rec.entryPoint()); err != nil {
		t.Fatalf("RegisterEntryPoint() error = %v", err)
	}
	return h, src, rec
}

func biz(name, version string) arkmod.Descriptor {
	return arkmod.Descriptor{Name: name, Version: version, Kind: arkmod.KindBiz, EntryPoint: "main"}
}

func plugin(name, version string) arkmod.Descriptor {
	return arkmod.Descriptor{Name: name, Version: version, Kind: arkmod.KindPlugin, EntryPoint: "main"}
}

func states(t *testing.T, h *Host) map[string]arkmod.State {
	t.Helper()
	rows, err := h.QueryState("", "")
	if err != nil {
		t.Fatalf("QueryState() error = %v", err)
	}
	out := make(map[string]arkmod.State, len(rows))
	for _, r := range rows {
		out[r.Key.String()] = r.State
	}
	return out
}

func TestReconcileInstallSwitchAndIdempotence(t *testing.T) {
	t.Parallel()

	h, src, rec := newHost(t, nil)
	src.Add(biz("orders", "1.0"))
	src.Add(biz("orders", "2.0"))

	ctx := t.Context()
	if _, _, err := h.Reconcile(ctx, "orders:1.0:ACTIVATED", h.Options()); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if _, _, err := h.Reconcile(ctx, "orders:1.0:DEACTIVATED;orders:2.0:ACTIVATED?region=eu", h.Options()); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	got := states(t, h)
	want := map[string]arkmod.State{"orders:1.0": arkmod.StateDeactivated, "orders:2.0": arkmod.StateActivated}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("states = %v, want %v", got, want)
	}
	if p := rec.params["orders:2.0"]; p["region"] != "eu" {
		t.Errorf("start params = %v, want region=eu", p)
	}

	plan, report, err := h.Reconcile(ctx, h.DesiredString(), h.Options())
	if err != nil {
		t.Fatalf("Reconcile(DesiredString()) error = %v", err)
	}
	if !plan.Empty() || len(report.Succeeded) != 0 {
		t.Errorf("re-applying the current state should be a no-op, got %v", plan.Operations)
	}
}

func TestPlanDoesNotMutate(t *testing.T) {
	t.Parallel()

	h, src, _ := newHost(t, nil)
	src.Add(biz("orders", "1.0"))

	plan, err := h.Plan(t.Context(), "orders:1.0:ACTIVATED")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(plan.Operations) != 1 || plan.Operations[0].Kind != arkmod.OpInstall {
		t.Fatalf("plan = %v, want one INSTALL", plan.Operations)
	}
	if len(states(t, h)) != 0 {
		t.Error("Plan() must not change the registry")
	}

	report := h.Execute(t.Context(), plan, h.Options())
	if !report.OK() {
		t.Fatalf("Execute() report = %+v", report)
	}
	if got := states(t, h)["orders:1.0"]; got != arkmod.StateActivated {
		t.Errorf("state = %s, want ACTIVATED", got)
	}
}

func TestReconcileRejectsBadDesiredState(t *testing.T) {
	t.Parallel()

	h, _, _ := newHost(t, nil)
	_, _, err := h.Reconcile(t.Context(), "a:1:ACTIVATED;a:2:ACTIVATED", h.Options())
	if !errors.Is(err, arkmod.ErrMultipleActiveVersions) {
		t.Fatalf("Reconcile() error = %v, want ErrMultipleActiveVersions", err)
	}
	_, _, err = h.Reconcile(t.Context(), "a:1", h.Options())
	if !errors.Is(err, arkmod.ErrInvalidConfig) {
		t.Fatalf("Reconcile() error = %v, want ErrInvalidConfig", err)
	}
}

func TestUnknownEntryPointBreaksModule(t *testing.T) {
	t.Parallel()

	h, src, _ := newHost(t, nil)
	d := biz("orders", "1.0")
	d.EntryPoint = "missing"
	src.Add(d)

	_, _, err := h.Reconcile(t.Context(), "orders:1.0:ACTIVATED", h.Options())
	if !errors.Is(err, ErrUnknownEntryPoint) {
		t.Fatalf("Reconcile() error = %v, want ErrUnknownEntryPoint", err)
	}
	if got := states(t, h)["orders:1.0"]; got != arkmod.StateBroken {
		t.Errorf("state = %s, want BROKEN", got)
	}

	// Dropping the broken version from the desired state removes it.
	if _, _, err := h.Reconcile(t.Context(), "", h.Options()); err != nil {
		t.Fatalf("Reconcile(empty) error = %v", err)
	}
	if len(states(t, h)) != 0 {
		t.Errorf("states = %v, want empty", states(t, h))
	}
}

func TestReconcileRetriesBrokenVersion(t *testing.T) {
	t.Parallel()

	h, src, rec := newHost(t, nil)
	src.Add(biz("orders", "1.0"))
	src.Add(biz("orders", "2.0"))
	ctx := t.Context()
	if _, _, err := h.Reconcile(ctx, "orders:1.0:ACTIVATED", h.Options()); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	upgrade := "orders:2.0:ACTIVATED;orders:1.0:DEACTIVATED"
	src.FailLoad(arkmod.NewKey("orders", "2.0"), errors.New("registry unavailable"))
	if _, _, err := h.Reconcile(ctx, upgrade, h.Options()); !errors.Is(err, arkmod.ErrModuleLoad) {
		t.Fatalf("Reconcile() error = %v, want ErrModuleLoad", err)
	}
	if got := states(t, h)["orders:2.0"]; got != arkmod.StateBroken {
		t.Fatalf("orders:2.0 = %s, want BROKEN", got)
	}

	// The same desired state converges once the load succeeds.
	src.FailLoad(arkmod.NewKey("orders", "2.0"), nil)
	plan, _, err := h.Reconcile(ctx, upgrade, h.Options())
	if err != nil {
		t.Fatalf("retry Reconcile() error = %v", err)
	}
	if len(plan.Operations) == 0 || plan.Operations[0].Kind != arkmod.OpUninstall {
		t.Errorf("retry plan = %v, want it to start with UNINSTALL", plan.Operations)
	}
	got := states(t, h)
	want := map[string]arkmod.State{"orders:1.0": arkmod.StateDeactivated, "orders:2.0": arkmod.StateActivated}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("states = %v, want %v", got, want)
	}
	if order := rec.order(); !slices.Equal(order, []string{"orders:1.0", "orders:2.0"}) {
		t.Errorf("starts = %v", order)
	}
}

func TestReconcileEmitsTelemetry(t *testing.T) {
	t.Parallel()

	tel := testutil.NewTelemetry()
	src := testutil.NewMemSource(biz("orders", "1.0"), biz("orders", "2.0"))
	h, err := New(config.DefaultConfig(), WithSource(src), WithInstruments(tel.Instruments))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := h.RegisterEntryPoint("main", (&starts{}).entryPoint()); err != nil {
		t.Fatal(err)
	}

	ctx := t.Context()
	if _, _, err := h.Reconcile(ctx, "orders:1.0:ACTIVATED", h.Options()); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	src.FailLoad(arkmod.NewKey("orders", "2.0"), errors.New("registry unavailable"))
	if _, _, err := h.Reconcile(ctx, "orders:2.0:ACTIVATED;orders:1.0:DEACTIVATED", h.Options()); err == nil {
		t.Fatal("Reconcile() with a failing load succeeded")
	}
	if _, _, err := h.Reconcile(ctx, "orders:1.0", h.Options()); !errors.Is(err, arkmod.ErrInvalidConfig) {
		t.Fatalf("Reconcile() error = %v, want ErrInvalidConfig", err)
	}

	names := tel.SpanNames()
	for _, want := range []string{"planner.Plan", "executor.Execute", "executor.INSTALL"} {
		if !slices.Contains(names, want) {
			t.Errorf("spans = %v, missing %s", names, want)
		}
	}
	if slices.Contains(names, "executor.SWITCH") {
		t.Errorf("spans = %v, the SWITCH after a failed INSTALL should be skipped", names)
	}
	failed := 0
	for _, s := range tel.Spans.Ended() {
		if s.Name() == "executor.INSTALL" && s.Status().Code == codes.Error {
			failed++
		}
	}
	if failed != 1 {
		t.Errorf("failed INSTALL spans = %d, want 1", failed)
	}

	install := telemetry.AttrOperation.String(string(arkmod.OpInstall))
	tests := []struct {
		name   string
		metric string
		attrs  []attribute.KeyValue
		want   int64
	}{
		{name: "planned", metric: telemetry.MetricPlans, attrs: []attribute.KeyValue{telemetry.AttrOutcome.String("ok")}, want: 2},
		{name: "rejected", metric: telemetry.MetricPlans, attrs: []attribute.KeyValue{telemetry.AttrOutcome.String("error")}, want: 1},
		{name: "installs", metric: telemetry.MetricOperations, attrs: []attribute.KeyValue{install, telemetry.AttrOutcome.String("ok")}, want: 1},
		{name: "failed installs", metric: telemetry.MetricOperations, attrs: []attribute.KeyValue{install, telemetry.AttrOutcome.String("error")}, want: 1},
		{name: "timed", metric: telemetry.MetricDuration, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tel.Count(t, tt.metric, tt.attrs...); got != tt.want {
				t.Errorf("Count(%s) = %d, want %d", tt.metric, got, tt.want)
			}
		})
	}
}

func TestRegisterEntryPointErrors(t *testing.T) {
	t.Parallel()

	h, _, _ := newHost(t, nil)
	if err := h.RegisterEntryPoint("", EntryPoint{}); err == nil {
		t.Error("empty name should be rejected")
	}
	if err := h.RegisterEntryPoint("main", EntryPoint{}); !errors.Is(err, ErrDuplicateEntryPoint) {
		t.Errorf("duplicate error = %v, want ErrDuplicateEntryPoint", err)
	}
}

func TestResolveThroughHost(t *testing.T) {
	t.Parallel()

	h, src, _ := newHost(t, func(c *config.Config) {
		c.Resolver.BasePackages = []string{"java.lang"}
		c.Resolver.PrimaryModule = "master"
	})

	lib := plugin("lib", "1.0")
	lib.ExportPackages = []string{"com.lib"}
	lib.Provides.Types = []string{"com.lib.Util"}
	src.Add(lib)

	master := biz("master", "1.0")
	master.Provides.Types = []string{"com.master.Model"}
	src.Add(master)

	app := biz("app", "1.0")
	app.ImportPackages = []string{"com.lib"}
	src.Add(app)

	if _, _, err := h.Reconcile(t.Context(), "lib:1.0:ACTIVATED;master:1.0:ACTIVATED;app:1.0:ACTIVATED", h.Options()); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	requester := arkmod.NewKey("app", "1.0")
	tests := []struct {
		symbol    string
		wantScope resolve.ScopeKind
		wantOwner arkmod.Key
	}{
		{symbol: "com.lib.Util", wantScope: resolve.ScopeImport, wantOwner: lib.Key()},
		{symbol: "java.lang.String", wantScope: resolve.ScopeBase},
		{symbol: "com.master.Model", wantScope: resolve.ScopeHook, wantOwner: master.Key()},
		{symbol: "org.unknown.Thing", wantScope: resolve.ScopeNone},
	}
	for _, tt := range tests {
		res := h.Resolve(requester, tt.symbol, arkmod.SymbolType)
		if res.Scope != tt.wantScope {
			t.Errorf("Resolve(%s).Scope = %q, want %q", tt.symbol, res.Scope, tt.wantScope)
			continue
		}
		if tt.wantOwner != (arkmod.Key{}) && res.First().Owner() != tt.wantOwner {
			t.Errorf("Resolve(%s) owner = %s, want %s", tt.symbol, res.First().Owner(), tt.wantOwner)
		}
	}

	if got := h.Exporters("com.lib.Util", arkmod.SymbolType); len(got) != 1 || got[0].Key() != lib.Key() {
		t.Errorf("Exporters() = %v", got)
	}
}

func TestCustomHookThroughHost(t *testing.T) {
	t.Parallel()

	h, src, _ := newHost(t, nil)
	src.Add(biz("app", "1.0"))
	if _, _, err := h.Reconcile(t.Context(), "app:1.0:ACTIVATED", h.Options()); err != nil {
		t.Fatal(err)
	}

	err := h.RegisterHook(resolve.PreResolve, "deny-internal", 1, func(req resolve.Request, _ resolve.View) (resolve.Result, bool) {
		return resolve.Result{}, req.Symbol == "com.internal.Secret"
	})
	if err != nil {
		t.Fatalf("RegisterHook() error = %v", err)
	}
	if res := h.Resolve(arkmod.NewKey("app", "1.0"), "com.internal.Secret", arkmod.SymbolType); res.Found() {
		t.Error("pre-hook should short-circuit to NotFound")
	}
	if !h.UnregisterHook(resolve.PreResolve, "deny-internal") {
		t.Error("UnregisterHook() = false")
	}
}

func TestQueryState(t *testing.T) {
	t.Parallel()

	h, src, _ := newHost(t, nil)
	src.Add(biz("b", "1.0"))
	src.Add(biz("a", "10.0"))
	src.Add(biz("a", "9.0"))
	if _, _, err := h.Reconcile(t.Context(), "a:9.0:DEACTIVATED;a:10.0:ACTIVATED;b:1.0:ACTIVATED", h.Options()); err != nil {
		t.Fatal(err)
	}

	all, err := h.QueryState("", "")
	if err != nil {
		t.Fatal(err)
	}
	var keys []string
	for _, row := range all {
		keys = append(keys, row.Key.String())
	}
	if want := []string{"a:9.0", "a:10.0", "b:1.0"}; !slices.Equal(keys, want) {
		t.Errorf("QueryState order = %v, want %v", keys, want)
	}

	versions, err := h.QueryState("a", "")
	if err != nil || len(versions) != 2 {
		t.Errorf("QueryState(a) = %v, %v", versions, err)
	}

	one, err := h.QueryState("a", "10.0")
	if err != nil || len(one) != 1 || one[0].State != arkmod.StateActivated || !one[0].Visible {
		t.Errorf("QueryState(a, 10.0) = %+v, %v", one, err)
	}

	if _, err := h.QueryState("a", "11.0"); !errors.Is(err, arkmod.ErrModuleNotFound) {
		t.Errorf("QueryState(missing) error = %v, want ErrModuleNotFound", err)
	}
}

func TestOnEventObservesLifecycle(t *testing.T) {
	t.Parallel()

	h, src, _ := newHost(t, nil)
	src.Add(biz("app", "1.0"))
	src.Add(biz("app", "2.0"))

	var (
		mu    sync.Mutex
		kinds []executor.EventKind
	)
	h.OnEvent(10, func(_ context.Context, ev executor.Event) error {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, ev.Kind)
		return nil
	})

	if _, _, err := h.Reconcile(t.Context(), "app:1.0:ACTIVATED", h.Options()); err != nil {
		t.Fatal(err)
	}
	if _, _, err := h.Reconcile(t.Context(), "app:2.0:ACTIVATED", h.Options()); err != nil {
		t.Fatal(err)
	}

	want := []executor.EventKind{
		executor.BeforeActivate, executor.AfterActivate,
		executor.BeforeDeactivate, executor.AfterDeactivate,
		executor.BeforeActivate, executor.AfterActivate,
	}
	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(kinds, want) {
		t.Errorf("events = %v, want %v", kinds, want)
	}
}

func TestNewRejectsUnknownPolicy(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Executor.Policy = "retry"
	if _, err := New(cfg, WithSource(testutil.NewMemSource())); err == nil {
		t.Fatal("New() should reject an unknown policy")
	}
}

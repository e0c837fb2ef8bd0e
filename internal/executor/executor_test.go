// SPDX-License-Identifier: MPL-2.0

package executor

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/sofastack/sofa-ark-sub003/internal/lifecycle"
	"github.com/sofastack/sofa-ark-sub003/internal/planner"
	"github.com/sofastack/sofa-ark-sub003/internal/registry"
	"github.com/sofastack/sofa-ark-sub003/internal/service"
	"github.com/sofastack/sofa-ark-sub003/pkg/arkmod"
)

type (
	fakeLoader struct {
		mu      sync.Mutex
		descs   map[arkmod.Key]arkmod.Descriptor
		failing map[arkmod.Key]error
		hang    chan struct{}
		hangOn  arkmod.Key
		closed  []string
	}

	closingNamespace struct {
		*arkmod.SymbolNamespace
		loader *fakeLoader
	}

	fakeVisibility struct {
		mu      sync.Mutex
		visible map[arkmod.Key]bool
	}

	recordingRunner struct {
		mu        sync.Mutex
		calls     []string
		failStart map[arkmod.Key]error
	}

	env struct {
		reg      *registry.Registry
		vis      *fakeVisibility
		services *service.Registry
		loader   *fakeLoader
		runner   *recordingRunner
		exec     *Executor

		mu     sync.Mutex
		events []string
	}
)

func (l *fakeLoader) LoadDescriptor(ctx context.Context, loc arkmod.Locator) (arkmod.Descriptor, error) {
	if loc.Key == l.hangOn {
		<-l.hang
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.failing[loc.Key]; err != nil {
		return arkmod.Descriptor{}, err
	}
	d, ok := l.descs[loc.Key]
	if !ok {
		return arkmod.Descriptor{}, errors.New("no such module")
	}
	return d, nil
}

func (l *fakeLoader) MaterializeNamespace(_ context.Context, d arkmod.Descriptor) (arkmod.Namespace, error) {
	key := d.Key()
	return &closingNamespace{
		SymbolNamespace: arkmod.NewSymbolNamespace(key.String(), key, d.Provides.Types, d.Provides.Resources),
		loader:          l,
	}, nil
}

func (n *closingNamespace) Close() error {
	n.loader.mu.Lock()
	defer n.loader.mu.Unlock()
	n.loader.closed = append(n.loader.closed, n.ID())
	return nil
}

func (v *fakeVisibility) Publish(key arkmod.Key) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.visible[key] = true
}

func (v *fakeVisibility) Withdraw(key arkmod.Key) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.visible, key)
}

func (v *fakeVisibility) isVisible(key arkmod.Key) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.visible[key]
}

func (r *recordingRunner) Start(_ context.Context, rec arkmod.Record, _ map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "start "+rec.Key().String())
	return r.failStart[rec.Key()]
}

func (r *recordingRunner) Stop(_ context.Context, rec arkmod.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "stop "+rec.Key().String())
	return nil
}

func newEnv(t *testing.T, descs ...arkmod.Descriptor) *env {
	t.Helper()

	e := &env{
		reg:      registry.New(),
		vis:      &fakeVisibility{visible: map[arkmod.Key]bool{}},
		services: service.New(),
		loader:   &fakeLoader{descs: map[arkmod.Key]arkmod.Descriptor{}, failing: map[arkmod.Key]error{}, hang: make(chan struct{})},
		runner:   &recordingRunner{failStart: map[arkmod.Key]error{}},
	}
	t.Cleanup(func() { close(e.loader.hang) })
	for _, d := range descs {
		if d.EntryPoint == "" {
			d.EntryPoint = "main"
		}
		e.loader.descs[d.Key()] = d
	}
	e.services.Publish(service.CapabilityEntryRunner, EntryRunner(e.runner), service.Provider{})
	e.services.Publish(service.CapabilityEventHandler, EventHandler(EventHandlerFunc(func(_ context.Context, ev Event) error {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.events = append(e.events, string(ev.Kind)+" "+ev.Record.Key().String())
		return nil
	})), service.Provider{Priority: 10})
	e.exec = New(e.reg, lifecycle.New(e.reg), e.vis, e.services, e.loader)
	return e
}

func (e *env) apply(t *testing.T, config string, opts Options) Report {
	t.Helper()
	plan, err := planner.Plan(config, planner.SnapshotOf(e.reg.Snapshot()))
	if err != nil {
		t.Fatalf("Plan(%q) error = %v", config, err)
	}
	return e.exec.Execute(context.Background(), plan, opts)
}

func (e *env) state(t *testing.T, key string) arkmod.State {
	t.Helper()
	rec, err := e.reg.Get(k(key))
	if err != nil {
		return ""
	}
	return rec.State
}

func k(s string) arkmod.Key {
	for i := range len(s) {
		if s[i] == ':' {
			return arkmod.NewKey(s[:i], s[i+1:])
		}
	}
	return arkmod.Key{Name: s}
}

func desc(key string) arkmod.Descriptor {
	kk := k(key)
	return arkmod.Descriptor{Name: kk.Name, Version: kk.Version}
}

func TestInstallActivate(t *testing.T) {
	t.Parallel()

	e := newEnv(t, desc("a:1.0"))
	report := e.apply(t, "a:1.0:ACTIVATED", Options{})
	if !report.OK() {
		t.Fatalf("report not OK: %v", report.Err())
	}
	if got := e.state(t, "a:1.0"); got != arkmod.StateActivated {
		t.Errorf("state = %s", got)
	}
	if !e.vis.isVisible(k("a:1.0")) {
		t.Error("activated biz not published")
	}
	if want := []string{"before-activate a:1.0", "after-activate a:1.0"}; !slices.Equal(e.events, want) {
		t.Errorf("events = %v, want %v", e.events, want)
	}
	if want := []string{"start a:1.0"}; !slices.Equal(e.runner.calls, want) {
		t.Errorf("runner calls = %v", e.runner.calls)
	}
}

func TestUpgradeSwitchesAndUninstalls(t *testing.T) {
	t.Parallel()

	e := newEnv(t, desc("a:1.0"), desc("a:2.0"))
	e.apply(t, "a:1.0:ACTIVATED", Options{})

	report := e.apply(t, "a:2.0:ACTIVATED", Options{})
	if !report.OK() {
		t.Fatalf("upgrade failed: %v", report.Err())
	}
	if e.state(t, "a:1.0") != arkmod.StateDeactivated || e.state(t, "a:2.0") != arkmod.StateActivated {
		t.Fatalf("states = %s, %s", e.state(t, "a:1.0"), e.state(t, "a:2.0"))
	}
	if e.vis.isVisible(k("a:1.0")) || !e.vis.isVisible(k("a:2.0")) {
		t.Error("visibility did not follow the switch")
	}
	if want := []string{"start a:1.0", "stop a:1.0", "start a:2.0"}; !slices.Equal(e.runner.calls, want) {
		t.Errorf("runner calls = %v, want %v", e.runner.calls, want)
	}

	e.services.Publish("custom", 1, service.Provider{Key: k("a:2.0")})
	report = e.apply(t, "", Options{})
	if !report.OK() || len(report.Succeeded) != 2 {
		t.Fatalf("teardown report = %+v", report)
	}
	if e.reg.Len() != 0 {
		t.Errorf("registry still holds %d records", e.reg.Len())
	}
	if _, ok := e.services.LookupHighestPriority("custom", nil); ok {
		t.Error("module services survived uninstall")
	}
	slices.Sort(e.loader.closed)
	if want := []string{"a:1.0", "a:2.0"}; !slices.Equal(e.loader.closed, want) {
		t.Errorf("closed namespaces = %v", e.loader.closed)
	}
}

func TestLoadFailureRegistersBroken(t *testing.T) {
	t.Parallel()

	e := newEnv(t, desc("b:1"))
	e.loader.failing[k("a:1")] = errors.New("corrupt archive")

	report := e.apply(t, "a:1:ACTIVATED;b:1:ACTIVATED", Options{})
	if len(report.Failed) != 1 || len(report.Skipped) != 1 {
		t.Fatalf("report = %+v", report)
	}
	if !errors.Is(report.Failed[0].Err, arkmod.ErrModuleLoad) {
		t.Errorf("failure = %v, want ModuleLoadError", report.Failed[0].Err)
	}
	if !slices.Equal(report.Broken, []arkmod.Key{k("a:1")}) {
		t.Errorf("Broken = %v", report.Broken)
	}
	if got := e.state(t, "a:1"); got != arkmod.StateBroken {
		t.Errorf("state = %s, want BROKEN", got)
	}
	if got := e.state(t, "b:1"); got != "" {
		t.Errorf("skipped module was installed: %s", got)
	}

	delete(e.loader.failing, k("a:1"))
	report = e.apply(t, "b:1:ACTIVATED", Options{})
	if !report.OK() || e.state(t, "a:1") != "" {
		t.Errorf("broken record not removable: %+v", report)
	}
}

func TestContinuePolicy(t *testing.T) {
	t.Parallel()

	e := newEnv(t, desc("b:1"))
	report := e.apply(t, "a:1:ACTIVATED;b:1:ACTIVATED", Options{Policy: PolicyContinue})
	if len(report.Failed) != 1 || len(report.Succeeded) != 1 || len(report.Skipped) != 0 {
		t.Fatalf("report = %+v", report)
	}
	if e.state(t, "b:1") != arkmod.StateActivated {
		t.Error("later operation did not run")
	}
}

func TestLoaderTimeout(t *testing.T) {
	t.Parallel()

	e := newEnv(t, desc("a:1"))
	e.loader.hangOn = k("a:1")

	start := time.Now()
	report := e.apply(t, "a:1:ACTIVATED", Options{LoadTimeout: 20 * time.Millisecond})
	if time.Since(start) > 5*time.Second {
		t.Fatal("execution hung on the loader")
	}
	if len(report.Failed) != 1 || !errors.Is(report.Failed[0].Err, context.DeadlineExceeded) {
		t.Fatalf("report = %+v", report)
	}
	if got := e.state(t, "a:1"); got != arkmod.StateBroken {
		t.Errorf("state = %s, want BROKEN", got)
	}
}

func TestVetoAndStartFailure(t *testing.T) {
	t.Parallel()

	e := newEnv(t, desc("a:1"), desc("b:1"), desc("c:1"))
	e.services.Publish(service.CapabilityEventHandler, EventHandler(EventHandlerFunc(func(_ context.Context, ev Event) error {
		if ev.Kind == BeforeActivate && ev.Record.Key().Name == "a" {
			return errors.New("not today")
		}
		return nil
	})), service.Provider{Priority: 1})
	e.runner.failStart[k("b:1")] = errors.New("boom")

	report := e.apply(t, "a:1:ACTIVATED;b:1:ACTIVATED;c:1:ACTIVATED", Options{Policy: PolicyContinue})
	if len(report.Failed) != 2 {
		t.Fatalf("Failed = %+v", report.Failed)
	}
	for _, key := range []string{"a:1", "b:1"} {
		if got := e.state(t, key); got != arkmod.StateBroken {
			t.Errorf("%s state = %s, want BROKEN", key, got)
		}
		if e.vis.isVisible(k(key)) {
			t.Errorf("%s visible after failure", key)
		}
	}
	if got := e.state(t, "c:1"); got != arkmod.StateActivated {
		t.Errorf("c:1 state = %s", got)
	}
}

func TestDescriptorMismatch(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.loader.descs[k("a:1")] = desc("a:2")

	report := e.apply(t, "a:1:ACTIVATED", Options{})
	var loadErr *arkmod.ModuleLoadError
	if len(report.Failed) != 1 || !errors.As(report.Failed[0].Err, &loadErr) {
		t.Fatalf("report = %+v", report)
	}
	if loadErr.Key != k("a:1") {
		t.Errorf("Key = %s", loadErr.Key)
	}
}

func TestNoEntryRunner(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	loader := &fakeLoader{descs: map[arkmod.Key]arkmod.Descriptor{
		k("a:1"): {Name: "a", Version: "1", EntryPoint: "main"},
		k("p:1"): {Name: "p", Version: "1", Kind: arkmod.KindPlugin},
	}}
	vis := &fakeVisibility{visible: map[arkmod.Key]bool{}}
	x := New(reg, lifecycle.New(reg), vis, service.New(), loader)

	plan, err := planner.Plan("a:1:ACTIVATED;p:1:ACTIVATED", nil)
	if err != nil {
		t.Fatal(err)
	}
	report := x.Execute(context.Background(), plan, Options{Policy: PolicyContinue})
	if len(report.Failed) != 1 || !errors.Is(report.Failed[0].Err, ErrNoEntryRunner) {
		t.Fatalf("report = %+v", report)
	}
	if !vis.isVisible(k("p:1")) {
		t.Error("plugin without entry point not published")
	}
}

func TestStagedInstallStaysResolved(t *testing.T) {
	t.Parallel()

	e := newEnv(t, desc("a:1"), desc("a:2"))
	e.apply(t, "a:1:ACTIVATED", Options{})
	report := e.apply(t, "a:1:ACTIVATED;a:2:DEACTIVATED", Options{})
	if !report.OK() {
		t.Fatal(report.Err())
	}
	if got := e.state(t, "a:2"); got != arkmod.StateResolved {
		t.Errorf("staged state = %s, want RESOLVED", got)
	}
	if e.vis.isVisible(k("a:2")) {
		t.Error("staged biz published")
	}
}

func TestParsePolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    Policy
		wantErr bool
	}{
		{raw: "", want: PolicyAbort},
		{raw: "Continue", want: PolicyContinue},
		{raw: " abort ", want: PolicyAbort},
		{raw: "retry", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.raw)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParsePolicy(%q) = %q, %v", tt.raw, got, err)
		}
	}
}

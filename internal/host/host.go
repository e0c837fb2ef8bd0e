// SPDX-License-Identifier: MPL-2.0

package host

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/sofastack/sofa-ark-sub003/internal/config"
	"github.com/sofastack/sofa-ark-sub003/internal/executor"
	"github.com/sofastack/sofa-ark-sub003/internal/lifecycle"
	"github.com/sofastack/sofa-ark-sub003/internal/loader"
	"github.com/sofastack/sofa-ark-sub003/internal/planner"
	"github.com/sofastack/sofa-ark-sub003/internal/registry"
	"github.com/sofastack/sofa-ark-sub003/internal/resolve"
	"github.com/sofastack/sofa-ark-sub003/internal/service"
	"github.com/sofastack/sofa-ark-sub003/internal/telemetry"
	"github.com/sofastack/sofa-ark-sub003/pkg/arkmod"
)

type (
	// Host owns every module of one process.
	Host struct {
		cfg      *config.Config
		logger   *slog.Logger
		inst     *telemetry.Instruments
		source   Source
		reg      *registry.Registry
		engine   *resolve.Engine
		machine  *lifecycle.Machine
		services *service.Registry
		planner  *planner.Planner
		exec     *executor.Executor
		opts     executor.Options

		// applyMu makes plan-then-execute atomic with respect to other applies.
		applyMu sync.Mutex

		entriesMu sync.RWMutex
		entries   map[string]EntryPoint
	}

	// Source loads module descriptors and namespaces and can list every
	// descriptor it knows about.
	Source interface {
		executor.Loader
		Discover(ctx context.Context) ([]arkmod.Descriptor, error)
	}

	// Option configures a Host.
	Option func(*Host)

	// ModuleState is one row of QueryState.
	ModuleState struct {
		Key        arkmod.Key
		Kind       arkmod.Kind
		State      arkmod.State
		Priority   int
		Visible    bool
		EntryPoint string
		Location   string
	}
)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) {
		h.logger = logger
	}
}

// WithSource replaces the file-based module loader.
func WithSource(src Source) Option {
	return func(h *Host) {
		h.source = src
	}
}

// WithInstruments sets the telemetry instruments.
func WithInstruments(inst *telemetry.Instruments) Option {
	return func(h *Host) {
		h.inst = inst
	}
}

// New builds a Host from cfg. A nil cfg uses config.DefaultConfig.
func New(cfg *config.Config, opts ...Option) (*Host, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	h := &Host{
		cfg:     cfg,
		logger:  slog.Default(),
		entries: make(map[string]EntryPoint),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.inst == nil {
		h.inst = telemetry.New()
	}
	if h.source == nil {
		h.source = loader.New(cfg.Loader.ModuleDirs, loader.WithLogger(h.logger))
	}

	policy, err := executor.ParsePolicy(string(cfg.Executor.Policy))
	if err != nil {
		return nil, err
	}
	h.opts = executor.Options{Policy: policy, LoadTimeout: cfg.Loader.Timeout}

	h.reg = registry.New(registry.WithLogger(h.logger))
	h.engine = resolve.New(h.reg,
		resolve.WithLogger(h.logger),
		resolve.WithScope(resolve.NewBaseScope(nil, cfg.Resolver.BasePackages, cfg.Resolver.BaseResources)),
	)
	if primary := cfg.Resolver.PrimaryModule; primary != "" {
		if err := h.engine.RegisterHook(resolve.PostResolve, resolve.PrimaryForwardingHookName, 0,
			resolve.PrimaryForwarding(primary)); err != nil {
			return nil, err
		}
	}
	h.machine = lifecycle.New(h.reg, lifecycle.WithLogger(h.logger))
	h.services = service.New(service.WithLogger(h.logger))
	h.planner = planner.New(planner.WithLogger(h.logger), planner.WithInstruments(h.inst))
	h.exec = executor.New(h.reg, h.machine, h.engine, h.services, h.source,
		executor.WithLogger(h.logger),
		executor.WithInstruments(h.inst),
	)

	h.services.Publish(service.CapabilityEntryRunner, &entryRunner{host: h},
		service.Provider{Priority: HostRunnerPriority})
	return h, nil
}

// Options returns the execution options derived from the configuration.
func (h *Host) Options() executor.Options { return h.opts }

// Services returns the service registry shared with modules.
func (h *Host) Services() *service.Registry { return h.services }

// Plan computes the operations that move the current registry to desired.
// Plugins are only planned for when desired names them.
func (h *Host) Plan(ctx context.Context, desired string) (*arkmod.Plan, error) {
	return h.planner.Plan(ctx, desired, h.snapshotFor(desired))
}

// Execute applies plan. Applies are serialized; resolution keeps working
// while a plan runs.
func (h *Host) Execute(ctx context.Context, plan *arkmod.Plan, opts executor.Options) executor.Report {
	h.applyMu.Lock()
	defer h.applyMu.Unlock()
	return h.exec.Execute(ctx, plan, opts)
}

// Reconcile plans against the registry and applies the plan under one
// apply lock, so the snapshot cannot go stale in between. An empty plan is
// returned with an empty report.
func (h *Host) Reconcile(ctx context.Context, desired string, opts executor.Options) (*arkmod.Plan, executor.Report, error) {
	h.applyMu.Lock()
	defer h.applyMu.Unlock()

	plan, err := h.planner.Plan(ctx, desired, h.snapshotFor(desired))
	if err != nil {
		return nil, executor.Report{}, err
	}
	if plan.Empty() {
		h.logger.Debug("desired state already satisfied", "plan", plan.ID)
		return plan, executor.Report{PlanID: plan.ID}, nil
	}
	report := h.exec.Execute(ctx, plan, opts)
	return plan, report, report.Err()
}

// Resolve looks up symbol on behalf of requester.
func (h *Host) Resolve(requester arkmod.Key, symbol string, kind arkmod.SymbolKind) resolve.Result {
	return h.engine.Resolve(resolve.Request{Requester: requester, Symbol: symbol, Kind: kind})
}

// Exporters lists the visible modules exporting symbol, best first.
func (h *Host) Exporters(symbol string, kind arkmod.SymbolKind) []arkmod.Record {
	return h.engine.Exporters(symbol, kind)
}

// RegisterHook adds a resolution hook.
func (h *Host) RegisterHook(point resolve.HookPoint, name string, priority int, fn resolve.HookFunc) error {
	return h.engine.RegisterHook(point, name, priority, fn)
}

// UnregisterHook removes a resolution hook.
func (h *Host) UnregisterHook(point resolve.HookPoint, name string) bool {
	return h.engine.UnregisterHook(point, name)
}

// OnEvent publishes a lifecycle event handler. Lower priority values run first.
func (h *Host) OnEvent(priority int, fn executor.EventHandlerFunc) service.Ref {
	return h.services.Publish(service.CapabilityEventHandler, fn, service.Provider{Priority: priority})
}

// QueryState lists registered modules ordered by name and version. An empty
// name lists everything; an empty version lists every version of name. A
// fully qualified key that is not registered returns ErrModuleNotFound.
func (h *Host) QueryState(name, version string) ([]ModuleState, error) {
	var records []arkmod.Record
	switch {
	case name == "":
		records = h.reg.Snapshot()
	case version == "":
		records = h.reg.ListByName(name)
	default:
		rec, err := h.reg.Get(arkmod.NewKey(name, version))
		if err != nil {
			return nil, err
		}
		records = []arkmod.Record{rec}
	}

	out := make([]ModuleState, 0, len(records))
	for _, rec := range records {
		out = append(out, ModuleState{
			Key:        rec.Key(),
			Kind:       rec.Kind(),
			State:      rec.State,
			Priority:   rec.Priority(),
			Visible:    h.engine.Visible(rec.Key()),
			EntryPoint: rec.Descriptor.EntryPoint,
			Location:   rec.Descriptor.Location,
		})
	}
	slices.SortFunc(out, func(a, b ModuleState) int {
		return cmp.Or(
			cmp.Compare(a.Key.Name, b.Key.Name),
			arkmod.CompareVersions(a.Key.Version, b.Key.Version),
		)
	})
	return out, nil
}

// DesiredString renders the current registry as a desired-state string, so
// that planning it again is a no-op. BROKEN versions are left out.
func (h *Host) DesiredString() string {
	desired := make(map[arkmod.Key]arkmod.DesiredState)
	for key, state := range h.snapshot() {
		switch {
		case state == arkmod.StateActivated:
			desired[key] = arkmod.DesiredActive
		case state.Inactive():
			desired[key] = arkmod.DesiredInactive
		}
	}
	return planner.FormatDesired(desired)
}

func (h *Host) snapshot() planner.Snapshot {
	return planner.SnapshotOf(h.reg.Snapshot())
}

// snapshotFor leaves out plugins the desired state does not name, so a
// config listing only business modules keeps the booted plugins running.
func (h *Host) snapshotFor(desired string) planner.Snapshot {
	named := make(map[string]bool)
	if assignments, err := planner.ParseDesired(desired); err == nil {
		for _, a := range assignments {
			named[a.Key.Name] = true
		}
	}
	records := slices.DeleteFunc(h.reg.Snapshot(), func(rec arkmod.Record) bool {
		return rec.Kind() == arkmod.KindPlugin && !named[rec.Key().Name]
	})
	return planner.SnapshotOf(records)
}

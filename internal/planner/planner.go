// SPDX-License-Identifier: MPL-2.0

package planner

import (
	"context"
	"log/slog"
	"maps"
	"slices"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sofastack/sofa-ark-sub003/internal/telemetry"
	"github.com/sofastack/sofa-ark-sub003/pkg/arkmod"
)

type (
	// Planner computes verified plans.
	Planner struct {
		logger *slog.Logger
		inst   *telemetry.Instruments
		newID  func() string
	}

	// Option configures a Planner.
	Option func(*Planner)

	// walk is the mutable state of one planning pass.
	walk struct {
		progress Snapshot
		desired  map[arkmod.Key]arkmod.DesiredState
		active   map[string]string
		ops      []arkmod.Operation
	}
)

// WithLogger sets the logger used for planning traces.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) {
		p.logger = logger
	}
}

// WithInstruments sets the telemetry instruments.
func WithInstruments(inst *telemetry.Instruments) Option {
	return func(p *Planner) {
		p.inst = inst
	}
}

// WithIDGenerator replaces the plan ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(p *Planner) {
		p.newID = fn
	}
}

// New creates a Planner.
func New(opts ...Option) *Planner {
	p := &Planner{
		logger: slog.Default(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.inst == nil {
		p.inst = telemetry.New()
	}
	return p
}

// Plan computes a plan with a default Planner.
func Plan(config string, snap Snapshot) (*arkmod.Plan, error) {
	return New().Plan(context.Background(), config, snap)
}

// Plan parses config and computes the operations moving snap to the desired
// state. No plan is returned unless it passes verification.
//
// Versions not named in config are uninstalled. Versions whose name is named
// in config but which are not themselves listed keep their state, except
// BROKEN ones, which are uninstalled.
func (p *Planner) Plan(ctx context.Context, config string, snap Snapshot) (plan *arkmod.Plan, err error) {
	ctx, span := p.inst.Tracer.Start(ctx, "planner.Plan", trace.WithAttributes(attribute.Int("arkctl.snapshot.size", len(snap))))
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		p.inst.CountPlan(ctx, outcome)
		telemetry.EndSpan(span, err)
	}()

	assignments, err := ParseDesired(config)
	if err != nil {
		return nil, err
	}

	w := &walk{
		progress: snap.normalized(),
		desired:  make(map[arkmod.Key]arkmod.DesiredState, len(assignments)),
		active:   make(map[string]string),
	}
	for _, a := range partition(assignments) {
		if err := w.assign(a); err != nil {
			return nil, err
		}
	}
	w.sweep(snap, assignments)

	if err := verify(snap, w.ops, w.desired); err != nil {
		p.logger.Error("plan failed verification", "error", err)
		return nil, err
	}

	plan = &arkmod.Plan{ID: p.newID(), Operations: w.ops, Desired: w.desired}
	span.SetAttributes(telemetry.AttrPlanID.String(plan.ID), telemetry.AttrPlanOps.Int(len(plan.Operations)))
	p.logger.Debug("plan computed", "plan", plan.ID, "operations", len(plan.Operations))
	return plan, nil
}

// partition moves ACTIVE assignments before INACTIVE ones, keeping the
// relative order within each group.
func partition(in []arkmod.DesiredAssignment) []arkmod.DesiredAssignment {
	out := make([]arkmod.DesiredAssignment, 0, len(in))
	for _, a := range in {
		if a.Desired == arkmod.DesiredActive {
			out = append(out, a)
		}
	}
	for _, a := range in {
		if a.Desired != arkmod.DesiredActive {
			out = append(out, a)
		}
	}
	return out
}

func (w *walk) assign(a arkmod.DesiredAssignment) error {
	key := a.Key
	if prev, seen := w.desired[key]; seen {
		if prev != a.Desired {
			return &arkmod.ConflictingDesiredStateError{Key: key, First: prev, Second: a.Desired}
		}
		return nil
	}
	if a.Desired == arkmod.DesiredActive {
		if v, ok := w.active[key.Name]; ok {
			versions := []string{v, key.Version}
			slices.SortFunc(versions, arkmod.CompareVersions)
			return &arkmod.MultipleActiveVersionsError{Name: key.Name, Versions: versions}
		}
		w.active[key.Name] = key.Version
	}
	w.desired[key] = a.Desired

	cur, present := w.progress[key]
	if present && cur == arkmod.StateBroken {
		// A listed broken version is reinstalled from scratch.
		w.ops = append(w.ops, arkmod.Operation{Kind: arkmod.OpUninstall, Target: key})
		delete(w.progress, key)
		cur, present = "", false
	}
	_, siblingActive := w.progress.ActiveVersion(key.Name)

	if a.Desired == arkmod.DesiredActive {
		switch {
		case !present && siblingActive:
			w.emit(arkmod.OpInstall, a, false)
			w.emit(arkmod.OpSwitch, a, false)
			w.progress[key] = arkmod.StateDeactivated
			w.progress.switchTo(key)
		case !present:
			w.emit(arkmod.OpInstall, a, true)
			w.progress[key] = arkmod.StateActivated
		case cur == arkmod.StateDeactivated:
			w.emit(arkmod.OpSwitch, a, false)
			w.progress.switchTo(key)
		case cur == arkmod.StateActivated:
		default:
			return &arkmod.IllegalTransitionError{Key: key, From: cur, To: arkmod.StateActivated}
		}
		return nil
	}

	switch {
	case !present && siblingActive:
		w.emit(arkmod.OpInstall, a, false)
		w.progress[key] = arkmod.StateDeactivated
	case present && cur == arkmod.StateDeactivated:
	case !present:
		return &arkmod.IllegalTransitionError{Key: key, To: arkmod.StateDeactivated, Reason: "no active version to stage against"}
	default:
		return &arkmod.IllegalTransitionError{Key: key, From: cur, To: arkmod.StateDeactivated, Reason: "only a switch can deactivate a module"}
	}
	return nil
}

// sweep decides the fate of snapshot entries the config did not list.
func (w *walk) sweep(snap Snapshot, assignments []arkmod.DesiredAssignment) {
	named := make(map[string]bool, len(assignments))
	for _, a := range assignments {
		named[a.Key.Name] = true
	}
	for _, key := range snap.Keys() {
		if _, listed := w.desired[key]; listed {
			continue
		}
		switch st := w.progress[key]; {
		case named[key.Name] && st == arkmod.StateActivated:
			w.desired[key] = arkmod.DesiredActive
		case named[key.Name] && st == arkmod.StateDeactivated:
			w.desired[key] = arkmod.DesiredInactive
		default:
			w.ops = append(w.ops, arkmod.Operation{Kind: arkmod.OpUninstall, Target: key})
			delete(w.progress, key)
		}
	}
}

func (w *walk) emit(kind arkmod.OperationKind, a arkmod.DesiredAssignment, activate bool) {
	w.ops = append(w.ops, arkmod.Operation{
		Kind:     kind,
		Target:   a.Key,
		Params:   maps.Clone(a.Params),
		Activate: activate,
	})
}

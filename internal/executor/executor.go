// SPDX-License-Identifier: MPL-2.0

package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/sofastack/sofa-ark-sub003/internal/lifecycle"
	"github.com/sofastack/sofa-ark-sub003/internal/registry"
	"github.com/sofastack/sofa-ark-sub003/internal/service"
	"github.com/sofastack/sofa-ark-sub003/internal/telemetry"
	"github.com/sofastack/sofa-ark-sub003/pkg/arkmod"
)

type (
	// Executor applies plans.
	Executor struct {
		reg      *registry.Registry
		machine  *lifecycle.Machine
		vis      Visibility
		services *service.Registry
		loader   Loader
		logger   *slog.Logger
		inst     *telemetry.Instruments
	}

	// Option configures an Executor.
	Option func(*Executor)

	// failure ties an operation error to the record it concerns. keep
	// leaves that record's state alone.
	failure struct {
		key  arkmod.Key
		err  error
		keep bool
	}
)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(x *Executor) {
		x.logger = logger
	}
}

// WithInstruments sets the telemetry instruments.
func WithInstruments(inst *telemetry.Instruments) Option {
	return func(x *Executor) {
		x.inst = inst
	}
}

// New creates an Executor.
func New(reg *registry.Registry, machine *lifecycle.Machine, vis Visibility, services *service.Registry, loader Loader, opts ...Option) *Executor {
	x := &Executor{
		reg:      reg,
		machine:  machine,
		vis:      vis,
		services: services,
		loader:   loader,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.inst == nil {
		x.inst = telemetry.New()
	}
	return x
}

func (f *failure) Error() string { return f.err.Error() }
func (f *failure) Unwrap() error { return f.err }

func fail(key arkmod.Key, err error) error {
	if err == nil {
		return nil
	}
	return &failure{key: key, err: err}
}

// Execute applies plan strictly in order. A failed operation marks its
// record BROKEN; under PolicyAbort the remaining operations are skipped.
func (x *Executor) Execute(ctx context.Context, plan *arkmod.Plan, opts Options) Report {
	report := Report{}
	if plan == nil {
		return report
	}
	report.PlanID = plan.ID

	ctx, span := x.inst.Tracer.Start(ctx, "executor.Execute", trace.WithAttributes(
		telemetry.AttrPlanID.String(plan.ID),
		telemetry.AttrPlanOps.Int(len(plan.Operations)),
	))
	defer span.End()

	for i, op := range plan.Operations {
		err := x.applyTraced(ctx, op, opts)
		if err == nil {
			report.Succeeded = append(report.Succeeded, op)
			continue
		}

		cause, key, keep := err, op.Target, false
		var f *failure
		if errors.As(err, &f) {
			cause, key, keep = f.err, f.key, f.keep
		}
		x.logger.Error("operation failed", "plan", plan.ID, "operation", op.String(), "module", key.String(), "error", cause)
		report.Failed = append(report.Failed, Outcome{Operation: op, Err: cause})
		if !keep && x.breakRecord(key, cause) {
			report.Broken = append(report.Broken, key)
		}

		if opts.Policy != PolicyContinue {
			report.Skipped = append(report.Skipped, plan.Operations[i+1:]...)
			break
		}
	}

	if len(report.Failed) > 0 {
		span.RecordError(report.Err())
	}
	x.logger.Info("plan executed", "plan", plan.ID,
		"succeeded", len(report.Succeeded), "failed", len(report.Failed), "skipped", len(report.Skipped))
	return report
}

func (x *Executor) applyTraced(ctx context.Context, op arkmod.Operation, opts Options) (err error) {
	ctx, span := x.inst.Tracer.Start(ctx, "executor."+op.Kind.String(), trace.WithAttributes(telemetry.OperationAttrs(op)...))
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		x.inst.RecordOperation(ctx, op, outcome, time.Since(start).Seconds())
		telemetry.EndSpan(span, err)
	}()

	switch op.Kind {
	case arkmod.OpInstall:
		return x.install(ctx, op, opts)
	case arkmod.OpSwitch:
		return x.switchTo(ctx, op, opts)
	case arkmod.OpUninstall:
		return x.uninstall(ctx, op.Target, opts)
	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

func (x *Executor) install(ctx context.Context, op arkmod.Operation, opts Options) error {
	key := op.Target
	loc := arkmod.Locator{Key: key, Params: op.Params}
	if _, err := x.reg.Get(key); err == nil {
		return &failure{key: key, err: &arkmod.DuplicateModuleError{Key: key}, keep: true}
	}

	desc, err := bounded(ctx, opts.timeout(), func(ctx context.Context) (arkmod.Descriptor, error) {
		return x.loader.LoadDescriptor(ctx, loc)
	})
	if err == nil && desc.Key() != key {
		err = fmt.Errorf("descriptor declares %s", desc.Key())
	}
	if err == nil {
		err = desc.Validate()
	}
	if err != nil {
		return x.loadFailed(key, loc.Location(), err)
	}

	ns, err := bounded(ctx, opts.timeout(), func(ctx context.Context) (arkmod.Namespace, error) {
		return x.loader.MaterializeNamespace(ctx, desc)
	})
	if err != nil {
		return x.loadFailed(key, desc.Location, err)
	}

	rec, err := x.reg.Register(arkmod.NewRecord(desc, ns))
	if err != nil {
		closeNamespace(ns, x.logger)
		return &failure{key: key, err: err, keep: true}
	}
	x.logger.Info("module installed", "module", key.String(), "kind", rec.Kind(), "location", desc.Location)

	if rec.Kind() == arkmod.KindPlugin {
		x.vis.Publish(key)
	}
	if op.Activate {
		return fail(key, x.activate(ctx, key, op.Params, opts))
	}
	return nil
}

// loadFailed registers a minimal BROKEN record so the failure is observable
// and can be removed by a later plan.
func (x *Executor) loadFailed(key arkmod.Key, location string, cause error) error {
	err := &arkmod.ModuleLoadError{Key: key, Location: location, Cause: cause}
	rec := arkmod.NewRecord(arkmod.Descriptor{Name: key.Name, Version: key.Version, Location: location}, nil)
	if _, regErr := x.reg.RegisterBroken(rec); regErr != nil {
		x.logger.Debug("broken record not registered", "module", key.String(), "error", regErr)
	}
	return err
}

func (x *Executor) switchTo(ctx context.Context, op arkmod.Operation, opts Options) error {
	for _, sib := range x.reg.ListByName(op.Target.Name) {
		if sib.Key() == op.Target || sib.State != arkmod.StateActivated {
			continue
		}
		if err := x.deactivate(ctx, sib.Key(), opts); err != nil {
			return fail(sib.Key(), err)
		}
	}
	return fail(op.Target, x.activate(ctx, op.Target, op.Params, opts))
}

func (x *Executor) uninstall(ctx context.Context, key arkmod.Key, opts Options) error {
	rec, err := x.reg.Get(key)
	if err != nil {
		return err
	}
	if rec.State == arkmod.StateActivated {
		if err := x.deactivate(ctx, key, opts); err != nil {
			return fail(key, err)
		}
	}

	release, err := x.reg.Lease(key)
	if err != nil {
		return err
	}
	defer release()

	x.vis.Withdraw(key)
	if n := x.services.UnpublishProvider(key); n > 0 {
		x.logger.Debug("services unpublished", "module", key.String(), "count", n)
	}
	if _, err := x.machine.Transition(key, arkmod.StateUninstalled); err != nil {
		return fail(key, err)
	}
	closeNamespace(rec.Namespace, x.logger)
	x.logger.Info("module uninstalled", "module", key.String())
	return nil
}

func (x *Executor) activate(ctx context.Context, key arkmod.Key, params map[string]string, opts Options) error {
	release, err := x.reg.Lease(key)
	if err != nil {
		return err
	}
	defer release()

	rec, err := x.reg.Get(key)
	if err != nil {
		return err
	}
	if err := x.fire(ctx, Event{Kind: BeforeActivate, Record: rec, Params: params}, opts); err != nil {
		return fmt.Errorf("activation vetoed: %w", err)
	}
	if err := x.runEntry(ctx, rec, opts, func(ctx context.Context, r EntryRunner) error {
		return r.Start(ctx, rec, params)
	}); err != nil {
		return fmt.Errorf("start entry point %q: %w", rec.Descriptor.EntryPoint, err)
	}

	activated, err := x.machine.Transition(key, arkmod.StateActivated)
	if err != nil {
		if stopErr := x.runEntry(ctx, rec, opts, func(ctx context.Context, r EntryRunner) error {
			return r.Stop(ctx, rec)
		}); stopErr != nil {
			x.logger.Warn("entry point stop after failed activation", "module", key.String(), "error", stopErr)
		}
		return err
	}
	x.vis.Publish(key)

	if err := x.fire(ctx, Event{Kind: AfterActivate, Record: activated, Params: params}, opts); err != nil {
		x.logger.Warn("after-activate handler failed", "module", key.String(), "error", err)
	}
	return nil
}

func (x *Executor) deactivate(ctx context.Context, key arkmod.Key, opts Options) error {
	release, err := x.reg.Lease(key)
	if err != nil {
		return err
	}
	defer release()

	rec, err := x.reg.Get(key)
	if err != nil {
		return err
	}
	if err := x.fire(ctx, Event{Kind: BeforeDeactivate, Record: rec}, opts); err != nil {
		return fmt.Errorf("deactivation vetoed: %w", err)
	}
	if err := x.runEntry(ctx, rec, opts, func(ctx context.Context, r EntryRunner) error {
		return r.Stop(ctx, rec)
	}); err != nil {
		return fmt.Errorf("stop entry point %q: %w", rec.Descriptor.EntryPoint, err)
	}

	rec, err = x.machine.Transition(key, arkmod.StateDeactivated)
	if err != nil {
		return err
	}
	if rec.Kind() != arkmod.KindPlugin {
		x.vis.Withdraw(key)
	}

	if err := x.fire(ctx, Event{Kind: AfterDeactivate, Record: rec}, opts); err != nil {
		x.logger.Warn("after-deactivate handler failed", "module", key.String(), "error", err)
	}
	return nil
}

// fire delivers ev to every published handler by priority. The first error
// stops delivery and is returned.
func (x *Executor) fire(ctx context.Context, ev Event, opts Options) error {
	for _, h := range service.All[EventHandler](x.services, service.CapabilityEventHandler) {
		if err := boundedErr(ctx, opts.timeout(), func(ctx context.Context) error {
			return h.HandleEvent(ctx, ev)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (x *Executor) runEntry(ctx context.Context, rec arkmod.Record, opts Options, call func(context.Context, EntryRunner) error) error {
	if rec.Descriptor.EntryPoint == "" {
		return nil
	}
	runner, ok := service.Highest[EntryRunner](x.services, service.CapabilityEntryRunner)
	if !ok {
		return ErrNoEntryRunner
	}
	return boundedErr(ctx, opts.timeout(), func(ctx context.Context) error {
		return call(ctx, runner)
	})
}

// breakRecord marks key BROKEN and hides its exports. It reports whether the
// record is BROKEN afterwards.
func (x *Executor) breakRecord(key arkmod.Key, cause error) bool {
	x.machine.MarkBroken(key, cause)
	rec, err := x.reg.Get(key)
	if err != nil || rec.State != arkmod.StateBroken {
		return false
	}
	x.vis.Withdraw(key)
	return true
}

func closeNamespace(ns arkmod.Namespace, logger *slog.Logger) {
	c, ok := ns.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		logger.Warn("failed to close namespace", "namespace", ns.ID(), "error", err)
	}
}

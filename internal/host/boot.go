// SPDX-License-Identifier: MPL-2.0

package host

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sofastack/sofa-ark-sub003/internal/dag"
	"github.com/sofastack/sofa-ark-sub003/internal/executor"
	"github.com/sofastack/sofa-ark-sub003/pkg/arkmod"
)

// coverageType is appended to an exported package to test import coverage.
const coverageType = "_"

// Boot installs and activates every discovered plugin that is not yet
// registered, then reconciles the configured desired state. Plugins are
// grouped into levels so that a plugin starts only after the plugins it
// imports from; plugins of one level start concurrently, bounded by
// boot.concurrency. When several versions of a plugin are discovered only
// the highest is booted.
func (h *Host) Boot(ctx context.Context) error {
	if err := h.bootPlugins(ctx); err != nil {
		return err
	}
	if h.cfg.Desired == "" {
		return nil
	}
	_, _, err := h.Reconcile(ctx, h.cfg.Desired, h.opts)
	return err
}

func (h *Host) bootPlugins(ctx context.Context) error {
	h.applyMu.Lock()
	defer h.applyMu.Unlock()

	descs, err := h.source.Discover(ctx)
	if err != nil {
		if ctx.Err() != nil || len(descs) == 0 {
			return fmt.Errorf("discover modules: %w", err)
		}
		h.logger.Warn("some module descriptors could not be read", "error", err)
	}

	levels, err := BootOrder(h.pendingPlugins(descs))
	if err != nil {
		return fmt.Errorf("order plugins: %w", err)
	}

	var errs []error
	for i, level := range levels {
		h.logger.Debug("booting plugin level", "level", i, "plugins", len(level))
		if err := h.bootLevel(ctx, level); err != nil {
			if h.opts.Policy != executor.PolicyContinue {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// pendingPlugins keeps the highest discovered version of each plugin name
// that has no registered version yet.
func (h *Host) pendingPlugins(descs []arkmod.Descriptor) []arkmod.Descriptor {
	best := make(map[string]arkmod.Descriptor)
	for _, d := range descs {
		if d.Kind.OrDefault() != arkmod.KindPlugin {
			continue
		}
		if len(h.reg.ListByName(d.Name)) > 0 {
			continue
		}
		if prev, ok := best[d.Name]; ok {
			if arkmod.CompareVersions(d.Version, prev.Version) <= 0 {
				h.logger.Info("older plugin version not booted", "module", d.Key().String(), "booting", prev.Version)
				continue
			}
			h.logger.Info("older plugin version not booted", "module", prev.Key().String(), "booting", d.Version)
		}
		best[d.Name] = d
	}
	out := make([]arkmod.Descriptor, 0, len(best))
	for _, d := range best {
		out = append(out, d)
	}
	return out
}

func (h *Host) bootLevel(ctx context.Context, level []arkmod.Descriptor) error {
	errs := make([]error, len(level))

	var g errgroup.Group
	g.SetLimit(max(h.cfg.Boot.Concurrency, 1))
	for i, d := range level {
		g.Go(func() error {
			report := h.exec.Execute(ctx, installPlan(d), h.opts)
			errs[i] = report.Err()
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func installPlan(d arkmod.Descriptor) *arkmod.Plan {
	key := d.Key()
	params := map[string]string{}
	if d.Location != "" {
		params[arkmod.LocationParam] = d.Location
	}
	return &arkmod.Plan{
		ID: uuid.NewString(),
		Operations: []arkmod.Operation{{
			Kind:     arkmod.OpInstall,
			Target:   key,
			Params:   params,
			Activate: true,
		}},
		Desired: map[arkmod.Key]arkmod.DesiredState{key: arkmod.DesiredActive},
	}
}

// BootOrder groups descriptors into levels. Every exporter sits in an
// earlier level than the descriptors importing from it; inside a level
// lower priority values come first. Mutual imports are a dag.CycleError.
func BootOrder(descs []arkmod.Descriptor) ([][]arkmod.Descriptor, error) {
	sorted := slices.Clone(descs)
	slices.SortFunc(sorted, func(a, b arkmod.Descriptor) int {
		return cmp.Or(
			cmp.Compare(a.Priority, b.Priority),
			arkmod.CompareKeys(a.Key(), b.Key()),
		)
	})

	byKey := make(map[string]arkmod.Descriptor, len(sorted))
	g := dag.New()
	for _, d := range sorted {
		byKey[d.Key().String()] = d
		g.AddNode(d.Key().String())
	}
	for _, exporter := range sorted {
		for _, importer := range sorted {
			if exporter.Key() != importer.Key() && DependsOn(importer, exporter) {
				g.AddEdge(exporter.Key().String(), importer.Key().String())
			}
		}
	}

	names, err := g.Levels()
	if err != nil {
		return nil, err
	}
	levels := make([][]arkmod.Descriptor, len(names))
	for i, level := range names {
		for _, name := range level {
			levels[i] = append(levels[i], byKey[name])
		}
	}
	return levels, nil
}

// DependsOn reports whether importer declares an import that exporter
// offers. Type, package and resource contracts are compared entry by entry.
func DependsOn(importer, exporter arkmod.Descriptor) bool {
	imp := arkmod.CompileContract(importer)
	exp := arkmod.CompileContract(exporter)

	for _, t := range append(exp.ExportClasses.Entries(), exp.ExportIndex.Entries()...) {
		if imp.Imports(t, arkmod.SymbolType) {
			return true
		}
	}
	for _, c := range imp.ImportClasses.Entries() {
		if exp.Exports(c, arkmod.SymbolType) {
			return true
		}
	}
	for _, p := range exp.ExportPackages.Entries() {
		root := strings.TrimSuffix(p, ".*")
		if imp.ImportPackages.Has(p) || imp.ImportPackages.MatchPackage(root+"."+coverageType) {
			return true
		}
	}
	for _, p := range imp.ImportPackages.Entries() {
		root := strings.TrimSuffix(p, ".*")
		if exp.ExportPackages.MatchPackage(root + "." + coverageType) {
			return true
		}
	}
	for _, r := range exp.ExportResources.Entries() {
		if imp.ImportResources.MatchGlob(r) {
			return true
		}
	}
	for _, r := range imp.ImportResources.Entries() {
		if exp.ExportResources.MatchGlob(r) {
			return true
		}
	}
	return false
}

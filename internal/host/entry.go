// SPDX-License-Identifier: MPL-2.0

package host

import (
	"context"
	"errors"
	"fmt"

	"github.com/sofastack/sofa-ark-sub003/pkg/arkmod"
)

// HostRunnerPriority is the service priority of the built-in entry runner.
// A plugin publishing a runner with a lower value takes over.
const HostRunnerPriority = 1000

var (
	// ErrUnknownEntryPoint is the sentinel error wrapped by UnknownEntryPointError.
	ErrUnknownEntryPoint = errors.New("unknown entry point")
	// ErrDuplicateEntryPoint is returned when an entry point name is registered twice.
	ErrDuplicateEntryPoint = errors.New("duplicate entry point")
)

type (
	// EntryPoint is the Go code behind a module's entry_point name. Either
	// func may be nil.
	EntryPoint struct {
		Start func(ctx context.Context, rec arkmod.Record, params map[string]string) error
		Stop  func(ctx context.Context, rec arkmod.Record) error
	}

	// UnknownEntryPointError is returned when a module names an entry point
	// that was never registered.
	UnknownEntryPointError struct {
		Module arkmod.Key
		Name   string
	}

	// entryRunner dispatches to the host's registered entry points.
	entryRunner struct {
		host *Host
	}
)

// Error implements the error interface.
func (e *UnknownEntryPointError) Error() string {
	return fmt.Sprintf("module %s names entry point %q, which is not registered", e.Module, e.Name)
}

// Unwrap returns ErrUnknownEntryPoint so callers can use errors.Is for programmatic detection.
func (e *UnknownEntryPointError) Unwrap() error { return ErrUnknownEntryPoint }

// RegisterEntryPoint makes ep available under name to every module whose
// descriptor sets entry_point to name.
func (h *Host) RegisterEntryPoint(name string, ep EntryPoint) error {
	if name == "" {
		return errors.New("entry point name is empty")
	}
	h.entriesMu.Lock()
	defer h.entriesMu.Unlock()
	if _, exists := h.entries[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEntryPoint, name)
	}
	h.entries[name] = ep
	return nil
}

func (h *Host) entryPoint(rec arkmod.Record) (EntryPoint, error) {
	name := rec.Descriptor.EntryPoint
	h.entriesMu.RLock()
	ep, ok := h.entries[name]
	h.entriesMu.RUnlock()
	if !ok {
		return EntryPoint{}, &UnknownEntryPointError{Module: rec.Key(), Name: name}
	}
	return ep, nil
}

func (r *entryRunner) Start(ctx context.Context, rec arkmod.Record, params map[string]string) error {
	ep, err := r.host.entryPoint(rec)
	if err != nil || ep.Start == nil {
		return err
	}
	return ep.Start(ctx, rec, params)
}

func (r *entryRunner) Stop(ctx context.Context, rec arkmod.Record) error {
	ep, err := r.host.entryPoint(rec)
	if err != nil || ep.Stop == nil {
		return err
	}
	return ep.Stop(ctx, rec)
}

// SPDX-License-Identifier: MPL-2.0

// Package lifecycle enforces the legal state transitions of module records.
//
// The machine never decides when a module should move; it validates a
// requested transition and applies it atomically under the registry's name
// lock. It is the only code path that writes a record's state.
package lifecycle

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/sofastack/sofa-ark-sub003/internal/registry"
	"github.com/sofastack/sofa-ark-sub003/pkg/arkmod"
)

// transitions lists the legal targets for each source state.
var transitions = map[arkmod.State][]arkmod.State{
	arkmod.StateResolved: {
		arkmod.StateActivated,
		arkmod.StateBroken,
		arkmod.StateUninstalled,
	},
	arkmod.StateActivated: {
		arkmod.StateDeactivated,
		arkmod.StateBroken,
		arkmod.StateUninstalled,
	},
	arkmod.StateDeactivated: {
		arkmod.StateActivated,
		arkmod.StateBroken,
		arkmod.StateUninstalled,
	},
	arkmod.StateBroken: {
		arkmod.StateUninstalled,
	},
}

type (
	// Machine applies validated transitions to registry records.
	Machine struct {
		reg    *registry.Registry
		logger *slog.Logger
	}

	// Option configures a Machine.
	Option func(*Machine)
)

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to arkmod.State) bool {
	return slices.Contains(transitions[from], to)
}

// WithLogger sets the logger used to report transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

// New creates a Machine over reg.
func New(reg *registry.Registry, opts ...Option) *Machine {
	m := &Machine{reg: reg, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Transition moves the record for key to the requested state.
// Activating fails while another version of the same name is ACTIVATED.
func (m *Machine) Transition(key arkmod.Key, to arkmod.State) (arkmod.Record, error) {
	rec, err := m.reg.SetState(key, to, func(cur arkmod.Record, siblings []arkmod.Record) error {
		if !CanTransition(cur.State, to) {
			return &arkmod.IllegalTransitionError{Key: key, From: cur.State, To: to}
		}
		if to != arkmod.StateActivated {
			return nil
		}
		for _, s := range siblings {
			if s.State == arkmod.StateActivated {
				return &arkmod.IllegalTransitionError{
					Key:    key,
					From:   cur.State,
					To:     to,
					Reason: fmt.Sprintf("version %s is already active", s.Descriptor.Version),
				}
			}
		}
		return nil
	})
	if err != nil {
		return arkmod.Record{}, err
	}

	m.logger.Info("module transitioned", "module", key.String(), "state", to)
	return rec, nil
}

// MarkBroken moves the record to BROKEN when that is legal. Records that are
// already BROKEN or gone are left alone.
func (m *Machine) MarkBroken(key arkmod.Key, cause error) {
	rec, err := m.reg.Get(key)
	if err != nil || rec.State == arkmod.StateBroken {
		return
	}
	if _, err := m.Transition(key, arkmod.StateBroken); err != nil {
		m.logger.Warn("failed to mark module broken", "module", key.String(), "error", err)
		return
	}
	m.logger.Error("module broken", "module", key.String(), "cause", cause)
}

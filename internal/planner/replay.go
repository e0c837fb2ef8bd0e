// SPDX-License-Identifier: MPL-2.0

package planner

import (
	"fmt"
	"maps"
	"slices"

	"github.com/sofastack/sofa-ark-sub003/internal/lifecycle"
	"github.com/sofastack/sofa-ark-sub003/pkg/arkmod"
)

// Apply replays ops against a copy of snap the way the executor applies them,
// checking every transition against the lifecycle rules and the single-active
// invariant after each step. snap is not modified.
func Apply(snap Snapshot, ops []arkmod.Operation) (Snapshot, error) {
	st := maps.Clone(snap)
	if st == nil {
		st = Snapshot{}
	}
	for i, op := range ops {
		if err := applyOne(st, op); err != nil {
			return nil, fmt.Errorf("operation %d %s: %w", i+1, op, err)
		}
		if err := checkSingleActive(st); err != nil {
			return nil, fmt.Errorf("operation %d %s: %w", i+1, op, err)
		}
	}
	return st, nil
}

func applyOne(st Snapshot, op arkmod.Operation) error {
	key := op.Target
	cur, present := st[key]

	switch op.Kind {
	case arkmod.OpInstall:
		if present {
			return &arkmod.DuplicateModuleError{Key: key}
		}
		st[key] = arkmod.StateResolved
		if op.Activate {
			return step(st, key, arkmod.StateActivated)
		}
		return nil

	case arkmod.OpSwitch:
		if !present {
			return fmt.Errorf("%w: %s", arkmod.ErrModuleNotFound, key)
		}
		for _, sib := range st.Siblings(key) {
			if st[sib] == arkmod.StateActivated {
				if err := step(st, sib, arkmod.StateDeactivated); err != nil {
					return err
				}
			}
		}
		return step(st, key, arkmod.StateActivated)

	case arkmod.OpUninstall:
		if !present {
			return fmt.Errorf("%w: %s", arkmod.ErrModuleNotFound, key)
		}
		if cur == arkmod.StateActivated {
			if err := step(st, key, arkmod.StateDeactivated); err != nil {
				return err
			}
		}
		if err := step(st, key, arkmod.StateUninstalled); err != nil {
			return err
		}
		delete(st, key)
		return nil

	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

func step(st Snapshot, key arkmod.Key, to arkmod.State) error {
	from := st[key]
	if !lifecycle.CanTransition(from, to) {
		return &arkmod.IllegalTransitionError{Key: key, From: from, To: to}
	}
	st[key] = to
	return nil
}

func checkSingleActive(st Snapshot) error {
	active := make(map[string][]string)
	for k, s := range st {
		if s == arkmod.StateActivated {
			active[k.Name] = append(active[k.Name], k.Version)
		}
	}
	for name, versions := range active {
		if len(versions) > 1 {
			slices.SortFunc(versions, arkmod.CompareVersions)
			return &arkmod.MultipleActiveVersionsError{Name: name, Versions: versions}
		}
	}
	return nil
}

// verify replays ops on a fresh copy of snap and compares the outcome to
// desired. Panics during replay are reported as verification failures.
func verify(snap Snapshot, ops []arkmod.Operation, desired map[arkmod.Key]arkmod.DesiredState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &arkmod.PlanVerificationError{Cause: fmt.Errorf("panic during replay: %v", r)}
		}
	}()

	final, err := Apply(snap, ops)
	if err != nil {
		return &arkmod.PlanVerificationError{Cause: err}
	}
	if ok, mismatches := final.Satisfies(desired); !ok {
		return &arkmod.PlanVerificationError{Mismatches: mismatches}
	}
	return nil
}

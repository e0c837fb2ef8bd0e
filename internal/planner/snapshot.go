// SPDX-License-Identifier: MPL-2.0

package planner

import (
	"maps"
	"slices"

	"github.com/sofastack/sofa-ark-sub003/pkg/arkmod"
)

// Snapshot is a point-in-time copy of registry states.
type Snapshot map[arkmod.Key]arkmod.State

// SnapshotOf builds a Snapshot from registry records.
func SnapshotOf(records []arkmod.Record) Snapshot {
	snap := make(Snapshot, len(records))
	for _, rec := range records {
		snap[rec.Key()] = rec.State
	}
	return snap
}

// Keys returns the snapshot keys in name, then version order.
func (s Snapshot) Keys() []arkmod.Key {
	keys := slices.Collect(maps.Keys(s))
	slices.SortFunc(keys, arkmod.CompareKeys)
	return keys
}

// ActiveVersion returns the ACTIVATED version of name, if any.
func (s Snapshot) ActiveVersion(name string) (string, bool) {
	for k, st := range s {
		if k.Name == name && st == arkmod.StateActivated {
			return k.Version, true
		}
	}
	return "", false
}

// Siblings returns the other versions of key's name.
func (s Snapshot) Siblings(key arkmod.Key) []arkmod.Key {
	var out []arkmod.Key
	for k := range s {
		if k.Name == key.Name && k != key {
			out = append(out, k)
		}
	}
	slices.SortFunc(out, arkmod.CompareKeys)
	return out
}

// Satisfies reports whether the snapshot holds exactly the keys of desired,
// each in a state satisfying it. The returned mismatches are sorted.
func (s Snapshot) Satisfies(desired map[arkmod.Key]arkmod.DesiredState) (bool, []string) {
	var mismatches []string
	for k, want := range desired {
		got, ok := s[k]
		switch {
		case !ok:
			mismatches = append(mismatches, k.String()+": missing, want "+want.String())
		case !want.Satisfied(got):
			mismatches = append(mismatches, k.String()+": "+got.String()+", want "+want.String())
		}
	}
	for k, got := range s {
		if _, ok := desired[k]; !ok {
			mismatches = append(mismatches, k.String()+": unexpected "+got.String())
		}
	}
	slices.Sort(mismatches)
	return len(mismatches) == 0, mismatches
}

// normalized returns a copy where staged (RESOLVED) records count as DEACTIVATED.
func (s Snapshot) normalized() Snapshot {
	out := maps.Clone(s)
	if out == nil {
		out = Snapshot{}
	}
	for k, st := range out {
		if st == arkmod.StateResolved {
			out[k] = arkmod.StateDeactivated
		}
	}
	return out
}

// switchTo activates key and deactivates its active siblings.
func (s Snapshot) switchTo(key arkmod.Key) {
	for _, sib := range s.Siblings(key) {
		if s[sib] == arkmod.StateActivated {
			s[sib] = arkmod.StateDeactivated
		}
	}
	s[key] = arkmod.StateActivated
}

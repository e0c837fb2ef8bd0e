// SPDX-License-Identifier: MPL-2.0

package planner

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/sofastack/sofa-ark-sub003/pkg/arkmod"
)

func key(s string) arkmod.Key {
	for i := range len(s) {
		if s[i] == ':' {
			return arkmod.NewKey(s[:i], s[i+1:])
		}
	}
	return arkmod.NewKey(s, "")
}

func opStrings(ops []arkmod.Operation) []string {
	out := make([]string, 0, len(ops))
	for _, op := range ops {
		out = append(out, op.String())
	}
	return out
}

func TestPlanScenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		snap      Snapshot
		config    string
		wantOps   []string
		wantFinal Snapshot
		wantErr   error
	}{
		{
			name:      "install into empty state",
			config:    "a:1.0:ACTIVATED",
			wantOps:   []string{"INSTALL(a:1.0)"},
			wantFinal: Snapshot{key("a:1.0"): arkmod.StateActivated},
		},
		{
			name:    "upgrade installs then switches",
			snap:    Snapshot{key("a:1.0"): arkmod.StateActivated},
			config:  "a:2.0:ACTIVATED",
			wantOps: []string{"INSTALL(a:2.0, inactive)", "SWITCH(a:2.0)"},
			wantFinal: Snapshot{
				key("a:1.0"): arkmod.StateDeactivated,
				key("a:2.0"): arkmod.StateActivated,
			},
		},
		{
			name:    "switch back to a deactivated version",
			snap:    Snapshot{key("a:1.0"): arkmod.StateActivated, key("a:2.0"): arkmod.StateDeactivated},
			config:  "a:2.0:ACTIVATED",
			wantOps: []string{"SWITCH(a:2.0)"},
			wantFinal: Snapshot{
				key("a:1.0"): arkmod.StateDeactivated,
				key("a:2.0"): arkmod.StateActivated,
			},
		},
		{
			name:    "contradiction",
			config:  "a:1.0:ACTIVATED;a:1.0:DEACTIVATED",
			wantErr: arkmod.ErrConflictingDesiredState,
		},
		{
			name:      "empty config uninstalls everything",
			snap:      Snapshot{key("a:1.0"): arkmod.StateActivated},
			config:    "",
			wantOps:   []string{"UNINSTALL(a:1.0)"},
			wantFinal: Snapshot{},
		},
		{
			name:      "exact duplicate is ignored",
			config:    "a:1:ACTIVATED;a:1:activated",
			wantOps:   []string{"INSTALL(a:1)"},
			wantFinal: Snapshot{key("a:1"): arkmod.StateActivated},
		},
		{
			name:    "two active versions",
			config:  "a:1:ACTIVATED;a:2:ACTIVATED",
			wantErr: arkmod.ErrMultipleActiveVersions,
		},
		{
			name:    "stage inactive next to active sibling",
			snap:    Snapshot{key("a:1"): arkmod.StateActivated},
			config:  "a:1:ACTIVATED;a:2:DEACTIVATED",
			wantOps: []string{"INSTALL(a:2, inactive)"},
			wantFinal: Snapshot{
				key("a:1"): arkmod.StateActivated,
				key("a:2"): arkmod.StateResolved,
			},
		},
		{
			name:    "inactive listed first still sees the new active version",
			config:  "a:1:DEACTIVATED;a:2:ACTIVATED",
			wantOps: []string{"INSTALL(a:2)", "INSTALL(a:1, inactive)"},
			wantFinal: Snapshot{
				key("a:1"): arkmod.StateResolved,
				key("a:2"): arkmod.StateActivated,
			},
		},
		{
			name:    "inactive without an active sibling",
			config:  "a:1:DEACTIVATED",
			wantErr: arkmod.ErrIllegalTransition,
		},
		{
			name:    "cannot force deactivate",
			snap:    Snapshot{key("a:1"): arkmod.StateActivated},
			config:  "a:1:DEACTIVATED",
			wantErr: arkmod.ErrIllegalTransition,
		},
		{
			name:    "broken version is reinstalled",
			snap:    Snapshot{key("a:1"): arkmod.StateBroken},
			config:  "a:1:ACTIVATED",
			wantOps: []string{"UNINSTALL(a:1)", "INSTALL(a:1)"},
			wantFinal: Snapshot{
				key("a:1"): arkmod.StateActivated,
			},
		},
		{
			name:    "broken version is reinstalled beside an active sibling",
			snap:    Snapshot{key("a:1"): arkmod.StateActivated, key("a:2"): arkmod.StateBroken},
			config:  "a:2:ACTIVATED;a:1:DEACTIVATED",
			wantOps: []string{"UNINSTALL(a:2)", "INSTALL(a:2, inactive)", "SWITCH(a:2)"},
			wantFinal: Snapshot{
				key("a:1"): arkmod.StateDeactivated,
				key("a:2"): arkmod.StateActivated,
			},
		},
		{
			name:    "broken staged version is restaged",
			snap:    Snapshot{key("a:1"): arkmod.StateActivated, key("a:2"): arkmod.StateBroken},
			config:  "a:1:ACTIVATED;a:2:DEACTIVATED",
			wantOps: []string{"UNINSTALL(a:2)", "INSTALL(a:2, inactive)"},
			wantFinal: Snapshot{
				key("a:1"): arkmod.StateActivated,
				key("a:2"): arkmod.StateResolved,
			},
		},
		{
			name:    "broken version without an active sibling cannot be staged",
			snap:    Snapshot{key("a:2"): arkmod.StateBroken},
			config:  "a:2:DEACTIVATED",
			wantErr: arkmod.ErrIllegalTransition,
		},
		{
			name:    "broken sibling is removed",
			snap:    Snapshot{key("a:1"): arkmod.StateBroken, key("b:1"): arkmod.StateActivated},
			config:  "a:2:ACTIVATED;b:1:ACTIVATED",
			wantOps: []string{"INSTALL(a:2)", "UNINSTALL(a:1)"},
			wantFinal: Snapshot{
				key("a:2"): arkmod.StateActivated,
				key("b:1"): arkmod.StateActivated,
			},
		},
		{
			name:    "staged module counts as inactive",
			snap:    Snapshot{key("a:1"): arkmod.StateActivated, key("a:2"): arkmod.StateResolved},
			config:  "a:2:ACTIVATED",
			wantOps: []string{"SWITCH(a:2)"},
			wantFinal: Snapshot{
				key("a:1"): arkmod.StateDeactivated,
				key("a:2"): arkmod.StateActivated,
			},
		},
		{
			name: "uninstalls ordered by name then version",
			snap: Snapshot{
				key("b:1"):    arkmod.StateActivated,
				key("a:10.0"): arkmod.StateDeactivated,
				key("a:9.0"):  arkmod.StateActivated,
			},
			config:    "",
			wantOps:   []string{"UNINSTALL(a:9.0)", "UNINSTALL(a:10.0)", "UNINSTALL(b:1)"},
			wantFinal: Snapshot{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			plan, err := Plan(tt.config, tt.snap)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Plan() error = %v, want %v", err, tt.wantErr)
				}
				if plan != nil {
					t.Error("Plan() returned a plan alongside an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Plan() error = %v", err)
			}
			if got := opStrings(plan.Operations); !slices.Equal(got, tt.wantOps) {
				t.Errorf("operations = %v, want %v", got, tt.wantOps)
			}
			if plan.ID == "" {
				t.Error("plan has no ID")
			}

			final, err := Apply(tt.snap, plan.Operations)
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if len(final) != len(tt.wantFinal) {
				t.Fatalf("final = %v, want %v", final, tt.wantFinal)
			}
			for k, want := range tt.wantFinal {
				if final[k] != want {
					t.Errorf("final[%s] = %s, want %s", k, final[k], want)
				}
			}
		})
	}
}

func TestPlanCarriesParams(t *testing.T) {
	t.Parallel()

	plan, err := Plan("a:2:ACTIVATED?location=/tmp/a-2", Snapshot{key("a:1"): arkmod.StateActivated})
	if err != nil {
		t.Fatal(err)
	}
	for _, op := range plan.Operations {
		if op.Params["location"] != "/tmp/a-2" {
			t.Errorf("%s params = %v", op, op.Params)
		}
	}
	plan.Operations[0].Params["location"] = "changed"
	if plan.Operations[1].Params["location"] != "/tmp/a-2" {
		t.Error("operations share a params map")
	}
}

func TestPlanDoesNotMutateSnapshot(t *testing.T) {
	t.Parallel()

	snap := Snapshot{key("a:1"): arkmod.StateActivated, key("a:2"): arkmod.StateResolved}
	if _, err := Plan("a:2:ACTIVATED", snap); err != nil {
		t.Fatal(err)
	}
	if snap[key("a:1")] != arkmod.StateActivated || snap[key("a:2")] != arkmod.StateResolved {
		t.Errorf("snapshot mutated: %v", snap)
	}
}

func TestVerifyRejectsBadPlans(t *testing.T) {
	t.Parallel()

	snap := Snapshot{key("a:1"): arkmod.StateActivated}
	desired := map[arkmod.Key]arkmod.DesiredState{
		key("a:1"): arkmod.DesiredActive,
		key("a:2"): arkmod.DesiredActive,
	}

	tests := []struct {
		name string
		ops  []arkmod.Operation
	}{
		{name: "double active", ops: []arkmod.Operation{{Kind: arkmod.OpInstall, Target: key("a:2"), Activate: true}}},
		{name: "unknown target", ops: []arkmod.Operation{{Kind: arkmod.OpSwitch, Target: key("a:3")}}},
		{name: "unknown kind", ops: []arkmod.Operation{{Kind: "RESTART", Target: key("a:1")}}},
		{name: "wrong outcome", ops: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := verify(snap, tt.ops, desired)
			var verr *arkmod.PlanVerificationError
			if !errors.As(err, &verr) {
				t.Fatalf("verify() = %v, want PlanVerificationError", err)
			}
		})
	}
}

func TestVerifyUnknownDesiredState(t *testing.T) {
	t.Parallel()

	err := verify(Snapshot{}, []arkmod.Operation{{Kind: arkmod.OpInstall, Target: key("a:1"), Activate: true}},
		map[arkmod.Key]arkmod.DesiredState{key("a:1"): "BOGUS"})
	if !errors.Is(err, arkmod.ErrPlanVerification) {
		t.Fatalf("verify() = %v", err)
	}
}

func TestPlannerOptions(t *testing.T) {
	t.Parallel()

	p := New(WithIDGenerator(func() string { return "fixed" }))
	plan, err := p.Plan(context.Background(), "a:1:ACTIVATED", nil)
	if err != nil {
		t.Fatal(err)
	}
	if plan.ID != "fixed" {
		t.Errorf("ID = %q", plan.ID)
	}
	if plan.Empty() {
		t.Error("Empty() = true")
	}
	if got := plan.DesiredKeys(); len(got) != 1 || got[0] != key("a:1") {
		t.Errorf("DesiredKeys() = %v", got)
	}
}

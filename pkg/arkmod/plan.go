// SPDX-License-Identifier: MPL-2.0

package arkmod

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

const (
	// OpInstall loads and registers a module version.
	OpInstall OperationKind = "INSTALL"
	// OpSwitch activates a version, deactivating its active siblings.
	OpSwitch OperationKind = "SWITCH"
	// OpUninstall tears a module version down and removes its record.
	OpUninstall OperationKind = "UNINSTALL"
)

type (
	// OperationKind is the kind of a planned Operation.
	OperationKind string

	// DesiredAssignment is one parsed clause of a desired-state config.
	DesiredAssignment struct {
		Key     Key
		Desired DesiredState
		Params  map[string]string
		// Clause is the raw clause text, kept for error messages.
		Clause string
	}

	// Operation is one step of a plan.
	Operation struct {
		Kind   OperationKind
		Target Key
		Params map[string]string
		// Activate tells an INSTALL to activate the module directly.
		Activate bool
	}

	// Plan is a verified operation list together with the state it produces.
	Plan struct {
		ID         string
		Operations []Operation
		// Desired is the state every planned key reaches once the plan is applied.
		Desired map[Key]DesiredState
	}
)

// String returns the string representation of the OperationKind.
func (k OperationKind) String() string { return string(k) }

// String renders the operation as KIND(name:version).
func (o Operation) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s(%s", o.Kind, o.Target)
	if o.Kind == OpInstall && !o.Activate {
		b.WriteString(", inactive")
	}
	b.WriteString(")")
	return b.String()
}

// Empty reports whether applying the plan would change nothing.
func (p *Plan) Empty() bool { return p == nil || len(p.Operations) == 0 }

// DesiredKeys returns the planned keys in name, then version order.
func (p *Plan) DesiredKeys() []Key {
	keys := slices.Collect(maps.Keys(p.Desired))
	slices.SortFunc(keys, CompareKeys)
	return keys
}

// SPDX-License-Identifier: MPL-2.0

package arkmod

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// KindBiz is a business module.
	KindBiz Kind = "biz"
	// KindPlugin is a capability module.
	KindPlugin Kind = "plugin"

	// StateResolved means registered with a parsed descriptor but not serving.
	StateResolved State = "RESOLVED"
	// StateActivated means the module is started and serving requests.
	StateActivated State = "ACTIVATED"
	// StateDeactivated means the module was switched away from.
	StateDeactivated State = "DEACTIVATED"
	// StateBroken means activation or deactivation failed unrecoverably.
	StateBroken State = "BROKEN"
	// StateUninstalled is terminal; records are removed when they reach it.
	StateUninstalled State = "UNINSTALLED"

	// SymbolType identifies a type (class) name.
	SymbolType SymbolKind = "TYPE"
	// SymbolResource identifies a resource name.
	SymbolResource SymbolKind = "RESOURCE"

	// DesiredActive asks for the module version to be serving.
	DesiredActive DesiredState = "ACTIVE"
	// DesiredInactive asks for the module version to be present but not serving.
	DesiredInactive DesiredState = "INACTIVE"
)

// ErrInvalidKey is returned when a Key has an empty or malformed component.
var ErrInvalidKey = errors.New("invalid module key")

type (
	// Key identifies a module instance by name and version.
	Key struct {
		Name    string
		Version string
	}

	// Kind distinguishes business modules from capability modules.
	Kind string

	// State is a lifecycle state of a registered module record.
	State string

	// SymbolKind selects which import/export sets a symbol is checked against.
	SymbolKind string

	// DesiredState is the planner-level target of a module version.
	DesiredState string

	// InvalidKeyError is returned when a Key fails validation.
	// It wraps ErrInvalidKey for errors.Is() compatibility.
	InvalidKeyError struct {
		Key    Key
		Reason string
	}
)

// NewKey returns a Key with surrounding whitespace trimmed.
func NewKey(name, version string) Key {
	return Key{Name: strings.TrimSpace(name), Version: strings.TrimSpace(version)}
}

// String renders the key in the desired-state wire form "name:version".
func (k Key) String() string {
	return k.Name + ":" + k.Version
}

// Validate reports whether both components are present and free of the
// separators used by the desired-state format.
func (k Key) Validate() error {
	switch {
	case k.Name == "":
		return &InvalidKeyError{Key: k, Reason: "name is empty"}
	case k.Version == "":
		return &InvalidKeyError{Key: k, Reason: "version is empty"}
	case strings.ContainsAny(k.Name, ":;?& \t"):
		return &InvalidKeyError{Key: k, Reason: "name contains a reserved character"}
	case strings.ContainsAny(k.Version, ":;?& \t"):
		return &InvalidKeyError{Key: k, Reason: "version contains a reserved character"}
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid module key %q: %s", e.Key.String(), e.Reason)
}

// Unwrap returns ErrInvalidKey so callers can use errors.Is for programmatic detection.
func (e *InvalidKeyError) Unwrap() error { return ErrInvalidKey }

// String returns the string representation of the Kind.
func (k Kind) String() string { return string(k) }

// Validate returns nil for the known kinds. The zero value is treated as biz.
func (k Kind) Validate() error {
	switch k {
	case "", KindBiz, KindPlugin:
		return nil
	default:
		return fmt.Errorf("unknown module kind %q", string(k))
	}
}

// OrDefault returns KindBiz for the zero value.
func (k Kind) OrDefault() Kind {
	if k == "" {
		return KindBiz
	}
	return k
}

// String returns the string representation of the State.
func (s State) String() string { return string(s) }

// Inactive reports whether a record in this state is present but not serving.
// Staged installs (RESOLVED) and switched-away versions (DEACTIVATED) both count.
func (s State) Inactive() bool {
	return s == StateResolved || s == StateDeactivated
}

// Removable reports whether a record in this state may be unregistered.
func (s State) Removable() bool {
	switch s {
	case StateActivated, StateDeactivated, StateResolved, StateBroken:
		return true
	default:
		return false
	}
}

// String returns the string representation of the SymbolKind.
func (k SymbolKind) String() string { return string(k) }

// Validate returns nil for TYPE and RESOURCE.
func (k SymbolKind) Validate() error {
	switch k {
	case SymbolType, SymbolResource:
		return nil
	default:
		return fmt.Errorf("unknown symbol kind %q", string(k))
	}
}

// ParseSymbolKind accepts "type", "class", "resource" in any case.
func ParseSymbolKind(raw string) (SymbolKind, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "TYPE", "CLASS":
		return SymbolType, nil
	case "RESOURCE":
		return SymbolResource, nil
	default:
		return "", fmt.Errorf("unknown symbol kind %q", raw)
	}
}

// String returns the string representation of the DesiredState.
func (d DesiredState) String() string { return string(d) }

// Satisfied reports whether a record state fulfils the desired state.
func (d DesiredState) Satisfied(s State) bool {
	switch d {
	case DesiredActive:
		return s == StateActivated
	case DesiredInactive:
		return s.Inactive()
	default:
		return false
	}
}

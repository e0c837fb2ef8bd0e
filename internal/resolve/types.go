// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"errors"
	"fmt"

	"github.com/sofastack/sofa-ark-sub003/pkg/arkmod"
)

const (
	// PreResolve hooks run after the deny check and before contract lookup.
	PreResolve HookPoint = "pre-resolve"
	// PostResolve hooks run only when every scope came up empty.
	PostResolve HookPoint = "post-resolve"

	// ScopeNone marks a NotFound result.
	ScopeNone ScopeKind = ""
	// ScopeDenied marks a NotFound result caused by the deny list.
	ScopeDenied ScopeKind = "denied"
	// ScopeHook marks a result supplied by a hook.
	ScopeHook ScopeKind = "hook"
	// ScopeImport marks a result from exporting modules.
	ScopeImport ScopeKind = "import"
	// ScopeBase marks a result from a shared base scope.
	ScopeBase ScopeKind = "base"
	// ScopeSelf marks a result from the requester's own namespace.
	ScopeSelf ScopeKind = "self"
)

// ErrDuplicateHook is returned when a hook name is registered twice at one point.
var ErrDuplicateHook = errors.New("duplicate resolution hook")

type (
	// HookPoint selects when a hook runs.
	HookPoint string

	// ScopeKind names the scope that produced a result.
	ScopeKind string

	// Request is one symbol lookup.
	Request struct {
		Requester arkmod.Key
		Symbol    string
		Kind      arkmod.SymbolKind
	}

	// Result holds the resolved namespaces; an empty result means NotFound.
	Result struct {
		Namespaces []arkmod.Namespace
		Scope      ScopeKind
		// Hook names the hook that produced the result, if any.
		Hook string
	}

	// HookFunc intercepts a request. Returning handled=true makes the result
	// final, even when it is empty.
	HookFunc func(req Request, view View) (result Result, handled bool)

	// View is the read-only registry access given to hooks.
	View interface {
		Record(key arkmod.Key) (arkmod.Record, bool)
		Versions(name string) []arkmod.Record
		Visible(key arkmod.Key) bool
	}

	// Scope is a shared symbol source consulted after contract lookup.
	Scope interface {
		Name() string
		Lookup(symbol string, kind arkmod.SymbolKind) (arkmod.Namespace, bool)
	}

	hook struct {
		name     string
		priority int
		seq      int
		fn       HookFunc
	}
)

// NotFound returns the empty result.
func NotFound() Result { return Result{} }

// Found reports whether at least one namespace was resolved.
func (r Result) Found() bool { return len(r.Namespaces) > 0 }

// First returns the best namespace, or nil when nothing was found.
func (r Result) First() arkmod.Namespace {
	if len(r.Namespaces) == 0 {
		return nil
	}
	return r.Namespaces[0]
}

// Owners lists the keys owning the resolved namespaces in order.
func (r Result) Owners() []arkmod.Key {
	out := make([]arkmod.Key, 0, len(r.Namespaces))
	for _, ns := range r.Namespaces {
		out = append(out, ns.Owner())
	}
	return out
}

// String returns the string representation of the HookPoint.
func (p HookPoint) String() string { return string(p) }

// Validate returns nil for the known hook points.
func (p HookPoint) Validate() error {
	switch p {
	case PreResolve, PostResolve:
		return nil
	default:
		return fmt.Errorf("unknown hook point %q", string(p))
	}
}

// Validate checks the request kind and symbol.
func (r Request) Validate() error {
	if r.Symbol == "" {
		return errors.New("symbol is empty")
	}
	return r.Kind.Validate()
}

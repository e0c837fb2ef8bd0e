// SPDX-License-Identifier: MPL-2.0

package arkmod

import "slices"

type (
	// Namespace is the isolated symbol space of one module. Handles are owned
	// by the record they were materialized for.
	Namespace interface {
		ID() string
		Owner() Key
		Contains(symbol string, kind SymbolKind) bool
	}

	// Record is the registry's view of one module version. Values handed out
	// by the registry are copies; the contract and descriptor slices are
	// shared and must be treated as read-only.
	Record struct {
		Descriptor Descriptor
		Contract   Contract
		State      State
		Namespace  Namespace
		// Seq is the registration order, assigned by the registry.
		Seq uint64
	}

	// SymbolNamespace is a Namespace backed by fixed symbol sets.
	SymbolNamespace struct {
		id        string
		owner     Key
		types     map[string]struct{}
		resources PatternSet
	}
)

// NewRecord compiles the descriptor contract and returns a RESOLVED record.
func NewRecord(d Descriptor, ns Namespace) Record {
	return Record{
		Descriptor: d,
		Contract:   CompileContract(d),
		State:      StateResolved,
		Namespace:  ns,
	}
}

// Key returns the record identity.
func (r Record) Key() Key { return r.Descriptor.Key() }

// Priority returns the resolution priority; lower resolves first.
func (r Record) Priority() int { return r.Descriptor.Priority }

// Kind returns the module kind, defaulting to biz.
func (r Record) Kind() Kind { return r.Descriptor.Kind.OrDefault() }

// HasMarker reports whether marker identifies code originating from this module.
func (r Record) HasMarker(marker string) bool {
	return slices.Contains(r.Descriptor.AllMarkers(), marker)
}

// NewSymbolNamespace returns a namespace containing exactly the given types
// and resources. Resource entries may be doublestar globs.
func NewSymbolNamespace(id string, owner Key, types, resources []string) *SymbolNamespace {
	ns := &SymbolNamespace{
		id:        id,
		owner:     owner,
		types:     make(map[string]struct{}, len(types)),
		resources: NewPatternSet(resources...),
	}
	for _, t := range types {
		ns.types[t] = struct{}{}
	}
	return ns
}

// ID returns the namespace identifier.
func (n *SymbolNamespace) ID() string { return n.id }

// Owner returns the key of the module owning the namespace.
func (n *SymbolNamespace) Owner() Key { return n.owner }

// Contains reports whether the namespace defines the symbol.
func (n *SymbolNamespace) Contains(symbol string, kind SymbolKind) bool {
	switch kind {
	case SymbolType:
		_, ok := n.types[symbol]
		return ok
	case SymbolResource:
		return n.resources.MatchGlob(symbol)
	default:
		return false
	}
}

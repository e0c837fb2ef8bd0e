// SPDX-License-Identifier: MPL-2.0

package resolve

import "github.com/sofastack/sofa-ark-sub003/pkg/arkmod"

// BaseScopeName is the name of the shared runtime scope.
const BaseScopeName = "base"

type (
	// BaseScope holds the symbols every module sees regardless of contracts.
	BaseScope struct {
		classes   arkmod.PatternSet
		packages  arkmod.PatternSet
		resources arkmod.PatternSet
		ns        *baseNamespace
	}

	baseNamespace struct {
		scope *BaseScope
	}
)

// NewBaseScope builds the base scope from class names, package patterns and
// resource globs.
func NewBaseScope(classes, packages, resources []string) *BaseScope {
	s := &BaseScope{
		classes:   arkmod.NewPatternSet(classes...),
		packages:  arkmod.NewPatternSet(packages...),
		resources: arkmod.NewPatternSet(resources...),
	}
	s.ns = &baseNamespace{scope: s}
	return s
}

// Name implements Scope.
func (s *BaseScope) Name() string { return BaseScopeName }

// Lookup implements Scope.
func (s *BaseScope) Lookup(symbol string, kind arkmod.SymbolKind) (arkmod.Namespace, bool) {
	if !s.contains(symbol, kind) {
		return nil, false
	}
	return s.ns, true
}

func (s *BaseScope) contains(symbol string, kind arkmod.SymbolKind) bool {
	switch kind {
	case arkmod.SymbolType:
		return s.classes.Has(symbol) || s.packages.MatchPackage(symbol)
	case arkmod.SymbolResource:
		return s.resources.MatchGlob(symbol)
	default:
		return false
	}
}

func (n *baseNamespace) ID() string { return BaseScopeName }

// Owner is the zero key: the base scope belongs to no module.
func (n *baseNamespace) Owner() arkmod.Key { return arkmod.Key{} }

func (n *baseNamespace) Contains(symbol string, kind arkmod.SymbolKind) bool {
	return n.scope.contains(symbol, kind)
}

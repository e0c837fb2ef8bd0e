// SPDX-License-Identifier: MPL-2.0

package arkmod

import (
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// packageWildcard marks a package entry that matches a whole package subtree.
const packageWildcard = ".*"

type (
	// PatternSet is an immutable set of symbol patterns. The same entries are
	// interpreted as class names, packages or resource globs depending on which
	// matcher is used.
	PatternSet struct {
		entries []string
		exact   map[string]struct{}
	}

	// Contract is the compiled import/deny/export contract of a module.
	// It is built once at registration and never mutated afterwards.
	Contract struct {
		ImportClasses   PatternSet
		ImportPackages  PatternSet
		ImportResources PatternSet

		DenyClasses   PatternSet
		DenyPackages  PatternSet
		DenyResources PatternSet

		ExportClasses   PatternSet
		ExportPackages  PatternSet
		ExportResources PatternSet
		// ExportIndex is the flattened list of exported type names.
		ExportIndex PatternSet
	}
)

// NewPatternSet builds a set from entries, dropping blanks and duplicates
// while keeping first-seen order.
func NewPatternSet(entries ...string) PatternSet {
	p := PatternSet{exact: make(map[string]struct{}, len(entries))}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if _, dup := p.exact[e]; dup {
			continue
		}
		p.exact[e] = struct{}{}
		p.entries = append(p.entries, e)
	}
	return p
}

// Entries returns a copy of the entries in declaration order.
func (p PatternSet) Entries() []string {
	return slices.Clone(p.entries)
}

// Len returns the number of entries.
func (p PatternSet) Len() int { return len(p.entries) }

// Has reports whether name is an entry verbatim.
func (p PatternSet) Has(name string) bool {
	_, ok := p.exact[name]
	return ok
}

// MatchPackage reports whether the package of typeName is covered by an
// entry. "a.b" covers only package a.b; "a.b.*" covers a.b and everything
// below it.
func (p PatternSet) MatchPackage(typeName string) bool {
	pkg := PackageOf(typeName)
	if pkg == "" {
		return false
	}
	if p.Has(pkg) {
		return true
	}
	for _, e := range p.entries {
		root, ok := strings.CutSuffix(e, packageWildcard)
		if !ok {
			continue
		}
		if pkg == root || strings.HasPrefix(pkg, root+".") {
			return true
		}
	}
	return false
}

// MatchGlob reports whether name matches any entry as a doublestar glob.
// Malformed globs never match.
func (p PatternSet) MatchGlob(name string) bool {
	if p.Has(name) {
		return true
	}
	for _, e := range p.entries {
		if matched, err := doublestar.Match(e, name); err == nil && matched {
			return true
		}
	}
	return false
}

// PackageOf returns everything before the last dot of a type name.
func PackageOf(typeName string) string {
	i := strings.LastIndexByte(typeName, '.')
	if i <= 0 {
		return ""
	}
	return typeName[:i]
}

// CompileContract builds the immutable contract of a descriptor.
func CompileContract(d Descriptor) Contract {
	return Contract{
		ImportClasses:   NewPatternSet(d.ImportClasses...),
		ImportPackages:  NewPatternSet(d.ImportPackages...),
		ImportResources: NewPatternSet(d.ImportResources...),
		DenyClasses:     NewPatternSet(d.DenyImportClasses...),
		DenyPackages:    NewPatternSet(d.DenyImportPackages...),
		DenyResources:   NewPatternSet(d.DenyImportResources...),
		ExportClasses:   NewPatternSet(d.ExportClasses...),
		ExportPackages:  NewPatternSet(d.ExportPackages...),
		ExportResources: NewPatternSet(d.ExportResources...),
		ExportIndex:     NewPatternSet(d.ExportIndex...),
	}
}

// Denies reports whether the symbol is on the deny list for its kind.
func (c Contract) Denies(symbol string, kind SymbolKind) bool {
	switch kind {
	case SymbolType:
		return c.DenyClasses.Has(symbol) || c.DenyPackages.MatchPackage(symbol)
	case SymbolResource:
		return c.DenyResources.MatchGlob(symbol)
	default:
		return false
	}
}

// Imports reports whether the symbol is declared as an import for its kind.
func (c Contract) Imports(symbol string, kind SymbolKind) bool {
	switch kind {
	case SymbolType:
		return c.ImportClasses.Has(symbol) || c.ImportPackages.MatchPackage(symbol)
	case SymbolResource:
		return c.ImportResources.MatchGlob(symbol)
	default:
		return false
	}
}

// Exports reports whether the module offers the symbol to others.
// Type exports consult the export index as well as classes and packages.
func (c Contract) Exports(symbol string, kind SymbolKind) bool {
	switch kind {
	case SymbolType:
		return c.ExportIndex.Has(symbol) ||
			c.ExportClasses.Has(symbol) ||
			c.ExportPackages.MatchPackage(symbol)
	case SymbolResource:
		return c.ExportResources.MatchGlob(symbol)
	default:
		return false
	}
}

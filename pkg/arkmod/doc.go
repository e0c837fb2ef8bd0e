// SPDX-License-Identifier: MPL-2.0

// Package arkmod defines the shared model of the module host: module identity,
// descriptors, registered records, lifecycle states, symbol patterns, and the
// error taxonomy used by every component.
//
// # Modules
//
// A module is a unit of isolated code with its own namespace. Two kinds exist:
//   - [KindBiz]: business modules; at most one version per name serves at a time
//   - [KindPlugin]: capability modules that export shared types and resources
//
// A module is identified by its [Key] (name and version). Its contract is
// declared in a [Descriptor]: import, deny and export sets plus a numeric
// priority where a lower value is resolved first.
//
// # Patterns
//
// Import, deny and export sets are [PatternSet] values. Type names are matched
// by exact class name or by package ("a.b" for one package, "a.b.*" for a
// package subtree). Resource names are matched with doublestar globs.
//
// # Errors
//
// Every error type wraps a sentinel so callers can use errors.Is, and carries
// the offending key, clause or state for errors.As.
package arkmod

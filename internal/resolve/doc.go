// SPDX-License-Identifier: MPL-2.0

// Package resolve finds the namespace that should satisfy a symbol request
// made by one module.
//
// Scopes are consulted in a fixed order:
//
//  1. deny: a symbol on the requester's deny list is never resolved
//  2. pre-resolve hooks, by priority; a handled result short-circuits
//  3. import: published exporters of the symbol, when the requester imports it
//  4. base: shared scopes every module sees regardless of contracts
//  5. self: the requester's own namespace
//  6. post-resolve hooks, by priority, only when nothing was found
//
// A type resolves to the single best exporter (lowest priority value, then
// earliest registration). A resource resolves to every matching exporter in
// that same order, since several providers may legitimately ship it.
//
// Resolution is a pure query: it reads the registry and never mutates it.
package resolve

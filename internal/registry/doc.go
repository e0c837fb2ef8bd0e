// SPDX-License-Identifier: MPL-2.0

// Package registry is the concurrent-safe store of module records keyed by
// name and version. It is the only shared mutable resource of the host.
//
// Records are grouped by module name. A short-lived map lock finds the group;
// each group carries its own lock so work on unrelated names proceeds
// concurrently while mutations of one (name, version) are mutually exclusive.
// Every read returns copies, so callers never observe a record changing.
package registry

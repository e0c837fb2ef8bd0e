// SPDX-License-Identifier: MPL-2.0

// Package host wires the module registry, resolution engine, lifecycle
// machine, planner and executor into one Host. It is the API that the
// arkctl commands and embedding programs use: plan and apply desired
// states, resolve symbols, query module state and boot plugins from the
// configured module directories.
package host

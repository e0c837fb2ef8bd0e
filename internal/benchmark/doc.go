// SPDX-License-Identifier: MPL-2.0

// Package benchmark holds benchmarks for the hot paths of the module host,
// suitable for PGO profile generation:
//   - descriptor parsing in the CUE, TOML and YAML formats
//   - descriptor discovery over a module directory
//   - desired-state planning against large snapshots
//   - symbol resolution through contracts, the base scope and hooks
//   - plugin boot ordering and end-to-end reconciles
//
// To generate a profile, run:
//
//	go test ./internal/benchmark -run '^$' -bench . -cpuprofile default.pgo
package benchmark

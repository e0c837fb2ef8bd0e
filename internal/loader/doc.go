// SPDX-License-Identifier: MPL-2.0

// Package loader reads module descriptors from the filesystem.
//
// Each module version lives in its own directory, by default
// <module-dir>/<name>-<version>/, holding exactly one of module.cue,
// module.toml or module.yaml. A "location" operation parameter points the
// loader at a specific directory or descriptor file instead.
package loader

// SPDX-License-Identifier: MPL-2.0

// Package executor applies verified plans to the registry one operation at a
// time. It drives the lifecycle machine, publishes and withdraws export
// visibility, fires lifecycle events to handlers found in the service
// registry and starts entry points through the published EntryRunner.
package executor

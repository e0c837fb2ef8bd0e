// SPDX-License-Identifier: MPL-2.0

// Package testutil provides in-memory fixtures shared by package tests and
// helpers that write descriptor files, failing the test on error.
package testutil

// SPDX-License-Identifier: MPL-2.0

// Package issue turns failures into user-facing guidance.
//
// ActionableError attaches the attempted operation, the resource involved
// and remediation hints to an error. The issue catalog holds Markdown
// write-ups for each error family of the module host, rendered for the
// terminal with glamour.
package issue

// SPDX-License-Identifier: MPL-2.0

// Package service is the in-process capability registry. Modules publish
// instances under a capability name with a provider priority; consumers look
// up the best or all providers. The lifecycle executor discovers event
// handlers and entry runners through it.
package service

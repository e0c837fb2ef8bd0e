// SPDX-License-Identifier: MPL-2.0

// Package planner turns a desired-state config string and a registry snapshot
// into a verified operation plan.
//
// The wire format is a ';'-separated list of clauses
//
//	name:version:STATE[?key=value&key2=value2]
//
// where STATE is ACTIVATED or DEACTIVATED in any case. Planning is pure: it
// reads only the snapshot it is given, and a plan is returned only after
// replaying it against a fresh copy of that snapshot yields exactly the
// desired state.
package planner

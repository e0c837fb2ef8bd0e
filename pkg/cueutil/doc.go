// SPDX-License-Identifier: MPL-2.0

// Package cueutil decodes CUE documents against an embedded schema.
//
// Module descriptors (module.cue) and the arkctl config file (config.cue) are
// both read the same way:
//
//  1. compile the embedded schema and look up its root definition
//  2. compile the user document and unify it with that definition
//  3. validate the result and decode it into a Go struct
//
// Usage:
//
//	//go:embed descriptor_schema.cue
//	var descriptorSchema []byte
//
//	res, err := cueutil.ParseAndDecode[arkmod.Descriptor](
//	    descriptorSchema, data, "#Descriptor",
//	    cueutil.WithFilename("payments-1.0/module.cue"),
//	)
//
// Errors carry the file name and a JSON-style path to the offending field.
package cueutil

// SPDX-License-Identifier: MPL-2.0

package config

import (
	"reflect"
	"slices"
	"strings"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// cueFields lists the regular and optional field names of a CUE struct.
func cueFields(t *testing.T, val cue.Value) []string {
	t.Helper()

	iter, err := val.Fields(cue.Definitions(false), cue.Optional(true))
	if err != nil {
		t.Fatalf("failed to iterate CUE fields: %v", err)
	}
	var out []string
	for iter.Next() {
		sel := iter.Selector()
		if sel.LabelType().IsHidden() || sel.IsDefinition() {
			continue
		}
		out = append(out, strings.TrimSuffix(sel.String(), "?"))
	}
	slices.Sort(out)
	return out
}

// jsonTags lists the json tag names of a struct's exported fields.
func jsonTags(typ reflect.Type) []string {
	var out []string
	for i := range typ.NumField() {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name != "" && name != "-" {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// TestSchemaMatchesStructs keeps config_schema.cue and the Go structs aligned,
// since a field missing from either side is silently dropped on load.
func TestSchemaMatchesStructs(t *testing.T) {
	t.Parallel()

	schema := cuecontext.New().CompileString(configSchema)
	if schema.Err() != nil {
		t.Fatalf("compile schema: %v", schema.Err())
	}

	tests := []struct {
		def string
		typ reflect.Type
	}{
		{def: "#Config", typ: reflect.TypeFor[Config]()},
		{def: "#LogConfig", typ: reflect.TypeFor[LogConfig]()},
		{def: "#LoaderConfig", typ: reflect.TypeFor[LoaderConfig]()},
		{def: "#ExecutorConfig", typ: reflect.TypeFor[ExecutorConfig]()},
		{def: "#ResolverConfig", typ: reflect.TypeFor[ResolverConfig]()},
		{def: "#BootConfig", typ: reflect.TypeFor[BootConfig]()},
		{def: "#TelemetryConfig", typ: reflect.TypeFor[TelemetryConfig]()},
	}

	for _, tt := range tests {
		t.Run(tt.def, func(t *testing.T) {
			t.Parallel()
			val := schema.LookupPath(cue.ParsePath(tt.def))
			if !val.Exists() {
				t.Fatalf("%s not found in schema", tt.def)
			}
			cueNames, goNames := cueFields(t, val), jsonTags(tt.typ)
			if !slices.Equal(cueNames, goNames) {
				t.Errorf("%s fields %v do not match %s json tags %v", tt.def, cueNames, tt.typ.Name(), goNames)
			}
		})
	}
}

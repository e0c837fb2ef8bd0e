// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// ParseResult holds a decoded document and the unified CUE value it came from.
type ParseResult[T any] struct {
	Value *T
	// Unified is kept for callers that read fields the Go struct omits.
	Unified cue.Value
}

// ParseAndDecode validates data against the definition at schemaPath inside
// schema and decodes it into a T.
func ParseAndDecode[T any](schema, data []byte, schemaPath string, opts ...Option) (*ParseResult[T], error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	filename := options.filename
	if filename == "" {
		filename = "<input>"
	}

	if err := CheckFileSize(data, options.maxFileSize, filename); err != nil {
		return nil, err
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileBytes(schema)
	if err := schemaValue.Err(); err != nil {
		return nil, fmt.Errorf("internal error: compile schema: %w", err)
	}
	def := schemaValue.LookupPath(cue.ParsePath(schemaPath))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("internal error: schema definition %s: %w", schemaPath, err)
	}

	userValue := ctx.CompileBytes(data, cue.Filename(filename))
	if err := userValue.Err(); err != nil {
		return nil, FormatError(err, filename)
	}

	unified := def.Unify(userValue)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, FormatError(err, filename)
	}

	var out T
	if err := unified.Decode(&out); err != nil {
		return nil, FormatError(err, filename)
	}
	return &ParseResult[T]{Value: &out, Unified: unified}, nil
}

// DecodeFile reads path and decodes it with ParseAndDecode. Oversized files
// are rejected before they are read.
func DecodeFile[T any](schema []byte, path, schemaPath string, opts ...Option) (*T, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > options.maxFileSize {
		return nil, fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes", path, info.Size(), options.maxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	opts = append([]Option{WithFilename(path)}, opts...)
	res, err := ParseAndDecode[T](schema, data, schemaPath, opts...)
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

// ErrInvalidCUEPath is the sentinel error wrapped by InvalidCUEPathError.
var ErrInvalidCUEPath = errors.New("invalid CUE path")

type (
	// CUEPath is a JSON-style path to a field, e.g. "provides.types[0]".
	CUEPath string

	// InvalidCUEPathError is returned when a CUEPath is blank.
	InvalidCUEPathError struct {
		Value CUEPath
	}

	// ValidationError is a schema violation at one field of one file.
	ValidationError struct {
		FilePath   string
		CUEPath    CUEPath
		Message    string
		Suggestion string
	}
)

// String returns the string representation of the CUEPath.
func (p CUEPath) String() string { return string(p) }

// Validate rejects blank paths.
func (p CUEPath) Validate() error {
	if strings.TrimSpace(string(p)) == "" {
		return &InvalidCUEPathError{Value: p}
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidCUEPathError) Error() string {
	return fmt.Sprintf("invalid CUE path %q: must not be blank", string(e.Value))
}

// Unwrap returns ErrInvalidCUEPath for errors.Is.
func (e *InvalidCUEPathError) Unwrap() error { return ErrInvalidCUEPath }

// Error implements the error interface.
func (e *ValidationError) Error() string {
	msg := e.FilePath + ": "
	if e.CUEPath != "" {
		msg += string(e.CUEPath) + ": "
	}
	msg += e.Message
	if e.Suggestion != "" {
		msg += " (" + e.Suggestion + ")"
	}
	return msg
}

// FormatError rewrites a CUE error as "<file>: <path>: <message>", one line
// per underlying error. Non-CUE errors are wrapped with the file name.
func FormatError(err error, filePath string) error {
	if err == nil {
		return nil
	}
	var cueErr cueerrors.Error
	if !errors.As(err, &cueErr) {
		return fmt.Errorf("%s: %w", filePath, err)
	}
	list := cueerrors.Errors(err)

	lines := make([]string, 0, len(list))
	for _, e := range list {
		path := formatPath(cueerrors.Path(e))
		msg := e.Error()
		if path != "" {
			if rest, ok := strings.CutPrefix(msg, path); ok {
				msg = strings.TrimSpace(strings.TrimPrefix(rest, ":"))
			}
			msg = path + ": " + msg
		}
		lines = append(lines, msg)
	}
	if len(lines) == 1 {
		return &ValidationError{FilePath: filePath, Message: lines[0]}
	}
	return &ValidationError{FilePath: filePath, Message: "validation failed:\n  " + strings.Join(lines, "\n  ")}
}

// formatPath turns ["provides", "types", "0"] into "provides.types[0]".
func formatPath(path []string) string {
	var b strings.Builder
	for i, part := range path {
		switch {
		case i > 0 && isIndex(part):
			b.WriteString("[" + part + "]")
		case i > 0:
			b.WriteString("." + part)
		default:
			b.WriteString(part)
		}
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// CheckFileSize rejects data larger than maxSize.
func CheckFileSize(data []byte, maxSize int64, filename string) error {
	if int64(len(data)) > maxSize {
		return fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes", filename, len(data), maxSize)
	}
	return nil
}

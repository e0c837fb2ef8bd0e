// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sofastack/sofa-ark-sub003/internal/dag"
	"github.com/sofastack/sofa-ark-sub003/pkg/arkmod"
)

type (
	// ActionableError says which operation failed on which resource and how
	// the user might fix it.
	//
	//	err := issue.NewErrorContext().
	//		WithOperation("plan desired state").
	//		WithModule(arkmod.NewKey("payments", "2.0")).
	//		WithSuggestion("Uninstall the broken version first").
	//		Wrap(cause).
	//		Build()
	ActionableError struct {
		// Operation is a verb phrase such as "apply plan" or "load module".
		Operation string
		// Resource names the module, file or clause involved, if any.
		Resource    string
		Suggestions []string
		Cause       error
	}

	// ErrorContext builds an ActionableError step by step.
	ErrorContext struct {
		err ActionableError
	}

	// hint is the fallback suggestion for one error family.
	hint struct {
		sentinel error
		text     string
	}
)

// hints are consulted in order when a built error carries no suggestion.
var hints = []hint{
	{arkmod.ErrModuleNotFound, "Run 'arkctl state' to list registered modules"},
	{arkmod.ErrInvalidConfig, "Clauses look like name:version:ACTIVATED, separated by ';'"},
	{arkmod.ErrMultipleActiveVersions, "Mark every version but one as DEACTIVATED"},
	{arkmod.ErrConflictingDesiredState, "Remove one of the contradicting clauses"},
	{arkmod.ErrIllegalTransition, "Run 'arkctl state' to check the current states; only activating a sibling deactivates a version"},
	{arkmod.ErrModuleLoad, "Check loader.module_dirs and the module's descriptor file"},
	{arkmod.ErrInvalidDescriptor, "Fix the fields reported above in the module descriptor"},
	{dag.ErrCycle, "Break the import/export cycle between the plugins listed above"},
}

// NewErrorContext creates a new ErrorContext builder.
func NewErrorContext() *ErrorContext {
	return &ErrorContext{}
}

// Error renders "failed to <operation>[: <resource>][: <cause>]".
func (e *ActionableError) Error() string {
	parts := []string{"failed to " + e.Operation}
	if e.Resource != "" {
		parts = append(parts, e.Resource)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

// Unwrap returns the cause.
func (e *ActionableError) Unwrap() error {
	return e.Cause
}

// Format renders the message followed by one bulleted line per suggestion.
// Verbose output appends the numbered cause chain.
func (e *ActionableError) Format(verbose bool) string {
	var b strings.Builder
	b.WriteString(e.Error())

	if e.HasSuggestions() {
		b.WriteString("\n")
		for _, s := range e.Suggestions {
			b.WriteString("\n  • " + s)
		}
	}

	if verbose && e.Cause != nil {
		b.WriteString("\n\nError chain:")
		for depth, err := 1, e.Cause; err != nil; depth, err = depth+1, errors.Unwrap(err) {
			fmt.Fprintf(&b, "\n  %d. %s", depth, err)
		}
	}
	return b.String()
}

// HasSuggestions reports whether any suggestion is attached.
func (e *ActionableError) HasSuggestions() bool {
	return len(e.Suggestions) > 0
}

// WithOperation sets the operation.
func (c *ErrorContext) WithOperation(op string) *ErrorContext {
	c.err.Operation = op
	return c
}

// WithResource sets the resource.
func (c *ErrorContext) WithResource(res string) *ErrorContext {
	c.err.Resource = res
	return c
}

// WithModule sets the resource to a module key. A zero component is left
// out, so a name-only query reads "payments".
func (c *ErrorContext) WithModule(key arkmod.Key) *ErrorContext {
	switch {
	case key.Version == "":
		c.err.Resource = key.Name
	default:
		c.err.Resource = key.String()
	}
	return c
}

// WithSuggestion appends one or more suggestions.
func (c *ErrorContext) WithSuggestion(sugs ...string) *ErrorContext {
	c.err.Suggestions = append(c.err.Suggestions, sugs...)
	return c
}

// Wrap sets the cause.
func (c *ErrorContext) Wrap(err error) *ErrorContext {
	c.err.Cause = err
	return c
}

// Build returns the error, or nil when no operation was set. Without an
// explicit suggestion, the first hint matching the cause is attached.
func (c *ErrorContext) Build() *ActionableError {
	if c.err.Operation == "" {
		return nil
	}
	ae := c.err
	if len(ae.Suggestions) == 0 && ae.Cause != nil {
		if s, ok := hintFor(ae.Cause); ok {
			ae.Suggestions = []string{s}
		}
	}
	return &ae
}

// BuildError is Build returning the error interface, so a missing operation
// yields an untyped nil.
func (c *ErrorContext) BuildError() error {
	if ae := c.Build(); ae != nil {
		return ae
	}
	return nil
}

func hintFor(err error) (string, bool) {
	for _, h := range hints {
		if errors.Is(err, h.sentinel) {
			return h.text, true
		}
	}
	return "", false
}

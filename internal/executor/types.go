// SPDX-License-Identifier: MPL-2.0

package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sofastack/sofa-ark-sub003/pkg/arkmod"
)

const (
	// PolicyAbort stops at the first failed operation.
	PolicyAbort Policy = "abort"
	// PolicyContinue applies the remaining operations after a failure.
	PolicyContinue Policy = "continue"

	// DefaultTimeout bounds each collaborator call when Options leaves it unset.
	DefaultTimeout = 30 * time.Second

	// BeforeActivate fires before an entry point starts; an error vetoes activation.
	BeforeActivate EventKind = "before-activate"
	// AfterActivate fires once the module is ACTIVATED and visible.
	AfterActivate EventKind = "after-activate"
	// BeforeDeactivate fires before an entry point stops; an error vetoes deactivation.
	BeforeDeactivate EventKind = "before-deactivate"
	// AfterDeactivate fires once the module is DEACTIVATED.
	AfterDeactivate EventKind = "after-deactivate"
)

// ErrNoEntryRunner is returned when a module names an entry point but no
// EntryRunner is published.
var ErrNoEntryRunner = errors.New("no entry runner published")

type (
	// Policy selects what happens after a failed operation.
	Policy string

	// EventKind names a lifecycle event.
	EventKind string

	// Options tune one Execute call.
	Options struct {
		Policy Policy
		// LoadTimeout bounds every loader, entry point and event handler call.
		LoadTimeout time.Duration
	}

	// Outcome is the result of one failed operation.
	Outcome struct {
		Operation arkmod.Operation
		Err       error
	}

	// Report summarizes an Execute call.
	Report struct {
		PlanID    string
		Succeeded []arkmod.Operation
		Failed    []Outcome
		Broken    []arkmod.Key
		Skipped   []arkmod.Operation
	}

	// Loader is the module loading collaborator.
	Loader interface {
		LoadDescriptor(ctx context.Context, loc arkmod.Locator) (arkmod.Descriptor, error)
		MaterializeNamespace(ctx context.Context, d arkmod.Descriptor) (arkmod.Namespace, error)
	}

	// Visibility controls which modules are candidate exporters.
	Visibility interface {
		Publish(key arkmod.Key)
		Withdraw(key arkmod.Key)
	}

	// Event is delivered to EventHandlers around activation and deactivation.
	Event struct {
		Kind   EventKind
		Record arkmod.Record
		Params map[string]string
	}

	// EventHandler observes lifecycle events. Handlers are published in the
	// service registry under service.CapabilityEventHandler.
	EventHandler interface {
		HandleEvent(ctx context.Context, ev Event) error
	}

	// EventHandlerFunc adapts a function to EventHandler.
	EventHandlerFunc func(ctx context.Context, ev Event) error

	// EntryRunner starts and stops module entry points. The highest-priority
	// runner published under service.CapabilityEntryRunner is used.
	EntryRunner interface {
		Start(ctx context.Context, rec arkmod.Record, params map[string]string) error
		Stop(ctx context.Context, rec arkmod.Record) error
	}
)

// HandleEvent calls f.
func (f EventHandlerFunc) HandleEvent(ctx context.Context, ev Event) error { return f(ctx, ev) }

// String returns the string representation of the Policy.
func (p Policy) String() string { return string(p) }

// Validate returns an error for unknown policies. The empty policy is abort.
func (p Policy) Validate() error {
	switch p {
	case "", PolicyAbort, PolicyContinue:
		return nil
	default:
		return fmt.Errorf("unknown failure policy %q (want abort or continue)", string(p))
	}
}

// ParsePolicy parses a policy name case-insensitively.
func ParsePolicy(raw string) (Policy, error) {
	p := Policy(strings.ToLower(strings.TrimSpace(raw)))
	if err := p.Validate(); err != nil {
		return "", err
	}
	if p == "" {
		return PolicyAbort, nil
	}
	return p, nil
}

func (o Options) timeout() time.Duration {
	if o.LoadTimeout <= 0 {
		return DefaultTimeout
	}
	return o.LoadTimeout
}

// OK reports whether every operation succeeded.
func (r Report) OK() bool { return len(r.Failed) == 0 && len(r.Skipped) == 0 }

// Err joins the failure causes, or returns nil.
func (r Report) Err() error {
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, fmt.Errorf("%s: %w", f.Operation, f.Err))
	}
	return errors.Join(errs...)
}

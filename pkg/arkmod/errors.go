// SPDX-License-Identifier: MPL-2.0

package arkmod

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrModuleNotFound is returned when a key is not registered.
	ErrModuleNotFound = errors.New("module not found")
	// ErrDuplicateModule is the sentinel error wrapped by DuplicateModuleError.
	ErrDuplicateModule = errors.New("duplicate module")
	// ErrIllegalState is the sentinel error wrapped by IllegalStateError.
	ErrIllegalState = errors.New("illegal module state")
	// ErrIllegalTransition is the sentinel error wrapped by IllegalTransitionError.
	ErrIllegalTransition = errors.New("illegal state transition")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid desired-state config")
	// ErrConflictingDesiredState is the sentinel error wrapped by ConflictingDesiredStateError.
	ErrConflictingDesiredState = errors.New("conflicting desired state")
	// ErrMultipleActiveVersions is the sentinel error wrapped by MultipleActiveVersionsError.
	ErrMultipleActiveVersions = errors.New("multiple active versions")
	// ErrPlanVerification is the sentinel error wrapped by PlanVerificationError.
	ErrPlanVerification = errors.New("plan verification failed")
	// ErrModuleLoad is the sentinel error wrapped by ModuleLoadError.
	ErrModuleLoad = errors.New("module load failed")
)

type (
	// DuplicateModuleError is returned when a key is registered twice.
	DuplicateModuleError struct {
		Key Key
	}

	// IllegalStateError is returned when an operation requires a state the
	// record is not in, e.g. removing a record that is mid-transition.
	IllegalStateError struct {
		Key       Key
		State     State
		Operation string
		Reason    string
	}

	// IllegalTransitionError names the current and requested state of a
	// rejected lifecycle transition.
	IllegalTransitionError struct {
		Key    Key
		From   State
		To     State
		Reason string
	}

	// InvalidConfigError names the malformed desired-state clause.
	InvalidConfigError struct {
		Clause string
		Reason string
	}

	// ConflictingDesiredStateError is returned when one planning pass assigns
	// two different desired states to the same module version.
	ConflictingDesiredStateError struct {
		Key    Key
		First  DesiredState
		Second DesiredState
	}

	// MultipleActiveVersionsError is returned when two versions of one name
	// are desired active in the same pass.
	MultipleActiveVersionsError struct {
		Name     string
		Versions []string
	}

	// PlanVerificationError is returned when replaying a plan does not yield
	// the desired state. The plan is discarded.
	PlanVerificationError struct {
		Mismatches []string
		Cause      error
	}

	// ModuleLoadError wraps a failure of the module loading collaborator.
	ModuleLoadError struct {
		Key      Key
		Location string
		Cause    error
	}
)

// Error implements the error interface.
func (e *DuplicateModuleError) Error() string {
	return fmt.Sprintf("module %s is already registered", e.Key)
}

// Unwrap returns ErrDuplicateModule so callers can use errors.Is for programmatic detection.
func (e *DuplicateModuleError) Unwrap() error { return ErrDuplicateModule }

// Error implements the error interface.
func (e *IllegalStateError) Error() string {
	msg := fmt.Sprintf("cannot %s module %s in state %s", e.Operation, e.Key, e.State)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Unwrap returns ErrIllegalState so callers can use errors.Is for programmatic detection.
func (e *IllegalStateError) Unwrap() error { return ErrIllegalState }

// Error implements the error interface.
func (e *IllegalTransitionError) Error() string {
	from := string(e.From)
	if from == "" {
		from = "<absent>"
	}
	msg := fmt.Sprintf("illegal transition of module %s from %s to %s", e.Key, from, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Unwrap returns ErrIllegalTransition so callers can use errors.Is for programmatic detection.
func (e *IllegalTransitionError) Unwrap() error { return ErrIllegalTransition }

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid desired-state clause %q: %s", e.Clause, e.Reason)
}

// Unwrap returns ErrInvalidConfig so callers can use errors.Is for programmatic detection.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// Error implements the error interface.
func (e *ConflictingDesiredStateError) Error() string {
	return fmt.Sprintf("module %s is desired both %s and %s", e.Key, e.First, e.Second)
}

// Unwrap returns ErrConflictingDesiredState so callers can use errors.Is for programmatic detection.
func (e *ConflictingDesiredStateError) Unwrap() error { return ErrConflictingDesiredState }

// Error implements the error interface.
func (e *MultipleActiveVersionsError) Error() string {
	return fmt.Sprintf("module %s has more than one version desired active: %s",
		e.Name, strings.Join(e.Versions, ", "))
}

// Unwrap returns ErrMultipleActiveVersions so callers can use errors.Is for programmatic detection.
func (e *MultipleActiveVersionsError) Unwrap() error { return ErrMultipleActiveVersions }

// Error implements the error interface.
func (e *PlanVerificationError) Error() string {
	var msg strings.Builder
	msg.WriteString("plan verification failed")
	if e.Cause != nil {
		msg.WriteString(": ")
		msg.WriteString(e.Cause.Error())
	}
	if len(e.Mismatches) > 0 {
		msg.WriteString(": ")
		msg.WriteString(strings.Join(e.Mismatches, "; "))
	}
	return msg.String()
}

// Unwrap returns ErrPlanVerification and the replay cause, if any.
func (e *PlanVerificationError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrPlanVerification}
	}
	return []error{ErrPlanVerification, e.Cause}
}

// Error implements the error interface.
func (e *ModuleLoadError) Error() string {
	msg := fmt.Sprintf("failed to load module %s", e.Key)
	if e.Location != "" {
		msg += " from " + e.Location
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns ErrModuleLoad and the cause so both errors.Is checks succeed.
func (e *ModuleLoadError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrModuleLoad}
	}
	return []error{ErrModuleLoad, e.Cause}
}

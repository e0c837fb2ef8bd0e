// SPDX-License-Identifier: MPL-2.0

package arkmod

import (
	"errors"
	"fmt"
	"slices"
)

// DefaultPriority is assigned by loaders when a descriptor leaves priority unset.
const DefaultPriority = 100

// ErrInvalidDescriptor is the sentinel error wrapped by InvalidDescriptorError.
var ErrInvalidDescriptor = errors.New("invalid module descriptor")

type (
	// Descriptor is the metadata a loader extracts for one module version.
	// The struct tags serve the CUE, TOML and YAML descriptor formats.
	Descriptor struct {
		Name       string `json:"name" toml:"name" yaml:"name"`
		Version    string `json:"version" toml:"version" yaml:"version"`
		Kind       Kind   `json:"kind,omitempty" toml:"kind" yaml:"kind"`
		Priority   int    `json:"priority" toml:"priority" yaml:"priority"`
		EntryPoint string `json:"entry_point,omitempty" toml:"entry_point" yaml:"entry_point"`

		ImportClasses   []string `json:"import_classes,omitempty" toml:"import_classes" yaml:"import_classes"`
		ImportPackages  []string `json:"import_packages,omitempty" toml:"import_packages" yaml:"import_packages"`
		ImportResources []string `json:"import_resources,omitempty" toml:"import_resources" yaml:"import_resources"`

		DenyImportClasses   []string `json:"deny_import_classes,omitempty" toml:"deny_import_classes" yaml:"deny_import_classes"`
		DenyImportPackages  []string `json:"deny_import_packages,omitempty" toml:"deny_import_packages" yaml:"deny_import_packages"`
		DenyImportResources []string `json:"deny_import_resources,omitempty" toml:"deny_import_resources" yaml:"deny_import_resources"`

		ExportClasses   []string `json:"export_classes,omitempty" toml:"export_classes" yaml:"export_classes"`
		ExportPackages  []string `json:"export_packages,omitempty" toml:"export_packages" yaml:"export_packages"`
		ExportResources []string `json:"export_resources,omitempty" toml:"export_resources" yaml:"export_resources"`
		ExportIndex     []string `json:"export_index,omitempty" toml:"export_index" yaml:"export_index"`

		// Provides lists the symbols living in the module's own namespace.
		Provides Provides `json:"provides" toml:"provides" yaml:"provides"`

		// Markers are originating-location identifiers owned by this module.
		Markers []string `json:"markers,omitempty" toml:"markers" yaml:"markers"`

		// Location is where the descriptor was read from; set by the loader.
		Location string `json:"-" toml:"-" yaml:"-"`
	}

	// Provides is the symbol inventory of a module's own namespace.
	Provides struct {
		Types     []string `json:"types,omitempty" toml:"types" yaml:"types"`
		Resources []string `json:"resources,omitempty" toml:"resources" yaml:"resources"`
	}

	// InvalidDescriptorError is returned when a Descriptor fails validation.
	// It wraps ErrInvalidDescriptor for errors.Is() compatibility.
	InvalidDescriptorError struct {
		Location    string
		FieldErrors []error
	}
)

// Key returns the identity of the described module.
func (d Descriptor) Key() Key {
	return NewKey(d.Name, d.Version)
}

// Validate checks identity and kind.
func (d Descriptor) Validate() error {
	var errs []error
	if err := d.Key().Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := d.Kind.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return &InvalidDescriptorError{Location: d.Location, FieldErrors: errs}
	}
	return nil
}

// AllMarkers returns the declared markers plus the location, deduplicated.
func (d Descriptor) AllMarkers() []string {
	out := slices.Clone(d.Markers)
	if d.Location != "" && !slices.Contains(out, d.Location) {
		out = append(out, d.Location)
	}
	return out
}

// Error implements the error interface.
func (e *InvalidDescriptorError) Error() string {
	where := e.Location
	if where == "" {
		where = "<descriptor>"
	}
	return fmt.Sprintf("invalid module descriptor %s: %v", where, errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidDescriptor so callers can use errors.Is for programmatic detection.
func (e *InvalidDescriptorError) Unwrap() error { return ErrInvalidDescriptor }

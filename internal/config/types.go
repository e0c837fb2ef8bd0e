// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// LogLevelDebug enables debug logging.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo is the default log level.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn logs warnings and errors only.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError logs errors only.
	LogLevelError LogLevel = "error"

	// LogFormatText is human-readable, colored when attached to a terminal.
	LogFormatText LogFormat = "text"
	// LogFormatJSON writes one JSON object per line.
	LogFormatJSON LogFormat = "json"
	// LogFormatLogfmt writes key=value pairs.
	LogFormatLogfmt LogFormat = "logfmt"

	// PolicyAbort stops applying a plan at the first failed operation.
	// Defined locally to avoid coupling config to internal/executor.
	PolicyAbort FailurePolicy = "abort"
	// PolicyContinue applies the remaining operations after a failure.
	PolicyContinue FailurePolicy = "continue"

	// ExporterNone leaves the telemetry instruments as no-ops.
	ExporterNone TelemetryExporter = "none"
	// ExporterStdout writes spans and metrics as JSON to stderr.
	ExporterStdout TelemetryExporter = "stdout"

	// DefaultLoaderTimeout bounds each call into the module loader.
	DefaultLoaderTimeout = 30 * time.Second
	// DefaultBootConcurrency is the number of plugins of one boot level started in parallel.
	DefaultBootConcurrency = 4
	// DefaultModuleDir is searched for module descriptors when none is configured.
	DefaultModuleDir = "modules"
)

var (
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogFormat is returned when a LogFormat value is not recognized.
	ErrInvalidLogFormat = errors.New("invalid log format")
	// ErrInvalidFailurePolicy is returned when a FailurePolicy value is not recognized.
	ErrInvalidFailurePolicy = errors.New("invalid failure policy")
	// ErrInvalidTelemetryExporter is returned when a TelemetryExporter value is not recognized.
	ErrInvalidTelemetryExporter = errors.New("invalid telemetry exporter")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// LogLevel is the minimum level written by the logger.
	LogLevel string

	// LogFormat selects the log line encoding.
	LogFormat string

	// FailurePolicy decides what happens to the rest of a plan after a failure.
	FailurePolicy string

	// TelemetryExporter selects where OpenTelemetry data is sent.
	TelemetryExporter string

	// InvalidValueError is returned when an enumerated setting has an unknown value.
	InvalidValueError struct {
		Field string
		Value string
		Valid []string
		err   error
	}

	// InvalidConfigError collects field-level validation errors of a Config.
	// It wraps ErrInvalidConfig for errors.Is() compatibility.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		Log       LogConfig       `json:"log" mapstructure:"log"`
		Loader    LoaderConfig    `json:"loader" mapstructure:"loader"`
		Executor  ExecutorConfig  `json:"executor" mapstructure:"executor"`
		Resolver  ResolverConfig  `json:"resolver" mapstructure:"resolver"`
		Boot      BootConfig      `json:"boot" mapstructure:"boot"`
		Telemetry TelemetryConfig `json:"telemetry" mapstructure:"telemetry"`
		// Desired is the desired-state string reconciled after boot.
		Desired string `json:"desired" mapstructure:"desired"`
	}

	// LogConfig configures the process logger.
	LogConfig struct {
		Level  LogLevel  `json:"level" mapstructure:"level"`
		Format LogFormat `json:"format" mapstructure:"format"`
	}

	// LoaderConfig configures where module descriptors are found.
	LoaderConfig struct {
		// ModuleDirs are searched in order for <name>-<version> directories.
		ModuleDirs []string `json:"module_dirs" mapstructure:"module_dirs"`
		// Timeout bounds each descriptor load and namespace materialization.
		Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
	}

	// ExecutorConfig configures plan execution.
	ExecutorConfig struct {
		Policy FailurePolicy `json:"policy" mapstructure:"policy"`
	}

	// ResolverConfig configures the base scope of the resolution engine.
	ResolverConfig struct {
		// BasePackages are package prefixes always served by the host.
		BasePackages []string `json:"base_packages" mapstructure:"base_packages"`
		// BaseResources are resource names always served by the host.
		BaseResources []string `json:"base_resources" mapstructure:"base_resources"`
		// PrimaryModule, when set, receives type lookups no other module exports.
		PrimaryModule string `json:"primary_module" mapstructure:"primary_module"`
	}

	// BootConfig configures plugin boot.
	BootConfig struct {
		Concurrency int `json:"concurrency" mapstructure:"concurrency"`
	}

	// TelemetryConfig configures the OpenTelemetry providers of arkctl.
	TelemetryConfig struct {
		Exporter TelemetryExporter `json:"exporter" mapstructure:"exporter"`
	}
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string { return string(l) }

// IsValid returns whether the LogLevel is known, and a list of validation errors if it is not.
func (l LogLevel) IsValid() (bool, []error) {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true, nil
	default:
		return false, []error{&InvalidValueError{
			Field: "log.level", Value: string(l),
			Valid: []string{"debug", "info", "warn", "error"}, err: ErrInvalidLogLevel,
		}}
	}
}

// String returns the string representation of the LogFormat.
func (f LogFormat) String() string { return string(f) }

// IsValid returns whether the LogFormat is known, and a list of validation errors if it is not.
func (f LogFormat) IsValid() (bool, []error) {
	switch f {
	case LogFormatText, LogFormatJSON, LogFormatLogfmt:
		return true, nil
	default:
		return false, []error{&InvalidValueError{
			Field: "log.format", Value: string(f),
			Valid: []string{"text", "json", "logfmt"}, err: ErrInvalidLogFormat,
		}}
	}
}

// String returns the string representation of the FailurePolicy.
func (p FailurePolicy) String() string { return string(p) }

// IsValid returns whether the FailurePolicy is known, and a list of validation errors if it is not.
func (p FailurePolicy) IsValid() (bool, []error) {
	switch p {
	case PolicyAbort, PolicyContinue:
		return true, nil
	default:
		return false, []error{&InvalidValueError{
			Field: "executor.policy", Value: string(p),
			Valid: []string{"abort", "continue"}, err: ErrInvalidFailurePolicy,
		}}
	}
}

// String returns the string representation of the TelemetryExporter.
func (x TelemetryExporter) String() string { return string(x) }

// IsValid returns whether the TelemetryExporter is known, and a list of validation errors if it is not.
func (x TelemetryExporter) IsValid() (bool, []error) {
	switch x {
	case ExporterNone, ExporterStdout:
		return true, nil
	default:
		return false, []error{&InvalidValueError{
			Field: "telemetry.exporter", Value: string(x),
			Valid: []string{"none", "stdout"}, err: ErrInvalidTelemetryExporter,
		}}
	}
}

// Error implements the error interface.
func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("%s: invalid value %q (valid: %s)", e.Field, e.Value, strings.Join(e.Valid, ", "))
}

// Unwrap returns the field's sentinel error for errors.Is() compatibility.
func (e *InvalidValueError) Unwrap() error { return e.err }

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig and every field error.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// IsValid checks every field of the Config. Values that came through the
// CUE schema are already constrained; this catches environment overrides.
func (c *Config) IsValid() (bool, []error) {
	var errs []error
	if ok, fieldErrs := c.Log.Level.IsValid(); !ok {
		errs = append(errs, fieldErrs...)
	}
	if ok, fieldErrs := c.Log.Format.IsValid(); !ok {
		errs = append(errs, fieldErrs...)
	}
	if ok, fieldErrs := c.Executor.Policy.IsValid(); !ok {
		errs = append(errs, fieldErrs...)
	}
	if ok, fieldErrs := c.Telemetry.Exporter.IsValid(); !ok {
		errs = append(errs, fieldErrs...)
	}
	if c.Loader.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("loader.timeout: must be positive, got %s", c.Loader.Timeout))
	}
	if c.Boot.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("boot.concurrency: must be at least 1, got %d", c.Boot.Concurrency))
	}
	for i, dir := range c.Loader.ModuleDirs {
		if strings.TrimSpace(dir) == "" {
			errs = append(errs, fmt.Errorf("loader.module_dirs[%d]: must not be blank", i))
		}
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  LogLevelInfo,
			Format: LogFormatText,
		},
		Loader: LoaderConfig{
			ModuleDirs: []string{DefaultModuleDir},
			Timeout:    DefaultLoaderTimeout,
		},
		Executor: ExecutorConfig{
			Policy: PolicyAbort,
		},
		Resolver: ResolverConfig{
			BasePackages:  []string{},
			BaseResources: []string{},
		},
		Boot: BootConfig{
			Concurrency: DefaultBootConcurrency,
		},
		Telemetry: TelemetryConfig{
			Exporter: ExporterNone,
		},
	}
}

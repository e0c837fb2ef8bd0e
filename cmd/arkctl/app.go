// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sofastack/sofa-ark-sub003/internal/config"
	"github.com/sofastack/sofa-ark-sub003/internal/host"
	"github.com/sofastack/sofa-ark-sub003/internal/issue"
	"github.com/sofastack/sofa-ark-sub003/internal/logging"
	"github.com/sofastack/sofa-ark-sub003/internal/telemetry"
	"github.com/sofastack/sofa-ark-sub003/pkg/arkmod"
)

// LogEntryPoint is the built-in entry point every arkctl host registers. It
// logs module starts and stops.
const LogEntryPoint = "log"

type (
	// App wires the CLI. Command handlers receive it and build a host
	// through it, so tests can swap the module source and the streams.
	App struct {
		stdin    io.Reader
		stdout   io.Writer
		stderr   io.Writer
		hostOpts []host.Option
		flags    rootFlags
		loaded   config.Loaded
		inst     *telemetry.Instruments
		// flush stops the telemetry providers installed by loadConfig.
		flush func(context.Context) error
	}

	// Dependencies defines the injection points for NewApp. Nil fields get
	// the process defaults.
	Dependencies struct {
		Stdin       io.Reader
		Stdout      io.Writer
		Stderr      io.Writer
		HostOptions []host.Option
	}

	rootFlags struct {
		configPath string
		verbose    bool
	}
)

// NewApp creates an App.
func NewApp(deps Dependencies) *App {
	app := &App{
		stdin:    deps.Stdin,
		stdout:   deps.Stdout,
		stderr:   deps.Stderr,
		hostOpts: deps.HostOptions,
	}
	if app.stdin == nil {
		app.stdin = os.Stdin
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	return app
}

// loadConfig reads the configuration and installs the logger and the
// telemetry exporter.
func (a *App) loadConfig(ctx context.Context) error {
	loaded, err := config.LoadFile(ctx, config.LoadOptions{ConfigFilePath: a.flags.configPath})
	if err != nil {
		return err
	}
	a.loaded = loaded
	logging.Setup(a.stderr, loaded.Log, a.flags.verbose)

	inst, flush, err := telemetry.Setup(loaded.Telemetry.Exporter.String(), a.stderr)
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("set up telemetry").
			WithResource(loaded.Telemetry.Exporter.String()).
			WithSuggestion("Set telemetry.exporter to \"none\" or \"stdout\"").
			Wrap(err).
			BuildError()
	}
	a.inst, a.flush = inst, flush
	return nil
}

// Close flushes buffered telemetry. It is safe to call before loadConfig.
func (a *App) Close(ctx context.Context) error {
	if a.flush == nil {
		return nil
	}
	flush := a.flush
	a.flush = nil
	return flush(ctx)
}

// config returns the loaded configuration, or the defaults before loading.
func (a *App) config() *config.Config {
	if a.loaded.Config == nil {
		return config.DefaultConfig()
	}
	return a.loaded.Config
}

// newHost builds a host from the loaded configuration and boots it.
func (a *App) newHost(ctx context.Context) (*host.Host, error) {
	opts := []host.Option{host.WithLogger(slog.Default())}
	if a.inst != nil {
		opts = append(opts, host.WithInstruments(a.inst))
	}
	opts = append(opts, a.hostOpts...)
	h, err := host.New(a.config(), opts...)
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("create module host").
			WithSuggestion("Check executor.policy and resolver settings in the config file").
			Wrap(err).
			BuildError()
	}
	if err := h.RegisterEntryPoint(LogEntryPoint, logEntryPoint()); err != nil {
		return nil, err
	}
	if err := h.Boot(ctx); err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("boot modules").
			WithResource(fmt.Sprint(a.config().Loader.ModuleDirs)).
			WithSuggestion("Run 'arkctl state' to see which modules are BROKEN").
			Wrap(err).
			BuildError()
	}
	return h, nil
}

func logEntryPoint() host.EntryPoint {
	return host.EntryPoint{
		Start: func(_ context.Context, rec arkmod.Record, params map[string]string) error {
			slog.Info("module started", "module", rec.Key().String(), "params", params)
			return nil
		},
		Stop: func(_ context.Context, rec arkmod.Record) error {
			slog.Info("module stopped", "module", rec.Key().String())
			return nil
		},
	}
}

// renderError prints err with its suggestions and, when the error belongs
// to a cataloged family, the rendered guidance.
func (a *App) renderError(err error) {
	if err == nil {
		return
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return
	}
	fmt.Fprintln(a.stderr, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, a.flags.verbose))

	entry, ok := issue.ForError(err)
	if !ok {
		return
	}
	rendered, renderErr := entry.Render("dark")
	if renderErr != nil {
		slog.Warn("failed to render issue catalog entry", "issueID", entry.Id(), "error", renderErr)
		return
	}
	fmt.Fprint(a.stderr, rendered)
}

// fail renders err and turns it into exit code 1 without a second
// rendering by cobra.
func (a *App) fail(cmd *cobra.Command, err error) error {
	if err == nil {
		return nil
	}
	a.renderError(err)
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	return &ExitError{Code: 1, Err: err}
}

// formatErrorForDisplay uses the ActionableError layout when available.
// Verbose mode adds the error chain.
func formatErrorForDisplay(err error, verbose bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verbose)
	}
	return err.Error()
}

// parseKey parses "name:version".
func parseKey(raw string) (arkmod.Key, error) {
	name, version, ok := strings.Cut(raw, ":")
	if !ok {
		return arkmod.Key{}, fmt.Errorf("module %q: expected name:version", raw)
	}
	key := arkmod.NewKey(name, version)
	if err := key.Validate(); err != nil {
		return arkmod.Key{}, err
	}
	return key, nil
}

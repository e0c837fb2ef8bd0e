// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sofastack/sofa-ark-sub003/internal/config"
	"github.com/sofastack/sofa-ark-sub003/internal/issue"
)

// newConfigCommand creates the `arkctl config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage arkctl configuration",
		Long: `Manage arkctl configuration.

Configuration is stored in:
  - Linux: ~/.config/arkctl/config.cue
  - macOS: ~/Library/Application Support/arkctl/config.cue
  - Windows: %APPDATA%\arkctl\config.cue

Every setting can be overridden with an ARKCTL_ environment variable,
e.g. ARKCTL_EXECUTOR_POLICY=continue.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(_ *cobra.Command, _ []string) error {
			showConfig(app.stdout, app.loaded)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output the effective configuration as CUE",
		RunE: func(_ *cobra.Command, _ []string) error {
			fmt.Fprint(app.stdout, config.GenerateCUE(app.config()))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the default configuration file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.ConfigFilePath()
			if err != nil {
				return app.fail(cmd, err)
			}
			fmt.Fprintln(app.stdout, path)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the default configuration file",
		// A broken config file must not prevent writing a fresh one.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.CreateDefaultConfig()
			if err != nil {
				return app.fail(cmd, issue.NewErrorContext().
					WithOperation("create config file").
					WithSuggestion("Check that the user config directory is writable").
					Wrap(err).
					BuildError())
			}
			fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render("Config file:"), path)
			return nil
		},
	})

	return cfgCmd
}

func showConfig(w io.Writer, loaded config.Loaded) {
	cfg := loaded.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	key := CmdStyle.Render
	val := SuccessStyle.Render

	fmt.Fprintln(w, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(w)
	if loaded.Path != "" {
		fmt.Fprintf(w, "%s: %s\n", key("Config file"), loaded.Path)
	} else {
		fmt.Fprintf(w, "%s: %s\n", key("Config file"), SubtitleStyle.Render("(using defaults)"))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%s:\n", key("log"))
	fmt.Fprintf(w, "  level: %s\n", val(cfg.Log.Level.String()))
	fmt.Fprintf(w, "  format: %s\n", val(cfg.Log.Format.String()))

	fmt.Fprintf(w, "%s:\n", key("loader"))
	fmt.Fprintf(w, "  module_dirs: %s\n", val(list(cfg.Loader.ModuleDirs)))
	fmt.Fprintf(w, "  timeout: %s\n", val(cfg.Loader.Timeout.String()))

	fmt.Fprintf(w, "%s:\n", key("executor"))
	fmt.Fprintf(w, "  policy: %s\n", val(cfg.Executor.Policy.String()))

	fmt.Fprintf(w, "%s:\n", key("resolver"))
	fmt.Fprintf(w, "  base_packages: %s\n", val(list(cfg.Resolver.BasePackages)))
	fmt.Fprintf(w, "  base_resources: %s\n", val(list(cfg.Resolver.BaseResources)))
	fmt.Fprintf(w, "  primary_module: %s\n", val(orNone(cfg.Resolver.PrimaryModule)))

	fmt.Fprintf(w, "%s:\n", key("boot"))
	fmt.Fprintf(w, "  concurrency: %s\n", val(fmt.Sprint(cfg.Boot.Concurrency)))

	fmt.Fprintf(w, "%s:\n", key("telemetry"))
	fmt.Fprintf(w, "  exporter: %s\n", val(cfg.Telemetry.Exporter.String()))

	fmt.Fprintf(w, "%s: %s\n", key("desired"), val(orNone(cfg.Desired)))
}

func list(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

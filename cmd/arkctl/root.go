// SPDX-License-Identifier: MPL-2.0

package main

import (
	"github.com/spf13/cobra"
)

// newRootCommand builds the arkctl command tree around app.
func newRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "arkctl",
		Short: "Run and reconcile isolated modules inside one process",
		Long: TitleStyle.Render("arkctl") + SubtitleStyle.Render(" - an in-process module host") + `

arkctl loads plugin and business modules from the configured module
directories, boots the plugins in dependency order and moves the business
modules to a desired state such as:

  orders:1.0:DEACTIVATED;orders:2.0:ACTIVATED?region=eu

` + SubtitleStyle.Render("Examples:") + `
  arkctl plan 'orders:2.0:ACTIVATED'     Show the operations without applying them
  arkctl apply 'orders:2.0:ACTIVATED'    Reconcile to the desired state
  arkctl state orders                    List every version of orders
  arkctl resolve orders:2.0 com.lib.Util Show who provides a type
  arkctl watch desired.txt               Reconcile whenever the file changes
  arkctl shell                           Read commands from stdin`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.loadConfig(cmd.Context()); err != nil {
				return app.fail(cmd, err)
			}
			return nil
		},
	}

	root.PersistentFlags().BoolVarP(&app.flags.verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().StringVar(&app.flags.configPath, "config", "", "config file (default is $HOME/.config/arkctl/config.cue)")

	root.AddCommand(
		newPlanCommand(app),
		newApplyCommand(app),
		newResolveCommand(app),
		newStateCommand(app),
		newWatchCommand(app),
		newShellCommand(app),
		newConfigCommand(app),
	)
	return root
}

// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/sofastack/sofa-ark-sub003/internal/host"
	"github.com/sofastack/sofa-ark-sub003/internal/issue"
	"github.com/sofastack/sofa-ark-sub003/pkg/arkmod"
)

func newResolveCommand(app *App) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "resolve <name:version> <symbol>",
		Short: "Show which namespace a module gets for a type or resource",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := app.newHost(cmd.Context())
			if err != nil {
				return app.fail(cmd, err)
			}
			found, err := runResolve(h, app.stdout, args[0], args[1], kind)
			if err != nil {
				return app.fail(cmd, err)
			}
			if !found {
				cmd.SilenceErrors = true
				cmd.SilenceUsage = true
				return &ExitError{Code: 1}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", "type", "symbol kind: type or resource")
	return cmd
}

func newStateCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "state [name] [version]",
		Short: "List registered modules and their lifecycle states",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := app.newHost(cmd.Context())
			if err != nil {
				return app.fail(cmd, err)
			}
			var name, version string
			if len(args) > 0 {
				name = args[0]
			}
			if len(args) > 1 {
				version = args[1]
			}
			return app.fail(cmd, runState(h, app.stdout, name, version))
		},
	}
}

// runResolve prints the resolution result. It reports whether the symbol
// was found.
func runResolve(h *host.Host, w io.Writer, requester, symbol, rawKind string) (bool, error) {
	key, err := parseKey(requester)
	if err != nil {
		return false, err
	}
	kind, err := arkmod.ParseSymbolKind(rawKind)
	if err != nil {
		return false, err
	}
	if _, err := h.QueryState(key.Name, key.Version); err != nil {
		return false, issue.NewErrorContext().
			WithOperation("resolve symbol").
			WithModule(key).
			WithSuggestion("The requester must be a registered module; see 'arkctl state'").
			Wrap(err).
			BuildError()
	}

	res := h.Resolve(key, symbol, kind)
	if !res.Found() {
		reason := "not found"
		if res.Scope != "" {
			reason += " (" + string(res.Scope) + ")"
		}
		fmt.Fprintf(w, "%s %s\n", CmdStyle.Render(symbol), WarningStyle.Render(reason))
		return false, nil
	}

	fmt.Fprintf(w, "%s %s %s\n", CmdStyle.Render(symbol), SubtitleStyle.Render("via"), TitleStyle.Render(string(res.Scope)))
	if res.Hook != "" {
		fmt.Fprintf(w, "  hook: %s\n", res.Hook)
	}
	for _, ns := range res.Namespaces {
		owner := ns.Owner().String()
		if ns.Owner() == (arkmod.Key{}) {
			owner = ns.ID()
		}
		fmt.Fprintf(w, "  %s\n", SuccessStyle.Render(owner))
	}
	return true, nil
}

func runState(h *host.Host, w io.Writer, name, version string) error {
	rows, err := h.QueryState(name, version)
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("query module state").
			WithModule(arkmod.Key{Name: name, Version: version}).
			Wrap(err).
			BuildError()
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, SubtitleStyle.Render("No modules registered"))
		return nil
	}
	fmt.Fprintln(w, stateTable(rows))
	return nil
}

func stateTable(rows []host.ModuleState) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(SubtitleStyle).
		Headers("MODULE", "KIND", "STATE", "PRIORITY", "VISIBLE", "ENTRY POINT").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			if col == 2 {
				return stateStyle(rows[row].State.String()).Padding(0, 1)
			}
			return tableCellStyle
		})
	for _, r := range rows {
		t.Row(
			r.Key.String(),
			r.Kind.String(),
			r.State.String(),
			strconv.Itoa(r.Priority),
			strconv.FormatBool(r.Visible),
			r.EntryPoint,
		)
	}
	return t.Render()
}

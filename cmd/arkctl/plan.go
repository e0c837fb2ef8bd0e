// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sofastack/sofa-ark-sub003/internal/executor"
	"github.com/sofastack/sofa-ark-sub003/internal/host"
	"github.com/sofastack/sofa-ark-sub003/internal/issue"
	"github.com/sofastack/sofa-ark-sub003/pkg/arkmod"
)

func newPlanCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <desired-state>",
		Short: "Show the operations that reach a desired state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := app.newHost(cmd.Context())
			if err != nil {
				return app.fail(cmd, err)
			}
			return app.fail(cmd, runPlan(cmd.Context(), h, app.stdout, args[0]))
		},
	}
}

func newApplyCommand(app *App) *cobra.Command {
	var policy string
	cmd := &cobra.Command{
		Use:   "apply <desired-state>",
		Short: "Reconcile the modules to a desired state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := app.newHost(cmd.Context())
			if err != nil {
				return app.fail(cmd, err)
			}
			opts := h.Options()
			if policy != "" {
				if opts.Policy, err = executor.ParsePolicy(policy); err != nil {
					return app.fail(cmd, err)
				}
			}
			return app.fail(cmd, runApply(cmd.Context(), h, app.stdout, args[0], opts))
		},
	}
	cmd.Flags().StringVar(&policy, "policy", "", "failure policy for this apply: abort or continue")
	return cmd
}

func runPlan(ctx context.Context, h *host.Host, w io.Writer, desired string) error {
	plan, err := h.Plan(ctx, desired)
	if err != nil {
		return planError(err, desired)
	}
	printPlan(w, plan)
	return nil
}

func runApply(ctx context.Context, h *host.Host, w io.Writer, desired string, opts executor.Options) error {
	plan, report, err := h.Reconcile(ctx, desired, opts)
	if plan == nil {
		return planError(err, desired)
	}
	printPlan(w, plan)
	if !plan.Empty() {
		printReport(w, report)
	}
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("apply plan").
			WithResource(plan.ID).
			WithSuggestion("Run 'arkctl state' to inspect BROKEN modules, then uninstall them by leaving them out of the desired state").
			Wrap(err).
			BuildError()
	}
	return nil
}

func planError(err error, desired string) error {
	return issue.NewErrorContext().
		WithOperation("plan desired state").
		WithResource(desired).
		WithSuggestion("Clauses look like name:version:ACTIVATED or name:version:DEACTIVATED, separated by ';'").
		Wrap(err).
		BuildError()
}

func printPlan(w io.Writer, plan *arkmod.Plan) {
	if plan.Empty() {
		fmt.Fprintln(w, SuccessStyle.Render("Desired state already satisfied"))
		return
	}
	fmt.Fprintf(w, "%s %s\n", TitleStyle.Render("Plan"), SubtitleStyle.Render(plan.ID))
	for i, op := range plan.Operations {
		line := fmt.Sprintf("  %d. %s", i+1, CmdStyle.Render(op.String()))
		if len(op.Params) > 0 {
			line += " " + VerboseStyle.Render(formatParams(op.Params))
		}
		fmt.Fprintln(w, line)
	}
}

func printReport(w io.Writer, report executor.Report) {
	for _, op := range report.Succeeded {
		fmt.Fprintf(w, "%s %s\n", SuccessStyle.Render("✓"), op)
	}
	for _, f := range report.Failed {
		fmt.Fprintf(w, "%s %s: %v\n", ErrorStyle.Render("✗"), f.Operation, f.Err)
	}
	for _, op := range report.Skipped {
		fmt.Fprintf(w, "%s %s\n", WarningStyle.Render("-"), op)
	}
	for _, key := range report.Broken {
		fmt.Fprintf(w, "%s %s is BROKEN\n", ErrorStyle.Render("!"), key)
	}
}

func formatParams(params map[string]string) string {
	keys := slices.Sorted(maps.Keys(params))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + params[k]
	}
	return "?" + strings.Join(parts, "&")
}

// SPDX-License-Identifier: MPL-2.0

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sofastack/sofa-ark-sub003/internal/host"
)

const shellHelp = `Commands:
  plan <desired-state>                 show the operations for a desired state
  apply <desired-state>                reconcile to a desired state
  state [name] [version]               list modules
  resolve <name:version> <symbol> [type|resource]
  desired                              print the current state as a desired-state string
  help                                 show this help
  exit                                 leave the shell`

var errShellExit = errors.New("exit")

func newShellCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Operate a booted host with commands read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := app.newHost(cmd.Context())
			if err != nil {
				return app.fail(cmd, err)
			}
			return app.fail(cmd, runShell(cmd.Context(), app, h))
		},
	}
}

// runShell executes one command per input line until EOF, "exit" or
// cancellation. Command errors are printed and the shell goes on.
func runShell(ctx context.Context, app *App, h *host.Host) error {
	scanner := bufio.NewScanner(app.stdin)
	prompt := func() { fmt.Fprint(app.stdout, TitleStyle.Render("ark> ")) }

	prompt()
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := shellCommand(ctx, h, app.stdout, scanner.Text())
		if errors.Is(err, errShellExit) {
			return nil
		}
		if err != nil {
			app.renderError(err)
		}
		prompt()
	}
	fmt.Fprintln(app.stdout)
	return scanner.Err()
}

func shellCommand(ctx context.Context, h *host.Host, w io.Writer, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	verb, args := strings.ToLower(fields[0]), fields[1:]

	switch verb {
	case "exit", "quit":
		return errShellExit
	case "help":
		fmt.Fprintln(w, shellHelp)
		return nil
	case "desired":
		fmt.Fprintln(w, h.DesiredString())
		return nil
	case "plan", "apply":
		desired := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))
		if verb == "plan" {
			return runPlan(ctx, h, w, desired)
		}
		return runApply(ctx, h, w, desired, h.Options())
	case "state":
		if len(args) > 2 {
			return fmt.Errorf("usage: state [name] [version]")
		}
		args = append(args, "", "")
		return runState(h, w, args[0], args[1])
	case "resolve":
		if len(args) < 2 || len(args) > 3 {
			return fmt.Errorf("usage: resolve <name:version> <symbol> [type|resource]")
		}
		kind := "type"
		if len(args) == 3 {
			kind = args[2]
		}
		_, err := runResolve(h, w, args[0], args[1], kind)
		return err
	default:
		return fmt.Errorf("unknown command %q, try 'help'", fields[0])
	}
}

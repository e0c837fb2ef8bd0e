// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sofastack/sofa-ark-sub003/internal/host"
	"github.com/sofastack/sofa-ark-sub003/internal/watch"
)

func newWatchCommand(app *App) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch <desired-state-file>",
		Short: "Reconcile every time the desired-state file changes",
		Long: `Boot the host, apply the desired state read from the file and keep
applying it whenever the file is written. Failed applies are reported and
the watch goes on. Stop with Ctrl+C.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := app.newHost(cmd.Context())
			if err != nil {
				return app.fail(cmd, err)
			}
			return app.fail(cmd, runWatch(cmd.Context(), app, h, args[0], debounce))
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before a change is applied")
	return cmd
}

func runWatch(ctx context.Context, app *App, h *host.Host, path string, debounce time.Duration) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	apply := func(ctx context.Context) {
		desired, err := readDesired(abs)
		if err == nil {
			err = runApply(ctx, h, app.stdout, desired, h.Options())
		}
		if err != nil {
			app.renderError(err)
		}
	}

	fmt.Fprintf(app.stdout, "%s Applying %s\n", VerboseStyle.Render("→"), abs)
	apply(ctx)

	w, err := watch.New(watch.Config{
		BaseDir:  filepath.Dir(abs),
		Patterns: []string{filepath.Base(abs)},
		Debounce: debounce,
		OnChange: func(ctx context.Context, _ []string) error {
			fmt.Fprintf(app.stdout, "\n%s %s changed\n", VerboseStyle.Render("→"), filepath.Base(abs))
			apply(ctx)
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	fmt.Fprintf(app.stdout, "\n%s Watching for changes in %s (Ctrl+C to stop)...\n", VerboseStyle.Render("→"), w.BaseDir())
	return w.Run(ctx)
}

// readDesired reads a desired-state file. Lines are joined into clauses
// and lines starting with '#' are comments.
func readDesired(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var clauses []string
	for line := range strings.Lines(string(data)) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		clauses = append(clauses, line)
	}
	return strings.Join(clauses, ";"), nil
}

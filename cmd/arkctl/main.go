// SPDX-License-Identifier: MPL-2.0

// Command arkctl boots a module host, plans and applies desired states, and
// answers symbol and state queries against it.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

func main() {
	app := NewApp(Dependencies{})
	err := fang.Execute(
		context.Background(),
		newRootCommand(app),
		fang.WithVersion(versionString()),
		fang.WithNotifySignal(os.Interrupt),
	)
	if closeErr := app.Close(context.Background()); closeErr != nil {
		fmt.Fprintln(os.Stderr, "failed to flush telemetry:", closeErr)
	}
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

func versionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

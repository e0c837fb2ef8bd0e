// SPDX-License-Identifier: MPL-2.0

// Package logging builds the process-wide slog logger on top of
// charmbracelet/log. Components log through log/slog and never import the
// handler directly.
package logging

import (
	"io"
	"log/slog"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sofastack/sofa-ark-sub003/internal/config"
)

type (
	// Options configures New.
	Options struct {
		Level  config.LogLevel
		Format config.LogFormat
		// Verbose forces debug level regardless of Level.
		Verbose bool
		// Prefix is shown before every text line, e.g. "arkctl".
		Prefix string
		// NoTimestamp drops the time field, which keeps test output stable.
		NoTimestamp bool
	}
)

// New returns a slog.Logger writing to w.
func New(w io.Writer, opts Options) *slog.Logger {
	return slog.New(handler(w, opts))
}

// Setup builds a logger from the loaded configuration and installs it as
// the slog default.
func Setup(w io.Writer, cfg config.LogConfig, verbose bool) *slog.Logger {
	logger := New(w, Options{
		Level:   cfg.Level,
		Format:  cfg.Format,
		Verbose: verbose,
		Prefix:  config.AppName,
	})
	slog.SetDefault(logger)
	return logger
}

func handler(w io.Writer, opts Options) *log.Logger {
	level := Level(opts.Level)
	if opts.Verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(w, log.Options{
		Level:           level,
		Formatter:       Formatter(opts.Format),
		Prefix:          opts.Prefix,
		ReportTimestamp: !opts.NoTimestamp,
		TimeFormat:      time.RFC3339,
	})
}

// Level maps a configured level to the handler level. Unknown values log at info.
func Level(l config.LogLevel) log.Level {
	switch l {
	case config.LogLevelDebug:
		return log.DebugLevel
	case config.LogLevelWarn:
		return log.WarnLevel
	case config.LogLevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// Formatter maps a configured format to the handler formatter. Unknown values use text.
func Formatter(f config.LogFormat) log.Formatter {
	switch f {
	case config.LogFormatJSON:
		return log.JSONFormatter
	case config.LogFormatLogfmt:
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}

// SPDX-License-Identifier: MPL-2.0

// Package config loads arkctl settings with Viper, using CUE as the file format.
//
// Values are layered: built-in defaults, then config.cue from the user config
// directory (or the working directory, or an explicit path), then ARKCTL_*
// environment variables such as ARKCTL_LOG_LEVEL or ARKCTL_LOADER_TIMEOUT.
// The file is validated against the embedded config_schema.cue before it
// is merged.
package config

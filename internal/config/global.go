// SPDX-License-Identifier: MPL-2.0

package config

// configDirOverride replaces os.UserConfigDir in tests, where HOME and
// XDG_CONFIG_HOME are not honored the same way on every platform.
var configDirOverride string

// Reset clears test overrides.
func Reset() {
	configDirOverride = ""
}

// SetConfigDirOverride points ConfigDir at dir.
func SetConfigDirOverride(dir string) {
	configDirOverride = dir
}

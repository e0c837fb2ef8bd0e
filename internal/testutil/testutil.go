// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// ModuleFile is the descriptor file name written by WriteModule.
const ModuleFile = "module.toml"

// MustMkdirAll creates a directory along with any necessary parents.
// The test fails immediately if the operation fails.
func MustMkdirAll(t testing.TB, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("failed to create directory %s: %v", path, err)
	}
}

// MustWriteFile writes data to path, creating parent directories.
func MustWriteFile(t testing.TB, path string, data string) {
	t.Helper()
	MustMkdirAll(t, filepath.Dir(path))
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// WriteModule writes a TOML descriptor to <dir>/<name>-<version>/module.toml
// and returns the module directory.
func WriteModule(t testing.TB, dir, name, version, toml string) string {
	t.Helper()
	modDir := filepath.Join(dir, name+"-"+version)
	MustWriteFile(t, filepath.Join(modDir, ModuleFile), toml)
	return modDir
}

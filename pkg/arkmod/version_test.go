// SPDX-License-Identifier: MPL-2.0

package arkmod

import (
	"slices"
	"testing"
)

func TestCompareVersions(t *testing.T) {
	t.Parallel()

	versions := []string{"snapshot", "1.10.0", "1.9", "2.0.0-rc.1", "1.0", "1.0.0", "2.0.0"}
	slices.SortFunc(versions, CompareVersions)

	want := []string{"1.0", "1.0.0", "1.9", "1.10.0", "2.0.0-rc.1", "2.0.0", "snapshot"}
	if !slices.Equal(versions, want) {
		t.Errorf("sorted = %v, want %v", versions, want)
	}
}

func TestCompareKeys(t *testing.T) {
	t.Parallel()

	keys := []Key{NewKey("b", "1"), NewKey("a", "2"), NewKey("a", "10")}
	slices.SortFunc(keys, CompareKeys)

	want := []Key{NewKey("a", "2"), NewKey("a", "10"), NewKey("b", "1")}
	if !slices.Equal(keys, want) {
		t.Errorf("sorted = %v, want %v", keys, want)
	}
}

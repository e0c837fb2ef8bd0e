// SPDX-License-Identifier: MPL-2.0

package arkmod

import (
	"cmp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// CompareVersions orders two version strings. Versions that parse as semantic
// versions compare semantically ("1.10" after "1.9"); a parseable version sorts
// before an unparseable one; two unparseable versions compare lexically.
func CompareVersions(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	switch {
	case errA == nil && errB == nil:
		if c := va.Compare(vb); c != 0 {
			return c
		}
		// "1.0" and "1.0.0" are semantically equal but distinct keys.
		return strings.Compare(a, b)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// CompareKeys orders keys by name, then by version.
func CompareKeys(a, b Key) int {
	if c := cmp.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return CompareVersions(a.Version, b.Version)
}

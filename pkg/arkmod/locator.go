// SPDX-License-Identifier: MPL-2.0

package arkmod

// LocationParam is the operation parameter that pins where a module is loaded from.
const LocationParam = "location"

// Locator tells a loader which module version to load.
type Locator struct {
	Key    Key
	Params map[string]string
}

// Location returns the explicit location parameter, if set.
func (l Locator) Location() string { return l.Params[LocationParam] }

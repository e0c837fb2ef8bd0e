// SPDX-License-Identifier: MPL-2.0

package resolve

import "github.com/sofastack/sofa-ark-sub003/pkg/arkmod"

// PrimaryForwardingHookName is the registration name of PrimaryForwarding.
const PrimaryForwardingHookName = "primary-forwarding"

// PrimaryForwarding returns a post-resolve hook that forwards unresolved type
// lookups to the active version of the primary module, when that module's
// namespace defines the type. This lets embedded modules see the host
// application's own types.
func PrimaryForwarding(primary string) HookFunc {
	return func(req Request, view View) (Result, bool) {
		if primary == "" || req.Kind != arkmod.SymbolType || req.Requester.Name == primary {
			return Result{}, false
		}
		for _, rec := range view.Versions(primary) {
			if rec.State != arkmod.StateActivated || rec.Namespace == nil {
				continue
			}
			if rec.Namespace.Contains(req.Symbol, req.Kind) {
				return Result{Namespaces: []arkmod.Namespace{rec.Namespace}, Scope: ScopeHook}, true
			}
		}
		return Result{}, false
	}
}

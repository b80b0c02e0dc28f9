// Package route resolves a client-declared model name to a configured route.
// Grounded on the teacher's config.GetTierConfig/ResolveAlias linear-scan
// idiom, simplified to the first-match, declaration-order scan section 4.1
// calls for.
package route

import "github.com/llmgatewayd/llmgatewayd/internal/config"

// Resolve scans routes in declaration order and returns the first whose
// IncomingModel equals modelName by exact, case-sensitive comparison.
// Order-preserving scan lets operators shadow entries during migrations by
// placing a replacement route earlier in the list.
func Resolve(routes []config.Route, modelName string) (*config.Route, bool) {
	for i := range routes {
		if routes[i].IncomingModel == modelName {
			return &routes[i], true
		}
	}
	return nil, false
}

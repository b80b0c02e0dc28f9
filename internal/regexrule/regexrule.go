// Package regexrule applies an ordered list of pattern-to-replacement regex
// substitutions to a request or response body. Grounded on the teacher's
// pre-compiled identityPatterns/filterIdentity idiom in
// internal/translator/request.go, generalized from a fixed built-in pattern
// table to arbitrary configured rules.
package regexrule

import (
	"regexp"

	"go.uber.org/zap"
)

// Rule is one ordered {pattern, replacement} substitution.
type Rule struct {
	Pattern     string
	Replacement string
}

// Apply runs each rule's global substitution against body in declared order.
// A rule whose pattern fails to compile is logged and skipped; the remaining
// rules still apply to the (possibly already modified) body.
func Apply(log *zap.SugaredLogger, body string, rules []Rule) string {
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			if log != nil {
				log.Warnw("regex rule compile failed, skipping", "pattern", r.Pattern, "error", err)
			}
			continue
		}
		body = re.ReplaceAllString(body, r.Replacement)
	}
	return body
}

// Package gate detects and dismisses interstitial consent and verification
// barriers before a scan begins.
package gate

import (
	"regexp"
	"strings"
)

// Keywords is the configurable set of terms that mark a control as a
// consent/confirmation affordance.
type Keywords struct {
	Terms         []string
	CaseSensitive bool

	re *regexp.Regexp
}

// DefaultKeywords covers the common consent, verification, and continuation
// vocabulary seen on gate pages.
func DefaultKeywords() *Keywords {
	return NewKeywords([]string{
		"agree", "i agree", "verify", "accept", "confirm", "continue",
		"certify", "proceed", "enter", "robot", "yes", "older", "age",
	}, false)
}

// NewKeywords compiles a keyword set. Terms are matched as substrings of a
// control's visible label.
func NewKeywords(terms []string, caseSensitive bool) *Keywords {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			quoted = append(quoted, regexp.QuoteMeta(t))
		}
	}

	expr := strings.Join(quoted, "|")
	if expr == "" {
		expr = `\A\z^` // matches nothing
	}
	if !caseSensitive {
		expr = "(?i)" + expr
	}

	return &Keywords{
		Terms:         terms,
		CaseSensitive: caseSensitive,
		re:            regexp.MustCompile(expr),
	}
}

// Match reports whether a control label signals a gate affordance.
func (k *Keywords) Match(label string) bool {
	if label == "" {
		return false
	}
	return k.re.MatchString(label)
}

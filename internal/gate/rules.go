package gate

import (
	"strings"
	"time"
)

// Rule is one selector candidate for a gate control, with the short wait
// allowed for it to appear.
type Rule struct {
	Selector string
	Timeout  time.Duration
}

// Stage is an ordered list of selector candidates for one gate control.
// The first visible match wins; later rules in the stage are skipped.
type Stage struct {
	Name  string
	Rules []Rule
}

// RuleOutcome is the tagged result of evaluating one rule.
type RuleOutcome struct {
	Matched   bool
	Activated bool
	Err       error
}

// siteStageTimeout is the per-selector wait used by the built-in site rules.
const siteStageTimeout = 7 * time.Second

// SiteStages returns the ordered stage list for hosts with a known
// verification flow, or nil when only the generic fallback applies.
func SiteStages(seedURL string) []Stage {
	if !strings.Contains(seedURL, "justice.gov") {
		return nil
	}
	return []Stage{
		{
			Name: "bot-check",
			Rules: []Rule{
				{Selector: `input.usa-button[value*="robot" i]`, Timeout: siteStageTimeout},
				{Selector: `button.usa-button`, Timeout: siteStageTimeout},
				{Selector: `input[value*="robot" i]`, Timeout: siteStageTimeout},
			},
		},
		{
			Name: "age-confirmation",
			Rules: []Rule{
				{Selector: `button#age-button-yes`, Timeout: siteStageTimeout},
				{Selector: `input[value*="Yes" i]`, Timeout: siteStageTimeout},
				{Selector: `button[aria-label*="older" i]`, Timeout: siteStageTimeout},
			},
		},
	}
}

// GenericSelectors enumerate the interactive element kinds scanned by the
// keyword fallback, in evaluation order.
var GenericSelectors = []string{
	"button",
	"input[type=submit]",
	"input[type=button]",
	"a.btn",
	"a[href]",
	"[role=button]",
}

// GateIndicators are the selectors whose disappearance is read as evidence
// the gate was cleared manually.
var GateIndicators = []string{
	`button#age-button-yes`,
	`input[value*="robot" i]`,
	`input[value*="Yes" i]`,
}

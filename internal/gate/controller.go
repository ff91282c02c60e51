package gate

import (
	"context"
	"fmt"
	"time"
)

// Element is one interactive control on the gate page.
type Element interface {
	// Label returns the visible text or value attribute of the control.
	Label() (string, error)
	Visible() (bool, error)
	Click() error
}

// Driver is the browser capability the controller needs. Implemented by the
// real browser session and by fakes in tests.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	// WaitVisible waits up to timeout for a visible element matching the
	// selector and returns it, or an error if none appeared.
	WaitVisible(selector string, timeout time.Duration) (Element, error)
	// All returns the elements currently matching the selector, without
	// waiting.
	All(selector string) ([]Element, error)
	// Count returns how many elements currently match the selector.
	Count(selector string) (int, error)
}

// Config tunes gate detection and the manual-clearance poll.
type Config struct {
	Keywords *Keywords

	// Stages overrides the site-rule lookup when non-nil.
	Stages []Stage

	// GenericSelectors and GateIndicators default to the package lists.
	GenericSelectors []string
	GateIndicators   []string

	// Manual-clearance poll bound.
	PollAttempts int
	PollInterval time.Duration
}

// DefaultConfig returns the standard gate configuration.
func DefaultConfig() Config {
	return Config{
		Keywords:         DefaultKeywords(),
		GenericSelectors: GenericSelectors,
		GateIndicators:   GateIndicators,
		PollAttempts:     20,
		PollInterval:     1 * time.Second,
	}
}

// Controller drives a browser session through the gate bypass phase.
type Controller struct {
	cfg  Config
	drv  Driver
	logf func(format string, args ...any)
}

// NewController creates a controller. logf receives human-readable progress
// lines for the caller's event stream; it may be nil.
func NewController(cfg Config, drv Driver, logf func(format string, args ...any)) *Controller {
	if cfg.Keywords == nil {
		cfg.Keywords = DefaultKeywords()
	}
	if len(cfg.GenericSelectors) == 0 {
		cfg.GenericSelectors = GenericSelectors
	}
	if len(cfg.GateIndicators) == 0 {
		cfg.GateIndicators = GateIndicators
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 20
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 1 * time.Second
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Controller{cfg: cfg, drv: drv, logf: logf}
}

// Run navigates to the seed URL and attempts to clear any gate: site rules
// first, then the generic keyword fallback, then a bounded poll for manual
// clearance. A false return is non-fatal; the scan proceeds optimistically.
func (c *Controller) Run(ctx context.Context, seedURL string) (bool, error) {
	c.logf("Opening browser to handle access gate")

	if err := c.drv.Navigate(ctx, seedURL); err != nil {
		c.logf("Gate page navigation failed: %v — skipping gate check", err)
		return false, fmt.Errorf("gate navigation: %w", err)
	}

	cleared := c.runStages(ctx, seedURL)

	if !cleared {
		cleared = c.runGenericFallback(ctx)
	}

	if !cleared {
		c.logf("Browser is visible; click the gate manually if it is still showing")
		cleared = c.pollManualClearance(ctx)
	}

	if cleared {
		c.logf("Gate cleared; keeping session open for the scan")
	} else {
		c.logf("Gate detection timed out — proceeding with scan anyway")
	}
	return cleared, nil
}

// runStages evaluates the ordered site-specific rule stages. Each stage is
// satisfied by its first visible match; only activation of the final stage
// counts as clearing the gate.
func (c *Controller) runStages(ctx context.Context, seedURL string) bool {
	stages := c.cfg.Stages
	if stages == nil {
		stages = SiteStages(seedURL)
	}
	if len(stages) == 0 {
		return false
	}

	cleared := false
	for i, stage := range stages {
		if ctx.Err() != nil {
			return cleared
		}
		c.logf("Checking for %s control", stage.Name)

		for _, rule := range stage.Rules {
			outcome := c.evaluate(rule)
			if outcome.Err != nil || !outcome.Matched {
				continue
			}
			if outcome.Activated {
				c.logf("Activated %s control via %s", stage.Name, rule.Selector)
				cleared = i == len(stages)-1
			}
			break
		}
	}
	return cleared
}

// evaluate applies a single rule and returns its tagged outcome.
func (c *Controller) evaluate(rule Rule) RuleOutcome {
	el, err := c.drv.WaitVisible(rule.Selector, rule.Timeout)
	if err != nil {
		return RuleOutcome{Err: err}
	}
	if el == nil {
		return RuleOutcome{}
	}
	if err := el.Click(); err != nil {
		return RuleOutcome{Matched: true, Err: err}
	}
	return RuleOutcome{Matched: true, Activated: true}
}

// runGenericFallback scans all interactive elements for a visible label
// matching the keyword set and activates the first match.
func (c *Controller) runGenericFallback(ctx context.Context) bool {
	c.logf("Searching for generic gate controls")

	for _, selector := range c.cfg.GenericSelectors {
		if ctx.Err() != nil {
			return false
		}
		elements, err := c.drv.All(selector)
		if err != nil {
			continue
		}
		for _, el := range elements {
			visible, err := el.Visible()
			if err != nil || !visible {
				continue
			}
			label, err := el.Label()
			if err != nil || !c.cfg.Keywords.Match(label) {
				continue
			}
			if err := el.Click(); err != nil {
				continue
			}
			c.logf("Clicked candidate control %q", label)
			return true
		}
	}
	return false
}

// pollManualClearance watches for the gate-indicator elements to disappear,
// treating that as evidence of a manual operator click. The poll is bounded.
func (c *Controller) pollManualClearance(ctx context.Context) bool {
	for attempt := 0; attempt < c.cfg.PollAttempts; attempt++ {
		gone := true
		for _, selector := range c.cfg.GateIndicators {
			n, err := c.drv.Count(selector)
			if err == nil && n > 0 {
				gone = false
				break
			}
		}
		if gone {
			c.logf("Gate cleared (detected manual click)")
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.cfg.PollInterval):
		}
	}
	return false
}

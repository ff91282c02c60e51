package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/seqprobe/seqprobe/internal/gate"
)

// ItemPage drives a rendered item page in click mode. Implemented by the
// browser session.
type ItemPage interface {
	Navigate(ctx context.Context, url string) error
	// FirstVisible returns the first visible element matching any selector,
	// with the selector that matched.
	FirstVisible(selectors []string) (gate.Element, string, bool)
	// CaptureDownload arms download capture, runs activate, and waits up to
	// timeout for the transfer. Returns the saved filename and size.
	CaptureDownload(dir string, timeout time.Duration, activate func() error) (string, int64, error)
}

// DownloadSelectors enumerate download affordances in priority order, the
// site-specific patterns first.
var DownloadSelectors = []string{
	`[data-testid="download-all-files"]`,
	`button[class*="DownloadAll"]`,
	`div[class*="DownloadAll"] button`,
	`button[aria-label*="download" i]`,
	`a[aria-label*="download" i]`,
	`a[download]`,
	`button[title*="download" i]`,
	`a[href*="download" i]`,
}

// ClickProber probes by navigating a full browser to each item page and
// activating its download affordance.
type ClickProber struct {
	page      ItemPage
	selectors []string

	renderDelay     time.Duration
	autoDownload    bool
	downloadDir     string
	downloadTimeout time.Duration
}

// ClickProberConfig configures a ClickProber.
type ClickProberConfig struct {
	Selectors       []string
	RenderDelay     time.Duration
	AutoDownload    bool
	DownloadDir     string
	DownloadTimeout time.Duration
}

// NewClickProber creates a browser-driven prober on an open session page.
func NewClickProber(page ItemPage, cfg ClickProberConfig) *ClickProber {
	if len(cfg.Selectors) == 0 {
		cfg.Selectors = DownloadSelectors
	}
	if cfg.RenderDelay <= 0 {
		cfg.RenderDelay = 2500 * time.Millisecond
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 60 * time.Second
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = "downloads"
	}
	return &ClickProber{
		page:            page,
		selectors:       cfg.Selectors,
		renderDelay:     cfg.RenderDelay,
		autoDownload:    cfg.AutoDownload,
		downloadDir:     cfg.DownloadDir,
		downloadTimeout: cfg.DownloadTimeout,
	}
}

// Probe loads the item page, waits for it to settle, and activates the
// first visible download affordance. No affordance means a miss.
func (c *ClickProber) Probe(ctx context.Context, pageURL string) Outcome {
	if err := c.page.Navigate(ctx, pageURL); err != nil {
		return Outcome{Class: ClassMissError, Detail: fmt.Sprintf("navigate: %v", err)}
	}

	// Bounded settle time for script-rendered content.
	select {
	case <-ctx.Done():
		return Outcome{Class: ClassMissError, Detail: "cancelled"}
	case <-time.After(c.renderDelay):
	}

	el, selector, ok := c.page.FirstVisible(c.selectors)
	if !ok {
		return Outcome{Class: ClassMissNoAffordance, Detail: "no download control found"}
	}

	if c.autoDownload {
		name, _, err := c.page.CaptureDownload(c.downloadDir, c.downloadTimeout, el.Click)
		if err != nil {
			return Outcome{Class: ClassMissError, Detail: fmt.Sprintf("download via %s: %v", selector, err)}
		}
		return Outcome{Class: ClassHit, Detail: selector, SavedAs: name}
	}

	if err := el.Click(); err != nil {
		return Outcome{Class: ClassMissError, Detail: fmt.Sprintf("click %s: %v", selector, err)}
	}
	return Outcome{Class: ClassHit, Detail: selector}
}

// Package browser provides the controlled Chrome session via Rod.
package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/seqprobe/seqprobe/internal/errors"
	"github.com/seqprobe/seqprobe/internal/gate"
)

// Config defines the session configuration.
type Config struct {
	Headless       bool              `json:"headless"`
	UserAgent      string            `json:"user_agent"`
	Headers        map[string]string `json:"headers"`
	ViewportWidth  int               `json:"viewport_width"`
	ViewportHeight int               `json:"viewport_height"`
	NavTimeout     time.Duration     `json:"nav_timeout"`
}

// DefaultConfig returns the default session configuration. The window is
// visible by default so an operator can clear a gate manually.
func DefaultConfig() Config {
	return Config{
		Headless:       false,
		ViewportWidth:  1280,
		ViewportHeight: 720,
		NavTimeout:     25 * time.Second,
	}
}

// stealthInit removes the automation marker before any page script runs.
const stealthInit = `delete Object.getPrototypeOf(navigator).webdriver`

// Session is one exclusively-owned browser session. It is opened for a
// single scan and must be closed on every exit path.
type Session struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rod.Page
	config   Config
	closed   atomic.Bool
}

// NewSession launches a browser and opens a blank page with the configured
// identity. A missing browser binary triggers a one-time managed install;
// failure of that surfaces as an AutomationUnavailable error.
func NewSession(config Config) (*Session, error) {
	bin, err := resolveBrowserBin()
	if err != nil {
		return nil, errors.NewAutomationUnavailableError(err)
	}

	l := launcher.New().
		Bin(bin).
		Headless(config.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("use-fake-ui-for-media-stream").
		Set("use-fake-device-for-media-stream").
		Set("window-size", fmt.Sprintf("%d,%d", config.ViewportWidth, config.ViewportHeight))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, errors.NewAutomationUnavailableError(err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, errors.NewAutomationUnavailableError(err)
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		l.Cleanup()
		return nil, errors.NewAutomationUnavailableError(err)
	}

	s := &Session{
		browser:  b,
		launcher: l,
		page:     page,
		config:   config,
	}
	s.applyIdentity()

	return s, nil
}

// resolveBrowserBin finds a usable browser binary, downloading a managed
// one when none is installed.
func resolveBrowserBin() (string, error) {
	if bin, has := launcher.LookPath(); has {
		return bin, nil
	}

	bin, err := launcher.NewBrowser().Get()
	if err != nil {
		return "", fmt.Errorf("managed browser install failed: %w", err)
	}
	return bin, nil
}

// applyIdentity sets the masked automation signal, viewport, user agent,
// and extra headers on the session page. These are best effort; a scan can
// proceed without any of them.
func (s *Session) applyIdentity() {
	_, _ = s.page.EvalOnNewDocument(stealthInit)

	_ = s.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  s.config.ViewportWidth,
		Height: s.config.ViewportHeight,
	})

	if s.config.UserAgent != "" {
		_ = proto.NetworkSetUserAgentOverride{
			UserAgent: s.config.UserAgent,
		}.Call(s.page)
	}

	if len(s.config.Headers) > 0 {
		networkHeaders := make(proto.NetworkHeaders)
		for k, v := range s.config.Headers {
			networkHeaders[k] = gson.New(v)
		}
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: networkHeaders}.Call(s.page)
	}
}

// Navigate loads a URL and waits for the load event, bounded by the
// session's navigation timeout and the caller's context.
func (s *Session) Navigate(ctx context.Context, rawURL string) error {
	p := s.page.Context(ctx).Timeout(s.config.NavTimeout)
	if err := p.Navigate(rawURL); err != nil {
		return fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", rawURL, err)
	}
	return nil
}

// WaitVisible waits up to timeout for a visible element matching the
// selector.
func (s *Session) WaitVisible(selector string, timeout time.Duration) (gate.Element, error) {
	el, err := s.page.Timeout(timeout).Element(selector)
	if err != nil {
		return nil, err
	}
	visible, err := el.Visible()
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, fmt.Errorf("element %s is not visible", selector)
	}
	return pageElement{el: el}, nil
}

// All returns the elements currently matching the selector, without
// waiting for any to appear.
func (s *Session) All(selector string) ([]gate.Element, error) {
	els, err := s.page.Elements(selector)
	if err != nil {
		return nil, err
	}
	out := make([]gate.Element, 0, len(els))
	for _, el := range els {
		out = append(out, pageElement{el: el})
	}
	return out, nil
}

// Count returns how many elements currently match the selector.
func (s *Session) Count(selector string) (int, error) {
	els, err := s.page.Elements(selector)
	if err != nil {
		return 0, err
	}
	return len(els), nil
}

// FirstVisible returns the first visible element matching any of the
// selectors, in order, with the selector that matched.
func (s *Session) FirstVisible(selectors []string) (gate.Element, string, bool) {
	for _, selector := range selectors {
		els, err := s.page.Elements(selector)
		if err != nil {
			continue
		}
		for _, el := range els {
			if visible, err := el.Visible(); err == nil && visible {
				return pageElement{el: el}, selector, true
			}
		}
	}
	return nil, "", false
}

// CaptureDownload arms download capture in dir, runs activate, and waits
// up to timeout for the transfer to complete. The file is renamed to its
// suggested name; the final name and size are returned.
func (s *Session) CaptureDownload(dir string, timeout time.Duration, activate func() error) (string, int64, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", 0, err
	}

	wait := s.browser.WaitDownload(dir)

	if err := activate(); err != nil {
		return "", 0, err
	}

	infoCh := make(chan *proto.PageDownloadWillBegin, 1)
	go func() { infoCh <- wait() }()

	select {
	case info := <-infoCh:
		if info == nil {
			return "", 0, fmt.Errorf("download did not start")
		}
		return finishDownload(dir, info)
	case <-time.After(timeout):
		return "", 0, fmt.Errorf("download timed out after %v", timeout)
	}
}

// finishDownload renames the captured file from its transfer GUID to the
// server-suggested name and reports its size.
func finishDownload(dir string, info *proto.PageDownloadWillBegin) (string, int64, error) {
	src := filepath.Join(dir, info.GUID)

	name := sanitizeFilename(info.SuggestedFilename)
	if name == "" {
		name = info.GUID
	}
	dst := filepath.Join(dir, name)

	if err := os.Rename(src, dst); err != nil {
		// The transfer may already carry its final name.
		dst = src
	}

	st, err := os.Stat(dst)
	if err != nil {
		return "", 0, err
	}
	return filepath.Base(dst), st.Size(), nil
}

// sanitizeFilename strips path separators and anything else unsafe for a
// local filename.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}

// SetCookies injects cookies into the session.
func (s *Session) SetCookies(cookies []*http.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, cookie := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     cookie.Name,
			Value:    cookie.Value,
			Domain:   cookie.Domain,
			Path:     cookie.Path,
			Secure:   cookie.Secure,
			HTTPOnly: cookie.HttpOnly,
		})
	}
	return s.page.SetCookies(params)
}

// Cookies harvests the session's cookies so the direct-fetch client can
// reuse the authenticated context the gate phase established.
func (s *Session) Cookies() ([]*http.Cookie, error) {
	rodCookies, err := s.page.Cookies(nil)
	if err != nil {
		return nil, err
	}
	cookies := make([]*http.Cookie, 0, len(rodCookies))
	for _, c := range rodCookies {
		cookies = append(cookies, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		})
	}
	return cookies, nil
}

// UserAgent returns the identity the session was launched with.
func (s *Session) UserAgent() string {
	return s.config.UserAgent
}

// Close shuts the browser down. It is safe to call more than once and on
// every exit path.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := s.browser.Close()
	s.launcher.Cleanup()
	return err
}

// Active reports whether the session is still open.
func (s *Session) Active() bool {
	return !s.closed.Load()
}

// pageElement adapts a Rod element to the gate.Element interface.
type pageElement struct {
	el *rod.Element
}

// Label returns the control's value attribute when present, otherwise its
// visible text.
func (e pageElement) Label() (string, error) {
	if value, err := e.el.Attribute("value"); err == nil && value != nil && *value != "" {
		return *value, nil
	}
	return e.el.Text()
}

// Visible reports whether the element is rendered.
func (e pageElement) Visible() (bool, error) {
	return e.el.Visible()
}

// Click activates the element with a left mouse click.
func (e pageElement) Click() error {
	return e.el.Click(proto.InputMouseButtonLeft, 1)
}

// CookieDomain extracts the host a cookie string should be scoped to.
func CookieDomain(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

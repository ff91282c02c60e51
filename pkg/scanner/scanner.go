package scanner

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/seqprobe/seqprobe/internal/browser"
	"github.com/seqprobe/seqprobe/internal/dedup"
	"github.com/seqprobe/seqprobe/internal/errors"
	"github.com/seqprobe/seqprobe/internal/gate"
	"github.com/seqprobe/seqprobe/internal/identity"
	"github.com/seqprobe/seqprobe/internal/logger"
	"github.com/seqprobe/seqprobe/internal/metrics"
	"github.com/seqprobe/seqprobe/internal/ratelimit"
)

// verboseProbeWindow is how many leading identifiers get per-probe
// diagnostics in the event stream regardless of the verbose flag.
const verboseProbeWindow = 3

// Session is the browser capability one scan owns exclusively. It is always
// released when the scan ends, on every exit path.
type Session interface {
	gate.Driver
	ItemPage
	SetCookies(cookies []*http.Cookie) error
	Cookies() ([]*http.Cookie, error)
	Close() error
	Active() bool
}

// SessionFactory opens a browser session for a scan.
type SessionFactory func() (Session, error)

// State is the mutable loop state, local to one scan execution.
type State struct {
	Index             int
	Found             int
	ConsecutiveMisses int
}

// Scanner runs one or more scans of a numeric URL family. The configuration
// and collaborators are shared read-only; each Run gets its own state.
type Scanner struct {
	config     *Config
	log        *logger.Logger
	collector  *metrics.Collector
	pool       *identity.Pool
	gateConfig gate.Config
	classifier *Classifier
	deduper    *dedup.BodyDeduper
	delayer    *ratelimit.Delayer

	prober   Prober // overrides probe strategy selection when set
	sessions SessionFactory

	eventBuffer int
}

// New creates a scanner for the given configuration. Input validation
// failures are returned synchronously; no scan events are ever produced
// for an invalid configuration.
func New(config *Config, opts ...Option) (*Scanner, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.NewInputError(err.Error(), err)
	}

	s := &Scanner{
		config:      config,
		log:         logger.Global().WithComponent("scanner"),
		pool:        identity.DefaultPool(),
		gateConfig:  gate.DefaultConfig(),
		eventBuffer: 64,
	}
	s.gateConfig.PollAttempts = config.GatePollAttempts
	s.gateConfig.PollInterval = config.GatePollInterval

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.classifier == nil {
		s.classifier = &Classifier{
			MinHitSize: config.MinHitSize,
			Keywords:   s.gateConfig.Keywords,
		}
	}
	if s.deduper == nil {
		s.deduper = dedup.NewBodyDeduper(config.MaxN * len(config.Extensions))
	}
	if s.delayer == nil {
		s.delayer = ratelimit.NewDelayer(config.DelayMin, config.DelayMax)
	}
	if config.RateCeiling > 0 {
		s.delayer.SetCeiling(config.RateCeiling, 1)
	}
	if s.sessions == nil {
		s.sessions = s.defaultSessionFactory()
	}

	return s, nil
}

// defaultSessionFactory opens a Rod session presenting the pool's lead
// identity, so browser traffic and direct fetches look like the same
// client.
func (s *Scanner) defaultSessionFactory() SessionFactory {
	return func() (Session, error) {
		cfg := browser.DefaultConfig()
		cfg.Headless = s.config.Headless
		lead := s.pool.First()
		cfg.UserAgent = lead.UserAgent
		cfg.Headers = lead.Headers
		return browser.NewSession(cfg)
	}
}

// Run executes the scan, streaming events on the returned channel. The
// channel is closed after exactly one terminal event (or silently when the
// caller's context is cancelled and the terminal frame cannot be
// delivered). Cancelling ctx stops the loop before its next blocking step.
func (s *Scanner) Run(ctx context.Context) <-chan Event {
	events := make(chan Event, s.eventBuffer)
	go s.run(ctx, events)
	return events
}

// run is the scan loop goroutine. Any panic escaping the loop body is
// caught here, logged, and surfaced as a stopped event; it never reaches
// the hosting process.
func (s *Scanner) run(ctx context.Context, events chan<- Event) {
	defer close(events)

	var st State
	terminal := false
	started := false

	emit := func(ev Event) bool {
		select {
		case events <- ev:
			if ev.Terminal() {
				terminal = true
			}
			return true
		case <-ctx.Done():
			return false
		}
	}
	logf := func(format string, args ...any) {
		emit(LogEvent(fmt.Sprintf(format, args...)))
	}

	defer func() {
		if r := recover(); r != nil {
			fatal := errors.NewFatalError("scan_loop", fmt.Errorf("%v", r))
			s.log.WithError(fatal).Error("scan loop failed")
			if s.collector != nil && started {
				s.collector.ScanStopped()
			}
			if !terminal {
				// Best effort: the consumer may already be gone.
				select {
				case events <- StoppedEvent(fmt.Sprintf("internal error: %v", r), st.Found):
				default:
				}
			}
		}
	}()

	cfg := s.config
	clickMode := cfg.ClickMode

	cookies := ParseCookieString(cfg.Cookie, browser.CookieDomain(cfg.URLRoot()))
	if len(cookies) > 0 {
		logf("%d browser cookie(s) injected", len(cookies))
	}

	// Browser phase: click mode needs the session for probing; direct mode
	// needs it only for the gate, and only when no stored credential was
	// supplied.
	var sess Session
	needGate := !clickMode && cfg.Cookie == ""
	needBrowser := needGate || clickMode

	if needBrowser {
		var err error
		sess, err = s.sessions()
		if err != nil {
			s.log.WithError(err).Warn("browser session unavailable")
			logf("Browser engine unavailable (%v) — scanning without gate bypass", err)
			if clickMode {
				logf("Click mode degraded to direct fetch")
				clickMode = false
			}
		} else {
			defer sess.Close()
		}
	}

	if sess != nil {
		if len(cookies) > 0 {
			if err := sess.SetCookies(cookies); err != nil {
				logf("Cookie injection failed: %v", err)
			}
		}
		if needGate {
			seedURL := cfg.CandidateURL(cfg.BaseNum, cfg.Extensions[0])
			ctl := gate.NewController(s.gateConfig, sess, logf)
			cleared, err := ctl.Run(ctx, seedURL)
			if s.collector != nil {
				if cleared {
					s.collector.GateCleared()
				} else {
					s.collector.GateTimeout()
				}
			}
			if err != nil {
				s.log.WithError(err).Warn("gate phase ended with error")
			}
			if harvested, err := sess.Cookies(); err == nil && len(harvested) > 0 {
				cookies = append(cookies, harvested...)
			}
		} else if clickMode {
			logf("Click mode active: skipping separate gate check")
		}
	}

	prober := s.prober
	if prober == nil {
		if clickMode {
			prober = NewClickProber(sess, ClickProberConfig{
				RenderDelay:     cfg.RenderDelay,
				AutoDownload:    cfg.AutoDownload,
				DownloadDir:     cfg.DownloadDir,
				DownloadTimeout: cfg.DownloadTimeout,
			})
		} else {
			fetch := NewFetchProber(FetchProberConfig{
				Timeout:      cfg.Timeout,
				Referer:      cfg.BaseURL,
				AutoDownload: cfg.AutoDownload,
				DownloadDir:  cfg.DownloadDir,
			}, s.classifier, s.pool, s.deduper)
			if err := fetch.AddCookies(cfg.URLRoot(), cookies); err != nil {
				logf("Cookie injection failed: %v", err)
			}
			prober = fetch
		}
	}

	// Range preview: the extension order determines the first and last
	// candidate URLs of the configured range.
	exts := cfg.Extensions
	firstURL := cfg.CandidateURL(cfg.StartNum, exts[0])
	lastURL := cfg.CandidateURL(cfg.StartNum+cfg.MaxN-1, exts[len(exts)-1])
	if !emit(RangeEvent(firstURL, lastURL)) {
		return
	}
	logf("Starting scan of %d identifiers", cfg.MaxN)

	if s.collector != nil {
		s.collector.ScanStarted()
	}
	started = true

	for st.Index = 0; st.Index < cfg.MaxN; st.Index++ {
		if ctx.Err() != nil {
			s.finishStopped(events, &terminal, "cancelled by caller", st.Found)
			return
		}

		num := cfg.StartNum + st.Index
		hitThis := false

		// Click mode visits the item page once per identifier; the
		// extension loop applies only to direct fetches.
		probeExts := exts
		if clickMode {
			probeExts = []string{""}
		}

		for _, ext := range probeExts {
			var candidateURL string
			if clickMode {
				candidateURL = cfg.PageURL(num)
			} else {
				candidateURL = cfg.CandidateURL(num, ext)
			}

			if !emit(CheckingEvent(candidateURL, st.Found, st.Index, cfg.MaxN)) {
				s.finishStopped(events, &terminal, "cancelled by caller", st.Found)
				return
			}

			start := time.Now()
			out := s.probeSafe(ctx, prober, candidateURL)
			s.log.ProbeEvent(candidateURL, out.Status, out.Class.String(), time.Since(start))
			if s.collector != nil {
				s.collector.ProbeSent()
			}

			if out.Hit() {
				st.Found++
				hitThis = true
				if s.collector != nil {
					s.collector.Hit()
					if out.SavedAs != "" {
						s.collector.Downloaded(int64(len(out.Body)))
					}
				}
				if !emit(HitEvent(candidateURL, st.Found)) {
					s.finishStopped(events, &terminal, "cancelled by caller", st.Found)
					return
				}
				if out.SavedAs != "" {
					logf("File saved: %s", out.SavedAs)
				}
			} else {
				if s.collector != nil {
					s.collector.Miss()
				}
				s.logMiss(logf, st.Index, candidateURL, out)
			}

			if err := s.delayer.Wait(ctx); err != nil {
				s.finishStopped(events, &terminal, "cancelled by caller", st.Found)
				return
			}
		}

		if hitThis {
			st.ConsecutiveMisses = 0
		} else {
			st.ConsecutiveMisses++
			if st.ConsecutiveMisses >= cfg.MaxMisses {
				logf("Stopping after %d consecutive misses; %d URLs validated", cfg.MaxMisses, st.Found)
				if s.collector != nil {
					s.collector.ScanStopped()
				}
				emit(StoppedEvent(fmt.Sprintf("%d consecutive misses", cfg.MaxMisses), st.Found))
				return
			}
		}
	}

	logf("Scan complete. %d URLs validated", st.Found)
	if s.collector != nil {
		s.collector.ScanCompleted()
	}
	emit(DoneEvent(st.Found))
}

// finishStopped delivers a best-effort terminal frame after cancellation.
// The consumer is usually gone at this point, so it never blocks.
func (s *Scanner) finishStopped(events chan<- Event, terminal *bool, reason string, found int) {
	if s.collector != nil {
		s.collector.ScanStopped()
	}
	if *terminal {
		return
	}
	select {
	case events <- StoppedEvent(reason, found):
		*terminal = true
	default:
	}
}

// probeSafe wraps one probe in a recovery boundary so a failure while
// probing a single identifier can never abort the whole scan.
func (s *Scanner) probeSafe(ctx context.Context, p Prober, url string) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithURL(url).Errorf("probe panic: %v", r)
			out = Outcome{Class: ClassMissError, Detail: fmt.Sprintf("probe failure: %v", r)}
		}
	}()
	return p.Probe(ctx, url)
}

// logMiss surfaces miss diagnostics: blocked and rate-limited responses are
// always reported, other classes only within the leading verbose window.
func (s *Scanner) logMiss(logf func(string, ...any), index int, url string, out Outcome) {
	switch out.Class {
	case ClassMissBlocked, ClassMissRateLimited:
		logf("%s on %s", out.Detail, url)
	default:
		if s.config.Verbose || index < verboseProbeWindow {
			logf("Skipped %s: %s", url, out.Detail)
		}
	}
}

// ParseCookieString splits a raw "name=value; name2=value2" header string
// into cookies scoped to the given domain.
func ParseCookieString(raw, domain string) []*http.Cookie {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var cookies []*http.Cookie
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		cookies = append(cookies, &http.Cookie{
			Name:   name,
			Value:  strings.TrimSpace(value),
			Domain: domain,
			Path:   "/",
		})
	}
	return cookies
}

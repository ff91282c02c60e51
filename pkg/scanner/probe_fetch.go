package scanner

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/seqprobe/seqprobe/internal/dedup"
	"github.com/seqprobe/seqprobe/internal/errors"
	"github.com/seqprobe/seqprobe/internal/identity"
)

// Prober issues a single probe against a candidate URL and classifies it.
type Prober interface {
	Probe(ctx context.Context, url string) Outcome
}

// sniffReadLimit bounds how much of a response is read when the payload is
// only needed for classification, not persistence.
const sniffReadLimit = 256 * 1024

// FetchProber probes candidate URLs with direct HTTP GETs, rotating through
// the identity pool.
type FetchProber struct {
	client     *http.Client
	classifier *Classifier
	identities *identity.Cycle
	referer    string
	deduper    *dedup.BodyDeduper

	autoDownload bool
	downloadDir  string
}

// FetchProberConfig configures a FetchProber.
type FetchProberConfig struct {
	Timeout      time.Duration
	Referer      string
	AutoDownload bool
	DownloadDir  string
}

// NewFetchProber creates a direct-fetch prober. Cookies are scoped to the
// candidate URL's host via the client's jar.
func NewFetchProber(cfg FetchProberConfig, classifier *Classifier, pool *identity.Pool, deduper *dedup.BodyDeduper) *FetchProber {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 12 * time.Second
	}
	if classifier == nil {
		classifier = &Classifier{}
	}
	if pool == nil {
		pool = identity.DefaultPool()
	}

	jar, _ := cookiejar.New(nil)

	return &FetchProber{
		client: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
		classifier:   classifier,
		identities:   pool.Cycle(),
		referer:      cfg.Referer,
		deduper:      deduper,
		autoDownload: cfg.AutoDownload,
		downloadDir:  cfg.DownloadDir,
	}
}

// AddCookies injects cookies into the prober's jar for the given URL. Used
// both for caller-supplied cookie strings and for the authenticated context
// harvested from the gate-bypass browser session.
func (f *FetchProber) AddCookies(rawURL string, cookies []*http.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("cookie scope: %w", err)
	}
	f.client.Jar.SetCookies(u, cookies)
	return nil
}

// Probe fetches the candidate URL and classifies the response. Transport
// failures are absorbed into a miss outcome, never returned.
func (f *FetchProber) Probe(ctx context.Context, candidateURL string) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, candidateURL, nil)
	if err != nil {
		return Outcome{Class: ClassMissError, Detail: fmt.Sprintf("request: %v", err)}
	}

	id := f.identities.Next()
	req.Header.Set("User-Agent", id.UserAgent)
	for k, v := range id.Headers {
		req.Header.Set(k, v)
	}
	if f.referer != "" {
		req.Header.Set("Referer", f.referer)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		scanErr := errors.Categorize(err, candidateURL)
		return Outcome{Class: ClassMissError, Detail: scanErr.Type.String() + ": " + err.Error()}
	}
	defer resp.Body.Close()

	var limit int64 = sniffReadLimit
	if f.autoDownload {
		// The whole payload is needed for persistence.
		limit = 1 << 62
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, limit))

	result := &ProbeResult{
		Status:        resp.StatusCode,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		Body:          body,
	}

	out := f.classifier.Classify(result)

	if out.Hit() && f.deduper != nil && f.deduper.SeenBefore(body) {
		return Outcome{Class: ClassMissDuplicate, Detail: "identical payload already seen", Status: resp.StatusCode}
	}

	if out.Hit() && f.autoDownload {
		name, err := f.persist(candidateURL, body)
		if err != nil {
			// The URL is still validated even if persisting failed.
			out.Detail = fmt.Sprintf("save failed: %v", err)
		} else {
			out.SavedAs = name
		}
	}

	return out
}

// persist writes a hit payload under a filename derived from its URL.
func (f *FetchProber) persist(candidateURL string, body []byte) (string, error) {
	dir := f.downloadDir
	if dir == "" {
		dir = "downloads"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	name := downloadFilename(candidateURL)
	if err := os.WriteFile(filepath.Join(dir, name), body, 0644); err != nil {
		return "", err
	}
	return name, nil
}

// downloadFilename flattens a URL into a safe local filename, defaulting
// the extension when the URL has none.
func downloadFilename(candidateURL string) string {
	name := strings.NewReplacer(":", "_", "/", "_", "\\", "_", "?", "_").Replace(candidateURL)
	if !strings.Contains(name, ".") {
		name += ".bin"
	}
	return name
}

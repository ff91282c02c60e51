package scanner

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/seqprobe/seqprobe/internal/gate"
)

// Class is the result of classifying one probe.
type Class int

// Probe classifications. Only ClassHit counts toward the found total; the
// remaining classes are misses with different diagnostics.
const (
	ClassHit Class = iota
	ClassMissHTML
	ClassMissPlaceholder
	ClassMissDuplicate
	ClassMissBlocked
	ClassMissRateLimited
	ClassMissNoAffordance
	ClassMissError
)

// String returns the class name used in diagnostics.
func (c Class) String() string {
	switch c {
	case ClassHit:
		return "hit"
	case ClassMissHTML:
		return "html"
	case ClassMissPlaceholder:
		return "placeholder"
	case ClassMissDuplicate:
		return "duplicate"
	case ClassMissBlocked:
		return "blocked"
	case ClassMissRateLimited:
		return "rate_limited"
	case ClassMissNoAffordance:
		return "no_affordance"
	default:
		return "error"
	}
}

// Outcome is the tagged result of one probe.
type Outcome struct {
	Class  Class
	Detail string

	// Status is the HTTP status of a direct fetch; zero for click-mode
	// probes and transport failures.
	Status int

	// Body carries the response payload for hits when the prober was asked
	// to retain it (auto-download).
	Body []byte

	// SavedAs is the filename a downloaded payload was persisted under.
	SavedAs string
}

// Hit reports whether the outcome counts as a validated URL.
func (o Outcome) Hit() bool {
	return o.Class == ClassHit
}

// ProbeResult is the transport-level view of a direct fetch, before
// classification.
type ProbeResult struct {
	Status        int
	ContentType   string
	ContentLength int64 // -1 when the server did not declare a length
	Body          []byte
}

// htmlContentTypes are treated as markup rather than payload. A gate that
// re-triggers answers with one of these.
var htmlContentTypes = []string{
	"text/html",
	"text/plain",
	"text/xml",
	"application/xhtml+xml",
}

// Classifier applies the response classification table.
type Classifier struct {
	// MinHitSize is the content-length floor below which a declared-size
	// response is a placeholder, not a hit.
	MinHitSize int64

	// Keywords, when set, is used to inspect HTML miss bodies for consent
	// controls so the diagnostic can say whether the gate re-triggered.
	Keywords *gate.Keywords
}

// Classify maps a fetch result to an outcome. The rules, in order: HTML-like
// content is always a miss; declared sizes under the floor are placeholder
// misses; everything else with a 200/206 status is a hit; 403 and 429 are
// misses with dedicated diagnostics; any other status is a plain miss.
func (cl *Classifier) Classify(res *ProbeResult) Outcome {
	switch res.Status {
	case 200, 206:
		// Fall through to content inspection.
	case 403:
		return Outcome{Class: ClassMissBlocked, Detail: "blocked (403)", Status: res.Status}
	case 429:
		return Outcome{Class: ClassMissRateLimited, Detail: "rate limited (429)", Status: res.Status}
	default:
		return Outcome{Class: ClassMissError, Detail: fmt.Sprintf("status %d", res.Status), Status: res.Status}
	}

	if cl.isHTMLLike(res) {
		detail := "HTML content"
		if cl.Keywords != nil && looksLikeGate(res.Body, cl.Keywords) {
			detail = "HTML content (gate re-triggered)"
		}
		return Outcome{Class: ClassMissHTML, Detail: detail, Status: res.Status}
	}

	if res.ContentLength >= 0 && res.ContentLength < cl.minHitSize() {
		return Outcome{
			Class:  ClassMissPlaceholder,
			Detail: fmt.Sprintf("file too small (%d bytes)", res.ContentLength),
			Status: res.Status,
		}
	}

	return Outcome{Class: ClassHit, Body: res.Body, Status: res.Status}
}

func (cl *Classifier) minHitSize() int64 {
	if cl.MinHitSize > 0 {
		return cl.MinHitSize
	}
	return 10000
}

// isHTMLLike checks the declared content type, falling back to sniffing the
// body when no type was declared.
func (cl *Classifier) isHTMLLike(res *ProbeResult) bool {
	ct := strings.ToLower(strings.TrimSpace(res.ContentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct != "" {
		for _, htmlType := range htmlContentTypes {
			if ct == htmlType {
				return true
			}
		}
		return false
	}
	return sniffHTML(res.Body)
}

// sniffHTML reports whether an untyped body parses into real markup. Binary
// payloads parse into a bare document with no element structure beyond the
// implicit html/head/body shell, so require a populated head or body.
func sniffHTML(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	sample := body
	if len(sample) > 1024 {
		sample = sample[:1024]
	}
	if !bytes.ContainsAny(sample, "<") {
		return false
	}

	doc, err := html.Parse(bytes.NewReader(sample))
	if err != nil {
		return false
	}

	var elements int
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "html", "head", "body":
			default:
				elements++
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return elements > 0
}

// looksLikeGate scans an HTML body for interactive controls whose label
// matches the consent keyword set.
func looksLikeGate(body []byte, kw *gate.Keywords) bool {
	if len(body) == 0 {
		return false
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}

	found := false
	doc.Find("button, input[type=submit], input[type=button], a, [role=button]").
		EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			label := strings.TrimSpace(sel.Text())
			if label == "" {
				label, _ = sel.Attr("value")
			}
			if kw.Match(label) {
				found = true
				return false
			}
			return true
		})

	return found
}

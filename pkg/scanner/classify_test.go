package scanner

import (
	"strings"
	"testing"

	"github.com/seqprobe/seqprobe/internal/gate"
)

func TestClassifier_Classify_Hit(t *testing.T) {
	cl := &Classifier{}
	out := cl.Classify(&ProbeResult{
		Status:        200,
		ContentType:   "video/mp4",
		ContentLength: 10000,
		Body:          []byte{0x00, 0x01, 0x02},
	})
	if !out.Hit() {
		t.Errorf("class = %v, want hit", out.Class)
	}
}

func TestClassifier_Classify_HTMLNeverHits(t *testing.T) {
	cl := &Classifier{}
	// Size does not matter for markup responses.
	out := cl.Classify(&ProbeResult{
		Status:        200,
		ContentType:   "text/html; charset=utf-8",
		ContentLength: 5_000_000,
		Body:          []byte("<html><body>big page</body></html>"),
	})
	if out.Class != ClassMissHTML {
		t.Errorf("class = %v, want ClassMissHTML", out.Class)
	}
}

func TestClassifier_Classify_HTMLLikeTypes(t *testing.T) {
	cl := &Classifier{}
	for _, ct := range []string{"text/html", "text/plain", "text/xml", "application/xhtml+xml"} {
		out := cl.Classify(&ProbeResult{Status: 200, ContentType: ct, ContentLength: 99999})
		if out.Class != ClassMissHTML {
			t.Errorf("content type %q: class = %v, want ClassMissHTML", ct, out.Class)
		}
	}
}

func TestClassifier_Classify_SizeFloor(t *testing.T) {
	cl := &Classifier{}

	out := cl.Classify(&ProbeResult{Status: 200, ContentType: "video/mp4", ContentLength: 9999})
	if out.Class != ClassMissPlaceholder {
		t.Errorf("9999 bytes: class = %v, want ClassMissPlaceholder", out.Class)
	}

	out = cl.Classify(&ProbeResult{Status: 200, ContentType: "video/mp4", ContentLength: 10000})
	if !out.Hit() {
		t.Errorf("10000 bytes: class = %v, want hit", out.Class)
	}
}

func TestClassifier_Classify_ConfigurableFloor(t *testing.T) {
	cl := &Classifier{MinHitSize: 100}
	out := cl.Classify(&ProbeResult{Status: 200, ContentType: "video/mp4", ContentLength: 150})
	if !out.Hit() {
		t.Errorf("150 bytes with floor 100: class = %v, want hit", out.Class)
	}
}

func TestClassifier_Classify_UnknownLength(t *testing.T) {
	// Servers that stream without a declared length cannot be size-checked.
	cl := &Classifier{}
	out := cl.Classify(&ProbeResult{
		Status:        200,
		ContentType:   "application/octet-stream",
		ContentLength: -1,
		Body:          []byte{0xff, 0xd8},
	})
	if !out.Hit() {
		t.Errorf("class = %v, want hit", out.Class)
	}
}

func TestClassifier_Classify_Statuses(t *testing.T) {
	cl := &Classifier{}

	out := cl.Classify(&ProbeResult{Status: 403})
	if out.Class != ClassMissBlocked {
		t.Errorf("403: class = %v, want ClassMissBlocked", out.Class)
	}

	out = cl.Classify(&ProbeResult{Status: 429})
	if out.Class != ClassMissRateLimited {
		t.Errorf("429: class = %v, want ClassMissRateLimited", out.Class)
	}

	out = cl.Classify(&ProbeResult{Status: 404})
	if out.Class != ClassMissError {
		t.Errorf("404: class = %v, want ClassMissError", out.Class)
	}

	out = cl.Classify(&ProbeResult{Status: 206, ContentType: "video/mp4", ContentLength: 20000})
	if !out.Hit() {
		t.Errorf("206: class = %v, want hit", out.Class)
	}
}

func TestClassifier_Classify_SniffsUntypedHTML(t *testing.T) {
	cl := &Classifier{}
	out := cl.Classify(&ProbeResult{
		Status:        200,
		ContentLength: 50000,
		Body:          []byte(`<html><head><title>Gate</title></head><body><div>content</div></body></html>`),
	})
	if out.Class != ClassMissHTML {
		t.Errorf("untyped markup: class = %v, want ClassMissHTML", out.Class)
	}
}

func TestClassifier_Classify_SniffIgnoresBinary(t *testing.T) {
	cl := &Classifier{}
	body := append([]byte{0x89, 'P', 'N', 'G', '<'}, make([]byte, 64)...)
	out := cl.Classify(&ProbeResult{
		Status:        200,
		ContentLength: 50000,
		Body:          body,
	})
	if !out.Hit() {
		t.Errorf("binary body: class = %v, want hit", out.Class)
	}
}

func TestClassifier_Classify_GateRetrigger(t *testing.T) {
	cl := &Classifier{Keywords: gate.DefaultKeywords()}
	out := cl.Classify(&ProbeResult{
		Status:      200,
		ContentType: "text/html",
		Body:        []byte(`<html><body><button>I Agree</button></body></html>`),
	})
	if out.Class != ClassMissHTML {
		t.Fatalf("class = %v, want ClassMissHTML", out.Class)
	}
	if !strings.Contains(out.Detail, "gate re-triggered") {
		t.Errorf("detail = %q, want gate re-trigger diagnostic", out.Detail)
	}
}

func TestClassifier_Classify_CarriesStatus(t *testing.T) {
	cl := &Classifier{}
	for _, status := range []int{200, 403, 404} {
		out := cl.Classify(&ProbeResult{
			Status:        status,
			ContentType:   "video/mp4",
			ContentLength: 20000,
		})
		if out.Status != status {
			t.Errorf("status %d: outcome status = %d", status, out.Status)
		}
	}
}

func TestClass_String(t *testing.T) {
	if ClassHit.String() != "hit" {
		t.Errorf("ClassHit = %q", ClassHit.String())
	}
	if ClassMissRateLimited.String() != "rate_limited" {
		t.Errorf("ClassMissRateLimited = %q", ClassMissRateLimited.String())
	}
}

package scanner

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/seqprobe/seqprobe/internal/dedup"
)

func newTestFetchProber(cl *Classifier, deduper *dedup.BodyDeduper) *FetchProber {
	return NewFetchProber(FetchProberConfig{}, cl, nil, deduper)
}

func TestFetchProber_Probe_Hit(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write(payload)
	}))
	defer srv.Close()

	p := newTestFetchProber(&Classifier{MinHitSize: 10}, nil)
	out := p.Probe(context.Background(), srv.URL+"/clip00042.mp4")
	if !out.Hit() {
		t.Errorf("class = %v (%s), want hit", out.Class, out.Detail)
	}
	if out.Status != 200 {
		t.Errorf("status = %d, want 200", out.Status)
	}
}

func TestFetchProber_Probe_HTMLMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>not here</body></html>"))
	}))
	defer srv.Close()

	p := newTestFetchProber(&Classifier{MinHitSize: 10}, nil)
	out := p.Probe(context.Background(), srv.URL+"/clip00042.mp4")
	if out.Class != ClassMissHTML {
		t.Errorf("class = %v, want ClassMissHTML", out.Class)
	}
}

func TestFetchProber_Probe_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	p := newTestFetchProber(&Classifier{}, nil)
	out := p.Probe(context.Background(), srv.URL+"/x1")
	if out.Class != ClassMissError {
		t.Errorf("class = %v, want ClassMissError", out.Class)
	}
	if out.Detail == "" {
		t.Error("transport miss should carry a diagnostic")
	}
}

func TestFetchProber_Probe_SendsIdentityHeaders(t *testing.T) {
	var gotUA, gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotReferer = r.Header.Get("Referer")
		w.Header().Set("Content-Type", "video/mp4")
		w.Write(bytes.Repeat([]byte{1}, 32))
	}))
	defer srv.Close()

	p := NewFetchProber(FetchProberConfig{Referer: "https://example.com"},
		&Classifier{MinHitSize: 1}, nil, nil)
	p.Probe(context.Background(), srv.URL+"/clip1")

	if gotUA == "" || gotUA == "Go-http-client/1.1" {
		t.Errorf("User-Agent = %q, want a browser identity", gotUA)
	}
	if gotReferer != "https://example.com" {
		t.Errorf("Referer = %q", gotReferer)
	}
}

func TestFetchProber_Probe_DeduplicatesRepeatedPayload(t *testing.T) {
	payload := bytes.Repeat([]byte("same-placeholder-body"), 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write(payload)
	}))
	defer srv.Close()

	p := newTestFetchProber(&Classifier{MinHitSize: 10}, dedup.NewBodyDeduper(100))

	out := p.Probe(context.Background(), srv.URL+"/clip1")
	if !out.Hit() {
		t.Fatalf("first probe class = %v, want hit", out.Class)
	}
	out = p.Probe(context.Background(), srv.URL+"/clip2")
	if out.Class != ClassMissDuplicate {
		t.Errorf("second probe class = %v, want ClassMissDuplicate", out.Class)
	}
}

func TestFetchProber_Probe_AutoDownloadPersists(t *testing.T) {
	payload := bytes.Repeat([]byte{0xCD}, 128)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write(payload)
	}))
	defer srv.Close()

	dir := t.TempDir()
	p := NewFetchProber(FetchProberConfig{AutoDownload: true, DownloadDir: dir},
		&Classifier{MinHitSize: 10}, nil, nil)

	out := p.Probe(context.Background(), srv.URL+"/clip00042.mp4")
	if !out.Hit() {
		t.Fatalf("class = %v", out.Class)
	}
	if out.SavedAs == "" {
		t.Fatal("hit not persisted")
	}

	saved, err := os.ReadFile(filepath.Join(dir, out.SavedAs))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(saved, payload) {
		t.Error("persisted payload differs from response body")
	}
}

func TestFetchProber_AddCookies(t *testing.T) {
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("sid"); err == nil {
			gotCookie = c.Value
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.Write(bytes.Repeat([]byte{1}, 32))
	}))
	defer srv.Close()

	p := NewFetchProber(FetchProberConfig{}, &Classifier{MinHitSize: 1}, nil, nil)
	if err := p.AddCookies(srv.URL, []*http.Cookie{{Name: "sid", Value: "abc", Path: "/"}}); err != nil {
		t.Fatal(err)
	}
	p.Probe(context.Background(), srv.URL+"/clip1")

	if gotCookie != "abc" {
		t.Errorf("cookie = %q, want abc", gotCookie)
	}
}

func TestDownloadFilename(t *testing.T) {
	got := downloadFilename("https://example.com/media/clip00042.mp4")
	if got != "https___example.com_media_clip00042.mp4" {
		t.Errorf("downloadFilename = %q", got)
	}

	// URLs with no extension get a default one.
	got = downloadFilename("p00000001")
	if got != "p00000001.bin" {
		t.Errorf("downloadFilename = %q", got)
	}
}

package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/seqprobe/seqprobe/pkg/scanner"
)

func newTestServer() *Server {
	return New(DefaultConfig(), nil, nil)
}

// ---- /parse ----

func TestHandleParse(t *testing.T) {
	srv := newTestServer()

	body := bytes.NewBufferString(`{"url": "https://cdn.example.com/media/clip00042.mp4"}`)
	req := httptest.NewRequest(http.MethodPost, "/parse", body)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp parseResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Prefix != "https://cdn.example.com/media/clip" || resp.NumWidth != 5 {
		t.Errorf("pattern = %+v", resp)
	}
	if resp.NextNum != 43 || resp.NextURL != "https://cdn.example.com/media/clip00043.mp4" {
		t.Errorf("next = %d %q", resp.NextNum, resp.NextURL)
	}
}

func TestHandleParse_NoDigits(t *testing.T) {
	srv := newTestServer()

	body := bytes.NewBufferString(`{"url": "https://example.com/about"}`)
	req := httptest.NewRequest(http.MethodPost, "/parse", body)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["error"] == "" {
		t.Error("missing error message")
	}
}

func TestHandleParse_MethodNotAllowed(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/parse", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

// ---- /export/pdf ----

func TestHandleExportPDF(t *testing.T) {
	srv := newTestServer()

	body := bytes.NewBufferString(`{"label": "clips", "urls": ["https://x/1", "https://x/2"]}`)
	req := httptest.NewRequest(http.MethodPost, "/export/pdf", body)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "attachment") {
		t.Errorf("Content-Disposition = %q", rec.Header().Get("Content-Disposition"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Error("body is not a PDF")
	}
}

func TestHandleExportPDF_Empty(t *testing.T) {
	srv := newTestServer()

	body := bytes.NewBufferString(`{"urls": []}`)
	req := httptest.NewRequest(http.MethodPost, "/export/pdf", body)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// ---- /stats and /healthz ----

func TestHandleStats(t *testing.T) {
	srv := newTestServer()
	srv.collector.ProbeSent()
	srv.collector.Hit()

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var snap map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap["probes_sent"] != float64(1) || snap["hits"] != float64(1) {
		t.Errorf("snapshot = %v", snap)
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

// ---- query parsing ----

func TestParseScanQuery_SampleURL(t *testing.T) {
	q := url.Values{}
	q.Set("url", "https://cdn.example.com/media/clip00042.mp4")
	q.Set("max_n", "25")
	q.Set("max_mis", "5")
	q.Set("delay_min", "0.5")
	q.Set("delay_max", "1.5")
	q.Set("cookie", "sid=abc")

	cfg, err := parseScanQuery(q, scanner.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Prefix != "https://cdn.example.com/media/clip" || cfg.NumWidth != 5 {
		t.Errorf("pattern = %q/%d", cfg.Prefix, cfg.NumWidth)
	}
	if cfg.BaseNum != 42 || cfg.StartNum != 43 {
		t.Errorf("base/start = %d/%d", cfg.BaseNum, cfg.StartNum)
	}
	if len(cfg.Extensions) != 1 || cfg.Extensions[0] != ".mp4" {
		t.Errorf("extensions = %v", cfg.Extensions)
	}
	if cfg.MaxN != 25 || cfg.MaxMisses != 5 {
		t.Errorf("range = %d/%d", cfg.MaxN, cfg.MaxMisses)
	}
	if cfg.DelayMin != 500*time.Millisecond || cfg.DelayMax != 1500*time.Millisecond {
		t.Errorf("delays = %v/%v", cfg.DelayMin, cfg.DelayMax)
	}
	if cfg.Cookie != "sid=abc" {
		t.Errorf("cookie = %q", cfg.Cookie)
	}
}

func TestParseScanQuery_RateCeiling(t *testing.T) {
	q := url.Values{}
	q.Set("prefix", "https://example.com/doc")
	q.Set("rate_ceiling", "0.5")

	cfg, err := parseScanQuery(q, scanner.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RateCeiling != 0.5 {
		t.Errorf("rate ceiling = %v, want 0.5", cfg.RateCeiling)
	}

	q.Set("rate_ceiling", "-2")
	if _, err := parseScanQuery(q, scanner.DefaultConfig()); err == nil {
		t.Error("negative rate_ceiling should fail")
	}
}

func TestParseScanQuery_ExplicitFields(t *testing.T) {
	q := url.Values{}
	q.Set("prefix", "https://example.com/doc")
	q.Set("num_width", "3")
	q.Set("base_num", "7")
	q.Set("start_num", "8")
	q.Add("exts", ".pdf")
	q.Add("exts", ".docx")
	q.Set("click_mode", "1")

	cfg, err := parseScanQuery(q, scanner.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Prefix != "https://example.com/doc" || cfg.NumWidth != 3 {
		t.Errorf("pattern = %q/%d", cfg.Prefix, cfg.NumWidth)
	}
	if len(cfg.Extensions) != 2 || cfg.Extensions[1] != ".docx" {
		t.Errorf("extensions = %v", cfg.Extensions)
	}
	if !cfg.ClickMode {
		t.Error("click_mode not parsed")
	}
}

func TestParseScanQuery_Invalid(t *testing.T) {
	q := url.Values{}
	q.Set("prefix", "https://example.com/doc")
	q.Set("max_n", "not-a-number")
	if _, err := parseScanQuery(q, scanner.DefaultConfig()); err == nil {
		t.Error("bad max_n should fail")
	}

	q = url.Values{}
	q.Set("prefix", "https://example.com/doc")
	q.Set("delay_min", "-1")
	if _, err := parseScanQuery(q, scanner.DefaultConfig()); err == nil {
		t.Error("negative delay should fail")
	}

	q = url.Values{}
	q.Set("url", "https://example.com/about")
	if _, err := parseScanQuery(q, scanner.DefaultConfig()); err == nil {
		t.Error("sample URL without digits should fail")
	}

	if _, err := parseScanQuery(url.Values{}, scanner.DefaultConfig()); err == nil {
		t.Error("missing prefix should fail validation")
	}
}

// ---- /scan ----

func TestHandleScan_BadQuery(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/scan?max_n=bogus", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleScan_StreamsEvents(t *testing.T) {
	// Target that misses on every identifier.
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer target.Close()

	srv := httptest.NewServer(newTestServer().Handler())
	defer srv.Close()

	q := url.Values{}
	q.Set("url", target.URL+"/clip00001.mp4")
	q.Set("max_n", "3")
	q.Set("max_mis", "2")
	q.Set("delay_min", "0")
	q.Set("delay_max", "0")
	q.Set("cookie", "sid=abc") // no browser phase

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/scan?" + q.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var events []scanner.Event
	deadline := time.Now().Add(15 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		var ev scanner.Event
		if err := conn.ReadJSON(&ev); err != nil {
			break
		}
		events = append(events, ev)
		if ev.Terminal() {
			break
		}
	}

	if len(events) == 0 {
		t.Fatal("no events received")
	}

	var sawRange, sawChecking bool
	var terminal *scanner.Event
	for i := range events {
		switch events[i].Type {
		case scanner.EventRange:
			sawRange = true
		case scanner.EventChecking:
			sawChecking = true
		}
		if events[i].Terminal() {
			if terminal != nil {
				t.Fatal("more than one terminal event")
			}
			terminal = &events[i]
		}
	}
	if !sawRange || !sawChecking {
		t.Errorf("range/checking frames = %v/%v", sawRange, sawChecking)
	}
	if terminal == nil || terminal.Type != scanner.EventStopped {
		t.Fatalf("terminal = %+v, want stopped after misses", terminal)
	}
	if !strings.Contains(terminal.Reason, "2 consecutive misses") {
		t.Errorf("reason = %q", terminal.Reason)
	}
}

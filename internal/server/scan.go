package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/seqprobe/seqprobe/pkg/scanner"
)

// writeWait bounds a single event write to a slow client.
const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The UI is served from arbitrary local origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleScan upgrades to a WebSocket and streams scan events until the
// scan terminates or the client disconnects.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	cfg, err := parseScanQuery(r.URL.Query(), s.config.ScanDefaults)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Read pump. The client never sends data; a read error means it went
	// away and the scan should stop.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	sc, err := scanner.New(cfg,
		scanner.WithLogger(s.log.WithComponent("scan")),
		scanner.WithMetrics(s.collector),
	)
	if err != nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteJSON(scanner.StoppedEvent(err.Error(), 0))
		return
	}

	events := sc.Run(ctx)
	for ev := range events {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			cancel()
			// Drain so the scan goroutine can finish and release its
			// browser session.
			for range events {
			}
			return
		}
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// parseScanQuery layers flat query parameters over the server's scan
// defaults. A "url" parameter carries a full sample URL and fills the
// pattern fields in one shot; explicit fields still override it.
func parseScanQuery(q url.Values, defaults *scanner.Config) (*scanner.Config, error) {
	cfg := *defaults
	cfg.Extensions = append([]string(nil), defaults.Extensions...)

	if sample := q.Get("url"); sample != "" {
		pat, err := scanner.ExtractPattern(sample)
		if err != nil {
			return nil, err
		}
		cfg.Prefix = pat.Prefix
		cfg.NumWidth = pat.NumWidth
		cfg.BaseNum = pat.BaseNum
		cfg.StartNum = pat.NextNum()
		if pat.Suffix != "" {
			cfg.Extensions = []string{pat.Suffix}
		}
	}

	if v := q.Get("base_url"); v != "" {
		cfg.BaseURL = v
	}
	if v := q.Get("prefix"); v != "" {
		cfg.Prefix = v
	}

	var err error
	if cfg.NumWidth, err = intParam(q, "num_width", cfg.NumWidth); err != nil {
		return nil, err
	}
	if cfg.BaseNum, err = intParam(q, "base_num", cfg.BaseNum); err != nil {
		return nil, err
	}
	if cfg.StartNum, err = intParam(q, "start_num", cfg.StartNum); err != nil {
		return nil, err
	}
	if cfg.MaxN, err = intParam(q, "max_n", cfg.MaxN); err != nil {
		return nil, err
	}
	if cfg.MaxMisses, err = intParam(q, "max_mis", cfg.MaxMisses); err != nil {
		return nil, err
	}
	if cfg.DelayMin, err = secondsParam(q, "delay_min", cfg.DelayMin); err != nil {
		return nil, err
	}
	if cfg.DelayMax, err = secondsParam(q, "delay_max", cfg.DelayMax); err != nil {
		return nil, err
	}
	if v := q.Get("rate_ceiling"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("rate_ceiling: %w", err)
		}
		cfg.RateCeiling = f
	}

	cfg.ClickMode = boolParam(q, "click_mode", cfg.ClickMode)
	cfg.AutoDownload = boolParam(q, "auto_download", cfg.AutoDownload)
	cfg.Verbose = boolParam(q, "verbose", cfg.Verbose)
	cfg.Headless = boolParam(q, "headless", cfg.Headless)

	if exts, ok := q["exts"]; ok {
		cfg.Extensions = append([]string(nil), exts...)
	}
	if v := q.Get("cookie"); v != "" {
		cfg.Cookie = v
	}
	if v := q.Get("min_hit_size"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("min_hit_size: %w", err)
		}
		cfg.MinHitSize = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func intParam(q url.Values, key string, def int) (int, error) {
	v := q.Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// secondsParam parses a delay given in seconds, fractions allowed.
func secondsParam(q url.Values, key string, def time.Duration) (time.Duration, error) {
	v := q.Get(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if f < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return time.Duration(f * float64(time.Second)), nil
}

func boolParam(q url.Values, key string, def bool) bool {
	v := q.Get(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

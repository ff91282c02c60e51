// Package server exposes the scanner over HTTP: pattern extraction, a
// WebSocket event stream for live scans, PDF export, and counters.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/seqprobe/seqprobe/internal/logger"
	"github.com/seqprobe/seqprobe/internal/metrics"
	"github.com/seqprobe/seqprobe/pkg/scanner"
)

// Config holds server configuration.
type Config struct {
	Addr string

	// ReadTimeout covers plain request handlers only; the scan socket
	// manages its own deadlines.
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration

	// ScanDefaults seeds every scan started over the socket; query
	// parameters override individual fields.
	ScanDefaults *scanner.Config
}

// DefaultConfig returns server defaults on the conventional port.
func DefaultConfig() Config {
	return Config{
		Addr:              ":8777",
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		ScanDefaults:      scanner.DefaultConfig(),
	}
}

// Server is the HTTP surface over the scan engine.
type Server struct {
	config    Config
	log       *logger.Logger
	collector *metrics.Collector
	httpSrv   *http.Server
}

// New creates a server. A nil logger or collector gets a default.
func New(config Config, log *logger.Logger, collector *metrics.Collector) *Server {
	if log == nil {
		log = logger.NewDefault()
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	if config.Addr == "" {
		config.Addr = ":8777"
	}
	if config.ScanDefaults == nil {
		config.ScanDefaults = scanner.DefaultConfig()
	}

	s := &Server{
		config:    config,
		log:       log.WithComponent("server"),
		collector: collector,
	}
	s.httpSrv = &http.Server{
		Addr:              config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}
	return s
}

// Handler returns the route mux. Exposed for tests and embedding.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/parse", s.handleParse)
	mux.HandleFunc("/scan", s.handleScan)
	mux.HandleFunc("/export/pdf", s.handleExportPDF)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Start runs the listener until Shutdown or a listener error.
func (s *Server) Start() error {
	s.log.Infof("Listening on %s", s.config.Addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests. Open scan sockets are closed by
// their own context once the listener stops accepting.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server")
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

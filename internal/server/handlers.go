package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/seqprobe/seqprobe/internal/export"
	"github.com/seqprobe/seqprobe/pkg/scanner"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 1 << 20

type parseRequest struct {
	URL string `json:"url"`
}

type parseResponse struct {
	Prefix   string `json:"prefix"`
	NumWidth int    `json:"num_width"`
	BaseNum  int    `json:"base_num"`
	Suffix   string `json:"suffix"`
	NextNum  int    `json:"next_num"`
	NextURL  string `json:"next_url"`
}

// handleParse extracts the numeric pattern from a sample URL.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req parseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pat, err := scanner.ExtractPattern(req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, parseResponse{
		Prefix:   pat.Prefix,
		NumWidth: pat.NumWidth,
		BaseNum:  pat.BaseNum,
		Suffix:   pat.Suffix,
		NextNum:  pat.NextNum(),
		NextURL:  pat.URLFor(pat.NextNum()),
	})
}

type exportRequest struct {
	Title string   `json:"title"`
	Label string   `json:"label"`
	URLs  []string `json:"urls"`
}

// handleExportPDF renders a validated-URL list as a downloadable PDF.
func (s *Server) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req exportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "no URLs to export")
		return
	}

	var buf bytes.Buffer
	err := export.WritePDF(&buf, export.Report{
		Title: req.Title,
		Label: req.Label,
		URLs:  req.URLs,
	})
	if err != nil {
		s.log.WithError(err).Error("PDF export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="validated_urls.pdf"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// handleStats reports process-wide scan counters.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.collector.Snapshot())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

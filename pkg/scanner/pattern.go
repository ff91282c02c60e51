// Package scanner implements sequential probing of numeric-identifier URL
// families: pattern extraction from a sample URL, the dual-mode probe loop,
// response classification, and ordered event streaming.
package scanner

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrNoNumericSequence is returned when a sample URL contains no digit run.
var ErrNoNumericSequence = errors.New("no numeric sequence found in the URL")

// numberedURL captures (prefix)(digits)(non-digit suffix), anchored so the
// digit run is the last one in the string.
var numberedURL = regexp.MustCompile(`^(.*?)(\d+)([^0-9]*)$`)

// Pattern is a URL template derived from a sample URL. Reconstructing the
// base number at the recorded width yields the original URL exactly.
type Pattern struct {
	Prefix   string `json:"prefix"`
	NumWidth int    `json:"num_width"`
	BaseNum  int    `json:"base_num"`
	Suffix   string `json:"suffix"`
}

// ExtractPattern derives a Pattern from a sample URL by locating the last
// contiguous run of decimal digits. The width of that run is preserved so
// leading zeros survive reconstruction.
func ExtractPattern(rawURL string) (*Pattern, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("extract pattern: empty URL: %w", ErrNoNumericSequence)
	}

	m := numberedURL.FindStringSubmatch(rawURL)
	if m == nil {
		return nil, fmt.Errorf("extract pattern from %q: %w", rawURL, ErrNoNumericSequence)
	}

	base, err := strconv.Atoi(m[2])
	if err != nil {
		// Digit runs longer than an int can hold are out of scanning range
		// anyway.
		return nil, fmt.Errorf("extract pattern from %q: digit run %q: %w", rawURL, m[2], err)
	}

	return &Pattern{
		Prefix:   m[1],
		NumWidth: len(m[2]),
		BaseNum:  base,
		Suffix:   m[3],
	}, nil
}

// NextNum returns the identifier immediately after the sample's.
func (p *Pattern) NextNum() int {
	return p.BaseNum + 1
}

// URLFor reconstructs a candidate URL for identifier n, zero-padded to the
// pattern's width.
func (p *Pattern) URLFor(n int) string {
	return p.Prefix + ZeroPad(n, p.NumWidth) + p.Suffix
}

// ZeroPad formats n as decimal, left-padded with zeros to at least width
// digits.
func ZeroPad(n, width int) string {
	return fmt.Sprintf("%0*d", width, n)
}

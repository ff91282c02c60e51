// Package export renders a validated-URL list into a static PDF report.
package export

import (
	"fmt"
	"io"
	"time"

	gofpdf "github.com/go-pdf/fpdf"
)

// Report describes one export request.
type Report struct {
	Title string
	Label string
	URLs  []string

	// Now overrides the generation timestamp; zero means time.Now. Tests
	// use it for stable output.
	Now time.Time
}

// DefaultTitle is used when the caller supplies none.
const DefaultTitle = "Validated Resource URLs"

// WritePDF renders the report to w. The formatter is stateless and has no
// bearing on scan correctness.
func WritePDF(w io.Writer, r Report) error {
	title := r.Title
	if title == "" {
		title = DefaultTitle
	}
	now := r.Now
	if now.IsZero() {
		now = time.Now()
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetTextColor(233, 69, 96)
	pdf.CellFormat(0, 12, title, "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(100, 100, 100)
	subtitle := fmt.Sprintf("Generated: %s  |  %s  |  %d URL(s)",
		now.Format("2006-01-02 15:04:05"), r.Label, len(r.URLs))
	pdf.CellFormat(0, 7, subtitle, "", 1, "L", false, 0, "")

	pdf.Ln(2)
	pdf.SetDrawColor(233, 69, 96)
	pdf.SetLineWidth(0.5)
	pdf.Line(10, pdf.GetY(), 200, pdf.GetY())
	pdf.Ln(5)

	pdf.SetFont("Courier", "", 8)
	pdf.SetTextColor(0, 80, 180)
	for _, url := range r.URLs {
		pdf.CellFormat(0, 6, url, "", 1, "L", false, 0, url)
	}

	return pdf.Output(w)
}

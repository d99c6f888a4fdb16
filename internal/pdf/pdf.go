// Package pdf renders PageSpeed reports as single page A4 documents.
package pdf

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/geocoder89/seodash/internal/pagespeed"
	"github.com/go-pdf/fpdf"
)

const (
	margin     = 14.0
	labelWidth = 42.0
	lineHeight = 5.5
	footerText = "This report is generated using Google PageSpeed Insights API."
	timeLayout = "Jan 2, 2006 15:04 MST"
)

// Input is everything the document shows. PageSpeed may be nil when the
// audit returned nothing.
type Input struct {
	URL         string
	GeneratedAt time.Time
	PageSpeed   *pagespeed.Result
}

type rgb struct{ r, g, b int }

var (
	ink   = rgb{18, 23, 38}
	muted = rgb{97, 97, 115}
	body  = rgb{64, 74, 94}
	rule  = rgb{217, 222, 230}
	faint = rgb{153, 153, 166}
)

type doc struct {
	*fpdf.Fpdf
}

func (d doc) color(c rgb) { d.SetTextColor(c.r, c.g, c.b) }

func (d doc) heading(text string, size float64) {
	d.SetFont("Helvetica", "B", size)
	d.color(ink)
	d.CellFormat(0, size*0.5, text, "", 1, "L", false, 0, "")
	d.Ln(1.5)
}

func (d doc) row(label, value string) {
	d.SetFont("Helvetica", "", 10)
	d.color(muted)
	d.CellFormat(labelWidth, lineHeight, label, "", 0, "L", false, 0, "")
	d.color(ink)
	d.CellFormat(0, lineHeight, value, "", 1, "L", false, 0, "")
}

// Render builds the report document.
func Render(in Input) ([]byte, error) {
	f := fpdf.New("P", "mm", "A4", "")
	f.SetMargins(margin, margin, margin)
	f.SetAutoPageBreak(true, margin)
	f.SetTitle("PageSpeed Report", true)
	f.SetCreator("seodash", true)

	d := doc{f}
	f.SetFooterFunc(func() {
		f.SetY(-margin)
		f.SetFont("Helvetica", "I", 8)
		d.color(faint)
		f.CellFormat(0, 4, footerText, "", 0, "L", false, 0, "")
	})
	f.AddPage()

	f.SetFont("Helvetica", "B", 18)
	d.color(ink)
	f.CellFormat(0, 10, "PageSpeed Report", "", 1, "C", false, 0, "")

	tr := f.UnicodeTranslatorFromDescriptor("")
	f.SetFont("Helvetica", "", 10)
	d.color(body)
	f.CellFormat(0, lineHeight, tr("Website URL: "+in.URL), "", 1, "L", false, 0, "")
	f.CellFormat(0, lineHeight, "Generated at: "+in.GeneratedAt.UTC().Format(timeLayout), "", 1, "L", false, 0, "")
	f.Ln(3)

	w, _ := f.GetPageSize()
	y := f.GetY()
	f.SetDrawColor(rule.r, rule.g, rule.b)
	f.SetLineWidth(0.2)
	f.Line(margin, y, w-margin, y)
	f.Ln(6)

	d.heading("PageSpeed Insights", 14)

	ps := in.PageSpeed
	if ps == nil {
		f.SetFont("Helvetica", "", 10)
		d.color(muted)
		f.CellFormat(0, lineHeight, "No PageSpeed data available.", "", 1, "L", false, 0, "")
	} else {
		d.row("Lighthouse version:", orNA(ps.LighthouseVersion))
		d.row("Audit fetch time:", fetchTime(ps.FetchTime))
		f.Ln(4)

		d.heading("Summary Scores", 12)
		d.row("Performance:", score(ps.PerformanceScore))
		d.row("SEO:", score(ps.SEOScore))
		d.row("Accessibility:", score(ps.AccessibilityScore))
		d.row("Best Practices:", score(ps.BestPracticesScore))
		f.Ln(4)

		d.heading("Key Metrics", 12)
		for _, name := range []string{"FCP", "LCP", "CLS", "TBT"} {
			d.row(name+":", tr(metricLine(ps.Metrics[name])))
		}
	}

	if err := f.Error(); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}

	var buf bytes.Buffer
	if err := f.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func metricLine(m *pagespeed.Metric) string {
	if m == nil {
		return "N/A"
	}

	value := ""
	switch {
	case m.DisplayValue != nil:
		value = *m.DisplayValue
	case m.NumericValue != nil:
		value = strconv.FormatFloat(*m.NumericValue, 'f', -1, 64)
	}

	line := orNA(&m.Title)
	if value != "" {
		line += ": " + value
	}
	if m.Score != nil {
		line += fmt.Sprintf(" (score %d)", *m.Score)
	}
	return line
}

func fetchTime(s *string) string {
	if s == nil || *s == "" {
		return "N/A"
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return *s
	}
	return t.UTC().Format(timeLayout)
}

func score(v *int) string {
	if v == nil {
		return "N/A"
	}
	return strconv.Itoa(*v)
}

func orNA(s *string) string {
	if s == nil || *s == "" {
		return "N/A"
	}
	return *s
}

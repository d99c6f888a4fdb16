package report

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrReportNotFound = errors.New("report not found")

// Report is the stored metadata of a generated PDF. The bytes live in
// the blob store under PDFKey.
type Report struct {
	ID                 string          `json:"id"`
	UserID             string          `json:"userId"`
	URL                string          `json:"url"`
	Data               json.RawMessage `json:"-"`
	PerformanceScore   *int            `json:"performanceScore"`
	SEOScore           *int            `json:"seoScore"`
	AccessibilityScore *int            `json:"accessibilityScore"`
	PDFKey             string          `json:"-"`
	PDFSize            int             `json:"pdfSize"`
	GeneratedAt        time.Time       `json:"generatedAt"`
	CreatedAt          time.Time       `json:"createdAt"`
}

type CreateRequest struct {
	UserID             string
	URL                string
	Data               json.RawMessage
	PerformanceScore   *int
	SEOScore           *int
	AccessibilityScore *int
	PDFKey             string
	PDFSize            int
	GeneratedAt        time.Time
}

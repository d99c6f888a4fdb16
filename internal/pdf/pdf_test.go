package pdf

import (
	"bytes"
	"testing"
	"time"

	"github.com/geocoder89/seodash/internal/pagespeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestRender_ProducesPDF(t *testing.T) {
	out, err := Render(Input{
		URL:         "https://example.com",
		GeneratedAt: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
		PageSpeed: &pagespeed.Result{
			LighthouseVersion: ptr("12.0.0"),
			FetchTime:         ptr("2026-04-01T11:59:00Z"),
			PerformanceScore:  ptr(87),
			SEOScore:          ptr(92),
			Metrics: map[string]*pagespeed.Metric{
				"FCP": {Title: "First Contentful Paint", DisplayValue: ptr("1.2 s"), Score: ptr(95)},
			},
		},
	})
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.Contains(t, string(out), "%%EOF")
}

func TestRender_WithoutPageSpeed(t *testing.T) {
	out, err := Render(Input{URL: "https://example.com", GeneratedAt: time.Now()})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestMetricLine(t *testing.T) {
	assert.Equal(t, "N/A", metricLine(nil))
	assert.Equal(t, "CLS: 0.02 (score 100)", metricLine(&pagespeed.Metric{Title: "CLS", NumericValue: ptr(0.02), Score: ptr(100)}))
	assert.Equal(t, "TBT: 30 ms", metricLine(&pagespeed.Metric{Title: "TBT", DisplayValue: ptr("30 ms")}))
}

func TestScoreAndFetchTime(t *testing.T) {
	assert.Equal(t, "N/A", score(nil))
	assert.Equal(t, "42", score(ptr(42)))
	assert.Equal(t, "N/A", fetchTime(nil))
	assert.Equal(t, "not-a-time", fetchTime(ptr("not-a-time")))
}

// Package pagespeed wraps the PageSpeed Insights v5 API.
package pagespeed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/geocoder89/seodash/internal/cache"
	"github.com/geocoder89/seodash/internal/observability"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	psi "google.golang.org/api/pagespeedonline/v5"
)

var ErrMissingAPIKey = errors.New("PAGESPEED_API_KEY is not set")

const (
	strategy       = "mobile"
	defaultTimeout = 60 * time.Second
)

var categories = []string{"performance", "seo", "accessibility", "best-practices"}

// metricAudits maps the short metric name to its lighthouse audit id.
var metricAudits = map[string]string{
	"FCP": "first-contentful-paint",
	"LCP": "largest-contentful-paint",
	"CLS": "cumulative-layout-shift",
	"TBT": "total-blocking-time",
}

type Metric struct {
	Title        string   `json:"title"`
	DisplayValue *string  `json:"displayValue"`
	NumericValue *float64 `json:"numericValue"`
	Score        *int     `json:"score"`
}

type Result struct {
	LighthouseVersion  *string            `json:"lighthouseVersion"`
	FetchTime          *string            `json:"fetchTime"`
	PerformanceScore   *int               `json:"performanceScore"`
	SEOScore           *int               `json:"seoScore"`
	AccessibilityScore *int               `json:"accessibilityScore"`
	BestPracticesScore *int               `json:"bestPracticesScore"`
	Metrics            map[string]*Metric `json:"metrics"`
}

type Config struct {
	APIKey   string
	CacheTTL time.Duration
	Timeout  time.Duration
	// Endpoint overrides the Google base URL.
	Endpoint string
}

type Client struct {
	cfg   Config
	mu    sync.Mutex
	svc   *psi.Service
	memo  *cache.Cache[Result]
	prom  *observability.Prom
	build func(ctx context.Context) (*psi.Service, error)
}

func NewClient(cfg Config, prom *observability.Prom) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	c := &Client{
		cfg:  cfg,
		memo: cache.New[Result](cfg.CacheTTL),
		prom: prom,
	}
	c.build = c.newService
	return c
}

func (c *Client) newService(ctx context.Context) (*psi.Service, error) {
	opts := []option.ClientOption{option.WithAPIKey(c.cfg.APIKey)}
	if c.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.cfg.Endpoint))
	}
	return psi.NewService(ctx, opts...)
}

// Report runs a mobile audit of url. Successful results are memoized per
// url for the configured TTL.
func (c *Client) Report(ctx context.Context, url string) (Result, error) {
	if c.cfg.APIKey == "" {
		return Result{}, ErrMissingAPIKey
	}
	if r, ok := c.memo.Get(url); ok {
		return r, nil
	}

	svc, err := c.service()
	if err != nil {
		return Result{}, fmt.Errorf("pagespeed client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var resp *psi.PagespeedApiPagespeedResponseV5
	call := func() error {
		var err error
		resp, err = svc.Pagespeedapi.Runpagespeed(url).
			Strategy(strategy).
			Category(categories...).
			Context(ctx).
			Do()
		return err
	}

	if c.prom != nil {
		err = c.prom.ObserveUpstream("pagespeed", "run", call)
	} else {
		err = call()
	}
	if err != nil {
		return Result{}, describe(err)
	}

	r := fromResponse(resp)
	c.memo.Set(url, r)
	return r, nil
}

func (c *Client) service() (*psi.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.svc == nil {
		svc, err := c.build(context.Background())
		if err != nil {
			return nil, err
		}
		c.svc = svc
	}
	return c.svc, nil
}

func describe(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := gerr.Message
		if msg == "" {
			msg = gerr.Body
		}
		return fmt.Errorf("PageSpeed API error %d: %s", gerr.Code, msg)
	}
	return err
}

func fromResponse(resp *psi.PagespeedApiPagespeedResponseV5) Result {
	out := Result{Metrics: make(map[string]*Metric, len(metricAudits))}
	for name := range metricAudits {
		out.Metrics[name] = nil
	}
	if resp == nil || resp.LighthouseResult == nil {
		return out
	}

	lh := resp.LighthouseResult
	out.LighthouseVersion = optString(lh.LighthouseVersion)
	out.FetchTime = optString(lh.FetchTime)

	if cats := lh.Categories; cats != nil {
		out.PerformanceScore = categoryScore(cats.Performance)
		out.SEOScore = categoryScore(cats.Seo)
		out.AccessibilityScore = categoryScore(cats.Accessibility)
		out.BestPracticesScore = categoryScore(cats.BestPractices)
	}

	for name, id := range metricAudits {
		audit, ok := lh.Audits[id]
		if !ok {
			continue
		}
		// zero is a real reading for CLS and TBT
		v := audit.NumericValue
		m := &Metric{
			Title:        audit.Title,
			DisplayValue: optString(audit.DisplayValue),
			NumericValue: &v,
		}
		if s, ok := asFloat(audit.Score); ok {
			v := int(math.Round(s * 100))
			m.Score = &v
		}
		out.Metrics[name] = m
	}
	return out
}

func categoryScore(cat *psi.LighthouseCategoryV5) *int {
	if cat == nil {
		return nil
	}
	s, ok := asFloat(cat.Score)
	if !ok {
		return nil
	}
	return NormalizeScore(s)
}

// NormalizeScore maps a 0..1 lighthouse score to 0..100. Values already on
// the 0..100 scale are only rounded.
func NormalizeScore(s float64) *int {
	if math.IsNaN(s) {
		return nil
	}
	var v int
	if s <= 1 {
		v = int(math.Round(s * 100))
	} else {
		v = int(math.Round(s))
	}
	return &v
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package searchconsole

import (
	"context"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	sc "google.golang.org/api/searchconsole/v1"
)

const (
	dateLayout     = "2006-01-02"
	analyticsLimit = 1000
	displayRows    = 100
	DefaultDays    = 30
	MaxDays        = 90
)

type DateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Days      int    `json:"days,omitempty"`
	Range     string `json:"range,omitempty"`
}

type Row struct {
	Keys        []string `json:"keys"`
	Clicks      float64  `json:"clicks"`
	Impressions float64  `json:"impressions"`
	CTR         float64  `json:"ctr"`
	Position    float64  `json:"position"`
}

type Performance struct {
	TotalClicks      float64   `json:"totalClicks"`
	TotalImpressions float64   `json:"totalImpressions"`
	AverageCTR       float64   `json:"averageCtr"`
	AveragePosition  float64   `json:"averagePosition"`
	Rows             []Row     `json:"rows"`
	DateRange        DateRange `json:"dateRange"`
	Error            string    `json:"error,omitempty"`
}

type Totals struct {
	Clicks          float64 `json:"clicks"`
	Impressions     float64 `json:"impressions"`
	AverageCTR      float64 `json:"averageCtr"`
	AveragePosition float64 `json:"averagePosition"`
}

type DayPoint struct {
	Date        string  `json:"date"`
	Clicks      float64 `json:"clicks"`
	Impressions float64 `json:"impressions"`
	CTR         float64 `json:"ctr"`
	Position    float64 `json:"position"`
}

type TimeSeries struct {
	Points    []DayPoint `json:"timeSeries"`
	Totals    Totals     `json:"totals"`
	DateRange DateRange  `json:"dateRange"`
}

type Query struct {
	Query       string  `json:"query"`
	Clicks      float64 `json:"clicks"`
	Impressions float64 `json:"impressions"`
	CTR         float64 `json:"ctr"`
	Position    float64 `json:"position"`
}

type TopQueries struct {
	Queries   []Query   `json:"queries"`
	Total     int       `json:"total"`
	DateRange DateRange `json:"dateRange"`
}

type Sitemap struct {
	Path            string `json:"path"`
	LastSubmitted   string `json:"lastSubmitted"`
	ContentsCount   int64  `json:"contentsCount"`
	IsPending       bool   `json:"isPending"`
	IsSitemapsIndex bool   `json:"isSitemapsIndex"`
}

type Sitemaps struct {
	Sitemaps []Sitemap `json:"sitemaps"`
	Error    string    `json:"error,omitempty"`
}

type IndexStatus struct {
	Verdict       string  `json:"verdict"`
	CoverageState string  `json:"coverageState"`
	LastCrawlTime *string `json:"lastCrawlTime"`
	IndexingState string  `json:"indexingState"`
}

type Inspection struct {
	IndexStatus IndexStatus `json:"indexStatusResult"`
	URL         string      `json:"url"`
}

type SiteInfo struct {
	SiteURL       string `json:"siteUrl"`
	Verified      bool   `json:"verified"`
	SitemapsCount int    `json:"sitemapsCount,omitempty"`
	Error         string `json:"error,omitempty"`
}

type Report struct {
	SiteURL         string      `json:"siteUrl"`
	DateRange       DateRange   `json:"dateRange"`
	SearchAnalytics Performance `json:"searchAnalytics"`
	Sitemaps        Sitemaps    `json:"sitemaps"`
	SiteInfo        SiteInfo    `json:"siteInfo"`
	GeneratedAt     time.Time   `json:"generatedAt"`
}

// ClampDays bounds a look-back window to 1..90, defaulting to 30.
func ClampDays(days int) int {
	if days == 0 {
		return DefaultDays
	}
	return max(1, min(days, MaxDays))
}

// LastDays returns the inclusive window ending at now.
func LastDays(now time.Time, days int) DateRange {
	return DateRange{
		StartDate: now.AddDate(0, 0, -days).Format(dateLayout),
		EndDate:   now.Format(dateLayout),
		Days:      days,
	}
}

// RangeDates resolves one of 24h, 7d, 28d or 3m. Unknown values fall back
// to 28d.
func RangeDates(now time.Time, rng string) DateRange {
	var start time.Time
	switch rng {
	case "24h":
		start = now.AddDate(0, 0, -1)
	case "7d":
		start = now.AddDate(0, 0, -7)
	case "3m":
		start = now.AddDate(0, -3, 0)
	default:
		rng = "28d"
		start = now.AddDate(0, 0, -28)
	}
	return DateRange{StartDate: start.Format(dateLayout), EndDate: now.Format(dateLayout), Range: rng}
}

func (c *Client) query(ctx context.Context, op, site string, dr DateRange, dims []string, limit int64, retry bool) ([]*sc.ApiDataRow, error) {
	req := &sc.SearchAnalyticsQueryRequest{
		StartDate:  dr.StartDate,
		EndDate:    dr.EndDate,
		Dimensions: dims,
		RowLimit:   limit,
	}

	var rows []*sc.ApiDataRow
	fn := func(ctx context.Context, svc *sc.Service) error {
		resp, err := svc.Searchanalytics.Query(site, req).Context(ctx).Do()
		if err != nil {
			return err
		}
		rows = resp.Rows
		return nil
	}

	var err error
	if retry {
		err = c.callWithRetry(ctx, op, fn)
	} else {
		err = c.call(ctx, op, fn)
	}
	return rows, err
}

// Performance aggregates clicks and impressions by date, query and page
// over the window.
func (c *Client) Performance(ctx context.Context, site string, dr DateRange) (Performance, error) {
	rows, err := c.query(ctx, "performance", site, dr, []string{"date", "query", "page"}, analyticsLimit, false)
	if err != nil {
		return Performance{}, err
	}

	out := Performance{DateRange: dr, Rows: make([]Row, 0, min(len(rows), displayRows))}
	var ctr, pos float64
	for i, r := range rows {
		out.TotalClicks += r.Clicks
		out.TotalImpressions += r.Impressions
		ctr += r.Ctr
		pos += r.Position
		if i < displayRows {
			out.Rows = append(out.Rows, Row{Keys: r.Keys, Clicks: r.Clicks, Impressions: r.Impressions, CTR: r.Ctr, Position: r.Position})
		}
	}
	if n := float64(len(rows)); n > 0 {
		out.AverageCTR = ctr / n
		out.AveragePosition = pos / n
	}
	return out, nil
}

func (c *Client) TimeSeries(ctx context.Context, site string, dr DateRange) (TimeSeries, error) {
	rows, err := c.query(ctx, "time_series", site, dr, []string{"date"}, analyticsLimit, true)
	if err != nil {
		return TimeSeries{}, err
	}
	return buildTimeSeries(rows, dr), nil
}

type dayAcc struct {
	DayPoint
	n float64
}

func buildTimeSeries(rows []*sc.ApiDataRow, dr DateRange) TimeSeries {
	days := map[string]*dayAcc{}
	var t Totals
	var ctr, pos float64

	for _, r := range rows {
		if len(r.Keys) > 0 && r.Keys[0] != "" {
			d, ok := days[r.Keys[0]]
			if !ok {
				d = &dayAcc{DayPoint: DayPoint{Date: r.Keys[0]}}
				days[r.Keys[0]] = d
			}
			d.Clicks += r.Clicks
			d.Impressions += r.Impressions
			d.CTR += r.Ctr
			d.Position += r.Position
			d.n++
		}
		t.Clicks += r.Clicks
		t.Impressions += r.Impressions
		ctr += r.Ctr
		pos += r.Position
	}
	if n := float64(len(rows)); n > 0 {
		t.AverageCTR = ctr / n
		t.AveragePosition = pos / n
	}

	points := make([]DayPoint, 0, len(days))
	for _, d := range days {
		p := d.DayPoint
		p.CTR /= d.n
		p.Position /= d.n
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })

	return TimeSeries{Points: points, Totals: t, DateRange: dr}
}

func (c *Client) TopQueries(ctx context.Context, site string, dr DateRange, limit int) (TopQueries, error) {
	if limit <= 0 {
		limit = analyticsLimit
	}
	rows, err := c.query(ctx, "top_queries", site, dr, []string{"query"}, int64(limit), true)
	if err != nil {
		return TopQueries{}, err
	}

	qs := make([]Query, 0, len(rows))
	for _, r := range rows {
		q := "Unknown"
		if len(r.Keys) > 0 && r.Keys[0] != "" {
			q = r.Keys[0]
		}
		qs = append(qs, Query{Query: q, Clicks: r.Clicks, Impressions: r.Impressions, CTR: r.Ctr, Position: r.Position})
	}
	return TopQueries{Queries: qs, Total: len(qs), DateRange: dr}, nil
}

func (c *Client) Sitemaps(ctx context.Context, site string) (Sitemaps, error) {
	var resp *sc.SitemapsListResponse
	err := c.call(ctx, "sitemaps", func(ctx context.Context, svc *sc.Service) error {
		var err error
		resp, err = svc.Sitemaps.List(site).Context(ctx).Do()
		return err
	})
	if err != nil {
		return Sitemaps{}, err
	}

	out := Sitemaps{Sitemaps: make([]Sitemap, 0, len(resp.Sitemap))}
	for _, s := range resp.Sitemap {
		var count int64
		for _, content := range s.Contents {
			count += content.Submitted
		}
		out.Sitemaps = append(out.Sitemaps, Sitemap{
			Path:            s.Path,
			LastSubmitted:   s.LastSubmitted,
			ContentsCount:   count,
			IsPending:       s.IsPending,
			IsSitemapsIndex: s.IsSitemapsIndex,
		})
	}
	return out, nil
}

func (c *Client) InspectURL(ctx context.Context, site, pageURL string) (Inspection, error) {
	var resp *sc.InspectUrlIndexResponse
	err := c.call(ctx, "inspect_url", func(ctx context.Context, svc *sc.Service) error {
		var err error
		resp, err = svc.UrlInspection.Index.Inspect(&sc.InspectUrlIndexRequest{
			InspectionUrl: pageURL,
			SiteUrl:       site,
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return Inspection{}, err
	}

	st := IndexStatus{Verdict: "UNKNOWN", CoverageState: "UNKNOWN", IndexingState: "UNKNOWN"}
	if resp.InspectionResult != nil && resp.InspectionResult.IndexStatusResult != nil {
		r := resp.InspectionResult.IndexStatusResult
		st.Verdict = orUnknown(r.Verdict)
		st.CoverageState = orUnknown(r.CoverageState)
		st.IndexingState = orUnknown(r.IndexingState)
		if r.LastCrawlTime != "" {
			st.LastCrawlTime = &r.LastCrawlTime
		}
	}
	return Inspection{IndexStatus: st, URL: pageURL}, nil
}

// SiteInfo treats a readable sitemap listing as proof of access.
func (c *Client) SiteInfo(ctx context.Context, site string) SiteInfo {
	sm, err := c.Sitemaps(ctx, site)
	if err != nil {
		return SiteInfo{SiteURL: site, Error: err.Error()}
	}
	return SiteInfo{SiteURL: site, Verified: true, SitemapsCount: len(sm.Sitemaps)}
}

// FullReport collects performance, sitemaps and site info concurrently.
// Part failures are reported inside the result.
func (c *Client) FullReport(ctx context.Context, site string, days int) (Report, error) {
	if !c.Configured() {
		return Report{}, ErrMissingCredentials
	}

	now := time.Now()
	days = ClampDays(days)
	dr := LastDays(now, days)
	rep := Report{SiteURL: site, DateRange: dr, GeneratedAt: now.UTC()}

	var g errgroup.Group
	g.Go(func() error {
		perf, err := c.Performance(ctx, site, dr)
		if err != nil {
			perf = Performance{Rows: []Row{}, DateRange: dr, Error: err.Error()}
		}
		rep.SearchAnalytics = perf
		return nil
	})
	g.Go(func() error {
		sm, err := c.Sitemaps(ctx, site)
		if err != nil {
			sm = Sitemaps{Sitemaps: []Sitemap{}, Error: err.Error()}
		}
		rep.Sitemaps = sm
		return nil
	})
	g.Go(func() error {
		rep.SiteInfo = c.SiteInfo(ctx, site)
		return nil
	})
	_ = g.Wait()

	return rep, nil
}

// Page slices a query list for display. page is 1-based.
func Page(qs []Query, page, pageSize int) ([]Query, int) {
	if pageSize <= 0 {
		pageSize = 10
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(len(qs)) / float64(pageSize)))

	start := (page - 1) * pageSize
	if start >= len(qs) {
		return []Query{}, totalPages
	}
	end := min(start+pageSize, len(qs))
	return qs[start:end], totalPages
}

func orUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

// Package reports generates PageSpeed PDF reports and keeps the saved ones.
package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/geocoder89/seodash/internal/domain/report"
	"github.com/geocoder89/seodash/internal/pagespeed"
	"github.com/geocoder89/seodash/internal/pdf"
	"github.com/geocoder89/seodash/internal/storage"
	"github.com/geocoder89/seodash/internal/utils"
	"github.com/geocoder89/seodash/internal/validation"
)

const (
	ContentType  = "application/pdf"
	DefaultLimit = 20
	MaxLimit     = 100
)

// UpstreamError is a failed PageSpeed call.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string { return "pagespeed: " + e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }

type Store interface {
	Create(ctx context.Context, req report.CreateRequest) (report.Report, error)
	ListByUser(ctx context.Context, userID string, limit int, after *utils.Cursor) ([]report.Report, *string, error)
	GetForUser(ctx context.Context, id, userID string) (report.Report, error)
	DeleteForUser(ctx context.Context, id, userID string) (report.Report, error)
	KeysForUser(ctx context.Context, userID string) ([]string, error)
}

type Auditor interface {
	Report(ctx context.Context, url string) (pagespeed.Result, error)
}

// Generated is the data behind a report, before rendering.
type Generated struct {
	URL         string            `json:"url"`
	GeneratedAt time.Time         `json:"generatedAt"`
	PageSpeed   *pagespeed.Result `json:"pagespeed"`
}

// Output is a rendered PDF and, when it was stored, its saved row.
type Output struct {
	PDF    []byte
	Report *report.Report
}

type Download struct {
	Filename string
	Data     []byte
}

type Service struct {
	store  Store
	blobs  storage.BlobStore
	audit  Auditor
	render func(pdf.Input) ([]byte, error)
	log    *slog.Logger
	now    func() time.Time
}

func NewService(store Store, blobs storage.BlobStore, audit Auditor, log *slog.Logger) *Service {
	return &Service{
		store:  store,
		blobs:  blobs,
		audit:  audit,
		render: pdf.Render,
		log:    log,
		now:    time.Now,
	}
}

// Generate runs the PageSpeed audit for url.
func (s *Service) Generate(ctx context.Context, url string) (Generated, error) {
	if !validation.ValidURL(url) {
		return Generated{}, validation.ErrInvalidURL
	}

	res, err := s.audit.Report(ctx, url)
	if err != nil {
		return Generated{}, &UpstreamError{Err: err}
	}

	return Generated{URL: url, GeneratedAt: s.now().UTC(), PageSpeed: &res}, nil
}

// Build renders g and optionally stores it for userID. A failed save is
// logged and the PDF is still returned.
func (s *Service) Build(ctx context.Context, userID string, g Generated, save bool) (Output, error) {
	data, err := s.render(pdf.Input{URL: g.URL, GeneratedAt: g.GeneratedAt, PageSpeed: g.PageSpeed})
	if err != nil {
		return Output{}, err
	}

	out := Output{PDF: data}
	if !save {
		return out, nil
	}

	rp, err := s.save(ctx, userID, g, data)
	if err != nil {
		s.log.ErrorContext(ctx, "save report failed", "user_id", userID, "url", g.URL, "err", err)
		return out, nil
	}
	out.Report = &rp
	return out, nil
}

func (s *Service) save(ctx context.Context, userID string, g Generated, data []byte) (report.Report, error) {
	raw, err := json.Marshal(g)
	if err != nil {
		return report.Report{}, fmt.Errorf("encode report data: %w", err)
	}

	key := storage.ReportKey(userID, g.GeneratedAt)
	if err := s.blobs.Put(ctx, key, data, ContentType); err != nil {
		return report.Report{}, fmt.Errorf("store pdf: %w", err)
	}

	req := report.CreateRequest{
		UserID:      userID,
		URL:         g.URL,
		Data:        raw,
		PDFKey:      key,
		PDFSize:     len(data),
		GeneratedAt: g.GeneratedAt,
	}
	if ps := g.PageSpeed; ps != nil {
		req.PerformanceScore = ps.PerformanceScore
		req.SEOScore = ps.SEOScore
		req.AccessibilityScore = ps.AccessibilityScore
	}

	rp, err := s.store.Create(ctx, req)
	if err != nil {
		if delErr := s.blobs.Delete(ctx, key); delErr != nil {
			s.log.WarnContext(ctx, "orphan report blob", "key", key, "err", delErr)
		}
		return report.Report{}, err
	}
	return rp, nil
}

// List pages a user's reports, newest first.
func (s *Service) List(ctx context.Context, userID string, limit int, cursor string) ([]report.Report, *string, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	var after *utils.Cursor
	if cursor != "" {
		c, err := utils.DecodeCursor(cursor)
		if err != nil {
			return nil, nil, err
		}
		after = &c
	}
	return s.store.ListByUser(ctx, userID, limit, after)
}

// Open loads the PDF of a report owned by userID.
func (s *Service) Open(ctx context.Context, id, userID string) (Download, error) {
	rp, err := s.store.GetForUser(ctx, id, userID)
	if err != nil {
		return Download{}, err
	}

	data, err := s.blobs.Get(ctx, rp.PDFKey)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return Download{}, report.ErrReportNotFound
		}
		return Download{}, err
	}
	return Download{Filename: Filename(rp), Data: data}, nil
}

// Delete removes the row first so a blob failure never leaves a listed
// report without its PDF.
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	rp, err := s.store.DeleteForUser(ctx, id, userID)
	if err != nil {
		return err
	}

	if err := s.blobs.Delete(ctx, rp.PDFKey); err != nil {
		s.log.WarnContext(ctx, "delete report blob failed", "key", rp.PDFKey, "err", err)
	}
	return nil
}

// PurgeUser drops every blob a user owns. Rows go with the user cascade.
func (s *Service) PurgeUser(ctx context.Context, userID string) error {
	keys, err := s.store.KeysForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list report keys: %w", err)
	}

	for _, key := range keys {
		if err := s.blobs.Delete(ctx, key); err != nil {
			s.log.WarnContext(ctx, "delete report blob failed", "key", key, "err", err)
		}
	}
	return nil
}

// Filename is report-<host>-<date>.pdf.
func Filename(rp report.Report) string {
	host := validation.Host(rp.URL)
	if host == "" {
		host = "site"
	}
	return fmt.Sprintf("report-%s-%s.pdf", host, rp.GeneratedAt.UTC().Format("2006-01-02"))
}

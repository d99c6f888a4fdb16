package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/geocoder89/seodash/internal/domain/report"
	"github.com/geocoder89/seodash/internal/domain/user"
	"github.com/geocoder89/seodash/internal/http/handlers"
	"github.com/geocoder89/seodash/internal/reports"
	"github.com/geocoder89/seodash/internal/utils"
	"github.com/geocoder89/seodash/internal/validation"
)

type fakeReportService struct {
	generateFn func(ctx context.Context, url string) (reports.Generated, error)
	listFn     func(ctx context.Context, userID string, limit int, cursor string) ([]report.Report, *string, error)
	openFn     func(ctx context.Context, id, userID string) (reports.Download, error)
	deleteFn   func(ctx context.Context, id, userID string) error

	builtFor string
	saved    bool
}

func (f *fakeReportService) Generate(ctx context.Context, url string) (reports.Generated, error) {
	return f.generateFn(ctx, url)
}

func (f *fakeReportService) Build(ctx context.Context, userID string, g reports.Generated, save bool) (reports.Output, error) {
	f.builtFor = userID
	f.saved = save
	out := reports.Output{PDF: []byte("%PDF-1.4 fake")}
	if save {
		out.Report = &report.Report{ID: "r-1"}
	}
	return out, nil
}

func (f *fakeReportService) List(ctx context.Context, userID string, limit int, cursor string) ([]report.Report, *string, error) {
	return f.listFn(ctx, userID, limit, cursor)
}

func (f *fakeReportService) Open(ctx context.Context, id, userID string) (reports.Download, error) {
	return f.openFn(ctx, id, userID)
}

func (f *fakeReportService) Delete(ctx context.Context, id, userID string) error {
	return f.deleteFn(ctx, id, userID)
}

func generated(ctx context.Context, url string) (reports.Generated, error) {
	return reports.Generated{URL: url, GeneratedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}, nil
}

func TestGenerateReport_InvalidURL(t *testing.T) {
	svc := &fakeReportService{generateFn: func(ctx context.Context, url string) (reports.Generated, error) {
		return reports.Generated{}, validation.ErrInvalidURL
	}}
	h := handlers.NewReportsHandler(svc, testCfg(), discardLog())
	r := setupAuthedRouter(http.MethodPost, "/report", h.Generate)

	w := doRequest(r, http.MethodPost, "/report", `{"url":"ftp://x"}`, bearer(t, "u-1", user.RoleUser))
	env := wantErrorCode(t, w, http.StatusBadRequest, "invalid_request")
	if env.Error.Message != "Invalid URL format" {
		t.Fatalf("unexpected message: %q", env.Error.Message)
	}
}

func TestGenerateReport_UpstreamFailureHidesCause(t *testing.T) {
	svc := &fakeReportService{generateFn: func(ctx context.Context, url string) (reports.Generated, error) {
		return reports.Generated{}, &reports.UpstreamError{Err: errors.New("quota exceeded for key abc")}
	}}
	h := handlers.NewReportsHandler(svc, testCfg(), discardLog())
	r := setupAuthedRouter(http.MethodPost, "/report", h.Generate)

	w := doRequest(r, http.MethodPost, "/report", `{"url":"https://example.com"}`, bearer(t, "u-1", user.RoleUser))
	env := wantErrorCode(t, w, http.StatusBadGateway, "upstream_error")
	if len(env.Error.Details) != 0 && string(env.Error.Details) != "null" {
		t.Fatalf("cause must not leak outside dev: %s", env.Error.Details)
	}
}

func TestGenerateReport_JSONFormat(t *testing.T) {
	svc := &fakeReportService{generateFn: generated}
	h := handlers.NewReportsHandler(svc, testCfg(), discardLog())
	r := setupAuthedRouter(http.MethodPost, "/report", h.Generate)

	w := doRequest(r, http.MethodPost, "/report?format=json", `{"url":"https://example.com"}`, bearer(t, "u-1", user.RoleUser))
	wantStatus(t, w, http.StatusOK)

	var g reports.Generated
	decodeBody(t, w, &g)
	if g.URL != "https://example.com" {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if svc.builtFor != "" {
		t.Fatalf("json format must not render a pdf")
	}
}

func TestGenerateReport_PDF(t *testing.T) {
	t.Run("saved by default", func(t *testing.T) {
		svc := &fakeReportService{generateFn: generated}
		h := handlers.NewReportsHandler(svc, testCfg(), discardLog())
		r := setupAuthedRouter(http.MethodPost, "/report", h.Generate)

		w := doRequest(r, http.MethodPost, "/report", `{"url":"https://example.com"}`, bearer(t, "u-1", user.RoleUser))
		wantStatus(t, w, http.StatusOK)

		if ct := w.Header().Get("Content-Type"); ct != reports.ContentType {
			t.Fatalf("got content type %q", ct)
		}
		if w.Header().Get("X-Report-Id") != "r-1" {
			t.Fatalf("expected X-Report-Id header")
		}
		if svc.builtFor != "u-1" || !svc.saved {
			t.Fatalf("expected saved report for u-1, got %q saved=%v", svc.builtFor, svc.saved)
		}
	})

	t.Run("save=false", func(t *testing.T) {
		svc := &fakeReportService{generateFn: generated}
		h := handlers.NewReportsHandler(svc, testCfg(), discardLog())
		r := setupAuthedRouter(http.MethodPost, "/report", h.Generate)

		w := doRequest(r, http.MethodPost, "/report?save=false", `{"url":"https://example.com"}`, bearer(t, "u-1", user.RoleUser))
		wantStatus(t, w, http.StatusOK)

		if svc.saved || w.Header().Get("X-Report-Id") != "" {
			t.Fatalf("report must not be stored")
		}
	})
}

func TestListReports_InvalidCursor(t *testing.T) {
	svc := &fakeReportService{listFn: func(ctx context.Context, userID string, limit int, cursor string) ([]report.Report, *string, error) {
		return nil, nil, utils.ErrInvalidCursor
	}}
	h := handlers.NewReportsHandler(svc, testCfg(), discardLog())
	r := setupAuthedRouter(http.MethodGet, "/reports", h.List)

	w := doRequest(r, http.MethodGet, "/reports?cursor=bogus", "", bearer(t, "u-1", user.RoleUser))
	wantErrorCode(t, w, http.StatusBadRequest, "invalid_request")
}

func TestListReports_ScopedToCaller(t *testing.T) {
	var gotUser string
	var gotLimit int
	svc := &fakeReportService{listFn: func(ctx context.Context, userID string, limit int, cursor string) ([]report.Report, *string, error) {
		gotUser, gotLimit = userID, limit
		return []report.Report{{ID: "r-1", UserID: userID}}, nil, nil
	}}
	h := handlers.NewReportsHandler(svc, testCfg(), discardLog())
	r := setupAuthedRouter(http.MethodGet, "/reports", h.List)

	w := doRequest(r, http.MethodGet, "/reports", "", bearer(t, "u-7", user.RoleUser))
	wantStatus(t, w, http.StatusOK)
	if gotUser != "u-7" || gotLimit != reports.DefaultLimit {
		t.Fatalf("got user=%q limit=%d", gotUser, gotLimit)
	}
}

func TestDownloadReport(t *testing.T) {
	svc := &fakeReportService{openFn: func(ctx context.Context, id, userID string) (reports.Download, error) {
		if id != "r-1" || userID != "u-1" {
			return reports.Download{}, report.ErrReportNotFound
		}
		return reports.Download{Filename: "pagespeed-example.com-2026-01-02.pdf", Data: []byte("%PDF")}, nil
	}}
	h := handlers.NewReportsHandler(svc, testCfg(), discardLog())
	r := setupAuthedRouter(http.MethodGet, "/reports/:id", h.Download)

	w := doRequest(r, http.MethodGet, "/reports/r-1", "", bearer(t, "u-1", user.RoleUser))
	wantStatus(t, w, http.StatusOK)
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="pagespeed-example.com-2026-01-02.pdf"` {
		t.Fatalf("unexpected content disposition %q", cd)
	}

	// another user's report looks missing
	w = doRequest(r, http.MethodGet, "/reports/r-1", "", bearer(t, "u-2", user.RoleUser))
	wantErrorCode(t, w, http.StatusNotFound, "not_found")
}

func TestDeleteReport_NotFound(t *testing.T) {
	svc := &fakeReportService{deleteFn: func(ctx context.Context, id, userID string) error {
		return report.ErrReportNotFound
	}}
	h := handlers.NewReportsHandler(svc, testCfg(), discardLog())
	r := setupAuthedRouter(http.MethodDelete, "/reports/:id", h.Delete)

	w := doRequest(r, http.MethodDelete, "/reports/r-9", "", bearer(t, "u-1", user.RoleUser))
	wantErrorCode(t, w, http.StatusNotFound, "not_found")
}

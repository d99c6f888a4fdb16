package handlers_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/geocoder89/seodash/internal/domain/job"
	"github.com/geocoder89/seodash/internal/http/handlers"
	"github.com/geocoder89/seodash/internal/repo/postgres"
	"github.com/geocoder89/seodash/internal/utils"
)

const jobID = "7d1f6f1e-3c61-4a5e-9a55-0c4f2a3b9e10"

type fakeAdminJobsRepo struct {
	listFn  func(ctx context.Context, status *string, limit int, afterUpdatedAt time.Time, afterID string) ([]job.Job, *string, bool, error)
	getFn   func(ctx context.Context, id string) (job.Job, error)
	retryFn func(ctx context.Context, id string) error
	manyFn  func(ctx context.Context, limit int) (int64, error)
}

func (f *fakeAdminJobsRepo) ListCursor(ctx context.Context, status *string, limit int, afterUpdatedAt time.Time, afterID string) ([]job.Job, *string, bool, error) {
	return f.listFn(ctx, status, limit, afterUpdatedAt, afterID)
}

func (f *fakeAdminJobsRepo) GetByID(ctx context.Context, id string) (job.Job, error) {
	return f.getFn(ctx, id)
}

func (f *fakeAdminJobsRepo) Retry(ctx context.Context, id string) error {
	return f.retryFn(ctx, id)
}

func (f *fakeAdminJobsRepo) RetryManyFailed(ctx context.Context, limit int) (int64, error) {
	return f.manyFn(ctx, limit)
}

func TestAdminJobsList_Validation(t *testing.T) {
	h := handlers.NewAdminJobsHandler(&fakeAdminJobsRepo{})
	r := setupRouter(http.MethodGet, "/jobs", h.List)

	for _, path := range []string{"/jobs?limit=0", "/jobs?limit=101", "/jobs?status=stuck", "/jobs?cursor=bogus"} {
		wantErrorCode(t, doRequest(r, http.MethodGet, path, "", ""), http.StatusBadRequest, "invalid_request")
	}
}

func TestAdminJobsList_PassesCursorAndStatus(t *testing.T) {
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	cursor, err := utils.EncodeCursor(at, jobID)
	if err != nil {
		t.Fatalf("encode cursor: %v", err)
	}

	var gotStatus string
	var gotAt time.Time
	var gotID string
	repo := &fakeAdminJobsRepo{listFn: func(ctx context.Context, status *string, limit int, afterUpdatedAt time.Time, afterID string) ([]job.Job, *string, bool, error) {
		if status != nil {
			gotStatus = *status
		}
		gotAt, gotID = afterUpdatedAt, afterID
		return []job.Job{{ID: jobID, Status: job.StatusFailed}}, nil, false, nil
	}}
	r := setupRouter(http.MethodGet, "/jobs", handlers.NewAdminJobsHandler(repo).List)

	w := doRequest(r, http.MethodGet, "/jobs?status=failed&cursor="+cursor, "", "")
	wantStatus(t, w, http.StatusOK)

	if gotStatus != "failed" || !gotAt.Equal(at) || gotID != jobID {
		t.Fatalf("got status=%q at=%v id=%q", gotStatus, gotAt, gotID)
	}
}

func TestAdminJobsGetByID(t *testing.T) {
	repo := &fakeAdminJobsRepo{getFn: func(ctx context.Context, id string) (job.Job, error) {
		return job.Job{}, job.ErrJobNotFound
	}}
	r := setupRouter(http.MethodGet, "/jobs/:id", handlers.NewAdminJobsHandler(repo).GetByID)

	wantErrorCode(t, doRequest(r, http.MethodGet, "/jobs/not-a-uuid", "", ""), http.StatusBadRequest, "invalid_request")
	wantErrorCode(t, doRequest(r, http.MethodGet, "/jobs/"+jobID, "", ""), http.StatusNotFound, "not_found")
}

func TestAdminJobsRetry(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"requeued", nil, http.StatusOK},
		{"missing", job.ErrJobNotFound, http.StatusNotFound},
		{"not failed", postgres.ErrJobNotFailed, http.StatusConflict},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := &fakeAdminJobsRepo{retryFn: func(ctx context.Context, id string) error { return tc.err }}
			r := setupRouter(http.MethodPost, "/jobs/:id/retry", handlers.NewAdminJobsHandler(repo).Retry)

			wantStatus(t, doRequest(r, http.MethodPost, "/jobs/"+jobID+"/retry", "", ""), tc.status)
		})
	}
}

func TestAdminJobsReprocessDead(t *testing.T) {
	var gotLimit int
	repo := &fakeAdminJobsRepo{manyFn: func(ctx context.Context, limit int) (int64, error) {
		gotLimit = limit
		return 4, nil
	}}
	r := setupRouter(http.MethodPost, "/jobs/reprocess-dead", handlers.NewAdminJobsHandler(repo).ReprocessDead)

	wantErrorCode(t, doRequest(r, http.MethodPost, "/jobs/reprocess-dead?limit=501", "", ""), http.StatusBadRequest, "invalid_request")

	w := doRequest(r, http.MethodPost, "/jobs/reprocess-dead", "", "")
	wantStatus(t, w, http.StatusOK)

	var resp struct {
		Requeued int64 `json:"requeued"`
	}
	decodeBody(t, w, &resp)
	if gotLimit != 50 || resp.Requeued != 4 {
		t.Fatalf("got limit=%d requeued=%d", gotLimit, resp.Requeued)
	}
}

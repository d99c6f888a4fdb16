package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/seodash/internal/config"
	"github.com/geocoder89/seodash/internal/domain/report"
	"github.com/geocoder89/seodash/internal/http/middlewares"
	"github.com/geocoder89/seodash/internal/reports"
	"github.com/geocoder89/seodash/internal/utils"
	"github.com/geocoder89/seodash/internal/validation"
	"github.com/gin-gonic/gin"
)

type ReportService interface {
	Generate(ctx context.Context, url string) (reports.Generated, error)
	Build(ctx context.Context, userID string, g reports.Generated, save bool) (reports.Output, error)
	List(ctx context.Context, userID string, limit int, cursor string) ([]report.Report, *string, error)
	Open(ctx context.Context, id, userID string) (reports.Download, error)
	Delete(ctx context.Context, id, userID string) error
}

type ReportsHandler struct {
	svc ReportService
	cfg config.Config
	log *slog.Logger
}

func NewReportsHandler(svc ReportService, cfg config.Config, log *slog.Logger) *ReportsHandler {
	return &ReportsHandler{svc: svc, cfg: cfg, log: log}
}

type GenerateReportRequest struct {
	URL string `json:"url" binding:"required"`
}

// POST /api/report?format=pdf|json&save=true

func (h *ReportsHandler) Generate(ctx *gin.Context) {
	var req GenerateReportRequest

	if !BindJSON(ctx, &req) {
		return
	}

	userID, _ := middlewares.UserIDFromContext(ctx)

	cctx, cancel := config.WithTimeout(90 * time.Second)
	defer cancel()

	g, err := h.svc.Generate(cctx, req.URL)
	if err != nil {
		var upErr *reports.UpstreamError
		switch {
		case errors.Is(err, validation.ErrInvalidURL), errors.Is(err, validation.ErrURLRequired):
			RespondBadRequest(ctx, "Invalid URL format", nil)
		case errors.As(err, &upErr):
			h.log.WarnContext(ctx.Request.Context(), "pagespeed call failed", "url", req.URL, "err", err)
			RespondUpstream(ctx, http.StatusBadGateway, "Failed to fetch PageSpeed data", upErr.Err, h.cfg.IsDev())
		default:
			RespondInternal(ctx, "Could not generate report")
		}
		return
	}

	if ctx.Query("format") == "json" {
		ctx.JSON(http.StatusOK, g)
		return
	}

	out, err := h.svc.Build(cctx, userID, g, ctx.Query("save") != "false")
	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "render report failed", "url", req.URL, "err", err)
		RespondInternal(ctx, "Could not render report")
		return
	}

	if out.Report != nil {
		ctx.Header("X-Report-Id", out.Report.ID)
	}
	ctx.Header("Content-Disposition", `attachment; filename="pagespeed-report.pdf"`)
	ctx.Data(http.StatusOK, reports.ContentType, out.PDF)
}

// GET /api/reports?limit=20&cursor=

func (h *ReportsHandler) List(ctx *gin.Context) {
	userID, _ := middlewares.UserIDFromContext(ctx)
	limit := parseIntDefault(ctx.Query("limit"), reports.DefaultLimit)

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	items, next, err := h.svc.List(cctx, userID, limit, ctx.Query("cursor"))
	if err != nil {
		if errors.Is(err, utils.ErrInvalidCursor) {
			RespondBadRequest(ctx, "cursor is invalid", nil)
			return
		}
		RespondInternal(ctx, "Could not list reports")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{
		"reports":    items,
		"count":      len(items),
		"nextCursor": next,
	})
}

// GET /api/reports/:id

func (h *ReportsHandler) Download(ctx *gin.Context) {
	userID, _ := middlewares.UserIDFromContext(ctx)

	cctx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	dl, err := h.svc.Open(cctx, ctx.Param("id"), userID)
	if err != nil {
		if errors.Is(err, report.ErrReportNotFound) {
			RespondNotFound(ctx, "Report not found")
			return
		}
		RespondInternal(ctx, "Could not load report")
		return
	}

	ctx.Header("Content-Disposition", `attachment; filename="`+dl.Filename+`"`)
	ctx.Data(http.StatusOK, reports.ContentType, dl.Data)
}

// DELETE /api/reports/:id

func (h *ReportsHandler) Delete(ctx *gin.Context) {
	userID, _ := middlewares.UserIDFromContext(ctx)

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	if err := h.svc.Delete(cctx, ctx.Param("id"), userID); err != nil {
		if errors.Is(err, report.ErrReportNotFound) {
			RespondNotFound(ctx, "Report not found")
			return
		}
		RespondInternal(ctx, "Could not delete report")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "Report deleted successfully"})
}

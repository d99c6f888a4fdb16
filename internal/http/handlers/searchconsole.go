package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/seodash/internal/config"
	"github.com/geocoder89/seodash/internal/domain/user"
	"github.com/geocoder89/seodash/internal/http/middlewares"
	"github.com/geocoder89/seodash/internal/rbac"
	"github.com/geocoder89/seodash/internal/searchconsole"
	"github.com/geocoder89/seodash/internal/validation"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// topQueriesFetch is how many queries are pulled before paging.
const topQueriesFetch = 250

var errSiteForbidden = errors.New("site not accessible")

type SearchConsoleAPI interface {
	FullReport(ctx context.Context, site string, days int) (searchconsole.Report, error)
	TimeSeries(ctx context.Context, site string, dr searchconsole.DateRange) (searchconsole.TimeSeries, error)
	TopQueries(ctx context.Context, site string, dr searchconsole.DateRange, limit int) (searchconsole.TopQueries, error)
}

type SearchConsoleHandler struct {
	users SiteDirectory
	gsc   SearchConsoleAPI
	cfg   config.Config
	log   *slog.Logger
	now   func() time.Time
}

func NewSearchConsoleHandler(users SiteDirectory, gsc SearchConsoleAPI, cfg config.Config, log *slog.Logger) *SearchConsoleHandler {
	return &SearchConsoleHandler{users: users, gsc: gsc, cfg: cfg, log: log, now: time.Now}
}

type SearchConsoleRequest struct {
	URL  string `json:"url" binding:"required"`
	Days int    `json:"days" binding:"omitempty,gte=1,lte=365"`
}

// POST /api/searchconsole

func (h *SearchConsoleHandler) Report(ctx *gin.Context) {
	var req SearchConsoleRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(60 * time.Second)
	defer cancel()

	u, ok := h.caller(cctx, ctx)
	if !ok {
		return
	}

	site, err := validation.SiteOrigin(req.URL)
	if err != nil {
		h.respondClassified(ctx, searchconsole.ErrInvalidURL)
		return
	}
	if !canQuerySite(u, site) {
		RespondForbidden(ctx, "forbidden", "You can only access Search Console data for your own website")
		return
	}

	rep, err := h.gsc.FullReport(cctx, site, req.Days)
	if err != nil {
		h.respondClassified(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, rep)
}

// GET /api/searchconsole/performance?range=28d&page=1&pageSize=10&url=

func (h *SearchConsoleHandler) Performance(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(60 * time.Second)
	defer cancel()

	u, ok := h.caller(cctx, ctx)
	if !ok {
		return
	}

	site, err := performanceSite(u, ctx.Query("url"))
	if err != nil {
		if errors.Is(err, errSiteForbidden) {
			RespondForbidden(ctx, "forbidden", "You do not have access to this website")
			return
		}
		h.respondClassified(ctx, err)
		return
	}

	page := max(parseIntDefault(ctx.Query("page"), 1), 1)
	pageSize := min(max(parseIntDefault(ctx.Query("pageSize"), 10), 1), 100)
	dr := searchconsole.RangeDates(h.now(), ctx.Query("range"))

	var (
		series searchconsole.TimeSeries
		top    searchconsole.TopQueries
	)

	g, gctx := errgroup.WithContext(cctx)
	g.Go(func() error {
		var err error
		series, err = h.gsc.TimeSeries(gctx, site, dr)
		return err
	})
	g.Go(func() error {
		var err error
		top, err = h.gsc.TopQueries(gctx, site, dr, topQueriesFetch)
		return err
	})
	if err := g.Wait(); err != nil {
		h.respondClassified(ctx, err)
		return
	}

	items, totalPages := searchconsole.Page(top.Queries, page, pageSize)

	ctx.JSON(http.StatusOK, gin.H{
		"siteUrl":    site,
		"range":      dr.Range,
		"startDate":  dr.StartDate,
		"endDate":    dr.EndDate,
		"timeSeries": series.Points,
		"totals":     series.Totals,
		"topQueries": gin.H{
			"items":      items,
			"page":       page,
			"pageSize":   pageSize,
			"total":      len(top.Queries),
			"totalPages": totalPages,
		},
	})
}

// caller loads the authenticated user fresh so site links edited by an
// admin apply immediately.
func (h *SearchConsoleHandler) caller(cctx context.Context, ctx *gin.Context) (user.User, bool) {
	userID, _ := middlewares.UserIDFromContext(ctx)

	u, err := h.users.GetByID(cctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			RespondUnAuthorized(ctx, "unauthorized", "Session is no longer valid")
			return user.User{}, false
		}
		RespondInternal(ctx, "Could not load user")
		return user.User{}, false
	}
	return u, true
}

func (h *SearchConsoleHandler) respondClassified(ctx *gin.Context, err error) {
	c := searchconsole.Classify(err)
	if c.Status >= http.StatusInternalServerError {
		h.log.ErrorContext(ctx.Request.Context(), "search console call failed", "type", c.Type, "err", err)
	}
	RespondError(ctx, c.Status, string(c.Type), c.UserMessage, classifiedDetails(c, h.cfg.IsDev()))
}

func classifiedDetails(c searchconsole.Classified, dev bool) gin.H {
	d := gin.H{
		"errorType":      c.Type,
		"actionRequired": c.ActionRequired,
	}
	if dev {
		d["reason"] = c.Message
	}
	return d
}

// canQuerySite reports whether u may read Search Console data for the
// origin site.
func canQuerySite(u user.User, site string) bool {
	if rbac.IsSuperAdmin(u.Role) {
		return true
	}
	for _, s := range rbac.AccessibleSites(u) {
		if origin, err := validation.SiteOrigin(s); err == nil && origin == site {
			return true
		}
	}
	return false
}

// performanceSite picks the origin to report on. Super admins may name any
// site, viewers one of theirs, users only get their own.
func performanceSite(u user.User, requested string) (string, error) {
	if requested != "" && (rbac.IsSuperAdmin(u.Role) || rbac.IsViewer(u.Role)) {
		site, err := validation.SiteOrigin(requested)
		if err != nil {
			return "", searchconsole.ErrInvalidURL
		}
		if !canQuerySite(u, site) {
			return "", errSiteForbidden
		}
		return site, nil
	}

	var raw string
	if rbac.IsViewer(u.Role) {
		if sites := rbac.AccessibleSites(u); len(sites) > 0 {
			raw = sites[0]
		}
	} else {
		raw = u.Site()
	}
	if raw == "" {
		return "", searchconsole.ErrNoSiteLinked
	}

	site, err := validation.SiteOrigin(raw)
	if err != nil {
		return "", searchconsole.ErrInvalidURL
	}
	return site, nil
}

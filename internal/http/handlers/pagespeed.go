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
	"github.com/geocoder89/seodash/internal/pagespeed"
	"github.com/geocoder89/seodash/internal/rbac"
	"github.com/gin-gonic/gin"
)

type PageSpeedAuditor interface {
	Report(ctx context.Context, url string) (pagespeed.Result, error)
}

type PageSpeedHandler struct {
	users SiteDirectory
	psi   PageSpeedAuditor
	cfg   config.Config
	log   *slog.Logger
}

func NewPageSpeedHandler(users SiteDirectory, psi PageSpeedAuditor, cfg config.Config, log *slog.Logger) *PageSpeedHandler {
	return &PageSpeedHandler{users: users, psi: psi, cfg: cfg, log: log}
}

// GET /api/pagespeed

func (h *PageSpeedHandler) Get(ctx *gin.Context) {
	role, _ := middlewares.RoleFromContext(ctx)
	userID, _ := middlewares.UserIDFromContext(ctx)

	if rbac.IsViewer(role) {
		RespondForbidden(ctx, "forbidden", "Viewers cannot run PageSpeed audits")
		return
	}

	// PageSpeed alone may take up to a minute per site
	cctx, cancel := config.WithTimeout(3 * time.Minute)
	defer cancel()

	if rbac.IsSuperAdmin(role) {
		users, err := h.users.ListWithSites(cctx)
		if err != nil {
			RespondInternal(ctx, "Could not list users")
			return
		}

		results := fanOut(cctx, ownerTargets(users), h.psi.Report)
		ctx.JSON(http.StatusOK, gin.H{"results": results})
		return
	}

	u, err := h.users.GetByID(cctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}
		RespondInternal(ctx, "Could not load user")
		return
	}

	site := u.Site()
	if site == "" {
		ctx.JSON(http.StatusOK, gin.H{
			"message": "No website URL linked to your account. Contact an administrator.",
		})
		return
	}

	data, err := h.psi.Report(cctx, site)
	if err != nil {
		if errors.Is(err, pagespeed.ErrMissingAPIKey) {
			RespondError(ctx, http.StatusServiceUnavailable, "not_configured", "PageSpeed is not configured", nil)
			return
		}
		h.log.WarnContext(ctx.Request.Context(), "pagespeed call failed", "site", site, "err", err)
		RespondUpstream(ctx, http.StatusBadGateway, "Failed to fetch PageSpeed data", err, h.cfg.IsDev())
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"siteLink": site,
		"data":     data,
	})
}

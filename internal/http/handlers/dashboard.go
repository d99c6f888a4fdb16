package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/geocoder89/seodash/internal/config"
	"github.com/geocoder89/seodash/internal/rbac"
	"github.com/geocoder89/seodash/internal/searchconsole"
	"github.com/geocoder89/seodash/internal/validation"
	"github.com/gin-gonic/gin"
)

// GET /api/dashboard?days=30

func (h *SearchConsoleHandler) Dashboard(ctx *gin.Context) {
	days := searchconsole.DefaultDays
	if q := ctx.Query("days"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			RespondBadRequest(ctx, "days must be a number", nil)
			return
		}
		days = n
	}
	days = searchconsole.ClampDays(days)

	cctx, cancel := config.WithTimeout(2 * time.Minute)
	defer cancel()

	u, ok := h.caller(cctx, ctx)
	if !ok {
		return
	}

	report := func(ctx context.Context, site string) (searchconsole.Report, error) {
		origin, err := validation.SiteOrigin(site)
		if err != nil {
			return searchconsole.Report{}, searchconsole.ErrInvalidURL
		}
		return h.gsc.FullReport(ctx, origin, days)
	}

	switch {
	case rbac.IsSuperAdmin(u.Role):
		users, err := h.users.ListWithSites(cctx)
		if err != nil {
			RespondInternal(ctx, "Could not list users")
			return
		}
		ctx.JSON(http.StatusOK, gin.H{
			"days":    days,
			"reports": fanOut(cctx, ownerTargets(users), report),
		})

	case rbac.IsViewer(u.Role):
		ctx.JSON(http.StatusOK, gin.H{
			"days":    days,
			"reports": fanOut(cctx, siteTargets(rbac.AccessibleSites(u)), report),
		})

	default:
		site := u.Site()
		if site == "" {
			ctx.JSON(http.StatusOK, gin.H{
				"message": "No website URL linked to your account. Contact an administrator.",
			})
			return
		}

		rep, err := report(cctx, site)
		if err != nil {
			h.respondClassified(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, gin.H{
			"days":     days,
			"siteLink": site,
			"data":     rep,
		})
	}
}

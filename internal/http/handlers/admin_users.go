package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/geocoder89/seodash/internal/accounts"
	"github.com/geocoder89/seodash/internal/config"
	"github.com/geocoder89/seodash/internal/domain/job"
	"github.com/geocoder89/seodash/internal/domain/user"
	"github.com/geocoder89/seodash/internal/http/middlewares"
	"github.com/geocoder89/seodash/internal/rbac"
	"github.com/geocoder89/seodash/internal/validation"
	"github.com/gin-gonic/gin"
)

const defaultCleanupDays = 7

type AdminUsersRepo interface {
	List(ctx context.Context, includeInactive bool) ([]user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	Update(ctx context.Context, id string, req user.UpdateRequest) (user.User, error)
	Delete(ctx context.Context, id string) error
}

type AdminAccounts interface {
	CreateUser(ctx context.Context, in accounts.CreateUserInput) (accounts.SignupResult, error)
	ResendVerification(ctx context.Context, userID string) (user.User, error)
	CleanupPending(ctx context.Context, days int) (int64, error)
}

type ReportPurger interface {
	PurgeUser(ctx context.Context, userID string) error
}

type SessionRevoker interface {
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
}

type CleanupEnqueuer interface {
	Cleanup(ctx context.Context, days int, requestedBy string, key string) (job.Job, error)
}

type AdminUsersHandler struct {
	users    AdminUsersRepo
	accounts AdminAccounts
	reports  ReportPurger
	sessions SessionRevoker
	queue    CleanupEnqueuer
	log      *slog.Logger
}

func NewAdminUsersHandler(users AdminUsersRepo, svc AdminAccounts, reports ReportPurger, sessions SessionRevoker, queue CleanupEnqueuer, log *slog.Logger) *AdminUsersHandler {
	return &AdminUsersHandler{
		users:    users,
		accounts: svc,
		reports:  reports,
		sessions: sessions,
		queue:    queue,
		log:      log,
	}
}

type CreateUserRequest struct {
	Email    string  `json:"email" binding:"required"`
	Password string  `json:"password" binding:"required"`
	Name     string  `json:"name"`
	Role     string  `json:"role" binding:"required"`
	SiteLink *string `json:"siteLink"`
}

type UpdateUserRequest struct {
	Name            *string   `json:"name" binding:"omitempty,max=100"`
	Role            *string   `json:"role"`
	SiteLink        *string   `json:"siteLink"`
	AccessibleSites *[]string `json:"accessibleSites"`
	IsActive        *bool     `json:"isActive"`
}

type CleanupRequest struct {
	Days  *int `json:"days" binding:"omitempty,gte=1,lte=365"`
	Async bool `json:"async"`
}

// GET /api/admin/users?includeInactive=true

func (h *AdminUsersHandler) List(ctx *gin.Context) {
	includeInactive := ctx.Query("includeInactive") == "true"

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	users, err := h.users.List(cctx, includeInactive)
	if err != nil {
		RespondInternal(ctx, "Could not list users")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{
		"users": users,
		"count": len(users),
	})
}

// POST /api/admin/users

func (h *AdminUsersHandler) Create(ctx *gin.Context) {
	var req CreateUserRequest

	if !BindJSON(ctx, &req) {
		return
	}

	adminID, _ := middlewares.UserIDFromContext(ctx)

	cctx, cancel := config.WithTimeout(15 * time.Second)
	defer cancel()

	res, err := h.accounts.CreateUser(cctx, accounts.CreateUserInput{
		Email:     req.Email,
		Password:  req.Password,
		Name:      req.Name,
		Role:      req.Role,
		SiteLink:  req.SiteLink,
		CreatedBy: adminID,
	})
	if err != nil {
		respondSignupError(ctx, err)
		return
	}

	msg := "User created. A verification email has been sent."
	if !res.EmailSent {
		msg = "User created, but the verification email could not be sent yet. It will be retried."
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"message":   msg,
		"user":      res.User,
		"emailSent": res.EmailSent,
	})
}

// GET /api/admin/users/:id

func (h *AdminUsersHandler) Get(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, ctx.Param("id"))
	if err != nil {
		h.respondUserError(ctx, err, "Could not fetch user")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"user": u})
}

// PATCH /api/admin/users/:id

func (h *AdminUsersHandler) Update(ctx *gin.Context) {
	var req UpdateUserRequest

	if !BindJSON(ctx, &req) {
		return
	}

	id := ctx.Param("id")

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	current, err := h.users.GetByID(cctx, id)
	if err != nil {
		h.respondUserError(ctx, err, "Could not update user")
		return
	}

	upd, msg := buildUserUpdate(current, req)
	if msg != "" {
		RespondBadRequest(ctx, msg, nil)
		return
	}

	u, err := h.users.Update(cctx, id, upd)
	if err != nil {
		h.respondUserError(ctx, err, "Could not update user")
		return
	}

	if current.IsActive && !u.IsActive {
		if _, err := h.sessions.RevokeAllForUser(cctx, id); err != nil {
			h.log.ErrorContext(ctx.Request.Context(), "revoke sessions of deactivated user failed", "user_id", id, "err", err)
			RespondInternal(ctx, "User deactivated but sessions could not be revoked")
			return
		}
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "User updated successfully",
		"user":    u,
	})
}

// buildUserUpdate applies the role and site rules to req. A non empty
// string is the validation message to return.
func buildUserUpdate(current user.User, req UpdateUserRequest) (user.UpdateRequest, string) {
	var upd user.UpdateRequest

	role := current.Role
	if req.Role != nil {
		if *req.Role == user.RoleSuperAdmin {
			return upd, "Cannot assign super_admin role"
		}
		if !rbac.AssignableRole(*req.Role) {
			return upd, "Invalid role. Must be user or viewer"
		}
		role = *req.Role
		upd.Role = req.Role
	}

	if req.Name != nil {
		name := validation.SanitizeString(*req.Name, validation.MaxNameLen)
		upd.Name = &name
	}

	if req.SiteLink != nil {
		if *req.SiteLink == "" {
			upd.ClearSiteLink = true
		} else {
			normalized, err := validation.NormalizeSiteURL(*req.SiteLink)
			if err != nil {
				return upd, "Invalid site URL"
			}
			upd.SiteLink = &normalized
		}
	}

	switch {
	case req.AccessibleSites != nil:
		if role != user.RoleViewer {
			return upd, "accessibleSites can only be set for viewers"
		}
		sites := make([]string, 0, len(*req.AccessibleSites))
		for _, raw := range *req.AccessibleSites {
			normalized, err := validation.NormalizeSiteURL(raw)
			if err != nil {
				return upd, "Invalid URL in accessibleSites: " + raw
			}
			sites = append(sites, normalized)
		}
		upd.AccessibleSites = &sites
	case role != user.RoleViewer && len(current.AccessibleSites) > 0:
		// a demoted viewer keeps no cross-site access
		empty := []string{}
		upd.AccessibleSites = &empty
	}

	upd.IsActive = req.IsActive
	return upd, ""
}

// DELETE /api/admin/users/:id

func (h *AdminUsersHandler) Delete(ctx *gin.Context) {
	id := ctx.Param("id")

	if adminID, _ := middlewares.UserIDFromContext(ctx); adminID == id {
		RespondBadRequest(ctx, "You cannot delete your own account", nil)
		return
	}

	cctx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	if _, err := h.users.GetByID(cctx, id); err != nil {
		h.respondUserError(ctx, err, "Could not delete user")
		return
	}

	// blobs first: the rows that reference them go with the user cascade
	if err := h.reports.PurgeUser(cctx, id); err != nil {
		h.log.WarnContext(ctx.Request.Context(), "purge user reports failed", "user_id", id, "err", err)
	}

	if err := h.users.Delete(cctx, id); err != nil {
		h.respondUserError(ctx, err, "Could not delete user")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

// POST /api/admin/users/:id/resend-verification

func (h *AdminUsersHandler) ResendVerification(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(15 * time.Second)
	defer cancel()

	u, err := h.accounts.ResendVerification(cctx, ctx.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, accounts.ErrAlreadyVerified):
			RespondBadRequest(ctx, "Email is already verified", nil)
		case errors.Is(err, accounts.ErrMailDelivery):
			RespondInternal(ctx, "Failed to send verification email")
		default:
			h.respondUserError(ctx, err, "Could not resend verification email")
		}
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Verification email sent to " + u.Email,
	})
}

// POST /api/admin/cleanup

func (h *AdminUsersHandler) Cleanup(ctx *gin.Context) {
	var req CleanupRequest

	if ctx.Request.ContentLength != 0 && !BindJSON(ctx, &req) {
		return
	}

	days := defaultCleanupDays
	if req.Days != nil {
		days = *req.Days
	} else if q := ctx.Query("days"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			RespondBadRequest(ctx, "days must be a positive number", nil)
			return
		}
		days = n
	}

	cctx, cancel := config.WithTimeout(30 * time.Second)
	defer cancel()

	if req.Async {
		adminID, _ := middlewares.UserIDFromContext(ctx)
		j, err := h.queue.Cleanup(cctx, days, adminID, "")
		if err != nil {
			RespondInternal(ctx, "Could not queue cleanup")
			return
		}
		ctx.Set(middlewares.CtxJobID, j.ID)
		ctx.JSON(http.StatusAccepted, gin.H{
			"message": "Cleanup queued",
			"jobId":   j.ID,
		})
		return
	}

	n, err := h.accounts.CleanupPending(cctx, days)
	if err != nil {
		RespondInternal(ctx, "Could not clean up pending users")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message":      "Cleanup completed",
		"deletedCount": n,
	})
}

func (h *AdminUsersHandler) respondUserError(ctx *gin.Context, err error, message string) {
	if errors.Is(err, user.ErrUserNotFound) {
		RespondNotFound(ctx, "User not found")
		return
	}
	h.log.ErrorContext(ctx.Request.Context(), message, "err", err)
	RespondInternal(ctx, message)
}

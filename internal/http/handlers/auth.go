package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/seodash/internal/accounts"
	"github.com/geocoder89/seodash/internal/auth"
	"github.com/geocoder89/seodash/internal/config"
	"github.com/geocoder89/seodash/internal/domain/user"
	"github.com/geocoder89/seodash/internal/http/middlewares"
	"github.com/geocoder89/seodash/internal/rbac"
	"github.com/geocoder89/seodash/internal/repo/postgres"
	"github.com/geocoder89/seodash/internal/validation"
	"github.com/gin-gonic/gin"
)

const (
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/api/auth"
)

var (
	errRefreshInvalid = errors.New("invalid refresh token")
	errRefreshExpired = errors.New("refresh token expired")
)

type AccountService interface {
	Register(ctx context.Context, in accounts.RegisterInput) (accounts.SignupResult, error)
	VerifyEmail(ctx context.Context, raw string, meta accounts.RequestMeta) (accounts.VerifyResult, error)
	RequestPasswordReset(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, raw, password string) error
	Authenticate(ctx context.Context, email, password string) (user.User, error)
}

type UserGetter interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

type RefreshTokenStore interface {
	Save(ctx context.Context, row postgres.RefreshTokenRow) error
	Rotate(ctx context.Context, oldID string, check func(postgres.RefreshTokenRow) error, next postgres.RefreshTokenRow) error
	RevokeByID(ctx context.Context, id string) error
}

type AuthHandler struct {
	accounts     AccountService
	users        UserGetter
	jwt          *auth.Manager
	refreshStore RefreshTokenStore
	cfg          config.Config
	log          *slog.Logger
}

func NewAuthHandler(svc AccountService, users UserGetter, jwtManager *auth.Manager, refreshStore RefreshTokenStore, cfg config.Config, log *slog.Logger) *AuthHandler {
	return &AuthHandler{
		accounts:     svc,
		users:        users,
		jwt:          jwtManager,
		refreshStore: refreshStore,
		cfg:          cfg,
		log:          log,
	}
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password"`
}

// POST /api/auth/register

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(15 * time.Second)
	defer cancel()

	res, err := h.accounts.Register(cctx, accounts.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		respondSignupError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"message":   "Registration successful. Please check your email to verify your account.",
		"userId":    res.User.ID,
		"emailSent": res.EmailSent,
	})
}

// respondSignupError covers errors shared by self-service and admin signup.
func respondSignupError(ctx *gin.Context, err error) {
	var pwErr *accounts.PasswordError

	switch {
	case errors.Is(err, accounts.ErrInvalidEmail):
		RespondBadRequest(ctx, "Valid email is required", nil)
	case errors.As(err, &pwErr):
		RespondBadRequest(ctx, "Invalid password", gin.H{"problems": pwErr.Problems})
	case errors.Is(err, user.ErrEmailTaken):
		RespondBadRequest(ctx, "Email already registered", nil)
	case errors.Is(err, accounts.ErrRoleNotAssignable):
		RespondBadRequest(ctx, "Invalid role. Must be user or viewer", nil)
	case errors.Is(err, validation.ErrInvalidURL), errors.Is(err, validation.ErrURLRequired):
		RespondBadRequest(ctx, "Invalid site URL", nil)
	default:
		RespondInternal(ctx, "Could not create user")
	}
}

// GET /api/auth/verify-email?token=

func (h *AuthHandler) VerifyEmail(ctx *gin.Context) {
	raw := ctx.Query("token")
	if raw == "" {
		RespondBadRequest(ctx, "Verification token is required", nil)
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	res, err := h.accounts.VerifyEmail(cctx, raw, accounts.RequestMeta{
		IP:        ctx.ClientIP(),
		UserAgent: ctx.Request.UserAgent(),
	})
	if err != nil {
		var vErr *accounts.VerificationError
		switch {
		case errors.As(err, &vErr):
			ctx.JSON(http.StatusBadRequest, gin.H{
				"error":  vErr.Message(),
				"reason": vErr.Reason,
			})
		case errors.Is(err, user.ErrUserNotFound):
			RespondNotFound(ctx, "User not found")
		default:
			RespondInternal(ctx, "Could not verify email")
		}
		return
	}

	if res.AlreadyVerified {
		ctx.JSON(http.StatusOK, gin.H{
			"message":         "Email already verified. You can log in.",
			"alreadyVerified": true,
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message":  "Email verified successfully. You can now log in.",
		"verified": true,
		"user": gin.H{
			"email": res.User.Email,
			"name":  res.User.Name,
		},
	})
}

// POST /api/auth/forgot-password

func (h *AuthHandler) ForgotPassword(ctx *gin.Context) {
	var req ForgotPasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	link, err := h.accounts.RequestPasswordReset(cctx, req.Email)
	if err != nil {
		// the answer must not reveal whether the account exists
		h.log.ErrorContext(ctx.Request.Context(), "password reset request failed", "err", err)
		link = ""
	}

	resp := gin.H{"message": "If the email exists, a password reset link has been sent."}
	if h.cfg.IsDev() && link != "" {
		resp["resetUrl"] = link
	}

	ctx.JSON(http.StatusOK, resp)
}

// POST /api/auth/reset-password

func (h *AuthHandler) ResetPassword(ctx *gin.Context) {
	var req ResetPasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	err := h.accounts.ResetPassword(cctx, req.Token, req.Password)
	if err != nil {
		var pwErr *accounts.PasswordError
		switch {
		case errors.As(err, &pwErr):
			RespondBadRequest(ctx, "Invalid password", gin.H{"problems": pwErr.Problems})
		case errors.Is(err, accounts.ErrInvalidResetToken):
			RespondBadRequest(ctx, "Invalid or expired reset token", nil)
		default:
			RespondInternal(ctx, "Could not reset password")
		}
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Password has been reset successfully. Please log in with your new password.",
	})
}

// POST /api/auth/login

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	u, err := h.accounts.Authenticate(cctx, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, accounts.ErrEmailNotVerified):
			RespondForbidden(ctx, "EMAIL_NOT_VERIFIED", "Please verify your email address before logging in.")
		case errors.Is(err, accounts.ErrInvalidCredentials):
			RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
		default:
			RespondInternal(ctx, "Could not sign in")
		}
		return
	}

	accessToken, err := h.jwt.GenerateAccessToken(u.ID, u.Email, u.Role)
	if err != nil {
		RespondInternal(ctx, "Could not generate access token")
		return
	}

	rawRefreshToken, jti, expiresAt, err := h.jwt.GenerateRefreshToken(u.ID, u.Email, u.Role)
	if err != nil {
		RespondInternal(ctx, "Could not generate refresh token")
		return
	}

	if err := h.refreshStore.Save(cctx, h.refreshRow(jti, u.ID, rawRefreshToken, expiresAt)); err != nil {
		RespondInternal(ctx, "Could not create session")
		return
	}

	h.setRefreshCookie(ctx, rawRefreshToken, expiresAt)

	ctx.JSON(http.StatusOK, gin.H{
		"accessToken": accessToken,
		"user":        sessionOf(u),
	})
}

// POST /api/auth/refresh

func (h *AuthHandler) Refresh(ctx *gin.Context) {
	raw, err := ctx.Cookie(refreshCookieName)

	if err != nil || raw == "" {
		RespondUnAuthorized(ctx, "no_refresh", "Missing refresh token")
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(raw)
	if err != nil {
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	// role, email and deactivation come from the current record, not the old token
	u, err := h.users.GetByID(cctx, claims.UserID)
	if err != nil && !errors.Is(err, user.ErrUserNotFound) {
		h.log.ErrorContext(ctx.Request.Context(), "refresh user lookup failed", "err", err)
		RespondInternal(ctx, "Could not refresh session")
		return
	}
	if err != nil || !u.IsActive {
		h.clearRefreshCookie(ctx)
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}

	newRaw, newJTI, newExpiresAt, err := h.jwt.GenerateRefreshToken(u.ID, u.Email, u.Role)
	if err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	presentedHash := h.jwt.HashRefreshToken(raw)
	check := func(row postgres.RefreshTokenRow) error {
		if row.RevokedAt != nil || row.UserID != claims.UserID {
			return errRefreshInvalid
		}
		if time.Now().UTC().After(row.ExpiresAt) {
			return errRefreshExpired
		}
		// token substitution
		if row.TokenHash != presentedHash {
			return errRefreshInvalid
		}
		return nil
	}

	err = h.refreshStore.Rotate(cctx, claims.JTI, check, h.refreshRow(newJTI, u.ID, newRaw, newExpiresAt))
	if err != nil {
		switch {
		case errors.Is(err, errRefreshExpired):
			RespondUnAuthorized(ctx, "expired_refresh", "Refresh token expired.")
		case errors.Is(err, errRefreshInvalid), errors.Is(err, postgres.ErrRefreshTokenNotFound):
			RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token")
		default:
			h.log.ErrorContext(ctx.Request.Context(), "refresh rotation failed", "err", err)
			RespondInternal(ctx, "Could not refresh session")
		}
		return
	}

	accessToken, err := h.jwt.GenerateAccessToken(u.ID, u.Email, u.Role)
	if err != nil {
		RespondInternal(ctx, "Could not generate access token")
		return
	}

	h.setRefreshCookie(ctx, newRaw, newExpiresAt)

	ctx.JSON(http.StatusOK, gin.H{
		"accessToken": accessToken,
	})
}

// POST /api/auth/logout

func (h *AuthHandler) Logout(ctx *gin.Context) {
	defer func() {
		h.clearRefreshCookie(ctx)
		ctx.Status(http.StatusNoContent)
	}()

	raw, err := ctx.Cookie(refreshCookieName)
	if err != nil || raw == "" {
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(raw)
	if err != nil {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	if err := h.refreshStore.RevokeByID(cctx, claims.JTI); err != nil {
		h.log.WarnContext(ctx.Request.Context(), "revoke refresh token failed", "err", err)
	}
}

// GET /api/auth/session

func (h *AuthHandler) Session(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Authentication required")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			RespondUnAuthorized(ctx, "unauthorized", "Session is no longer valid")
			return
		}
		RespondInternal(ctx, "Could not load session")
		return
	}
	if !u.IsActive {
		RespondUnAuthorized(ctx, "unauthorized", "Session is no longer valid")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"user": sessionOf(u)})
}

// Helper functions

func sessionOf(u user.User) user.Session {
	return user.Session{
		ID:              u.ID,
		Email:           u.Email,
		Name:            u.Name,
		Role:            u.Role,
		SiteLink:        u.SiteLink,
		AccessibleSites: rbac.AccessibleSites(u),
	}
}

func (h *AuthHandler) refreshRow(jti, userID, raw string, expiresAt time.Time) postgres.RefreshTokenRow {
	return postgres.RefreshTokenRow{
		ID:        jti,
		UserID:    userID,
		TokenHash: h.jwt.HashRefreshToken(raw),
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
}

func (h *AuthHandler) setRefreshCookie(ctx *gin.Context, raw string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())

	ctx.SetSameSite(http.SameSiteStrictMode)

	ctx.SetCookie(
		refreshCookieName,
		raw,
		maxAge,
		refreshCookiePath,
		"",
		h.cfg.IsProd(),
		true, // HttpOnly.
	)
}

func (h *AuthHandler) clearRefreshCookie(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(
		refreshCookieName,
		"",
		-1,
		refreshCookiePath,
		"",
		h.cfg.IsProd(),
		true,
	)
}

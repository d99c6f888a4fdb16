package http

import (
	"log/slog"

	"github.com/geocoder89/seodash/internal/auth"
	"github.com/geocoder89/seodash/internal/config"
	"github.com/geocoder89/seodash/internal/http/handlers"
	"github.com/geocoder89/seodash/internal/http/middlewares"
	"github.com/geocoder89/seodash/internal/observability"
	"github.com/geocoder89/seodash/internal/rbac"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const maxBodyBytes = 1 << 20

type Deps struct {
	Config    config.Config
	Log       *slog.Logger
	Prom      *observability.Prom
	Gatherer  prometheus.Gatherer
	JWT       *auth.Manager
	RateStore middlewares.Store

	Health        *handlers.HealthHandler
	Auth          *handlers.AuthHandler
	AdminUsers    *handlers.AdminUsersHandler
	AdminJobs     *handlers.AdminJobsHandler
	Reports       *handlers.ReportsHandler
	PageSpeed     *handlers.PageSpeedHandler
	SearchConsole *handlers.SearchConsoleHandler
}

func NewRouter(d Deps) *gin.Engine {
	if !d.Config.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("seodash-api"))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(d.Log))
	r.Use(d.Prom.GinHandleMiddleware())
	r.Use(middlewares.CORSMiddleware(d.Config.CORSOrigins))
	r.Use(middlewares.SecurityHeaders(d.Config.IsProd()))

	// probes and metrics stay outside the rate limiter
	r.GET("/healthz", d.Health.Healthz)
	r.GET("/readyz", d.Health.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))

	authMw := middlewares.NewAuthMiddleware(d.JWT)

	api := r.Group("/api")
	api.Use(middlewares.MaxBodyBytes(maxBodyBytes))
	api.Use(middlewares.RequireJSON())
	api.Use(middlewares.RateLimit(middlewares.RateLimitConfig{
		Store:    d.RateStore,
		Policies: middlewares.DefaultPolicies,
		Identify: middlewares.IdentifyWithToken(d.JWT),
		Prom:     d.Prom,
		Log:      d.Log,
	}))

	api.GET("/health", d.Health.Health)

	// auth
	authGroup := api.Group("/auth")
	authGroup.POST("/register", d.Auth.Register)
	authGroup.GET("/verify-email", d.Auth.VerifyEmail)
	authGroup.POST("/forgot-password", d.Auth.ForgotPassword)
	authGroup.POST("/reset-password", d.Auth.ResetPassword)
	authGroup.POST("/login", d.Auth.Login)
	authGroup.POST("/refresh", d.Auth.Refresh)
	authGroup.POST("/logout", d.Auth.Logout)
	authGroup.GET("/session", authMw.RequireAuth(), d.Auth.Session)

	// everything below needs a signed in caller
	secured := api.Group("")
	secured.Use(authMw.RequireAuth())

	secured.GET("/pagespeed", authMw.RequirePermission(rbac.AccessPageSpeed), d.PageSpeed.Get)

	secured.POST("/searchconsole", authMw.RequirePermission(rbac.AccessSearchConsole), d.SearchConsole.Report)
	secured.GET("/searchconsole/performance", authMw.RequirePermission(rbac.AccessSearchConsole), d.SearchConsole.Performance)
	secured.GET("/dashboard", authMw.RequirePermission(rbac.ViewOwnData), d.SearchConsole.Dashboard)

	secured.POST("/report", authMw.RequirePermission(rbac.CreateReports), d.Reports.Generate)
	secured.GET("/reports", authMw.RequirePermission(rbac.ViewOwnReports), d.Reports.List)
	secured.GET("/reports/:id", authMw.RequirePermission(rbac.ViewOwnReports), d.Reports.Download)
	secured.DELETE("/reports/:id", authMw.RequirePermission(rbac.DeleteOwnReports), d.Reports.Delete)

	// admin
	admin := secured.Group("/admin")
	admin.Use(authMw.RequirePermission(rbac.AccessAdminPanel))

	admin.GET("/users", d.AdminUsers.List)
	admin.POST("/users", authMw.RequirePermission(rbac.CreateUsers), d.AdminUsers.Create)
	admin.GET("/users/:id", d.AdminUsers.Get)
	admin.PATCH("/users/:id", authMw.RequirePermission(rbac.EditUsers), d.AdminUsers.Update)
	admin.DELETE("/users/:id", authMw.RequirePermission(rbac.DeleteUsers), d.AdminUsers.Delete)
	admin.POST("/users/:id/resend-verification", d.AdminUsers.ResendVerification)
	admin.POST("/cleanup", authMw.RequirePermission(rbac.ManageUsers), d.AdminUsers.Cleanup)

	admin.GET("/jobs", d.AdminJobs.List)
	admin.GET("/jobs/:id", d.AdminJobs.GetByID)
	admin.POST("/jobs/:id/retry", d.AdminJobs.Retry)
	admin.POST("/jobs/reprocess-dead", d.AdminJobs.ReprocessDead)

	return r
}

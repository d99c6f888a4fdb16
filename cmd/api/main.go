package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/seodash/internal/accounts"
	"github.com/geocoder89/seodash/internal/auth"
	"github.com/geocoder89/seodash/internal/config"
	"github.com/geocoder89/seodash/internal/db"
	httpx "github.com/geocoder89/seodash/internal/http"
	"github.com/geocoder89/seodash/internal/http/handlers"
	"github.com/geocoder89/seodash/internal/http/middlewares"
	"github.com/geocoder89/seodash/internal/jobs"
	"github.com/geocoder89/seodash/internal/notifications"
	"github.com/geocoder89/seodash/internal/observability"
	"github.com/geocoder89/seodash/internal/pagespeed"
	"github.com/geocoder89/seodash/internal/redisclient"
	"github.com/geocoder89/seodash/internal/repo/mongodb"
	"github.com/geocoder89/seodash/internal/repo/postgres"
	"github.com/geocoder89/seodash/internal/reports"
	"github.com/geocoder89/seodash/internal/searchconsole"
	"github.com/geocoder89/seodash/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	if err := run(); err != nil {
		slog.Error("api exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	// Load the config set up
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, "seodash-api", cfg.OTelEndpoint, cfg.Env)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	pool, err := db.NewPool(ctx, cfg.DBURL, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if created, err := db.EnsureSuperAdmin(ctx, pool, cfg); err != nil {
		return fmt.Errorf("seed super admin: %w", err)
	} else if created {
		log.Info("super admin created", "email", cfg.AdminEmail)
	}

	// repositories
	usersRepo := postgres.NewUsersRepo(pool, prom)
	refreshRepo := postgres.NewRefreshTokensRepo(pool, prom)
	jobsRepo := postgres.NewJobsRepo(pool, prom)
	reportsRepo := postgres.NewReportsRepo(pool, prom)

	var audit accounts.AuditLog = postgres.NewVerificationLogsRepo(pool, prom)
	if cfg.MongoURI != "" {
		client, err := mongodb.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return err
		}
		defer func() { _ = client.Disconnect(context.Background()) }()

		mongoLogs, err := mongodb.NewVerificationLogsRepo(ctx, client.Database(cfg.MongoDB))
		if err != nil {
			return fmt.Errorf("mongo indexes: %w", err)
		}
		audit = mongoLogs
		log.Info("verification audit log on mongodb", "db", cfg.MongoDB)
	}

	var blobs storage.BlobStore = postgres.NewBlobsRepo(pool, prom)
	if cfg.S3Bucket != "" {
		s3Store, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
		})
		if err != nil {
			return fmt.Errorf("s3: %w", err)
		}
		blobs = s3Store
		log.Info("report blobs on s3", "bucket", cfg.S3Bucket)
	}

	var rateStore middlewares.Store
	if cfg.RedisAddr != "" {
		rdb := redisclient.New(redisclient.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()

		if err := rdb.Ping(ctx); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		rateStore = middlewares.NewRedisStore(rdb)
	} else {
		limiter := middlewares.NewRateLimiter()
		go limiter.RunSweeper(ctx, time.Minute)
		rateStore = limiter
	}

	mailer := newMailer(cfg, log)
	enqueuer := jobs.NewEnqueuer(jobsRepo)

	accountSvc := accounts.NewService(accounts.Deps{
		Users:         usersRepo,
		Verifications: postgres.NewVerificationTokensRepo(pool, prom),
		Resets:        postgres.NewResetTokensRepo(pool, prom),
		Audit:         audit,
		Sessions:      refreshRepo,
		Mailer:        mailer,
		Queue:         enqueuer,
		Log:           log,
		BaseURL:       cfg.AppBaseURL,
	})

	psi := pagespeed.NewClient(pagespeed.Config{
		APIKey:   cfg.PageSpeedAPIKey,
		CacheTTL: cfg.PageSpeedCacheTTL,
	}, prom)
	if cfg.PageSpeedAPIKey == "" {
		log.Warn("PAGESPEED_API_KEY is not set; PageSpeed calls will fail")
	}

	gsc := searchconsole.NewClient(searchconsole.Config{
		CredentialsJSON: cfg.GoogleCredentialsJSON,
		CredentialsFile: cfg.GoogleCredentialsFile,
	}, prom)

	reportSvc := reports.NewService(reportsRepo, blobs, psi, log)
	jwtManager := auth.NewManager(cfg.JWTSecret, cfg.AccessTTL(), cfg.RefreshTTL())

	router := httpx.NewRouter(httpx.Deps{
		Config:    cfg,
		Log:       log,
		Prom:      prom,
		Gatherer:  reg,
		JWT:       jwtManager,
		RateStore: rateStore,

		Health:        handlers.NewHealthHandler(pool),
		Auth:          handlers.NewAuthHandler(accountSvc, usersRepo, jwtManager, refreshRepo, cfg, log),
		AdminUsers:    handlers.NewAdminUsersHandler(usersRepo, accountSvc, reportSvc, refreshRepo, enqueuer, log),
		AdminJobs:     handlers.NewAdminJobsHandler(jobsRepo),
		Reports:       handlers.NewReportsHandler(reportSvc, cfg, log),
		PageSpeed:     handlers.NewPageSpeedHandler(usersRepo, psi, cfg, log),
		SearchConsole: handlers.NewSearchConsoleHandler(usersRepo, gsc, cfg, log),
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// PageSpeed audits and admin fan-outs run long
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Graceful shutdown
	log.Info("server shutting down")

	shutdownCtx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("shutdown complete")
	return nil
}

// newMailer picks SMTP when configured and logs messages otherwise. Either
// way sends go through the circuit breaker.
func newMailer(cfg config.Config, log *slog.Logger) notifications.Notifier {
	var inner notifications.Notifier
	if cfg.SMTPConfigured() {
		inner = notifications.NewSMTPNotifier(notifications.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: "SEO Dashboard",
		}, log)
	} else {
		log.Warn("SMTP is not configured; emails will be logged only")
		inner = notifications.NewLogNotifier(log)
	}

	return notifications.NewProtectedNotifier(inner, notifications.ProtectedNotifierConfig{
		Timeout:          10 * time.Second,
		FailureThreshold: 3,
		Cooldown:         30 * time.Second,
	})
}

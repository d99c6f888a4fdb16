package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/geocoder89/seodash/internal/accounts"
	"github.com/geocoder89/seodash/internal/config"
	"github.com/geocoder89/seodash/internal/db"
	"github.com/geocoder89/seodash/internal/jobs"
	"github.com/geocoder89/seodash/internal/notifications"
	"github.com/geocoder89/seodash/internal/observability"
	"github.com/geocoder89/seodash/internal/queue/worker"
	"github.com/geocoder89/seodash/internal/repo/postgres"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	if err := run(); err != nil {
		slog.Error("worker exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	log := observability.NewLogger(cfg.Env).With("component", "worker")
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, "seodash-worker", cfg.OTelEndpoint, cfg.Env)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	prom := observability.NewProm(prometheus.NewRegistry())

	pool, err := db.NewPool(ctx, cfg.DBURL, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	jobsRepo := postgres.NewJobsRepo(pool, prom)
	refreshRepo := postgres.NewRefreshTokensRepo(pool, prom)
	enqueuer := jobs.NewEnqueuer(jobsRepo)

	cleaner := accounts.NewService(accounts.Deps{
		Users:         postgres.NewUsersRepo(pool, prom),
		Verifications: postgres.NewVerificationTokensRepo(pool, prom),
		Resets:        postgres.NewResetTokensRepo(pool, prom),
		Log:           log,
		BaseURL:       cfg.AppBaseURL,
	})

	host, _ := os.Hostname()
	workerID := host + "-" + strconv.Itoa(os.Getpid())

	w := worker.New(worker.Config{
		PollInterval:  500 * time.Millisecond,
		WorkerID:      workerID,
		Concurrency:   cfg.WorkerConcurrency,
		ShutdownGrace: 10 * time.Second,
	}, jobsRepo, log, prom, nil)

	jobs.Register(w, newMailer(cfg, log), cleaner, prom, log)

	// the idempotency key collapses the hourly ticks of all workers into
	// one sweep per day
	w.Every("daily_cleanup", time.Hour, func(ctx context.Context) error {
		now := time.Now()
		if _, err := enqueuer.Cleanup(ctx, cfg.PendingRetentionDays, "scheduler", jobs.DailyCleanupKey(now)); err != nil {
			return err
		}
		n, err := refreshRepo.PurgeExpired(ctx, now.UTC())
		if err != nil {
			return err
		}
		if n > 0 {
			log.InfoContext(ctx, "expired refresh tokens purged", "count", n)
		}
		return nil
	})

	healthSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WorkerHealthPort),
		Handler:           w.HealthHandler(pool),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("health server failed", "err", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := config.WithTimeout(5 * time.Second)
		defer cancel()
		_ = healthSrv.Shutdown(shutdownCtx)
	}()

	log.Info("worker has started", "worker_id", workerID, "concurrency", cfg.WorkerConcurrency)

	if err := w.Run(ctx); err != nil {
		return fmt.Errorf("worker stopped: %w", err)
	}

	log.Info("worker shutdown complete")
	return nil
}

func newMailer(cfg config.Config, log *slog.Logger) notifications.Notifier {
	var inner notifications.Notifier = notifications.NewLogNotifier(log)
	if cfg.SMTPConfigured() {
		inner = notifications.NewSMTPNotifier(notifications.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: "SEO Dashboard",
		}, log)
	}

	return notifications.NewProtectedNotifier(inner, notifications.ProtectedNotifierConfig{
		Timeout:          10 * time.Second,
		FailureThreshold: 3,
		Cooldown:         30 * time.Second,
	})
}

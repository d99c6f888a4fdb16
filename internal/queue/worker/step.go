package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/seodash/internal/domain/job"
)

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// ProcessOne claims and runs at most one job. It reports whether a job was
// claimed.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	j, err := w.repo.ClaimNext(claimCtx, w.cfg.WorkerID)
	cancel()

	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			return false, nil
		}
		return false, err
	}
	w.metrics.IncClaimed()

	start := time.Now()
	err = w.execute(ctx, j)
	elapsed := time.Since(start)
	w.metrics.ObserveDuration(elapsed)

	if err != nil {
		return true, w.handleFailure(ctx, j, err, elapsed)
	}

	if err := w.repo.MarkDone(ctx, j.ID); err != nil {
		return true, fmt.Errorf("mark done %s: %w", j.ID, err)
	}

	w.metrics.IncDone()
	w.observe(j.Type, "done", elapsed)
	w.log.InfoContext(ctx, "job done", "job_id", j.ID, "type", j.Type, "attempt", j.Attempts+1)
	return true, nil
}

func (w *Worker) execute(ctx context.Context, j job.Job) error {
	h, ok := w.handlers[j.Type]
	if !ok {
		return Permanent(fmt.Errorf("no handler for job type %q", j.Type))
	}

	runCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	return h(runCtx, j)
}

func (w *Worker) handleFailure(ctx context.Context, j job.Job, jobErr error, elapsed time.Duration) error {
	msg := jobErr.Error()
	attempt := j.Attempts + 1

	if IsPermanent(jobErr) || attempt >= j.MaxAttempts {
		w.metrics.IncDeadLettered()
		w.observe(j.Type, "failed", elapsed)
		w.log.ErrorContext(ctx, "job failed permanently",
			"job_id", j.ID, "type", j.Type, "attempt", attempt, "err", msg)

		if err := w.repo.MarkFailed(ctx, j.ID, msg); err != nil {
			return fmt.Errorf("mark failed %s: %w", j.ID, err)
		}
		return nil
	}

	delay := ExponentialBackoff(j.Attempts)
	w.metrics.IncRetried()
	w.observe(j.Type, "retry", elapsed)
	w.log.WarnContext(ctx, "job failed, retrying",
		"job_id", j.ID, "type", j.Type, "attempt", attempt, "retry_in", delay.String(), "err", msg)

	if err := w.repo.Reschedule(ctx, j.ID, time.Now().Add(delay), msg); err != nil {
		return fmt.Errorf("reschedule %s: %w", j.ID, err)
	}
	return nil
}

func (w *Worker) observe(jobType, result string, d time.Duration) {
	if w.prom != nil {
		w.prom.ObserveJob(jobType, result, d)
	}
}

package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/seodash/internal/domain/job"
	"github.com/geocoder89/seodash/internal/observability"
)

type JobsRepository interface {
	ClaimNext(ctx context.Context, workerID string) (job.Job, error)
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error
	RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error)
}

// Handler executes one job. Returning an error wrapped with Permanent
// skips the remaining retries.
type Handler func(ctx context.Context, j job.Job) error

type Config struct {
	PollInterval  time.Duration
	WorkerID      string
	Concurrency   int
	ShutdownGrace time.Duration
	JobTimeout    time.Duration
	LockTTL       time.Duration
	RequeueEvery  time.Duration
}

type periodicTask struct {
	name  string
	every time.Duration
	run   func(ctx context.Context) error
}

type Worker struct {
	cfg      Config
	repo     JobsRepository
	handlers map[string]Handler
	log      *slog.Logger
	prom     *observability.Prom
	metrics  *observability.JobMetrics
	tasks    []periodicTask

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, repo JobsRepository, log *slog.Logger, prom *observability.Prom, metrics *observability.JobMetrics) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if cfg.RequeueEvery <= 0 {
		cfg.RequeueEvery = 30 * time.Second
	}
	if metrics == nil {
		metrics = observability.NewJobMetrics()
	}

	return &Worker{
		cfg:      cfg,
		repo:     repo,
		handlers: make(map[string]Handler),
		log:      log,
		prom:     prom,
		metrics:  metrics,
	}
}

// Handle registers the executor for a job type.
func (w *Worker) Handle(jobType string, h Handler) {
	w.handlers[jobType] = h
}

// Every runs fn on start and then on each tick until shutdown.
func (w *Worker) Every(name string, every time.Duration, fn func(ctx context.Context) error) {
	w.tasks = append(w.tasks, periodicTask{name: name, every: every, run: fn})
}

func (w *Worker) Metrics() *observability.JobMetrics { return w.metrics }

func (w *Worker) setReady(v bool) {
	w.readyMu.Lock()
	w.ready = v
	w.readyMu.Unlock()
}

func (w *Worker) Ready() bool {
	w.readyMu.RLock()
	defer w.readyMu.RUnlock()
	return w.ready
}

// Run blocks until ctx is cancelled. In-flight jobs get ShutdownGrace to
// finish; their context is cancelled after that.
func (w *Worker) Run(ctx context.Context) error {
	// Jobs run on a context that outlives ctx by the grace period.
	jobCtx, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelJobs()

	var wg sync.WaitGroup

	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.loop(ctx, jobCtx, slot)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.runTask(ctx, periodicTask{name: "requeue_stale", every: w.cfg.RequeueEvery, run: w.requeueStale})
	}()

	for _, t := range w.tasks {
		wg.Add(1)
		go func(t periodicTask) {
			defer wg.Done()
			w.runTask(ctx, t)
		}(t)
	}

	w.setReady(true)
	w.log.Info("worker started", "worker_id", w.cfg.WorkerID, "concurrency", w.cfg.Concurrency)

	<-ctx.Done()
	w.setReady(false)
	w.log.Info("worker draining", "grace", w.cfg.ShutdownGrace.String())

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(w.cfg.ShutdownGrace):
		cancelJobs()
		<-done
		return errors.New("worker shutdown grace exceeded")
	}
}

func (w *Worker) loop(ctx, jobCtx context.Context, slot int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Drain while there is work, then go back to polling.
		for ctx.Err() == nil {
			processed, err := w.ProcessOne(jobCtx)
			if err != nil {
				w.log.Error("worker step failed", "slot", slot, "err", err)
				break
			}
			if !processed {
				break
			}
		}
	}
}

func (w *Worker) runTask(ctx context.Context, t periodicTask) {
	run := func() {
		taskCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
		defer cancel()

		if err := t.run(taskCtx); err != nil && !errors.Is(err, context.Canceled) {
			w.log.Error("periodic task failed", "task", t.name, "err", err)
		}
	}

	run()

	ticker := time.NewTicker(t.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

func (w *Worker) requeueStale(ctx context.Context) error {
	n, err := w.repo.RequeueStaleProcessing(ctx, w.cfg.LockTTL)
	if err != nil {
		return err
	}
	if n > 0 {
		w.log.Warn("requeued stale jobs", "count", n)
	}
	return nil
}

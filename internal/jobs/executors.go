package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/geocoder89/seodash/internal/domain/job"
	"github.com/geocoder89/seodash/internal/notifications"
	"github.com/geocoder89/seodash/internal/observability"
	"github.com/geocoder89/seodash/internal/queue/worker"
)

type PendingCleaner interface {
	CleanupPending(ctx context.Context, days int) (int64, error)
}

// Register wires the executors of every job type into w.
func Register(w *worker.Worker, n notifications.Notifier, cleaner PendingCleaner, prom *observability.Prom, log *slog.Logger) {
	w.Handle(string(TypeEmailSend), EmailExecutor(n, prom))
	w.Handle(string(TypeCleanupPending), CleanupExecutor(cleaner, log))
}

func EmailExecutor(n notifications.Notifier, prom *observability.Prom) worker.Handler {
	return func(ctx context.Context, j job.Job) error {
		decoded, err := DecodePayload(JobType(j.Type), j.Payload)
		if err != nil {
			return worker.Permanent(err)
		}
		p := decoded.(EmailSendPayload)

		err = n.Send(ctx, notifications.Message{
			To:      p.To,
			Subject: p.Subject,
			HTML:    p.HTML,
			Text:    p.Text,
			Kind:    p.Kind,
		})

		result := "sent"
		if err != nil {
			result = "error"
			if errors.Is(err, notifications.ErrCircuitOpen) {
				result = "circuit_open"
			}
		}
		if prom != nil {
			prom.EmailsTotal.WithLabelValues(p.Kind, result).Inc()
		}
		return err
	}
}

func CleanupExecutor(cleaner PendingCleaner, log *slog.Logger) worker.Handler {
	return func(ctx context.Context, j job.Job) error {
		decoded, err := DecodePayload(JobType(j.Type), j.Payload)
		if err != nil {
			return worker.Permanent(err)
		}
		p := decoded.(CleanupPendingPayload)

		n, err := cleaner.CleanupPending(ctx, p.Days)
		if err != nil {
			return fmt.Errorf("cleanup pending users: %w", err)
		}

		log.InfoContext(ctx, "pending users cleaned up", "deleted", n, "days", p.Days, "requested_by", p.RequestedBy)
		return nil
	}
}

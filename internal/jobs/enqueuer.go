package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/seodash/internal/domain/job"
	"github.com/geocoder89/seodash/internal/notifications"
)

type JobCreator interface {
	Create(ctx context.Context, req job.CreateRequest) (job.Job, error)
}

// Enqueuer turns domain requests into queue rows.
type Enqueuer struct {
	repo JobCreator
}

func NewEnqueuer(repo JobCreator) *Enqueuer {
	return &Enqueuer{repo: repo}
}

// Email queues delivery of an already rendered message.
func (e *Enqueuer) Email(ctx context.Context, msg notifications.Message, userID *string) (job.Job, error) {
	payload, err := EncodePayload(TypeEmailSend, EmailSendPayload{
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
		Kind:    msg.Kind,
	})
	if err != nil {
		return job.Job{}, err
	}

	return e.repo.Create(ctx, job.CreateRequest{
		Type:     string(TypeEmailSend),
		Payload:  payload,
		Priority: 10,
		UserID:   userID,
	})
}

// Cleanup queues a pending-user sweep. key makes repeated requests collapse
// into one job; a duplicate is not an error.
func (e *Enqueuer) Cleanup(ctx context.Context, days int, requestedBy string, key string) (job.Job, error) {
	payload, err := EncodePayload(TypeCleanupPending, CleanupPendingPayload{Days: days, RequestedBy: requestedBy})
	if err != nil {
		return job.Job{}, err
	}

	req := job.CreateRequest{
		Type:        string(TypeCleanupPending),
		Payload:     payload,
		MaxAttempts: 3,
	}
	if key != "" {
		req.IdempotencyKey = &key
	}

	j, err := e.repo.Create(ctx, req)
	if errors.Is(err, job.ErrDuplicate) {
		return j, nil
	}
	return j, err
}

// DailyCleanupKey is the idempotency key of the scheduled sweep for day.
func DailyCleanupKey(day time.Time) string {
	return "cleanup:" + day.UTC().Format("2006-01-02")
}

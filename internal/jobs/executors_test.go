package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/geocoder89/seodash/internal/domain/job"
	"github.com/geocoder89/seodash/internal/notifications"
	"github.com/geocoder89/seodash/internal/queue/worker"
)

type recordingNotifier struct {
	got []notifications.Message
	err error
}

func (r *recordingNotifier) Send(ctx context.Context, msg notifications.Message) error {
	r.got = append(r.got, msg)
	return r.err
}

type cleanerFunc func(ctx context.Context, days int) (int64, error)

func (f cleanerFunc) CleanupPending(ctx context.Context, days int) (int64, error) { return f(ctx, days) }

func TestEmailExecutor_Delivers(t *testing.T) {
	n := &recordingNotifier{}
	exec := EmailExecutor(n, nil)

	payload, _ := json.Marshal(EmailSendPayload{To: "a@b.co", Subject: "s", HTML: "<p>x</p>"})
	err := exec(context.Background(), job.Job{Type: string(TypeEmailSend), Payload: payload})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(n.got) != 1 || n.got[0].To != "a@b.co" {
		t.Fatalf("unexpected sends: %+v", n.got)
	}
}

func TestEmailExecutor_BadPayloadIsPermanent(t *testing.T) {
	exec := EmailExecutor(&recordingNotifier{}, nil)

	err := exec(context.Background(), job.Job{Type: string(TypeEmailSend), Payload: json.RawMessage(`{"to":""}`)})
	if !worker.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestEmailExecutor_SendErrorIsRetryable(t *testing.T) {
	exec := EmailExecutor(&recordingNotifier{err: errors.New("timeout")}, nil)

	payload, _ := json.Marshal(EmailSendPayload{To: "a@b.co", Subject: "s", Text: "x"})
	err := exec(context.Background(), job.Job{Type: string(TypeEmailSend), Payload: payload})
	if err == nil || worker.IsPermanent(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestCleanupExecutor_PassesDays(t *testing.T) {
	var gotDays int
	exec := CleanupExecutor(cleanerFunc(func(ctx context.Context, days int) (int64, error) {
		gotDays = days
		return 3, nil
	}), slog.New(slog.DiscardHandler))

	payload, _ := json.Marshal(CleanupPendingPayload{Days: 14})
	if err := exec(context.Background(), job.Job{Type: string(TypeCleanupPending), Payload: payload}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotDays != 14 {
		t.Fatalf("got days %d, want 14", gotDays)
	}
}

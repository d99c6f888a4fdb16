package notifications

import (
	"context"
	"log/slog"
)

// LogNotifier stands in for SMTP in development: mails are logged, not sent.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	preview := msg.Text
	if preview == "" {
		preview = PlainText(msg.HTML)
	}
	if len(preview) > 200 {
		preview = preview[:200]
	}

	n.log.InfoContext(ctx, "email (log only)",
		"to", msg.To,
		"subject", msg.Subject,
		"kind", msg.Kind,
		"preview", preview,
	)
	return nil
}

package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"
)

const defaultFrom = "noreply@localhost"

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPNotifier struct {
	dialer   dialer
	from     string
	fromName string
	log      *slog.Logger
}

func NewSMTPNotifier(cfg SMTPConfig, log *slog.Logger) *SMTPNotifier {
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	if from == "" {
		from = defaultFrom
	}

	return &SMTPNotifier{
		dialer:   gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:     from,
		fromName: cfg.FromName,
		log:      log,
	}
}

func (n *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("no recipient specified")
	}

	m := gomail.NewMessage()
	if n.fromName != "" {
		m.SetAddressHeader("From", n.from, n.fromName)
	} else {
		m.SetHeader("From", n.from)
	}
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)

	text := msg.Text
	if text == "" {
		text = PlainText(msg.HTML)
	}
	m.SetBody("text/plain", text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}

	// gomail has no context support, so the dial runs aside and the
	// caller's deadline decides how long we wait for it.
	done := make(chan error, 1)
	go func() { done <- n.dialer.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send to %s: %w", msg.To, err)
		}
		n.log.InfoContext(ctx, "email sent", "to", msg.To, "subject", msg.Subject, "kind", msg.Kind)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package notifications

import (
	"context"
	"regexp"
	"strings"
)

// Kinds of outgoing mail, used for metrics and logs.
const (
	KindVerification  = "verification"
	KindAdminVerified = "admin_user_verified"
	KindPasswordReset = "password_reset"
)

type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

var (
	tagRe   = regexp.MustCompile(`<[^>]*>`)
	blankRe = regexp.MustCompile(`\n\s*\n+`)
)

// PlainText derives a text body from HTML by dropping tags.
func PlainText(html string) string {
	text := tagRe.ReplaceAllString(html, "")
	text = blankRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

package notifications

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type fakeNotifier struct {
	err   error
	calls int
}

func (f *fakeNotifier) Send(ctx context.Context, msg Message) error {
	f.calls++
	return f.err
}

func TestProtectedNotifierOpensAfterThreshold(t *testing.T) {
	inner := &fakeNotifier{err: errors.New("smtp down")}
	n := NewProtectedNotifier(inner, ProtectedNotifierConfig{FailureThreshold: 2, Cooldown: time.Minute})

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return now }

	ctx := context.Background()
	assert.Error(t, n.Send(ctx, Message{To: "a@b.co"}))
	assert.Error(t, n.Send(ctx, Message{To: "a@b.co"}))
	assert.Equal(t, stateOpen, n.State())

	assert.ErrorIs(t, n.Send(ctx, Message{To: "a@b.co"}), ErrCircuitOpen)
	assert.Equal(t, 2, inner.calls)

	// after the cooldown one trial call goes through and closes the circuit
	now = now.Add(2 * time.Minute)
	inner.err = nil
	require.NoError(t, n.Send(ctx, Message{To: "a@b.co"}))
	assert.Equal(t, stateClosed, n.State())
}

func TestProtectedNotifierHalfOpenFailureReopens(t *testing.T) {
	inner := &fakeNotifier{err: errors.New("smtp down")}
	n := NewProtectedNotifier(inner, ProtectedNotifierConfig{FailureThreshold: 1, Cooldown: time.Second})

	now := time.Now()
	n.now = func() time.Time { return now }

	_ = n.Send(context.Background(), Message{})
	now = now.Add(2 * time.Second)

	assert.Error(t, n.Send(context.Background(), Message{}))
	assert.Equal(t, stateOpen, n.State())
}

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	d.sent = append(d.sent, m...)
	return d.err
}

func TestSMTPNotifierFromFallback(t *testing.T) {
	n := NewSMTPNotifier(SMTPConfig{Host: "smtp.local", Port: 587, Username: "mailer@site.io"}, nil)
	assert.Equal(t, "mailer@site.io", n.from)

	n = NewSMTPNotifier(SMTPConfig{Host: "smtp.local", Port: 587}, nil)
	assert.Equal(t, defaultFrom, n.from)
}

func TestSMTPNotifierSendErrors(t *testing.T) {
	d := &fakeDialer{err: errors.New("refused")}
	n := &SMTPNotifier{dialer: d, from: defaultFrom}

	err := n.Send(context.Background(), Message{To: "x@y.io", Subject: "s", HTML: "<p>hi</p>"})
	require.Error(t, err)
	assert.Len(t, d.sent, 1)

	err = n.Send(context.Background(), Message{})
	assert.Error(t, err)
}

func TestPlainTextStripsTags(t *testing.T) {
	got := PlainText("<p>Hello <b>there</b></p>\n\n\n<p>bye</p>")
	assert.Equal(t, "Hello there\n\nbye", got)
}

func TestVerificationEmailCarriesLink(t *testing.T) {
	msg, err := VerificationEmail("u@site.io", "Ann", "http://app/verify-email?token=abc")
	require.NoError(t, err)

	assert.Equal(t, KindVerification, msg.Kind)
	assert.Contains(t, msg.HTML, "http://app/verify-email?token=abc")
	assert.Contains(t, msg.Text, "Welcome, Ann!")
}

func TestAdminEmailEscapesUserInput(t *testing.T) {
	msg, err := AdminUserVerifiedEmail("admin@site.io", "<script>x</script>", "u@site.io", "user", time.Now())
	require.NoError(t, err)

	assert.False(t, strings.Contains(msg.HTML, "<script>"))
	assert.Contains(t, msg.HTML, "u@site.io")
}

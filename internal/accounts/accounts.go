// Package accounts holds the account lifecycle: signup, email verification,
// password reset and credential checks.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/geocoder89/seodash/internal/domain/job"
	"github.com/geocoder89/seodash/internal/domain/token"
	"github.com/geocoder89/seodash/internal/domain/user"
	"github.com/geocoder89/seodash/internal/notifications"
)

var (
	ErrInvalidEmail       = errors.New("valid email is required")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrAlreadyVerified    = errors.New("email already verified")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
	ErrRoleNotAssignable  = errors.New("role cannot be assigned")
	ErrMailDelivery       = errors.New("email delivery failed")
)

// PasswordError lists why a password was rejected.
type PasswordError struct {
	Problems []string
}

func (e *PasswordError) Error() string {
	return "invalid password: " + strings.Join(e.Problems, "; ")
}

// VerificationError is returned when a verification link cannot be redeemed.
type VerificationError struct {
	Reason string
}

func (e *VerificationError) Error() string {
	return "verification failed: " + e.Reason
}

// Message is the user facing text for the failure reason.
func (e *VerificationError) Message() string {
	switch e.Reason {
	case token.ReasonAlreadyUsed:
		return "This verification link has already been used."
	case token.ReasonExpired:
		return "This verification link has expired. Please contact your administrator to resend a new verification email."
	default:
		return "Invalid verification link."
	}
}

type UserStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	Create(ctx context.Context, req user.CreateRequest) (user.User, error)
	MarkVerified(ctx context.Context, id string, at time.Time) error
	ResetPassword(ctx context.Context, tokenID, userID, passwordHash string) error
	ListSuperAdmins(ctx context.Context) ([]user.User, error)
	DeletePendingOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type TokenStore interface {
	Issue(ctx context.Context, req token.IssueRequest) (token.Token, error)
	FindValid(ctx context.Context, hash string) (token.Token, error)
	FindByHash(ctx context.Context, hash string) (token.Token, error)
	MarkUsed(ctx context.Context, id string) error
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type AuditLog interface {
	Insert(ctx context.Context, entry token.VerificationLog) error
}

type SessionRevoker interface {
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
}

type EmailQueue interface {
	Email(ctx context.Context, msg notifications.Message, userID *string) (job.Job, error)
}

type Deps struct {
	Users         UserStore
	Verifications TokenStore
	Resets        TokenStore
	Audit         AuditLog
	Sessions      SessionRevoker
	Mailer        notifications.Notifier
	Queue         EmailQueue
	Log           *slog.Logger
	BaseURL       string
}

type Service struct {
	users         UserStore
	verifications TokenStore
	resets        TokenStore
	audit         AuditLog
	sessions      SessionRevoker
	mailer        notifications.Notifier
	queue         EmailQueue
	log           *slog.Logger
	baseURL       string
	now           func() time.Time
}

func NewService(d Deps) *Service {
	return &Service{
		users:         d.Users,
		verifications: d.Verifications,
		resets:        d.Resets,
		audit:         d.Audit,
		sessions:      d.Sessions,
		mailer:        d.Mailer,
		queue:         d.Queue,
		log:           d.Log,
		baseURL:       strings.TrimRight(d.BaseURL, "/"),
		now:           time.Now,
	}
}

func (s *Service) link(path, raw string) string {
	return fmt.Sprintf("%s/%s?token=%s", s.baseURL, path, raw)
}

// Authenticate checks credentials. Unverified accounts are refused with
// ErrEmailNotVerified so clients can explain what to do.
func (s *Service) Authenticate(ctx context.Context, email, password string) (user.User, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return user.User{}, ErrInvalidCredentials
		}
		return user.User{}, err
	}

	if !u.IsActive {
		return user.User{}, ErrInvalidCredentials
	}
	if u.NeedsVerification() {
		return user.User{}, ErrEmailNotVerified
	}
	if err := checkPassword(u.PasswordHash, password); err != nil {
		return user.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// CleanupPending deletes signups that never verified within days, along
// with expired one-time tokens.
func (s *Service) CleanupPending(ctx context.Context, days int) (int64, error) {
	if days < 1 {
		days = 7
	}
	cutoff := s.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)

	n, err := s.users.DeletePendingOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete pending users: %w", err)
	}

	for _, store := range []TokenStore{s.verifications, s.resets} {
		if _, err := store.PurgeExpired(ctx, cutoff); err != nil {
			s.log.WarnContext(ctx, "purge expired tokens failed", "err", err)
		}
	}
	return n, nil
}

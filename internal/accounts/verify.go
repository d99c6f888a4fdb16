package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/seodash/internal/domain/token"
	"github.com/geocoder89/seodash/internal/domain/user"
	"github.com/geocoder89/seodash/internal/notifications"
	"github.com/geocoder89/seodash/internal/security"
	"github.com/geocoder89/seodash/internal/validation"
)

// RequestMeta is the caller information kept in the verification audit log.
type RequestMeta struct {
	IP        string
	UserAgent string
}

type VerifyResult struct {
	User            user.User
	AlreadyVerified bool
}

// VerifyEmail redeems a verification link and activates the account.
func (s *Service) VerifyEmail(ctx context.Context, raw string, meta RequestMeta) (VerifyResult, error) {
	hash := security.HashToken(raw)
	now := s.now().UTC()

	t, err := s.verifications.FindValid(ctx, hash)
	if err != nil {
		if !errors.Is(err, token.ErrTokenNotFound) {
			return VerifyResult{}, err
		}
		return VerifyResult{}, s.rejectToken(ctx, hash, meta)
	}

	u, err := s.users.GetByEmail(ctx, t.Email)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			s.record(ctx, t.Email, token.LogFailed, "user_not_found", meta)
		}
		return VerifyResult{}, err
	}

	if err := s.verifications.MarkUsed(ctx, t.ID); err != nil {
		if errors.Is(err, token.ErrTokenNotFound) {
			// Lost a race with a concurrent redemption of the same link.
			s.record(ctx, t.Email, token.LogFailed, token.ReasonAlreadyUsed, meta)
			return VerifyResult{}, &VerificationError{Reason: token.ReasonAlreadyUsed}
		}
		return VerifyResult{}, err
	}

	if u.EmailVerified {
		s.record(ctx, u.Email, token.LogAlreadyVerified, "", meta)
		return VerifyResult{User: u, AlreadyVerified: true}, nil
	}

	if err := s.users.MarkVerified(ctx, u.ID, now); err != nil {
		return VerifyResult{}, fmt.Errorf("mark verified: %w", err)
	}
	u.EmailVerified = true
	u.Status = user.StatusActive
	u.EmailVerifiedAt = &now

	s.record(ctx, u.Email, token.LogSuccess, "", meta)
	s.notifyAdmins(ctx, u, now)

	return VerifyResult{User: u}, nil
}

func (s *Service) rejectToken(ctx context.Context, hash string, meta RequestMeta) error {
	t, err := s.verifications.FindByHash(ctx, hash)
	found := err == nil
	if err != nil && !errors.Is(err, token.ErrTokenNotFound) {
		return err
	}

	reason := token.FailureReason(t, found, s.now().UTC())
	if reason == "" {
		// The row became valid between lookups; treat as a stale link.
		reason = token.ReasonInvalid
	}

	email := t.Email
	if email == "" {
		email = "unknown"
	}
	s.record(ctx, email, token.LogFailed, reason, meta)

	return &VerificationError{Reason: reason}
}

func (s *Service) record(ctx context.Context, email, status, reason string, meta RequestMeta) {
	if s.audit == nil {
		return
	}

	err := s.audit.Insert(ctx, token.VerificationLog{
		Email:     email,
		Status:    status,
		Reason:    reason,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		s.log.WarnContext(ctx, "verification audit write failed", "email", email, "err", err)
	}
}

// notifyAdmins queues a "user verified" mail for every active super admin.
// Failures are logged and never surface to the verifying user.
func (s *Service) notifyAdmins(ctx context.Context, u user.User, at time.Time) {
	admins, err := s.users.ListSuperAdmins(ctx)
	if err != nil {
		s.log.WarnContext(ctx, "list super admins failed", "err", err)
		return
	}

	for _, admin := range admins {
		msg, err := notifications.AdminUserVerifiedEmail(admin.Email, u.Name, u.Email, u.Role, at)
		if err != nil {
			s.log.WarnContext(ctx, "render admin notification failed", "err", err)
			return
		}
		if _, err := s.queue.Email(ctx, msg, nil); err != nil {
			s.log.WarnContext(ctx, "queue admin notification failed", "admin", admin.Email, "err", err)
		}
	}
}

func normalizeEmail(email string) string {
	return validation.NormalizeEmail(email)
}

func checkPassword(hash, plain string) error {
	return security.CheckPassword(hash, plain)
}

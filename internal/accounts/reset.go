package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/seodash/internal/domain/token"
	"github.com/geocoder89/seodash/internal/domain/user"
	"github.com/geocoder89/seodash/internal/notifications"
	"github.com/geocoder89/seodash/internal/security"
	"github.com/geocoder89/seodash/internal/validation"
)

// RequestPasswordReset mails a reset link when email belongs to an active
// account. Unknown addresses succeed silently so callers cannot probe for
// accounts. The returned link is empty when nothing was sent.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if !validation.ValidEmail(email) {
		return "", nil
	}

	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return "", nil
		}
		return "", err
	}
	if !u.IsActive {
		return "", nil
	}

	raw, hash, err := security.NewOneTimeToken()
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	if _, err := s.resets.Issue(ctx, token.IssueRequest{
		UserID:    u.ID,
		Email:     u.Email,
		TokenHash: hash,
		TTL:       token.ResetTTL,
	}); err != nil {
		return "", fmt.Errorf("issue reset token: %w", err)
	}

	link := s.link("reset-password", raw)

	msg, err := notifications.PasswordResetEmail(u.Email, u.Name, link)
	if err != nil {
		return "", err
	}

	uid := u.ID
	if _, err := s.queue.Email(ctx, msg, &uid); err != nil {
		return "", fmt.Errorf("queue reset email: %w", err)
	}
	return link, nil
}

// ResetPassword redeems a reset token, stores the new password and signs
// the user out everywhere.
func (s *Service) ResetPassword(ctx context.Context, raw, password string) error {
	if problems := validation.PasswordProblems(password); len(problems) > 0 {
		return &PasswordError{Problems: problems}
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooLong) {
			return &PasswordError{Problems: []string{"Password must be at most 72 bytes"}}
		}
		return fmt.Errorf("hash password: %w", err)
	}

	if raw == "" {
		return ErrInvalidResetToken
	}

	t, err := s.resets.FindValid(ctx, security.HashToken(raw))
	if err != nil {
		if errors.Is(err, token.ErrTokenNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}

	if err := s.users.ResetPassword(ctx, t.ID, t.UserID, hash); err != nil {
		if errors.Is(err, token.ErrTokenNotFound) || errors.Is(err, user.ErrUserNotFound) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("reset password: %w", err)
	}

	if _, err := s.sessions.RevokeAllForUser(ctx, t.UserID); err != nil {
		s.log.WarnContext(ctx, "revoke sessions after reset failed", "user_id", t.UserID, "err", err)
	}
	return nil
}

package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/seodash/internal/domain/token"
	"github.com/geocoder89/seodash/internal/domain/user"
	"github.com/geocoder89/seodash/internal/notifications"
	"github.com/geocoder89/seodash/internal/rbac"
	"github.com/geocoder89/seodash/internal/security"
	"github.com/geocoder89/seodash/internal/validation"
)

type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

type CreateUserInput struct {
	Email     string
	Password  string
	Name      string
	Role      string
	SiteLink  *string
	CreatedBy string
}

type SignupResult struct {
	User      user.User
	EmailSent bool
}

// Register creates a self-service account with the user role.
func (s *Service) Register(ctx context.Context, in RegisterInput) (SignupResult, error) {
	return s.create(ctx, CreateUserInput{
		Email:    in.Email,
		Password: in.Password,
		Name:     in.Name,
		Role:     user.RoleUser,
	})
}

// CreateUser is the admin path: only user and viewer may be assigned and
// the site link is normalized.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (SignupResult, error) {
	if !rbac.AssignableRole(in.Role) {
		return SignupResult{}, ErrRoleNotAssignable
	}

	if in.SiteLink != nil && *in.SiteLink != "" {
		normalized, err := validation.NormalizeSiteURL(*in.SiteLink)
		if err != nil {
			return SignupResult{}, err
		}
		in.SiteLink = &normalized
	} else {
		in.SiteLink = nil
	}

	return s.create(ctx, in)
}

func (s *Service) create(ctx context.Context, in CreateUserInput) (SignupResult, error) {
	if !validation.ValidEmail(in.Email) {
		return SignupResult{}, ErrInvalidEmail
	}
	if problems := validation.PasswordProblems(in.Password); len(problems) > 0 {
		return SignupResult{}, &PasswordError{Problems: problems}
	}

	hash, err := security.HashPassword(in.Password)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooLong) {
			return SignupResult{}, &PasswordError{Problems: []string{"Password must be at most 72 bytes"}}
		}
		return SignupResult{}, fmt.Errorf("hash password: %w", err)
	}

	req := user.CreateRequest{
		Email:        normalizeEmail(in.Email),
		PasswordHash: hash,
		Name:         validation.SanitizeString(in.Name, validation.MaxNameLen),
		Role:         in.Role,
		SiteLink:     in.SiteLink,
	}
	if in.CreatedBy != "" {
		req.CreatedBy = &in.CreatedBy
	}

	u, err := s.users.Create(ctx, req)
	if err != nil {
		return SignupResult{}, err
	}

	sent, err := s.sendVerification(ctx, u, true)
	if err != nil {
		// The account exists; the admin can resend the link later.
		s.log.ErrorContext(ctx, "verification email not issued", "user_id", u.ID, "err", err)
	}

	return SignupResult{User: u, EmailSent: sent}, nil
}

// ResendVerification issues a fresh link for an unverified account and
// delivers it before returning.
func (s *Service) ResendVerification(ctx context.Context, userID string) (user.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return user.User{}, err
	}
	if u.EmailVerified {
		return user.User{}, ErrAlreadyVerified
	}

	if _, err := s.sendVerification(ctx, u, false); err != nil {
		return user.User{}, err
	}
	return u, nil
}

// sendVerification issues a token and mails the link. When queueOnFailure
// is set, a failed delivery is handed to the job queue and not reported
// as an error.
func (s *Service) sendVerification(ctx context.Context, u user.User, queueOnFailure bool) (bool, error) {
	raw, hash, err := security.NewOneTimeToken()
	if err != nil {
		return false, fmt.Errorf("generate token: %w", err)
	}

	if _, err := s.verifications.Issue(ctx, token.IssueRequest{
		Email:     u.Email,
		TokenHash: hash,
		TTL:       token.VerificationTTL,
	}); err != nil {
		return false, fmt.Errorf("issue verification token: %w", err)
	}

	msg, err := notifications.VerificationEmail(u.Email, u.Name, s.link("verify-email", raw))
	if err != nil {
		return false, err
	}

	sendErr := s.mailer.Send(ctx, msg)
	if sendErr == nil {
		return true, nil
	}

	s.log.WarnContext(ctx, "verification email failed", "user_id", u.ID, "err", sendErr)

	if !queueOnFailure {
		return false, fmt.Errorf("%w: %v", ErrMailDelivery, sendErr)
	}

	uid := u.ID
	if _, err := s.queue.Email(ctx, msg, &uid); err != nil {
		return false, fmt.Errorf("queue verification email: %w", err)
	}
	return false, nil
}

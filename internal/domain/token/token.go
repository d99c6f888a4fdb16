package token

import (
	"errors"
	"time"
)

var ErrTokenNotFound = errors.New("token not found")

// Reasons a verification lookup can fail.
const (
	ReasonAlreadyUsed = "already_used"
	ReasonExpired     = "expired"
	ReasonInvalid     = "invalid"
)

// Token is a stored one-time token. Only the sha256 hash of the raw value
// is persisted.
type Token struct {
	ID        string
	UserID    string
	Email     string
	TokenHash string
	ExpiresAt time.Time
	Used      bool
	UsedAt    *time.Time
	CreatedAt time.Time
}

func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// FailureReason classifies why a token row cannot be redeemed. A zero
// Token means no row matched the hash.
func FailureReason(t Token, found bool, now time.Time) string {
	switch {
	case !found:
		return ReasonInvalid
	case t.Used:
		return ReasonAlreadyUsed
	case t.Expired(now):
		return ReasonExpired
	default:
		return ""
	}
}

// Lifetimes of the two token kinds.
const (
	VerificationTTL = 24 * time.Hour
	ResetTTL        = time.Hour
)

type IssueRequest struct {
	UserID    string
	Email     string
	TokenHash string
	TTL       time.Duration
}

const (
	LogSuccess         = "success"
	LogFailed          = "failed"
	LogAlreadyVerified = "already_verified"
)

// VerificationLog is one audit record of a verify-email attempt.
type VerificationLog struct {
	Email     string    `json:"email" bson:"email"`
	Status    string    `json:"status" bson:"status"`
	Reason    string    `json:"reason,omitempty" bson:"reason,omitempty"`
	IP        string    `json:"ip,omitempty" bson:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty" bson:"user_agent,omitempty"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}

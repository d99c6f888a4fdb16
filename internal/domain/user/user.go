package user

import (
	"errors"
	"time"
)

const (
	RoleSuperAdmin = "super_admin"
	RoleUser       = "user"
	RoleViewer     = "viewer"
)

const (
	StatusPending = "pending"
	StatusActive  = "active"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

type User struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	PasswordHash    string     `json:"-"` // never expose hash in JSON
	Name            string     `json:"name"`
	Role            string     `json:"role"`
	SiteLink        *string    `json:"siteLink"`
	AccessibleSites []string   `json:"accessibleSites"`
	IsActive        bool       `json:"isActive"`
	EmailVerified   bool       `json:"emailVerified"`
	Status          string     `json:"status"`
	EmailVerifiedAt *time.Time `json:"emailVerifiedAt"`
	CreatedBy       *string    `json:"createdBy"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// NeedsVerification reports whether login must be refused until the
// email address is confirmed.
func (u User) NeedsVerification() bool {
	return !u.EmailVerified || u.Status == StatusPending
}

func (u User) Site() string {
	if u.SiteLink == nil {
		return ""
	}
	return *u.SiteLink
}

type CreateRequest struct {
	Email        string
	PasswordHash string
	Name         string
	Role         string
	SiteLink     *string
	CreatedBy    *string
}

// UpdateRequest carries optional admin edits; nil fields are left alone.
type UpdateRequest struct {
	Name            *string
	Role            *string
	SiteLink        *string
	ClearSiteLink   bool
	AccessibleSites *[]string
	IsActive        *bool
}

// Session is the identity payload returned to clients after login.
type Session struct {
	ID              string   `json:"id"`
	Email           string   `json:"email"`
	Name            string   `json:"name"`
	Role            string   `json:"role"`
	SiteLink        *string  `json:"siteLink"`
	AccessibleSites []string `json:"accessibleSites"`
}

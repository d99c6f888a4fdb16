// Package validation holds the input rules shared by the auth, admin and
// report endpoints.
package validation

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MinPasswordLen = 6
	MaxPasswordLen = 128
	MaxNameLen     = 100
)

var (
	ErrURLRequired = errors.New("URL is required")
	ErrInvalidURL  = errors.New("Invalid URL format")
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func ValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	return email != "" && emailRe.MatchString(email)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// PasswordProblems returns one message per broken rule; nil means the
// password is acceptable.
func PasswordProblems(password string) []string {
	if password == "" {
		return []string{"Password is required"}
	}

	var problems []string
	n := utf8.RuneCountInString(password)

	if n < MinPasswordLen {
		problems = append(problems, "Password must be at least 6 characters long")
	}
	if n > MaxPasswordLen {
		problems = append(problems, "Password must be less than 128 characters")
	}
	return problems
}

// SanitizeString trims s and cuts it to max runes.
func SanitizeString(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

func ValidURL(raw string) bool {
	_, err := parseHTTPURL(raw)
	return err == nil
}

// NormalizeSiteURL lowercases the host and drops a trailing slash from
// the path, keeping query and fragment.
func NormalizeSiteURL(raw string) (string, error) {
	u, err := parseHTTPURL(raw)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	b.WriteString(strings.ToLower(u.Host))
	b.WriteString(strings.TrimSuffix(u.EscapedPath(), "/"))
	if u.RawQuery != "" {
		b.WriteString("?")
		b.WriteString(u.RawQuery)
	}
	if u.Fragment != "" {
		b.WriteString("#")
		b.WriteString(u.EscapedFragment())
	}
	return b.String(), nil
}

// SiteOrigin reduces raw to scheme://host, the form Search Console
// expects for URL-prefix properties.
func SiteOrigin(raw string) (string, error) {
	u, err := parseHTTPURL(raw)
	if err != nil {
		return "", err
	}
	return u.Scheme + "://" + strings.ToLower(u.Host), nil
}

// Host returns the lowercase host of raw, or "" when it does not parse.
func Host(raw string) string {
	u, err := parseHTTPURL(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func parseHTTPURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrURLRequired
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, ErrInvalidURL
	}

	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return nil, ErrInvalidURL
	}
	u.Scheme = scheme
	return u, nil
}

package searchconsole

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

var (
	ErrNoSiteLinked = errors.New("no website url linked to account")
	ErrInvalidURL   = errors.New("invalid url format")
)

type ErrorType string

const (
	MissingCredentials      ErrorType = "MISSING_CREDENTIALS"
	ExpiredToken            ErrorType = "EXPIRED_TOKEN"
	InvalidToken            ErrorType = "INVALID_TOKEN"
	InsufficientPermissions ErrorType = "INSUFFICIENT_PERMISSIONS"
	PropertyNotVerified     ErrorType = "PROPERTY_NOT_VERIFIED"
	QuotaExceeded           ErrorType = "API_QUOTA_EXCEEDED"
	NetworkError            ErrorType = "NETWORK_ERROR"
	TimeoutError            ErrorType = "TIMEOUT_ERROR"
	InvalidURL              ErrorType = "INVALID_URL"
	NoSiteLinked            ErrorType = "NO_SITE_LINKED"
	UnknownError            ErrorType = "UNKNOWN_ERROR"
)

// Classified is a failure translated for API clients.
type Classified struct {
	Type           ErrorType `json:"errorType"`
	Status         int       `json:"-"`
	Message        string    `json:"-"`
	UserMessage    string    `json:"userMessage"`
	ActionRequired string    `json:"actionRequired"`
}

type classInfo struct {
	status int
	user   string
	action string
}

var classes = map[ErrorType]classInfo{
	MissingCredentials: {http.StatusUnauthorized,
		"Google Search Console credentials are not configured or invalid.",
		"Check that GOOGLE_APPLICATION_CREDENTIALS_JSON or GOOGLE_APPLICATION_CREDENTIALS is set correctly."},
	ExpiredToken: {http.StatusUnauthorized,
		"Authentication token has expired or is invalid.",
		"Sync the system clock and restart the server. If the issue persists, verify the service account credentials."},
	InvalidToken: {http.StatusUnauthorized,
		"The service account credentials were rejected.",
		"Generate a new key for the service account and update the configuration."},
	InsufficientPermissions: {http.StatusForbidden,
		"Access denied. Insufficient permissions to access Search Console data.",
		"Add the service account to Google Search Console with 'Full' access for this website property."},
	PropertyNotVerified: {http.StatusForbidden,
		"Website property is not verified in Google Search Console.",
		"Verify the website in Google Search Console and make sure the service account has access to it."},
	QuotaExceeded: {http.StatusTooManyRequests,
		"API quota limit has been exceeded.",
		"Wait a few minutes before trying again, or check the Google Cloud Console API quotas."},
	NetworkError: {http.StatusServiceUnavailable,
		"Network connection error. Unable to reach Google Search Console API.",
		"Check the network connection and try again."},
	TimeoutError: {http.StatusServiceUnavailable,
		"Request timed out while fetching Search Console data.",
		"Try again. If the issue persists, the API may be experiencing high load."},
	InvalidURL: {http.StatusBadRequest,
		"The website URL is invalid or incorrectly formatted.",
		"Contact an administrator to update your website URL."},
	NoSiteLinked: {http.StatusBadRequest,
		"No website URL is linked to your account.",
		"Contact an administrator to link a website URL to your account."},
	UnknownError: {http.StatusInternalServerError,
		"An unexpected error occurred while fetching Search Console data.",
		"Try again later. If the issue persists, contact support."},
}

func classified(t ErrorType, err error) Classified {
	info := classes[t]
	return Classified{
		Type:           t,
		Status:         info.status,
		Message:        err.Error(),
		UserMessage:    info.user,
		ActionRequired: info.action,
	}
}

// Classify maps an error from this package or the Google client to a
// client facing category.
func Classify(err error) Classified {
	return classified(classify(err), err)
}

func classify(err error) ErrorType {
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return MissingCredentials
	case errors.Is(err, ErrNoSiteLinked):
		return NoSiteLinked
	case errors.Is(err, ErrInvalidURL):
		return InvalidURL
	case errors.Is(err, context.DeadlineExceeded):
		return TimeoutError
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		switch rerr.ErrorCode {
		case "invalid_client", "unauthorized_client":
			return InvalidToken
		default:
			return ExpiredToken
		}
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusUnauthorized:
			return ExpiredToken
		case http.StatusForbidden:
			if strings.Contains(strings.ToLower(gerr.Message), "not verified") {
				return PropertyNotVerified
			}
			return InsufficientPermissions
		case http.StatusNotFound:
			return PropertyNotVerified
		case http.StatusTooManyRequests:
			return QuotaExceeded
		}
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		if nerr.Timeout() {
			return TimeoutError
		}
		return NetworkError
	}

	return classifyMessage(err.Error())
}

func classifyMessage(msg string) ErrorType {
	has := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(msg, s) {
				return true
			}
		}
		return false
	}

	switch {
	case has("credentials", "authentication"):
		return MissingCredentials
	case has("invalid_grant", "JWT", "token", "expired"):
		return ExpiredToken
	case has("Access denied", "permission", "Forbidden"):
		return InsufficientPermissions
	case has("not verified", "verification"):
		return PropertyNotVerified
	case has("quota", "rate limit"):
		return QuotaExceeded
	case has("connection refused", "no such host", "network"):
		return NetworkError
	case has("timeout", "TIMEOUT"):
		return TimeoutError
	case has("Invalid URL", "invalid url", "URL format"):
		return InvalidURL
	default:
		return UnknownError
	}
}

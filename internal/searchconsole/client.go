// Package searchconsole wraps the Search Console v1 API behind a
// service-account identity.
package searchconsole

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/geocoder89/seodash/internal/observability"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sc "google.golang.org/api/searchconsole/v1"
)

var ErrMissingCredentials = errors.New("GOOGLE_APPLICATION_CREDENTIALS_JSON or GOOGLE_APPLICATION_CREDENTIALS must be set")

const (
	defaultTimeout = 30 * time.Second
	tokenRetries   = 2
)

type Config struct {
	// CredentialsJSON is an inline service account key.
	CredentialsJSON string
	// CredentialsFile is a path to a service account key file.
	CredentialsFile string
	Timeout         time.Duration
}

type Client struct {
	cfg  Config
	prom *observability.Prom

	mu    sync.Mutex
	svc   *sc.Service
	build func(ctx context.Context) (*sc.Service, error)
}

func NewClient(cfg Config, prom *observability.Prom) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := &Client{cfg: cfg, prom: prom}
	c.build = c.newService
	return c
}

// Configured reports whether any credential source is set.
func (c *Client) Configured() bool {
	return strings.TrimSpace(c.cfg.CredentialsJSON) != "" || strings.TrimSpace(c.cfg.CredentialsFile) != ""
}

func (c *Client) credentials() ([]byte, error) {
	inline := strings.TrimSpace(c.cfg.CredentialsJSON)
	if strings.HasPrefix(inline, "{") {
		return []byte(inline), nil
	}

	path := strings.TrimSpace(c.cfg.CredentialsFile)
	if path == "" {
		// The inline variable is also accepted as a path.
		path = inline
	}
	if path == "" {
		return nil, ErrMissingCredentials
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	return data, nil
}

func (c *Client) newService(ctx context.Context) (*sc.Service, error) {
	data, err := c.credentials()
	if err != nil {
		return nil, err
	}

	conf, err := google.JWTConfigFromJSON(data, sc.WebmastersReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	return sc.NewService(ctx, option.WithTokenSource(conf.TokenSource(ctx)))
}

func (c *Client) service() (*sc.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.svc == nil {
		svc, err := c.build(context.Background())
		if err != nil {
			return nil, err
		}
		c.svc = svc
	}
	return c.svc, nil
}

// reset drops the cached service so the next call mints a fresh token.
func (c *Client) reset() {
	c.mu.Lock()
	c.svc = nil
	c.mu.Unlock()
}

// call runs fn against the API with the client timeout applied.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context, svc *sc.Service) error) error {
	svc, err := c.service()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	run := func() error { return fn(ctx, svc) }
	if c.prom != nil {
		err = c.prom.ObserveUpstream("searchconsole", op, run)
	} else {
		err = run()
	}
	if err != nil {
		return &APIError{Op: op, Err: err}
	}
	return nil
}

// callWithRetry retries token failures after rebuilding the client.
func (c *Client) callWithRetry(ctx context.Context, op string, fn func(ctx context.Context, svc *sc.Service) error) error {
	var err error
	for attempt := 0; attempt <= tokenRetries; attempt++ {
		if attempt > 0 {
			c.reset()
		}
		err = c.call(ctx, op, fn)
		if err == nil || !isTokenError(err) {
			return err
		}
	}
	return err
}

func isTokenError(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == 401 {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "invalid_grant") || strings.Contains(msg, "JWT")
}

// APIError tags a failed upstream call with the operation name.
type APIError struct {
	Op  string
	Err error
}

func (e *APIError) Error() string {
	msg := e.Err.Error()
	var gerr *googleapi.Error
	if errors.As(e.Err, &gerr) && gerr.Message != "" {
		msg = gerr.Message
	}
	return "Search Console API error: " + msg
}

func (e *APIError) Unwrap() error { return e.Err }
